// Package ui describes forms as platform neutral blocks. Chat adapters render
// a View into their own widgets.
package ui

// BlockKind defines how a block is presented.
type BlockKind string

// Supported block kinds.
const (
	Header        BlockKind = "header"
	Section       BlockKind = "section"
	Divider       BlockKind = "divider"
	Context       BlockKind = "context"
	StaticSelect  BlockKind = "static_select"
	ChannelSelect BlockKind = "conversations_select"
	UserSelect    BlockKind = "multi_users_select"
	TextInput     BlockKind = "plain_text_input"
	Button        BlockKind = "button"
)

// Option is one choice of a select block.
type Option struct {
	Label string
	Value string
}

// Block is one element of a form.
type Block struct {
	Kind BlockKind
	// BlockID addresses the block in validation errors.
	BlockID string
	// FieldID is sent back with every change of the block's value.
	FieldID string
	Label   string
	Text    string
	// Value is the current value, Options the choices of a select.
	Value   string
	Values  []string
	Options []Option
	// Placeholder hints at the expected input of an empty field.
	Placeholder string
	Multiline   bool
	Error       string
}

// View is a rendered form together with the session token that must be
// echoed back with the next interaction.
type View struct {
	Title       string
	Token       string
	Blocks      []Block
	SubmitLabel string
}

// Add appends blocks to the view.
func (v *View) Add(blocks ...Block) {
	v.Blocks = append(v.Blocks, blocks...)
}

// Field returns the block carrying the given field id.
func (v *View) Field(fieldID string) (Block, bool) {
	for _, b := range v.Blocks {
		if b.FieldID == fieldID {
			return b, true
		}
	}
	return Block{}, false
}

// SetErrors attaches messages to the blocks they are addressed to. It
// returns the messages no block claimed.
func (v *View) SetErrors(byBlock map[string]string) map[string]string {
	rest := make(map[string]string)
	for id, msg := range byBlock {
		rest[id] = msg
	}
	for i := range v.Blocks {
		if msg, ok := rest[v.Blocks[i].BlockID]; ok && v.Blocks[i].BlockID != "" {
			v.Blocks[i].Error = msg
			delete(rest, v.Blocks[i].BlockID)
		}
	}
	return rest
}
