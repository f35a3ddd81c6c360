package manager

import (
	"cmp"
	"fmt"
	"slices"

	"receptionist/internal/model"
	"receptionist/internal/ui"
)

// Value is the input a form field reports. Kind names the widget that
// produced it: selects and text inputs fill Text, user selects fill Users.
type Value struct {
	Kind  ui.BlockKind
	Text  string
	Users []string
}

// Selected returns the value of a static select.
func Selected(v string) Value { return Value{Kind: ui.StaticSelect, Text: v} }

// ChannelValue returns the value of a channel select.
func ChannelValue(channelID string) Value { return Value{Kind: ui.ChannelSelect, Text: channelID} }

// TextValue returns the value of a text input.
func TextValue(text string) Value { return Value{Kind: ui.TextInput, Text: text} }

// UsersValue returns the value of a user select.
func UsersValue(userIDs ...string) Value { return Value{Kind: ui.UserSelect, Users: userIDs} }

// Pressed returns the value of a button.
func Pressed() Value { return Value{Kind: ui.Button} }

// Action is a single field change sent before submission.
type Action struct {
	FieldID string
	Value   Value
}

// State holds the final form values keyed by field id.
type State map[string]Value

type stateEntry struct {
	field model.FieldID
	value Value
}

// entries resolves the field ids of the state. Fields that change the shape
// of the rule come before the payloads they govern.
func (s State) entries() ([]stateEntry, error) {
	out := make([]stateEntry, 0, len(s))
	for id, v := range s {
		f, err := model.ResolveField(id)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", id, err)
		}
		out = append(out, stateEntry{field: f, value: v})
	}
	slices.SortFunc(out, func(a, b stateEntry) int {
		if c := cmp.Compare(applyPhase(a.field.Kind), applyPhase(b.field.Kind)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.field.Index, b.field.Index); c != 0 {
			return c
		}
		return cmp.Compare(a.field.Kind, b.field.Kind)
	})
	return out, nil
}

func applyPhase(k model.FieldKind) int {
	switch k {
	case model.FieldListenerChannel, model.FieldCollaborators, model.FieldConditionKind, model.FieldActionKind:
		return 0
	default:
		return 1
	}
}

func expect(f model.FieldID, v Value, kinds ...ui.BlockKind) error {
	if slices.Contains(kinds, v.Kind) {
		return nil
	}
	return fmt.Errorf("%s got %s input: %w", f, v.Kind, ErrUnexpectedInput)
}
