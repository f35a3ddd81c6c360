package bot

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"receptionist/internal/model"
	"receptionist/internal/ui"
)

// form is a view rendered as a Telegram message.
type form struct {
	Text     string
	Entities []tgbotapi.MessageEntity
	Markup   tgbotapi.InlineKeyboardMarkup
}

// richText builds message text together with its entities. Entity offsets
// are counted in UTF-16 code units.
type richText struct {
	sb       strings.Builder
	n        int
	entities []tgbotapi.MessageEntity
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func (t *richText) write(s string) {
	t.sb.WriteString(s)
	t.n += utf16Len(s)
}

func (t *richText) styled(typ, s string) {
	if s == "" {
		return
	}
	t.entities = append(t.entities, tgbotapi.MessageEntity{Type: typ, Offset: t.n, Length: utf16Len(s)})
	t.write(s)
}

func (t *richText) link(s, url string) {
	t.entities = append(t.entities, tgbotapi.MessageEntity{Type: "text_link", Offset: t.n, Length: utf16Len(s), URL: url})
	t.write(s)
}

func renderForm(view *ui.View) (form, error) {
	var t richText
	t.link(zeroWidthSpace, formLink(view.Token))
	t.styled("bold", view.Title)
	t.write("\n")

	var rows [][]tgbotapi.InlineKeyboardButton
	addRow := func(buttons ...callbackButton) error {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			data, err := encodeCallback(b.data)
			if err != nil {
				return err
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.label, data))
		}
		rows = append(rows, row)
		return nil
	}

	for _, b := range view.Blocks {
		field, _ := model.ParseFieldID(b.FieldID)

		switch b.Kind {
		case ui.Header:
			t.write("\n")
			t.styled("bold", b.Text)
			t.write("\n")
		case ui.Section:
			t.write(b.Text + "\n")
		case ui.Divider:
			t.write("\n")
		case ui.Context:
			if b.Text != "" {
				t.styled("italic", b.Text)
				t.write("\n")
			}
		case ui.StaticSelect:
			t.write(b.Label + ": ")
			t.styled("bold", selectedLabel(b))
			t.write("\n")
			buttons := make([]callbackButton, 0, len(b.Options))
			for _, o := range b.Options {
				label := o.Label
				if o.Value == b.Value {
					label = "✅ " + label
				}
				buttons = append(buttons, callbackButton{label: label, data: callbackData{Kind: callbackSet, Field: field, Value: o.Value}})
			}
			for chunk := range slices.Chunk(buttons, optionsPerRow(b.Options)) {
				if err := addRow(chunk...); err != nil {
					return form{}, err
				}
			}
		case ui.ChannelSelect, ui.TextInput, ui.UserSelect:
			t.write(b.Label + ": ")
			value := b.Value
			if b.Kind == ui.UserSelect {
				value = strings.Join(b.Values, ", ")
			}
			if value == "" {
				t.styled("italic", "empty")
			} else {
				t.styled("code", value)
			}
			t.write("\n")
			label := "✏️ " + b.Label + ordinal(field)
			if err := addRow(callbackButton{label: label, data: callbackData{Kind: callbackPrompt, Field: field}}); err != nil {
				return form{}, err
			}
		case ui.Button:
			if err := addRow(callbackButton{label: b.Label, data: callbackData{Kind: callbackSet, Field: field}}); err != nil {
				return form{}, err
			}
		}

		if b.Error != "" {
			t.styled("bold", "⚠️ "+b.Error)
			t.write("\n")
		}
	}

	if view.SubmitLabel != "" {
		if err := addRow(callbackButton{label: "💾 " + view.SubmitLabel, data: callbackData{Kind: callbackSubmit}}); err != nil {
			return form{}, err
		}
	}

	return form{
		Text:     strings.TrimRight(t.sb.String(), "\n"),
		Entities: t.entities,
		Markup:   tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows},
	}, nil
}

type callbackButton struct {
	label string
	data  callbackData
}

func selectedLabel(b ui.Block) string {
	for _, o := range b.Options {
		if o.Value == b.Value {
			return o.Label
		}
	}
	return "not selected"
}

func optionsPerRow(opts []ui.Option) int {
	for _, o := range opts {
		if len([]rune(o.Label)) > 16 {
			return 1
		}
	}
	return 2
}

// ordinal numbers the edit buttons of list fields.
func ordinal(f model.FieldID) string {
	k := string(f.Kind)
	if strings.HasPrefix(k, "condition-") || strings.HasPrefix(k, "action-") {
		return fmt.Sprintf(" %d", f.Index+1)
	}
	return ""
}

func promptText(p prompt, label string) (string, []tgbotapi.MessageEntity) {
	var t richText
	t.link(zeroWidthSpace, promptLink(p))
	t.write(label)
	return t.sb.String(), t.entities
}

// FormatRuleList formats the rules listening to a chat for display.
func FormatRuleList(rules []model.Rule) string {
	if len(rules) == 0 {
		return "No rules listen to this chat. Use /manage to create one."
	}
	var b strings.Builder
	b.WriteString("Rules listening to this chat:\n")
	for i, r := range rules {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, r.Summary())
		conds := make([]string, 0, len(r.Conditions))
		for _, c := range r.Conditions {
			conds = append(conds, formatCondition(c))
		}
		fmt.Fprintf(&b, "   when: %s\n", strings.Join(conds, " or "))
		fmt.Fprintf(&b, "   collaborators: %s\n", strings.Join(r.Collaborators, ", "))
	}
	return b.String()
}

func formatCondition(c model.Condition) string {
	switch c.Kind {
	case model.ConditionPhrase:
		return fmt.Sprintf("phrase %q", c.Value)
	case model.ConditionRegex:
		return fmt.Sprintf("regex /%s/", c.Value)
	default:
		return string(c.Kind)
	}
}
