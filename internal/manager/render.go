package manager

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"receptionist/internal/model"
	"receptionist/internal/ui"
)

const notCollaboratorText = "You are not a collaborator on any rules, please create a new rule " +
	"or ask another user to add you to an existing rule."

func (m *Manager) render(ctx context.Context, s Session, errs map[string]string) (*ui.View, error) {
	token, err := EncodeSession(s)
	if err != nil {
		return nil, err
	}
	v := &ui.View{Title: s.Mode.Description(), Token: token}
	v.Add(modeBlock(s.Mode))

	switch s.Mode {
	case ModeHome:
		v.Add(ui.Block{Kind: ui.Section, Text: "Choose what you would like to do with your rules."})
	case ModeCreate:
		v.SubmitLabel = "Create"
		if s.Rule != nil {
			v.Add(ruleBlocks(*s.Rule)...)
		}
	case ModeEdit, ModeDelete:
		if s.Rule == nil {
			if err := m.addRuleSelector(ctx, v, s.UserID); err != nil {
				return nil, err
			}
			break
		}
		if s.Mode == ModeEdit {
			v.SubmitLabel = "Save"
			v.Add(ruleBlocks(*s.Rule)...)
			break
		}
		v.SubmitLabel = "Delete"
		v.Add(
			ui.Block{Kind: ui.Section, Text: "This rule will be deleted:"},
			ui.Block{Kind: ui.Context, Text: s.Rule.Summary()},
		)
	}

	for _, id := range slices.Sorted(maps.Keys(v.SetErrors(errs))) {
		v.Add(ui.Block{Kind: ui.Context, BlockID: id, Error: errs[id]})
	}
	return v, nil
}

func (m *Manager) addRuleSelector(ctx context.Context, v *ui.View, userID string) error {
	rules, err := m.store.GetByCollaborator(ctx, userID)
	if err != nil {
		return fmt.Errorf("list rules for %s: %w", userID, err)
	}
	if len(rules) == 0 {
		v.Add(ui.Block{Kind: ui.Section, Text: notCollaboratorText})
		return nil
	}

	field := model.FieldRuleSelect.Field(0)
	opts := make([]ui.Option, 0, len(rules))
	for _, r := range rules {
		opts = append(opts, ui.Option{Label: r.Summary(), Value: r.ID})
	}
	v.Add(ui.Block{
		Kind:    ui.StaticSelect,
		BlockID: field.BlockID(),
		FieldID: field.String(),
		Label:   "Rule",
		Options: opts,
	})
	return nil
}

func modeBlock(current Mode) ui.Block {
	field := model.FieldModeSelect.Field(0)
	opts := make([]ui.Option, 0, len(Modes))
	for _, mode := range Modes {
		opts = append(opts, ui.Option{Label: mode.Description(), Value: string(mode)})
	}
	return ui.Block{
		Kind:    ui.StaticSelect,
		BlockID: field.BlockID(),
		FieldID: field.String(),
		Label:   "Mode",
		Value:   string(current),
		Options: opts,
	}
}

func ruleBlocks(r model.Rule) []ui.Block {
	listener := model.FieldListenerChannel.Field(0)
	blocks := []ui.Block{{
		Kind:        ui.ChannelSelect,
		BlockID:     listener.BlockID(),
		FieldID:     listener.String(),
		Label:       "Chat to listen to",
		Value:       r.Listener.ChannelID,
		Placeholder: "chat id",
	}}

	blocks = append(blocks, ui.Block{Kind: ui.Divider}, ui.Block{Kind: ui.Header, Text: "Conditions (any may match)"})
	for i, c := range r.Conditions {
		blocks = append(blocks, conditionBlocks(i, c)...)
	}
	blocks = append(blocks, button(model.FieldConditionAdd.Field(0), "Add condition"))

	blocks = append(blocks, ui.Block{Kind: ui.Divider}, ui.Block{Kind: ui.Header, Text: "Actions"})
	for i, a := range r.Actions {
		blocks = append(blocks, actionBlocks(i, a)...)
	}
	blocks = append(blocks, button(model.FieldActionAdd.Field(0), "Add action"))

	collaborators := model.FieldCollaborators.Field(0)
	blocks = append(blocks, ui.Block{Kind: ui.Divider}, ui.Block{
		Kind:    ui.UserSelect,
		BlockID: collaborators.BlockID(),
		FieldID: collaborators.String(),
		Label:   "Collaborators",
		Values:  slices.Clone(r.Collaborators),
	})
	return blocks
}

func conditionBlocks(i int, c model.Condition) []ui.Block {
	kindField := model.FieldConditionKind.Field(i)
	opts := make([]ui.Option, 0, len(model.ConditionKinds))
	for _, k := range model.ConditionKinds {
		opts = append(opts, ui.Option{Label: k.Description(), Value: string(k)})
	}

	label, placeholder := "Phrase", "word or phrase"
	if c.Kind == model.ConditionRegex {
		label, placeholder = "Pattern", "regular expression"
	}

	return []ui.Block{
		{
			Kind:    ui.StaticSelect,
			BlockID: kindField.BlockID(),
			FieldID: kindField.String(),
			Label:   fmt.Sprintf("Condition %d", i+1),
			Value:   string(c.Kind),
			Options: opts,
		},
		textInput(model.FieldConditionValue.Field(i), label, c.Value, placeholder),
		button(model.FieldConditionRemove.Field(i), fmt.Sprintf("Remove condition %d", i+1)),
	}
}

func actionBlocks(i int, a model.Action) []ui.Block {
	kindField := model.FieldActionKind.Field(i)
	opts := make([]ui.Option, 0, len(model.ActionKinds))
	for _, k := range model.ActionKinds {
		opts = append(opts, ui.Option{Label: k.Description(), Value: string(k)})
	}
	blocks := []ui.Block{{
		Kind:    ui.StaticSelect,
		BlockID: kindField.BlockID(),
		FieldID: kindField.String(),
		Label:   fmt.Sprintf("Action %d", i+1),
		Value:   string(a.Kind),
		Options: opts,
	}}

	switch a.Kind {
	case model.ActionAttachEmoji:
		blocks = append(blocks, textInput(model.FieldEmoji.Field(i), "Emoji", a.Emoji, "thumbsup"))
	case model.ActionThreadedReply:
		blocks = append(blocks, multiline(textInput(model.FieldThreadMessage.Field(i), "Reply", a.Message, "")))
	case model.ActionChannelMessage:
		blocks = append(blocks, multiline(textInput(model.FieldChannelMessage.Field(i), "Message", a.Message, "")))
	case model.ActionEscalate:
		blocks = append(blocks,
			textInput(model.FieldEscalationPolicy.Field(i), "Escalation policy", a.PolicyID, "policy id"),
			multiline(textInput(model.FieldEscalationText.Field(i), "Message to the on-call user", a.Message, "")),
		)
	case model.ActionForward:
		channel := model.FieldForwardChannel.Field(i)
		blocks = append(blocks,
			ui.Block{
				Kind:        ui.ChannelSelect,
				BlockID:     channel.BlockID(),
				FieldID:     channel.String(),
				Label:       "Forward to chat",
				Value:       a.Channel,
				Placeholder: "chat id",
			},
			multiline(textInput(model.FieldForwardContext.Field(i), "Context", a.Context, "why this matters")),
		)
	}
	return append(blocks, button(model.FieldActionRemove.Field(i), fmt.Sprintf("Remove action %d", i+1)))
}

func textInput(f model.FieldID, label, value, placeholder string) ui.Block {
	return ui.Block{
		Kind:        ui.TextInput,
		BlockID:     f.BlockID(),
		FieldID:     f.String(),
		Label:       label,
		Value:       value,
		Placeholder: placeholder,
	}
}

func multiline(b ui.Block) ui.Block {
	b.Multiline = true
	return b
}

func button(f model.FieldID, label string) ui.Block {
	return ui.Block{Kind: ui.Button, FieldID: f.String(), Label: label}
}
