package model

import (
	"fmt"
	"slices"
	"strings"
)

// ChangeConditionKind replaces the condition at index with one of the new
// kind, carrying the typed phrase or pattern over.
func (r *Rule) ChangeConditionKind(index int, kind ConditionKind) error {
	if index < 0 || index >= len(r.Conditions) {
		return fmt.Errorf("change condition %d: %w", index, ErrIndex)
	}
	old := r.Conditions[index]
	if old.Kind == kind {
		return nil
	}

	next := Condition{Kind: kind}
	switch kind {
	case ConditionPhrase, ConditionRegex:
		next.Value = old.Value
	default:
		return fmt.Errorf("change condition %d to %q: %w", index, kind, ErrUnknownKind)
	}
	r.Conditions[index] = next
	return nil
}

// ChangeActionKind replaces the action at index with one of the new kind.
// The free text of the old action (emoji, message or forward context) moves
// to the free text field of the new one; policy and channel are reset.
func (r *Rule) ChangeActionKind(index int, kind ActionKind) error {
	if index < 0 || index >= len(r.Actions) {
		return fmt.Errorf("change action %d: %w", index, ErrIndex)
	}
	old := r.Actions[index]
	if old.Kind == kind {
		return nil
	}

	var text string
	switch old.Kind {
	case ActionAttachEmoji:
		text = old.Emoji
	case ActionThreadedReply, ActionChannelMessage, ActionEscalate:
		text = old.Message
	case ActionForward:
		text = old.Context
	}

	next := Action{Kind: kind}
	switch kind {
	case ActionAttachEmoji:
		next.Emoji = text
	case ActionThreadedReply, ActionChannelMessage:
		next.Message = text
	case ActionEscalate:
		next.Message = text
		next.PolicyID = ""
	case ActionForward:
		next.Context = text
		next.Channel = ""
	default:
		return fmt.Errorf("change action %d to %q: %w", index, kind, ErrUnknownKind)
	}
	r.Actions[index] = next
	return nil
}

// AddCondition appends a default condition.
func (r *Rule) AddCondition() {
	r.Conditions = append(r.Conditions, DefaultConditionFor(r.Listener.Kind))
}

// RemoveCondition drops the condition at index.
func (r *Rule) RemoveCondition(index int) error {
	if index < 0 || index >= len(r.Conditions) {
		return fmt.Errorf("remove condition %d: %w", index, ErrIndex)
	}
	r.Conditions = slices.Delete(r.Conditions, index, index+1)
	return nil
}

// AddAction appends a default action.
func (r *Rule) AddAction() {
	r.Actions = append(r.Actions, DefaultActionFor(r.Listener.Kind))
}

// RemoveAction drops the action at index.
func (r *Rule) RemoveAction(index int) error {
	if index < 0 || index >= len(r.Actions) {
		return fmt.Errorf("remove action %d: %w", index, ErrIndex)
	}
	r.Actions = slices.Delete(r.Actions, index, index+1)
	return nil
}

// AddCollaborator appends userID unless it is already present.
func (r *Rule) AddCollaborator(userID string) {
	if slices.Contains(r.Collaborators, userID) {
		return
	}
	r.Collaborators = append(r.Collaborators, userID)
}

// SetCollaborators replaces the collaborator set, dropping blanks and duplicates.
func (r *Rule) SetCollaborators(userIDs []string) {
	r.Collaborators = []string{}
	for _, id := range userIDs {
		if id = strings.TrimSpace(id); id != "" {
			r.AddCollaborator(id)
		}
	}
}

// Summary returns the one-line label used when choosing among rules.
func (r Rule) Summary() string {
	parts := make([]string, 0, len(r.Actions))
	for _, a := range r.Actions {
		parts = append(parts, a.Summary())
	}
	return fmt.Sprintf("#%s | %s", r.Listener.ChannelID, strings.Join(parts, ", "))
}

// Summary returns a short description of the action.
func (a Action) Summary() string {
	switch a.Kind {
	case ActionAttachEmoji:
		return AddEmojiColons(a.Emoji)
	case ActionThreadedReply:
		return "Thread: " + truncate(a.Message, 10)
	case ActionChannelMessage:
		return "Post: " + truncate(a.Message, 10)
	case ActionEscalate:
		return fmt.Sprintf("Tag on-call: %s - %s", a.PolicyID, truncate(a.Message, 10))
	case ActionForward:
		return fmt.Sprintf("Fwd message: %s - %s", a.Channel, truncate(a.Context, 10))
	default:
		return string(a.Kind)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ".."
}

// AddEmojiColons wraps an emoji name as ":name:".
func AddEmojiColons(name string) string {
	name = RemoveEmojiColons(name)
	if name == "" {
		return ""
	}
	return ":" + name + ":"
}

// RemoveEmojiColons strips surrounding colons from an emoji name.
func RemoveEmojiColons(name string) string {
	return strings.Trim(strings.TrimSpace(name), ":")
}
