package model

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldError is a user-fixable problem addressed to one form field.
type FieldError struct {
	Field   FieldID
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every FieldError found in a rule.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "invalid rule: " + strings.Join(msgs, "; ")
}

// ByBlock maps each error message to the block id of its field.
func (v ValidationErrors) ByBlock() map[string]string {
	out := make(map[string]string, len(v))
	for _, e := range v {
		if _, ok := out[e.Field.BlockID()]; !ok {
			out[e.Field.BlockID()] = e.Message
		}
	}
	return out
}

// Validate reports every invalid listener, condition, action and collaborator
// field of the rule. An empty result means the rule is valid.
func Validate(r Rule) ValidationErrors {
	var errs ValidationErrors

	if r.Listener.ChannelID == "" {
		errs = append(errs, FieldError{FieldListenerChannel.Field(0), "no channel selected"})
	}
	for i, c := range r.Conditions {
		errs = append(errs, c.validate(i)...)
	}
	for i, a := range r.Actions {
		errs = append(errs, a.validate(i)...)
	}
	if len(r.Collaborators) == 0 {
		errs = append(errs, FieldError{FieldCollaborators.Field(0), "at least one collaborator is required"})
	}
	return errs
}

func (c Condition) validate(index int) []FieldError {
	field := FieldConditionValue.Field(index)
	switch c.Kind {
	case ConditionPhrase, ConditionRegex:
	default:
		return []FieldError{{FieldConditionKind.Field(index), fmt.Sprintf("unknown condition kind %q", c.Kind)}}
	}
	if c.Value == "" {
		return []FieldError{{field, "input field is empty"}}
	}
	if c.Kind == ConditionRegex {
		if err := ValidateRegex(c.Value); err != nil {
			return []FieldError{{field, err.Error()}}
		}
	}
	return nil
}

func (a Action) validate(index int) []FieldError {
	var errs []FieldError
	require := func(value string, kind FieldKind, msg string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, FieldError{kind.Field(index), msg})
		}
	}

	switch a.Kind {
	case ActionAttachEmoji:
		require(RemoveEmojiColons(a.Emoji), FieldEmoji, "emoji is empty")
	case ActionThreadedReply:
		require(a.Message, FieldThreadMessage, "message is empty")
	case ActionChannelMessage:
		require(a.Message, FieldChannelMessage, "message is empty")
	case ActionEscalate:
		require(a.PolicyID, FieldEscalationPolicy, "no escalation policy provided")
		require(a.Message, FieldEscalationText, "message is empty")
	case ActionForward:
		require(a.Channel, FieldForwardChannel, "select a channel")
		require(a.Context, FieldForwardContext, "provide some context")
	default:
		errs = append(errs, FieldError{FieldActionKind.Field(index), fmt.Sprintf("unknown action kind %q", a.Kind)})
	}
	return errs
}

// ValidateRegex checks that a pattern compiles.
func ValidateRegex(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
