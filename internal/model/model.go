// Package model defines the domain types used across the application.
package model

import "errors"

// Errors returned by rule mutators.
var (
	ErrIndex       = errors.New("index out of range")
	ErrUnknownKind = errors.New("unknown kind")
)

// ListenerKind defines the event source a rule watches.
type ListenerKind string

// Supported listener kinds.
const (
	ListenerChannel ListenerKind = "channel"
)

// Listener identifies the event source a rule reacts to.
type Listener struct {
	Kind      ListenerKind `json:"kind"`
	ChannelID string       `json:"channel_id"`
}

// ChannelListener returns a listener for messages posted to the given chat.
func ChannelListener(channelID string) Listener {
	return Listener{Kind: ListenerChannel, ChannelID: channelID}
}

// Key returns the deterministic partition key of the listener.
func (l Listener) Key() string {
	return string(l.Kind) + "/" + l.ChannelID
}

// ConditionKind defines how a condition tests a message.
type ConditionKind string

// Supported condition kinds.
const (
	ConditionPhrase ConditionKind = "match-phrase"
	ConditionRegex  ConditionKind = "match-regex"
)

// ConditionKinds lists condition kinds in display order.
var ConditionKinds = []ConditionKind{ConditionPhrase, ConditionRegex}

// Description returns a human label for the condition kind.
func (k ConditionKind) Description() string {
	switch k {
	case ConditionPhrase:
		return "Phrase match"
	case ConditionRegex:
		return "Regex match"
	default:
		return string(k)
	}
}

// Condition is a predicate evaluated against an inbound message.
// Value holds the phrase for ConditionPhrase and the pattern for ConditionRegex.
type Condition struct {
	Kind  ConditionKind `json:"kind"`
	Value string        `json:"value"`
}

// ActionKind defines the side effect an action performs.
type ActionKind string

// Supported action kinds.
const (
	ActionAttachEmoji    ActionKind = "attach-emoji"
	ActionThreadedReply  ActionKind = "threaded-reply"
	ActionChannelMessage ActionKind = "channel-message"
	ActionEscalate       ActionKind = "escalate-in-thread"
	ActionForward        ActionKind = "forward-to-channel"
)

// ActionKinds lists action kinds in display order.
var ActionKinds = []ActionKind{
	ActionAttachEmoji,
	ActionThreadedReply,
	ActionChannelMessage,
	ActionEscalate,
	ActionForward,
}

// Description returns a human label for the action kind.
func (k ActionKind) Description() string {
	switch k {
	case ActionAttachEmoji:
		return "Attach emoji to message"
	case ActionThreadedReply:
		return "Reply in thread"
	case ActionChannelMessage:
		return "Post message to same chat"
	case ActionEscalate:
		return "Tag on-call user in thread"
	case ActionForward:
		return "Forward message to another chat"
	default:
		return string(k)
	}
}

// Action is a side effect executed when a rule matches.
// Only the fields of the active Kind are meaningful:
//
//	attach-emoji        Emoji
//	threaded-reply      Message
//	channel-message     Message
//	escalate-in-thread  PolicyID, Message
//	forward-to-channel  Channel, Context
type Action struct {
	Kind     ActionKind `json:"kind"`
	Emoji    string     `json:"emoji,omitempty"`
	Message  string     `json:"message,omitempty"`
	PolicyID string     `json:"policy_id,omitempty"`
	Channel  string     `json:"channel,omitempty"`
	Context  string     `json:"context,omitempty"`
}

// Rule binds a listener to conditions and the actions fired when any of them match.
type Rule struct {
	ID            string      `json:"id"`
	Listener      Listener    `json:"listener"`
	Conditions    []Condition `json:"conditions"`
	Actions       []Action    `json:"actions"`
	Collaborators []string    `json:"collaborators"`
}

// DefaultConditionFor returns the placeholder condition for a listener kind.
// Every listener kind currently starts from an empty phrase match.
func DefaultConditionFor(ListenerKind) Condition {
	return Condition{Kind: ConditionPhrase}
}

// DefaultActionFor returns the placeholder action for a listener kind.
func DefaultActionFor(ListenerKind) Action {
	return Action{Kind: ActionAttachEmoji}
}

// NewRule returns a rule with one default condition and one default action.
func NewRule(id string, listener Listener) Rule {
	return Rule{
		ID:            id,
		Listener:      listener,
		Conditions:    []Condition{DefaultConditionFor(listener.Kind)},
		Actions:       []Action{DefaultActionFor(listener.Kind)},
		Collaborators: []string{},
	}
}
