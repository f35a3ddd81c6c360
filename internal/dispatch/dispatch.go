// Package dispatch runs the actions of every rule matching an incoming message.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"receptionist/internal/matcher"
	"receptionist/internal/model"
)

// Message is a chat message seen by the bot.
type Message struct {
	ChannelID    string
	ChannelTitle string
	MessageID    int
	UserName     string
	IsBot        bool
	IsReply      bool
	Text         string
	Link         string
}

// Messenger performs actions on the chat platform.
type Messenger interface {
	React(ctx context.Context, msg Message, emoji string) error
	ReplyInThread(ctx context.Context, msg Message, text string) error
	Post(ctx context.Context, channelID, text string) error
	Forward(ctx context.Context, msg Message, channelID string) error
}

// Escalator finds the first on-call responder of an escalation policy.
type Escalator interface {
	First(ctx context.Context, policyID string) (string, error)
}

// RuleSource returns the rules listening to a listener.
type RuleSource interface {
	GetByListener(ctx context.Context, listener model.Listener) ([]model.Rule, error)
}

// Dispatcher matches messages against stored rules and executes their actions.
type Dispatcher struct {
	rules     RuleSource
	messenger Messenger
	escalator Escalator
	log       *slog.Logger
	pause     time.Duration
}

// New creates a Dispatcher. escalator may be nil, in which case escalation
// actions are skipped.
func New(rules RuleSource, messenger Messenger, escalator Escalator, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		rules:     rules,
		messenger: messenger,
		escalator: escalator,
		log:       log,
		pause:     50 * time.Millisecond,
	}
}

// SetPause overrides the delay between outbound sends.
func (d *Dispatcher) SetPause(p time.Duration) {
	d.pause = p
}

// HandleMessage runs the actions of every rule of the message's channel whose
// conditions match the text. It returns the number of actions attempted.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg Message) (int, error) {
	if msg.IsBot || msg.IsReply || msg.Text == "" {
		return 0, nil
	}

	listener := model.ChannelListener(msg.ChannelID)
	rules, err := d.rules.GetByListener(ctx, listener)
	if err != nil {
		return 0, fmt.Errorf("get rules for %s: %w", listener.Key(), err)
	}

	matched := matcher.Matching(rules, msg.Text)
	if len(matched) == 0 {
		return 0, nil
	}
	d.log.Debug("rules matched", "channel_id", msg.ChannelID, "message_id", msg.MessageID, "count", len(matched))

	attempted := 0
	for _, rule := range matched {
		for i, action := range rule.Actions {
			if attempted > 0 {
				select {
				case <-ctx.Done():
					return attempted, ctx.Err()
				case <-time.After(d.pause):
				}
			} else if ctx.Err() != nil {
				return attempted, ctx.Err()
			}
			attempted++
			if err := d.execute(ctx, msg, action); err != nil {
				d.log.Error("run action",
					"rule_id", rule.ID,
					"action", i,
					"kind", action.Kind,
					"channel_id", msg.ChannelID,
					"error", err,
				)
			}
		}
	}
	return attempted, nil
}

func (d *Dispatcher) execute(ctx context.Context, msg Message, a model.Action) error {
	switch a.Kind {
	case model.ActionAttachEmoji:
		return d.messenger.React(ctx, msg, model.RemoveEmojiColons(a.Emoji))
	case model.ActionThreadedReply:
		return d.messenger.ReplyInThread(ctx, msg, a.Message)
	case model.ActionChannelMessage:
		return d.messenger.Post(ctx, msg.ChannelID, a.Message)
	case model.ActionEscalate:
		if d.escalator == nil {
			d.log.Warn("escalation skipped, no on-call client configured", "policy_id", a.PolicyID)
			return nil
		}
		name, err := d.escalator.First(ctx, a.PolicyID)
		if err != nil {
			return fmt.Errorf("find on-call for %s: %w", a.PolicyID, err)
		}
		return d.messenger.ReplyInThread(ctx, msg, FormatEscalation(name, a.Message))
	case model.ActionForward:
		if err := d.messenger.Forward(ctx, msg, a.Channel); err != nil {
			return fmt.Errorf("forward to %s: %w", a.Channel, err)
		}
		return d.messenger.Post(ctx, a.Channel, FormatForwardNotice(msg, a.Context))
	default:
		return fmt.Errorf("%w %q", model.ErrUnknownKind, a.Kind)
	}
}

// FormatEscalation returns the thread reply tagging the on-call user.
func FormatEscalation(name, message string) string {
	return name + " - " + message
}

// FormatForwardNotice returns the note posted next to a forwarded message.
func FormatForwardNotice(msg Message, context string) string {
	origin := msg.ChannelTitle
	if origin == "" {
		origin = msg.ChannelID
	}
	link := msg.Link
	if link == "" {
		link = "a message"
	}
	return fmt.Sprintf("%s just sent %s to %s.\n_Context_: %s", msg.UserName, link, origin, context)
}
