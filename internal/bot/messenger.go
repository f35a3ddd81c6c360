package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"receptionist/internal/dispatch"
)

var errUnknownEmoji = errors.New("emoji is not available as a reaction")

// reactionEmoji maps emoji short names to the reactions Telegram accepts.
var reactionEmoji = map[string]string{
	"+1":             "👍",
	"thumbsup":       "👍",
	"-1":             "👎",
	"thumbsdown":     "👎",
	"heart":          "❤",
	"fire":           "🔥",
	"clap":           "👏",
	"tada":           "🎉",
	"eyes":           "👀",
	"pray":           "🙏",
	"ok_hand":        "👌",
	"100":            "💯",
	"zap":            "⚡",
	"trophy":         "🏆",
	"broken_heart":   "💔",
	"thinking_face":  "🤔",
	"thinking":       "🤔",
	"scream":         "😱",
	"cry":            "😢",
	"sob":            "😭",
	"rofl":           "🤣",
	"heart_eyes":     "😍",
	"sunglasses":     "😎",
	"handshake":      "🤝",
	"writing_hand":   "✍",
	"ghost":          "👻",
	"see_no_evil":    "🙈",
	"saluting_face":  "🫡",
	"rage":           "😡",
	"nerd_face":      "🤓",
	"unicorn_face":   "🦄",
	"moyai":          "🗿",
	"cool":           "🆒",
	"clown_face":     "🤡",
	"poop":           "💩",
	"sleeping":       "😴",
	"exploding_head": "🤯",
	"star_struck":    "🤩",
	"hugging_face":   "🤗",
	"shrug":          "🤷",
	"space_invader":  "👾",
	"technologist":   "👨‍💻",
	"innocent":       "😇",
	"fearful":        "😨",
	"neutral_face":   "😐",
	"yawning_face":   "🥱",
	"strawberry":     "🍓",
	"banana":         "🍌",
	"champagne":      "🍾",
}

// reaction resolves an emoji short name. Input that is already an emoji is
// passed through.
func reaction(name string) (string, error) {
	if e, ok := reactionEmoji[name]; ok {
		return e, nil
	}
	for _, r := range name {
		if r > unicode.MaxASCII {
			return name, nil
		}
	}
	return "", fmt.Errorf("%q: %w", name, errUnknownEmoji)
}

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

func parseChatID(id string) (int64, error) {
	chatID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", id, err)
	}
	return chatID, nil
}

// React attaches an emoji reaction to the message.
func (b *Bot) React(_ context.Context, msg dispatch.Message, emoji string) error {
	e, err := reaction(emoji)
	if err != nil {
		return err
	}
	params := tgbotapi.Params{"chat_id": msg.ChannelID}
	params.AddNonZero("message_id", msg.MessageID)
	if err := params.AddInterface("reaction", []reactionType{{Type: "emoji", Emoji: e}}); err != nil {
		return fmt.Errorf("encode reaction: %w", err)
	}
	if _, err := b.api.MakeRequest("setMessageReaction", params); err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}
	return nil
}

// ReplyInThread answers the message with a reply attached to it.
func (b *Bot) ReplyInThread(_ context.Context, msg dispatch.Message, text string) error {
	chatID, err := parseChatID(msg.ChannelID)
	if err != nil {
		return err
	}
	reply := tgbotapi.NewMessage(chatID, text)
	reply.ReplyToMessageID = msg.MessageID
	reply.AllowSendingWithoutReply = true
	reply.DisableWebPagePreview = true
	if _, err := b.api.Send(reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// Post sends a message to a chat.
func (b *Bot) Post(_ context.Context, channelID, text string) error {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Forward copies the message into another chat.
func (b *Bot) Forward(_ context.Context, msg dispatch.Message, channelID string) error {
	to, err := parseChatID(channelID)
	if err != nil {
		return err
	}
	from, err := parseChatID(msg.ChannelID)
	if err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewForward(to, from, msg.MessageID)); err != nil {
		return fmt.Errorf("forward message: %w", err)
	}
	return nil
}
