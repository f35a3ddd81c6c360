package bot

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"receptionist/internal/manager"
	"receptionist/internal/model"
)

// Forms and prompts carry their state in a text_link entity on a zero width
// space at offset 0. Telegram clients cannot edit the entities of a bot's
// message, so the link round-trips untouched.
const (
	zeroWidthSpace  = "\u200b"
	formURL         = "https://receptionist.bot/form"
	promptURL       = "https://receptionist.bot/prompt"
	submitData      = "submit"
	maxCallbackData = 64
)

var errCallbackTooLong = errors.New("callback data exceeds 64 bytes")

type callbackKind string

const (
	callbackSubmit callbackKind = "submit"
	callbackSet    callbackKind = "set"
	callbackPrompt callbackKind = "prompt"
)

// callbackData is a decoded inline button payload. The grammar is
//
//	submit              submit the form
//	<field-id>=<value>  set a select or press a button
//	<field-id>          ask for a typed value
type callbackData struct {
	Kind  callbackKind
	Field model.FieldID
	Value string
}

func (c callbackData) String() string {
	switch c.Kind {
	case callbackSubmit:
		return submitData
	case callbackSet:
		return c.Field.String() + "=" + c.Value
	default:
		return c.Field.String()
	}
}

func parseCallbackData(data string) (callbackData, error) {
	if data == submitData {
		return callbackData{Kind: callbackSubmit}, nil
	}
	id, value, isSet := strings.Cut(data, "=")
	field, err := model.ParseFieldID(id)
	if err != nil {
		if errors.Is(err, model.ErrRouteNotFound) {
			return callbackData{}, err
		}
		return callbackData{}, fmt.Errorf("%w: %v", model.ErrRouteNotFound, err)
	}
	if isSet {
		return callbackData{Kind: callbackSet, Field: field, Value: value}, nil
	}
	return callbackData{Kind: callbackPrompt, Field: field}, nil
}

func encodeCallback(c callbackData) (string, error) {
	s := c.String()
	if len(s) > maxCallbackData {
		return "", fmt.Errorf("%q: %w", s, errCallbackTooLong)
	}
	return s, nil
}

// prompt is the state carried by a ForceReply message asking for a value.
type prompt struct {
	Token  string
	Field  model.FieldID
	FormID int
}

func formLink(token string) string {
	return formURL + "?" + url.Values{"s": {token}}.Encode()
}

func promptLink(p prompt) string {
	q := url.Values{}
	q.Set("s", p.Token)
	q.Set("f", p.Field.String())
	q.Set("m", strconv.Itoa(p.FormID))
	return promptURL + "?" + q.Encode()
}

// stateLink returns the query of the state link a message starts with.
func stateLink(msg *tgbotapi.Message, base string) (url.Values, bool) {
	if msg == nil {
		return nil, false
	}
	for _, e := range msg.Entities {
		if e.Type != "text_link" || e.Offset != 0 {
			continue
		}
		if !strings.HasPrefix(e.URL, base+"?") {
			return nil, false
		}
		u, err := url.Parse(e.URL)
		if err != nil {
			return nil, false
		}
		return u.Query(), true
	}
	return nil, false
}

func formToken(msg *tgbotapi.Message) (string, bool) {
	q, ok := stateLink(msg, formURL)
	if !ok || q.Get("s") == "" {
		return "", false
	}
	return q.Get("s"), true
}

// parsePrompt decodes a prompt the bot sent. Messages from users never count
// as prompts.
func parsePrompt(msg *tgbotapi.Message) (prompt, bool) {
	if msg == nil || msg.From == nil || !msg.From.IsBot {
		return prompt{}, false
	}
	q, ok := stateLink(msg, promptURL)
	if !ok {
		return prompt{}, false
	}
	field, err := model.ParseFieldID(q.Get("f"))
	if err != nil {
		return prompt{}, false
	}
	formID, err := strconv.Atoi(q.Get("m"))
	if err != nil || q.Get("s") == "" {
		return prompt{}, false
	}
	return prompt{Token: q.Get("s"), Field: field, FormID: formID}, true
}

// valueFor converts raw callback or reply text into the input the field expects.
func valueFor(kind model.FieldKind, text string) manager.Value {
	switch kind {
	case model.FieldModeSelect, model.FieldRuleSelect, model.FieldConditionKind, model.FieldActionKind:
		return manager.Selected(text)
	case model.FieldConditionAdd, model.FieldConditionRemove, model.FieldActionAdd, model.FieldActionRemove:
		return manager.Pressed()
	case model.FieldListenerChannel, model.FieldForwardChannel:
		return manager.ChannelValue(strings.TrimSpace(text))
	case model.FieldCollaborators:
		return manager.UsersValue(splitUsers(text)...)
	default:
		return manager.TextValue(text)
	}
}

// splitUsers extracts numeric user ids separated by commas or whitespace.
func splitUsers(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, err := strconv.ParseInt(f, 10, 64); err == nil {
			ids = append(ids, f)
		}
	}
	return ids
}

// mentionedUsers returns the ids of users mentioned by name in the message.
func mentionedUsers(msg *tgbotapi.Message) []string {
	var ids []string
	for _, e := range msg.Entities {
		if e.Type == "text_mention" && e.User != nil {
			ids = append(ids, userKey(e.User))
		}
	}
	return ids
}

func promptLabel(kind model.FieldKind) string {
	switch kind {
	case model.FieldListenerChannel:
		return "Reply with the id of the chat to listen to."
	case model.FieldCollaborators:
		return "Reply with the user ids of all collaborators, or mention them."
	case model.FieldConditionValue:
		return "Reply with the phrase or regex pattern to match."
	case model.FieldEmoji:
		return "Reply with the emoji to react with."
	case model.FieldThreadMessage:
		return "Reply with the text to answer in the thread."
	case model.FieldChannelMessage:
		return "Reply with the text to post to the chat."
	case model.FieldEscalationPolicy:
		return "Reply with the escalation policy id."
	case model.FieldEscalationText:
		return "Reply with the message for the on-call user."
	case model.FieldForwardChannel:
		return "Reply with the id of the chat to forward to."
	case model.FieldForwardContext:
		return "Reply with the context to send along with the message."
	default:
		return "Reply with the new value."
	}
}

func promptPlaceholder(kind model.FieldKind) string {
	switch kind {
	case model.FieldListenerChannel, model.FieldForwardChannel:
		return "-1001234567890"
	case model.FieldCollaborators:
		return "12345678, 87654321"
	case model.FieldEmoji:
		return "fire"
	case model.FieldEscalationPolicy:
		return "PABC123"
	default:
		return ""
	}
}
