package bot

import (
	"context"
	"errors"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"receptionist/internal/manager"
	"receptionist/internal/model"
	"receptionist/internal/storage"
	"receptionist/internal/ui"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Receptionist!

I watch the chats I am added to and react to messages that match your rules.

Quick start:
1. Add me to a group and make me an admin so I can read messages
2. /manage to create a rule for that group
3. /rules in the group to see what is listening there

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/manage — create, edit or delete rules
/rules — list the rules listening to this chat

A rule has:
- a chat to listen to
- conditions: a phrase (whole words) or a regex pattern; any match fires the rule
- actions: react with an emoji, reply in a thread, post to the chat, tag the on-call user, or forward to another chat
- collaborators: the users allowed to edit it

Fields with ✏️ ask for a value: answer the prompt with a reply.`)
}

func (b *Bot) handleManage(ctx context.Context, chatID int64, userID string) {
	view, err := b.manager.Open(ctx, userID)
	if err != nil {
		b.log.Error("open form", "user_id", userID, "error", err)
		b.reply(chatID, userError(err))
		return
	}
	b.sendForm(chatID, view)
}

func (b *Bot) handleRules(ctx context.Context, chatID int64) {
	rules, err := b.store.GetByListener(ctx, model.ChannelListener(strconv.FormatInt(chatID, 10)))
	if err != nil {
		b.log.Error("list rules", "chat_id", chatID, "error", err)
		b.reply(chatID, userError(err))
		return
	}
	b.reply(chatID, FormatRuleList(rules))
}

func (b *Bot) sendForm(chatID int64, view *ui.View) {
	form, err := renderForm(view)
	if err != nil {
		b.log.Error("render form", "chat_id", chatID, "error", err)
		b.reply(chatID, userError(err))
		return
	}
	msg := tgbotapi.NewMessage(chatID, form.Text)
	msg.Entities = form.Entities
	msg.ReplyMarkup = form.Markup
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send form", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) editForm(chatID int64, messageID int, view *ui.View) {
	form, err := renderForm(view)
	if err != nil {
		b.log.Error("render form", "chat_id", chatID, "error", err)
		b.reply(chatID, userError(err))
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, form.Text, form.Markup)
	edit.Entities = form.Entities
	edit.DisableWebPagePreview = true
	if _, err := b.api.Send(edit); err != nil {
		b.log.Warn("edit form", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (b *Bot) closeForm(chatID int64, messageID int, text string) {
	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		b.log.Warn("close form", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (b *Bot) handlePromptReply(ctx context.Context, msg *tgbotapi.Message, p prompt) {
	chatID := msg.Chat.ID
	if msg.From == nil || !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(chatID, "Access denied.")
		return
	}
	userID := userKey(msg.From)

	value := valueFor(p.Field.Kind, msg.Text)
	if p.Field.Kind == model.FieldCollaborators {
		value.Users = append(value.Users, mentionedUsers(msg)...)
	}

	view, err := b.manager.HandleAction(ctx, p.Token, userID, manager.Action{FieldID: p.Field.String(), Value: value})
	if err != nil {
		b.logActionError(userID, p.Field.String(), err)
		b.reply(chatID, userError(err))
		return
	}
	b.editForm(chatID, p.FormID, view)

	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, msg.ReplyToMessage.MessageID)); err != nil {
		b.log.Debug("delete prompt", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendPrompt(chatID int64, formID int, token string, field model.FieldID) {
	p := prompt{Token: token, Field: field, FormID: formID}
	text, entities := promptText(p, promptLabel(field.Kind))

	msg := tgbotapi.NewMessage(chatID, text)
	msg.Entities = entities
	msg.ReplyMarkup = tgbotapi.ForceReply{
		ForceReply:            true,
		InputFieldPlaceholder: promptPlaceholder(field.Kind),
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send prompt", "chat_id", chatID, "field", field.String(), "error", err)
	}
}

func (b *Bot) logActionError(userID, field string, err error) {
	if isUserFault(err) {
		b.log.Debug("form action rejected", "user_id", userID, "field", field, "error", err)
		return
	}
	b.log.Error("form action", "user_id", userID, "field", field, "error", err)
}

func isUserFault(err error) bool {
	for _, target := range []error{
		manager.ErrForeignSession,
		manager.ErrInvalidToken,
		manager.ErrNotCollaborator,
		manager.ErrUnexpectedInput,
		manager.ErrWrongVariant,
		manager.ErrNoRule,
		manager.ErrReadOnly,
		manager.ErrUnknownMode,
		model.ErrRouteNotFound,
		model.ErrIndex,
		model.ErrUnknownKind,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// userError returns the text shown to a user for a failed interaction.
func userError(err error) string {
	switch {
	case errors.Is(err, manager.ErrForeignSession):
		return "This form belongs to another user. Use /manage to open your own."
	case errors.Is(err, manager.ErrInvalidToken):
		return "This form has expired. Use /manage to start again."
	case errors.Is(err, manager.ErrNotCollaborator):
		return "You are not a collaborator on that rule."
	case errors.Is(err, storage.ErrNotFound):
		return "That rule no longer exists."
	case errors.Is(err, storage.ErrConflict):
		return "A rule with this id already exists."
	case errors.Is(err, storage.ErrUnavailable):
		return "The rule store is busy, please try again."
	case isUserFault(err):
		return "This form is out of date. Use /manage to start again."
	default:
		return "Something went wrong, please try again."
	}
}
