package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"receptionist/internal/manager"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	answer := ""
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, answer)); err != nil {
			b.log.Error("send callback ack", "error", err)
		}
	}()

	if cb.Message == nil {
		return
	}
	if !b.cfg.IsUserAllowed(cb.From.ID) {
		answer = "Access denied."
		return
	}

	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	userID := userKey(cb.From)

	token, ok := formToken(cb.Message)
	if !ok {
		answer = userError(manager.ErrInvalidToken)
		return
	}
	data, err := parseCallbackData(cb.Data)
	if err != nil {
		b.log.Debug("bad callback data", "data", cb.Data, "error", err)
		answer = userError(err)
		return
	}

	b.log.Info("callback",
		"kind", data.Kind,
		"field", data.Field.String(),
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch data.Kind {
	case callbackSubmit:
		answer = b.submitForm(ctx, chatID, messageID, token, userID)
	case callbackPrompt:
		s, err := manager.DecodeSession(token)
		if err != nil {
			answer = userError(err)
			return
		}
		if s.UserID != userID {
			answer = userError(manager.ErrForeignSession)
			return
		}
		b.sendPrompt(chatID, messageID, token, data.Field)
	case callbackSet:
		view, err := b.manager.HandleAction(ctx, token, userID, manager.Action{
			FieldID: data.Field.String(),
			Value:   valueFor(data.Field.Kind, data.Value),
		})
		if err != nil {
			b.logActionError(userID, data.Field.String(), err)
			answer = userError(err)
			return
		}
		b.editForm(chatID, messageID, view)
	}
}

// submitForm submits the form and returns the callback answer.
func (b *Bot) submitForm(ctx context.Context, chatID int64, messageID int, token, userID string) string {
	out, err := b.manager.Submit(ctx, token, userID, manager.State{})
	if err != nil {
		b.logActionError(userID, "submit", err)
		return userError(err)
	}
	if !out.Done {
		b.editForm(chatID, messageID, out.View)
		return "Please fix the highlighted fields."
	}
	b.closeForm(chatID, messageID, out.Message)
	return out.Message
}
