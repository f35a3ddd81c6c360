package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"receptionist/internal/config"
	"receptionist/internal/dispatch"
	"receptionist/internal/manager"
	"receptionist/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that manages rules and runs them on chat messages.
type Bot struct {
	api        telegramAPI
	store      storage.Storage
	cfg        *config.Config
	manager    *manager.Manager
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
// escalator may be nil when no on-call service is configured.
func New(token string, store storage.Storage, cfg *config.Config, escalator dispatch.Escalator, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized", "username", api.Self.UserName)
	return newBot(api, store, cfg, escalator, log), nil
}

func newBot(api telegramAPI, store storage.Storage, cfg *config.Config, escalator dispatch.Escalator, log *slog.Logger) *Bot {
	b := &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		manager: manager.New(store, log),
		log:     log,
	}
	b.dispatcher = dispatch.New(store, b, escalator, log)
	return b
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "channel_post", "callback_query"}

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic handling update", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.ChannelPost != nil:
		b.dispatch(ctx, update.ChannelPost)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if p, ok := parsePrompt(msg.ReplyToMessage); ok {
		b.handlePromptReply(ctx, msg, p)
		return
	}
	if msg.IsCommand() {
		if msg.From == nil || !b.cfg.IsUserAllowed(msg.From.ID) {
			b.reply(msg.Chat.ID, "Access denied.")
			return
		}
		b.handleCommand(ctx, msg)
		return
	}
	b.dispatch(ctx, msg)
}

func (b *Bot) dispatch(ctx context.Context, msg *tgbotapi.Message) {
	n, err := b.dispatcher.HandleMessage(ctx, toDispatchMessage(msg))
	if err != nil {
		b.log.Error("dispatch message", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "error", err)
		return
	}
	if n > 0 {
		b.log.Info("actions run", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "count", n)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "chat_id", chatID, "user_id", msg.From.ID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "manage":
		b.handleManage(ctx, chatID, userKey(msg.From))
	case "rules":
		b.handleRules(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func toDispatchMessage(msg *tgbotapi.Message) dispatch.Message {
	out := dispatch.Message{
		ChannelID:    strconv.FormatInt(msg.Chat.ID, 10),
		ChannelTitle: chatTitle(msg.Chat),
		MessageID:    msg.MessageID,
		IsReply:      msg.ReplyToMessage != nil,
		Text:         msg.Text,
		Link:         messageLink(msg.Chat, msg.MessageID),
	}
	if out.Text == "" {
		out.Text = msg.Caption
	}
	switch {
	case msg.From != nil:
		out.IsBot = msg.From.IsBot
		out.UserName = displayName(msg.From)
	case msg.SenderChat != nil:
		out.UserName = chatTitle(msg.SenderChat)
	}
	return out
}

func userKey(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func chatTitle(c *tgbotapi.Chat) string {
	switch {
	case c.Title != "":
		return c.Title
	case c.UserName != "":
		return "@" + c.UserName
	default:
		return strconv.FormatInt(c.ID, 10)
	}
}

// messageLink returns the t.me link of a message. Private chats have no
// shareable links.
func messageLink(c *tgbotapi.Chat, messageID int) string {
	if c.UserName != "" {
		return fmt.Sprintf("https://t.me/%s/%d", c.UserName, messageID)
	}
	id := strconv.FormatInt(c.ID, 10)
	if internal, ok := strings.CutPrefix(id, "-100"); ok {
		return fmt.Sprintf("https://t.me/c/%s/%d", internal, messageID)
	}
	return ""
}
