package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"receptionist/internal/config"
	"receptionist/internal/model"
	"receptionist/internal/storage"
)

// --- mocks ---

type apiCall struct {
	Endpoint string
	Params   tgbotapi.Params
}

type mockAPI struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	sentIDs  []int
	requests []tgbotapi.Chattable
	calls    []apiCall
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.sent = append(m.sent, c)
	m.sentIDs = append(m.sentIDs, m.nextID)
	return tgbotapi.Message{MessageID: m.nextID}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, apiCall{Endpoint: endpoint, Params: params})
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

// lastMessage returns the last MessageConfig sent and the id it was given.
func (m *mockAPI) lastMessage(t *testing.T) (tgbotapi.MessageConfig, int) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if msg, ok := m.sent[i].(tgbotapi.MessageConfig); ok {
			return msg, m.sentIDs[i]
		}
	}
	t.Fatal("no message sent")
	return tgbotapi.MessageConfig{}, 0
}

func (m *mockAPI) lastText(t *testing.T) string {
	t.Helper()
	msg, _ := m.lastMessage(t)
	return msg.Text
}

func (m *mockAPI) lastEdit(t *testing.T) tgbotapi.EditMessageTextConfig {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if edit, ok := m.sent[i].(tgbotapi.EditMessageTextConfig); ok {
			return edit
		}
	}
	t.Fatal("no edit sent")
	return tgbotapi.EditMessageTextConfig{}
}

func (m *mockAPI) lastAnswer(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if cb, ok := m.requests[i].(tgbotapi.CallbackConfig); ok {
			return cb.Text
		}
	}
	t.Fatal("no callback answered")
	return ""
}

func (m *mockAPI) getSent() []tgbotapi.Chattable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), m.sent...)
}

func (m *mockAPI) getCalls() []apiCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]apiCall(nil), m.calls...)
}

// --- helpers ---

const (
	testChat = int64(-1001234)
	testUser = int64(7)
)

var botUser = &tgbotapi.User{ID: 1, IsBot: true, UserName: "receptionist_bot"}

func newTestBot(t *testing.T, cfg *config.Config) (*Bot, *mockAPI, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if cfg == nil {
		cfg = &config.Config{}
	}
	api := &mockAPI{}
	b := newBot(api, store, cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.dispatcher.SetPause(0)
	return b, api, store
}

func command(userID int64, text string) *tgbotapi.Message {
	name, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Test"},
		Chat:      &tgbotapi.Chat{ID: testChat, Type: "supergroup", Title: "support"},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func chatMessage(userID int64, id int, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: id,
		From:      &tgbotapi.User{ID: userID, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: testChat, Type: "supergroup", Title: "support"},
		Text:      text,
	}
}

// formSession drives a management form through the bot as a user would.
type formSession struct {
	t    *testing.T
	b    *Bot
	api  *mockAPI
	user int64
	form *tgbotapi.Message
}

func openForm(t *testing.T, b *Bot, api *mockAPI, user int64) *formSession {
	t.Helper()
	b.handleMessage(context.Background(), command(user, "/manage"))
	msg, id := api.lastMessage(t)
	return &formSession{
		t:    t,
		b:    b,
		api:  api,
		user: user,
		form: &tgbotapi.Message{
			MessageID: id,
			From:      botUser,
			Chat:      &tgbotapi.Chat{ID: testChat},
			Text:      msg.Text,
			Entities:  msg.Entities,
		},
	}
}

func (f *formSession) press(data string) string {
	f.t.Helper()
	f.b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: f.user},
		Message: f.form,
		Data:    data,
	})
	f.sync()
	return f.api.lastAnswer(f.t)
}

// fill presses the edit button of a field and answers the prompt.
func (f *formSession) fill(field model.FieldID, text string) {
	f.t.Helper()
	f.press(field.String())

	msg, id := f.api.lastMessage(f.t)
	if _, ok := msg.ReplyMarkup.(tgbotapi.ForceReply); !ok {
		f.t.Fatalf("prompt for %s has markup %T", field, msg.ReplyMarkup)
	}
	promptMsg := &tgbotapi.Message{MessageID: id, From: botUser, Chat: f.form.Chat, Text: msg.Text, Entities: msg.Entities}

	reply := chatMessage(f.user, id+100, text)
	reply.ReplyToMessage = promptMsg
	f.b.handleMessage(context.Background(), reply)
	f.sync()
}

func (f *formSession) sync() {
	sent := f.api.getSent()
	for i := len(sent) - 1; i >= 0; i-- {
		if edit, ok := sent[i].(tgbotapi.EditMessageTextConfig); ok && edit.MessageID == f.form.MessageID {
			f.form.Text = edit.Text
			f.form.Entities = edit.Entities
			return
		}
	}
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	b.handleStart(100)
	requireContains(t, api.lastText(t), "Welcome to Receptionist")
}

func TestHandleHelp(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	b.handleHelp(100)
	requireContains(t, api.lastText(t), "/manage")
	requireContains(t, api.lastText(t), "/rules")
}

func TestCommandAccessDenied(t *testing.T) {
	b, api, _ := newTestBot(t, &config.Config{AllowedUsers: config.UserIDs{1}})
	b.handleMessage(context.Background(), command(testUser, "/manage"))
	requireContains(t, api.lastText(t), "Access denied")
}

func TestUnknownCommand(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	b.handleMessage(context.Background(), command(testUser, "/add https://example.com"))
	requireContains(t, api.lastText(t), "Unknown command")
}

func TestManageSendsForm(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	f := openForm(t, b, api, testUser)

	token, ok := formToken(f.form)
	if !ok {
		t.Fatal("form carries no session token")
	}
	if token == "" {
		t.Fatal("empty session token")
	}
	requireContains(t, f.form.Text, "Management home")

	msg, _ := api.lastMessage(t)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("markup = %T", msg.ReplyMarkup)
	}
	if got := len(markup.InlineKeyboard); got != 4 {
		t.Errorf("keyboard rows = %d, want one row per mode", got)
	}
}

func TestCreateRuleThroughForm(t *testing.T) {
	b, api, store := newTestBot(t, nil)
	ctx := context.Background()

	f := openForm(t, b, api, testUser)
	f.press("mode-select_IDX_0=create")
	requireContains(t, f.form.Text, "Create a rule")

	f.fill(model.FieldListenerChannel.Field(0), "-1001234")
	f.fill(model.FieldConditionValue.Field(0), "outage")
	f.fill(model.FieldEmoji.Field(0), ":fire:")
	requireContains(t, f.form.Text, "outage")

	if answer := f.press("submit"); answer != "Rule created." {
		t.Errorf("answer = %q, want Rule created.", answer)
	}
	if got := api.lastEdit(t).Text; got != "Rule created." {
		t.Errorf("closing edit = %q", got)
	}

	rules, err := store.GetByListener(ctx, model.ChannelListener("-1001234"))
	if err != nil {
		t.Fatalf("get by listener: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	want := model.Rule{
		ID:            rules[0].ID,
		Listener:      model.ChannelListener("-1001234"),
		Conditions:    []model.Condition{{Kind: model.ConditionPhrase, Value: "outage"}},
		Actions:       []model.Action{{Kind: model.ActionAttachEmoji, Emoji: "fire"}},
		Collaborators: []string{"7"},
	}
	if diff := cmp.Diff(want, rules[0]); diff != "" {
		t.Errorf("rule mismatch (-want +got):\n%s", diff)
	}

	b.handleUpdate(ctx, tgbotapi.Update{Message: chatMessage(8, 55, "big outage today")})
	calls := api.getCalls()
	if len(calls) != 1 {
		t.Fatalf("api calls = %d, want 1", len(calls))
	}
	wantCall := apiCall{
		Endpoint: "setMessageReaction",
		Params: tgbotapi.Params{
			"chat_id":    "-1001234",
			"message_id": "55",
			"reaction":   `[{"type":"emoji","emoji":"🔥"}]`,
		},
	}
	if diff := cmp.Diff(wantCall, calls[0]); diff != "" {
		t.Errorf("reaction call mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitShowsInlineErrors(t *testing.T) {
	b, api, store := newTestBot(t, nil)
	f := openForm(t, b, api, testUser)
	f.press("mode-select_IDX_0=create")
	f.fill(model.FieldListenerChannel.Field(0), "-1001234")

	answer := f.press("submit")
	requireContains(t, answer, "fix")
	requireContains(t, f.form.Text, "input field is empty")
	requireContains(t, f.form.Text, "emoji is empty")

	rules, _ := store.GetByListener(context.Background(), model.ChannelListener("-1001234"))
	if len(rules) != 0 {
		t.Errorf("rules = %d, want none stored", len(rules))
	}
}

func TestForeignUserCannotUseForm(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	f := openForm(t, b, api, testUser)
	before := f.form.Text

	f.user = 8
	requireContains(t, f.press("mode-select_IDX_0=create"), "another user")
	requireContains(t, f.press("listener-channel_IDX_0"), "another user")
	if f.form.Text != before {
		t.Errorf("form changed by another user:\n%s", f.form.Text)
	}
}

func TestCallbackOnForeignMessage(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: testUser},
		Message: chatMessage(1, 3, "not a form"),
		Data:    "submit",
	})
	requireContains(t, api.lastAnswer(t), "expired")
}

func TestHandleRules(t *testing.T) {
	b, api, store := newTestBot(t, nil)
	ctx := context.Background()

	b.handleMessage(ctx, command(testUser, "/rules"))
	requireContains(t, api.lastText(t), "No rules")

	if err := store.Create(ctx, model.Rule{
		ID:            "r1",
		Listener:      model.ChannelListener("-1001234"),
		Conditions:    []model.Condition{{Kind: model.ConditionPhrase, Value: "deploy"}},
		Actions:       []model.Action{{Kind: model.ActionChannelMessage, Message: "deploys are frozen"}},
		Collaborators: []string{"7"},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	b.handleMessage(ctx, command(testUser, "/rules"))
	requireContains(t, api.lastText(t), `phrase "deploy"`)
	requireContains(t, api.lastText(t), "Post: deploys ar..")
}

func TestForwardAction(t *testing.T) {
	b, api, store := newTestBot(t, nil)
	ctx := context.Background()
	if err := store.Create(ctx, model.Rule{
		ID:            "r1",
		Listener:      model.ChannelListener("-1001234"),
		Conditions:    []model.Condition{{Kind: model.ConditionRegex, Value: `(?i)refund`}},
		Actions:       []model.Action{{Kind: model.ActionForward, Channel: "-1009999", Context: "billing"}},
		Collaborators: []string{"7"},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	b.handleUpdate(ctx, tgbotapi.Update{Message: chatMessage(8, 12, "Refund please")})

	sent := api.getSent()
	if len(sent) != 2 {
		t.Fatalf("sent = %d, want forward and notice", len(sent))
	}
	fwd, ok := sent[0].(tgbotapi.ForwardConfig)
	if !ok {
		t.Fatalf("first send = %T, want ForwardConfig", sent[0])
	}
	if fwd.ChatID != -1009999 || fwd.FromChatID != testChat || fwd.MessageID != 12 {
		t.Errorf("forward = %+v", fwd)
	}
	notice, ok := sent[1].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("second send = %T, want MessageConfig", sent[1])
	}
	want := "@alice just sent https://t.me/c/1234/12 to support.\n_Context_: billing"
	if diff := cmp.Diff(want, notice.Text); diff != "" {
		t.Errorf("notice mismatch (-want +got):\n%s", diff)
	}
}

func TestThreadedRepliesAreIgnored(t *testing.T) {
	b, api, store := newTestBot(t, nil)
	ctx := context.Background()
	if err := store.Create(ctx, model.Rule{
		ID:            "r1",
		Listener:      model.ChannelListener("-1001234"),
		Conditions:    []model.Condition{{Kind: model.ConditionPhrase, Value: "help"}},
		Actions:       []model.Action{{Kind: model.ActionThreadedReply, Message: "on it"}},
		Collaborators: []string{"7"},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	reply := chatMessage(8, 20, "help")
	reply.ReplyToMessage = chatMessage(9, 19, "anyone around?")
	b.handleUpdate(ctx, tgbotapi.Update{Message: reply})
	if sent := api.getSent(); len(sent) != 0 {
		t.Errorf("sent %d messages for a threaded reply", len(sent))
	}

	b.handleUpdate(ctx, tgbotapi.Update{Message: chatMessage(8, 21, "help")})
	msg, _ := api.lastMessage(t)
	if msg.ReplyToMessageID != 21 || msg.Text != "on it" {
		t.Errorf("reply = %+v", msg)
	}
}

func TestBrokenPatternDoesNotStopBot(t *testing.T) {
	b, api, store := newTestBot(t, nil)
	ctx := context.Background()
	if err := store.Create(ctx, model.Rule{
		ID:            "r1",
		Listener:      model.ChannelListener("-1001234"),
		Conditions:    []model.Condition{{Kind: model.ConditionRegex, Value: "("}},
		Actions:       []model.Action{{Kind: model.ActionAttachEmoji, Emoji: "fire"}},
		Collaborators: []string{"7"},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	b.handleUpdate(ctx, tgbotapi.Update{Message: chatMessage(8, 30, "anything")})
	if calls := api.getCalls(); len(calls) != 0 {
		t.Errorf("api calls = %v, want none", calls)
	}

	b.handleUpdate(ctx, tgbotapi.Update{Message: command(testUser, "/help")})
	requireContains(t, api.lastText(t), "/manage")
}

func TestRunStopsOnCancel(t *testing.T) {
	b, _, _ := newTestBot(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
