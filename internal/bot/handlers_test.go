package bot

import (
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"receptionist/internal/manager"
	"receptionist/internal/model"
	"receptionist/internal/ui"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    callbackData
		wantErr bool
	}{
		{
			name: "submit",
			data: "submit",
			want: callbackData{Kind: callbackSubmit},
		},
		{
			name: "select value",
			data: "action-kind_IDX_1=forward-to-channel",
			want: callbackData{Kind: callbackSet, Field: model.FieldActionKind.Field(1), Value: "forward-to-channel"},
		},
		{
			name: "button press",
			data: "condition-add_IDX_0=",
			want: callbackData{Kind: callbackSet, Field: model.FieldConditionAdd.Field(0)},
		},
		{
			name: "value containing delimiter",
			data: "rule-select_IDX_0=a=b",
			want: callbackData{Kind: callbackSet, Field: model.FieldRuleSelect.Field(0), Value: "a=b"},
		},
		{
			name: "prompt",
			data: "condition-value_IDX_2",
			want: callbackData{Kind: callbackPrompt, Field: model.FieldConditionValue.Field(2)},
		},
		{
			name:    "unknown field",
			data:    "group-delete_IDX_0=1",
			wantErr: true,
		},
		{
			name:    "missing index",
			data:    "condition-value=x",
			wantErr: true,
		},
		{
			name:    "empty",
			data:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCallbackData(tt.data)
			if tt.wantErr {
				if !errors.Is(err, model.ErrRouteNotFound) {
					t.Fatalf("error = %v, want ErrRouteNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseCallbackData() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.data, got.String()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeCallbackLimit(t *testing.T) {
	long := callbackData{Kind: callbackSet, Field: model.FieldRuleSelect.Field(0), Value: strings.Repeat("x", 60)}
	if _, err := encodeCallback(long); !errors.Is(err, errCallbackTooLong) {
		t.Errorf("error = %v, want errCallbackTooLong", err)
	}
	uuid := callbackData{Kind: callbackSet, Field: model.FieldRuleSelect.Field(0), Value: "0b9a3c1e-6f7d-4a51-9d2e-3f1c5b7a8e90"}
	if _, err := encodeCallback(uuid); err != nil {
		t.Errorf("rule id callback rejected: %v", err)
	}
}

func TestPromptRoundTrip(t *testing.T) {
	p := prompt{Token: "abc-_123", Field: model.FieldEmoji.Field(3), FormID: 77}
	text, entities := promptText(p, promptLabel(p.Field.Kind))

	msg := &tgbotapi.Message{
		Text:     text,
		Entities: entities,
		From:     &tgbotapi.User{ID: 1, IsBot: true},
	}
	got, ok := parsePrompt(msg)
	if !ok {
		t.Fatal("prompt not recognized")
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("prompt mismatch (-want +got):\n%s", diff)
	}

	msg.From.IsBot = false
	if _, ok := parsePrompt(msg); ok {
		t.Error("prompt from a user accepted")
	}
	if _, ok := formToken(msg); ok {
		t.Error("prompt link read as form token")
	}
}

func TestValueFor(t *testing.T) {
	tests := []struct {
		kind model.FieldKind
		text string
		want manager.Value
	}{
		{model.FieldModeSelect, "edit", manager.Selected("edit")},
		{model.FieldActionKind, "escalate-in-thread", manager.Selected("escalate-in-thread")},
		{model.FieldActionRemove, "", manager.Pressed()},
		{model.FieldListenerChannel, " -100123 ", manager.ChannelValue("-100123")},
		{model.FieldCollaborators, "11, 22 @bob\n33", manager.UsersValue("11", "22", "33")},
		{model.FieldConditionValue, " keep spaces ", manager.TextValue(" keep spaces ")},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, valueFor(tt.kind, tt.text)); diff != "" {
				t.Errorf("valueFor() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderForm(t *testing.T) {
	cond := model.FieldConditionValue.Field(0)
	view := &ui.View{
		Title: "Créate",
		Token: "tok",
		Blocks: []ui.Block{
			{
				Kind:    ui.StaticSelect,
				FieldID: model.FieldModeSelect.Field(0).String(),
				Label:   "Mode",
				Value:   "create",
				Options: []ui.Option{{Label: "Home", Value: "home"}, {Label: "Create", Value: "create"}},
			},
			{
				Kind:    ui.TextInput,
				BlockID: cond.BlockID(),
				FieldID: cond.String(),
				Label:   "Phrase",
				Error:   "input field is empty",
			},
			{Kind: ui.Button, FieldID: model.FieldConditionAdd.Field(0).String(), Label: "Add condition"},
		},
		SubmitLabel: "Create",
	}

	got, err := renderForm(view)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	wantText := "\u200bCréate\nMode: Create\nPhrase: empty\n⚠️ input field is empty"
	if diff := cmp.Diff(wantText, got.Text); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}

	msg := &tgbotapi.Message{Text: got.Text, Entities: got.Entities}
	if token, ok := formToken(msg); !ok || token != "tok" {
		t.Errorf("formToken() = %q, %v", token, ok)
	}
	if got.Entities[1].Offset != 1 || got.Entities[1].Length != 6 {
		t.Errorf("title entity = %+v, want offset 1 length 6", got.Entities[1])
	}

	var data [][]string
	for _, row := range got.Markup.InlineKeyboard {
		var r []string
		for _, b := range row {
			r = append(r, *b.CallbackData)
		}
		data = append(data, r)
	}
	wantData := [][]string{
		{"mode-select_IDX_0=home", "mode-select_IDX_0=create"},
		{"condition-value_IDX_0"},
		{"condition-add_IDX_0="},
		{"submit"},
	}
	if diff := cmp.Diff(wantData, data); diff != "" {
		t.Errorf("keyboard mismatch (-want +got):\n%s", diff)
	}
	if label := got.Markup.InlineKeyboard[1][0].Text; label != "✏️ Phrase 1" {
		t.Errorf("prompt button label = %q", label)
	}
}

func TestUTF16Len(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"\u200b", 1},
		{"\u00e9", 1},
		{"\U0001F525", 2},
		{"\u26a0\ufe0f x", 4},
		{"\U0001F468\u200d\U0001F4BB", 5},
	}
	for _, tt := range tests {
		if got := utf16Len(tt.in); got != tt.want {
			t.Errorf("utf16Len(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMessageLink(t *testing.T) {
	tests := []struct {
		name string
		chat tgbotapi.Chat
		want string
	}{
		{name: "public", chat: tgbotapi.Chat{ID: -1001, UserName: "ops"}, want: "https://t.me/ops/7"},
		{name: "private supergroup", chat: tgbotapi.Chat{ID: -1001234}, want: "https://t.me/c/1234/7"},
		{name: "basic group", chat: tgbotapi.Chat{ID: -42}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, messageLink(&tt.chat, 7)); diff != "" {
				t.Errorf("messageLink() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReaction(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "fire", want: "🔥"},
		{name: "+1", want: "👍"},
		{name: "🎉", want: "🎉"},
		{name: "not_an_emoji", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reaction(tt.name)
			if tt.wantErr {
				if !errors.Is(err, errUnknownEmoji) {
					t.Fatalf("error = %v, want errUnknownEmoji", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("reaction(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestFormatRuleList(t *testing.T) {
	if got := FormatRuleList(nil); !strings.Contains(got, "/manage") {
		t.Errorf("empty list = %q", got)
	}

	got := FormatRuleList([]model.Rule{{
		ID:       "r1",
		Listener: model.ChannelListener("-100"),
		Conditions: []model.Condition{
			{Kind: model.ConditionPhrase, Value: "outage"},
			{Kind: model.ConditionRegex, Value: `err\d+`},
		},
		Actions:       []model.Action{{Kind: model.ActionAttachEmoji, Emoji: "fire"}},
		Collaborators: []string{"1", "2"},
	}})
	want := "Rules listening to this chat:\n\n" +
		"1. #-100 | :fire:\n" +
		"   when: phrase \"outage\" or regex /err\\d+/\n" +
		"   collaborators: 1, 2\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatRuleList() mismatch (-want +got):\n%s", diff)
	}
}
