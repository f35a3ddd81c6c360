// Package manager implements the rule management form. Each interaction
// carries the session token of the view it came from; the manager decodes it,
// applies the change to the working rule and answers with a new view.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"receptionist/internal/model"
	"receptionist/internal/storage"
	"receptionist/internal/ui"
)

// Errors returned for malformed interactions.
var (
	ErrForeignSession  = errors.New("session belongs to another user")
	ErrNotCollaborator = errors.New("user is not a collaborator on the rule")
	ErrUnexpectedInput = errors.New("unexpected input type")
	ErrWrongVariant    = errors.New("field does not belong to the action type")
	ErrNoRule          = errors.New("no rule in session")
	ErrReadOnly        = errors.New("rule cannot be edited in this mode")
	ErrUnknownMode     = errors.New("unknown mode")
)

// Store is the subset of storage.Storage the manager needs.
type Store interface {
	Create(ctx context.Context, rule model.Rule) error
	Update(ctx context.Context, rule model.Rule) error
	Delete(ctx context.Context, rule model.Rule) error
	GetByID(ctx context.Context, id string) (*model.Rule, error)
	GetByCollaborator(ctx context.Context, userID string) ([]model.Rule, error)
}

// Outcome is the result of a submission. Either the session is finished
// (Done) or it stays open with Errors shown inline in View.
type Outcome struct {
	Done    bool
	Message string
	Rule    *model.Rule
	View    *ui.View
	Errors  map[string]string
}

// Manager drives management sessions.
type Manager struct {
	store Store
	log   *slog.Logger
	newID func() string
}

// New creates a Manager that persists submitted rules to store.
func New(store Store, log *slog.Logger) *Manager {
	return &Manager{
		store: store,
		log:   log,
		newID: uuid.NewString,
	}
}

// Open starts a session on the home screen.
func (m *Manager) Open(ctx context.Context, userID string) (*ui.View, error) {
	return m.render(ctx, Session{UserID: userID, Mode: ModeHome}, nil)
}

// HandleAction applies one field change and renders the updated form.
func (m *Manager) HandleAction(ctx context.Context, token, userID string, a Action) (*ui.View, error) {
	s, err := m.session(token, userID)
	if err != nil {
		return nil, err
	}
	field, err := model.ResolveField(a.FieldID)
	if err != nil {
		return nil, err
	}

	m.log.Debug("form action", "user_id", userID, "mode", s.Mode, "field", field.String())

	if err := m.apply(ctx, &s, field, a.Value); err != nil {
		return nil, fmt.Errorf("apply %s: %w", field, err)
	}
	return m.render(ctx, s, nil)
}

// Submit applies the final form values, validates the working rule and
// persists it according to the session mode.
func (m *Manager) Submit(ctx context.Context, token, userID string, state State) (*Outcome, error) {
	s, err := m.session(token, userID)
	if err != nil {
		return nil, err
	}
	entries, err := state.entries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !isValueField(e.field.Kind) {
			continue
		}
		if err := m.apply(ctx, &s, e.field, e.value); err != nil {
			return nil, fmt.Errorf("apply %s: %w", e.field, err)
		}
	}

	switch s.Mode {
	case ModeHome:
		return &Outcome{Done: true, Message: "Nothing to save."}, nil
	case ModeCreate, ModeEdit, ModeDelete:
	default:
		return nil, fmt.Errorf("submit: %w %q", ErrUnknownMode, s.Mode)
	}

	if s.Rule == nil {
		return m.reject(ctx, s, model.ValidationErrors{{Field: model.FieldRuleSelect.Field(0), Message: "select a rule"}})
	}
	rule := *s.Rule

	if s.Mode == ModeDelete {
		if err := m.store.Delete(ctx, rule); err != nil {
			return nil, m.storeError("delete rule", rule.ID, err)
		}
		m.log.Info("rule deleted", "rule_id", rule.ID, "user_id", userID)
		return &Outcome{Done: true, Message: "Rule deleted.", Rule: &rule}, nil
	}

	rule.AddCollaborator(userID)
	s.Rule = &rule
	if errs := model.Validate(rule); len(errs) > 0 {
		return m.reject(ctx, s, errs)
	}

	if s.Mode == ModeCreate {
		if err := m.store.Create(ctx, rule); err != nil {
			return nil, m.storeError("create rule", rule.ID, err)
		}
		m.log.Info("rule created", "rule_id", rule.ID, "user_id", userID, "listener", rule.Listener.Key())
		return &Outcome{Done: true, Message: "Rule created.", Rule: &rule}, nil
	}

	if err := m.store.Update(ctx, rule); err != nil {
		return nil, m.storeError("update rule", rule.ID, err)
	}
	m.log.Info("rule updated", "rule_id", rule.ID, "user_id", userID, "listener", rule.Listener.Key())
	return &Outcome{Done: true, Message: "Rule saved.", Rule: &rule}, nil
}

func (m *Manager) reject(ctx context.Context, s Session, errs model.ValidationErrors) (*Outcome, error) {
	byBlock := errs.ByBlock()
	view, err := m.render(ctx, s, byBlock)
	if err != nil {
		return nil, err
	}
	return &Outcome{View: view, Errors: byBlock}, nil
}

func (m *Manager) storeError(op, id string, err error) error {
	if errors.Is(err, storage.ErrInconsistent) {
		m.log.Error("inconsistent rule records", "op", op, "rule_id", id, "error", err)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

func (m *Manager) session(token, userID string) (Session, error) {
	s, err := DecodeSession(token)
	if err != nil {
		return Session{}, err
	}
	if s.UserID != userID {
		return Session{}, ErrForeignSession
	}
	return s, nil
}

// isValueField reports whether a field carries a value at submission, as
// opposed to navigation and list buttons that act immediately.
func isValueField(k model.FieldKind) bool {
	switch k {
	case model.FieldModeSelect, model.FieldRuleSelect,
		model.FieldConditionAdd, model.FieldConditionRemove,
		model.FieldActionAdd, model.FieldActionRemove:
		return false
	}
	return true
}

func (m *Manager) selectMode(userID string, mode Mode) Session {
	s := Session{UserID: userID, Mode: mode}
	if mode == ModeCreate {
		rule := model.NewRule(m.newID(), model.Listener{Kind: model.ListenerChannel})
		s.Rule = &rule
	}
	return s
}

func (m *Manager) apply(ctx context.Context, s *Session, f model.FieldID, v Value) error {
	switch f.Kind {
	case model.FieldModeSelect:
		if err := expect(f, v, ui.StaticSelect, ui.Button); err != nil {
			return err
		}
		mode := Mode(v.Text)
		if !mode.valid() {
			return fmt.Errorf("%w %q", ErrUnknownMode, v.Text)
		}
		*s = m.selectMode(s.UserID, mode)
		return nil
	case model.FieldRuleSelect:
		if err := expect(f, v, ui.StaticSelect); err != nil {
			return err
		}
		if s.Mode != ModeEdit && s.Mode != ModeDelete {
			return ErrReadOnly
		}
		rule, err := m.store.GetByID(ctx, v.Text)
		if err != nil {
			return m.storeError("get rule", v.Text, err)
		}
		if !slices.Contains(rule.Collaborators, s.UserID) {
			return ErrNotCollaborator
		}
		s.Rule = rule
		return nil
	}

	if s.Rule == nil {
		return ErrNoRule
	}
	if s.Mode != ModeCreate && s.Mode != ModeEdit {
		return ErrReadOnly
	}
	r := s.Rule

	switch f.Kind {
	case model.FieldListenerChannel:
		if err := expect(f, v, ui.ChannelSelect, ui.TextInput); err != nil {
			return err
		}
		r.Listener = model.ChannelListener(strings.TrimSpace(v.Text))
	case model.FieldCollaborators:
		if err := expect(f, v, ui.UserSelect); err != nil {
			return err
		}
		r.SetCollaborators(v.Users)
	case model.FieldConditionKind:
		if err := expect(f, v, ui.StaticSelect); err != nil {
			return err
		}
		return r.ChangeConditionKind(f.Index, model.ConditionKind(v.Text))
	case model.FieldConditionValue:
		if err := expect(f, v, ui.TextInput); err != nil {
			return err
		}
		if f.Index >= len(r.Conditions) {
			return fmt.Errorf("condition %d: %w", f.Index, model.ErrIndex)
		}
		r.Conditions[f.Index].Value = v.Text
	case model.FieldConditionAdd:
		r.AddCondition()
	case model.FieldConditionRemove:
		return r.RemoveCondition(f.Index)
	case model.FieldActionKind:
		if err := expect(f, v, ui.StaticSelect); err != nil {
			return err
		}
		return r.ChangeActionKind(f.Index, model.ActionKind(v.Text))
	case model.FieldActionAdd:
		r.AddAction()
	case model.FieldActionRemove:
		return r.RemoveAction(f.Index)
	default:
		return applyActionField(r, f, v)
	}
	return nil
}

// applyActionField sets a payload field of one action. The field must belong
// to the action's current type.
func applyActionField(r *model.Rule, f model.FieldID, v Value) error {
	var kind model.ActionKind
	inputs := []ui.BlockKind{ui.TextInput}
	switch f.Kind {
	case model.FieldEmoji:
		kind = model.ActionAttachEmoji
	case model.FieldThreadMessage:
		kind = model.ActionThreadedReply
	case model.FieldChannelMessage:
		kind = model.ActionChannelMessage
	case model.FieldEscalationPolicy:
		kind = model.ActionEscalate
		inputs = append(inputs, ui.StaticSelect)
	case model.FieldEscalationText:
		kind = model.ActionEscalate
	case model.FieldForwardChannel:
		kind = model.ActionForward
		inputs = append(inputs, ui.ChannelSelect)
	case model.FieldForwardContext:
		kind = model.ActionForward
	default:
		return fmt.Errorf("%s: %w", f, model.ErrRouteNotFound)
	}

	if err := expect(f, v, inputs...); err != nil {
		return err
	}
	if f.Index < 0 || f.Index >= len(r.Actions) {
		return fmt.Errorf("action %d: %w", f.Index, model.ErrIndex)
	}
	a := &r.Actions[f.Index]
	if a.Kind != kind {
		return fmt.Errorf("%s on %s action: %w", f.Kind, a.Kind, ErrWrongVariant)
	}

	switch f.Kind {
	case model.FieldEmoji:
		a.Emoji = model.RemoveEmojiColons(v.Text)
	case model.FieldThreadMessage, model.FieldChannelMessage, model.FieldEscalationText:
		a.Message = v.Text
	case model.FieldEscalationPolicy:
		a.PolicyID = strings.TrimSpace(v.Text)
	case model.FieldForwardChannel:
		a.Channel = strings.TrimSpace(v.Text)
	case model.FieldForwardContext:
		a.Context = v.Text
	}
	return nil
}
