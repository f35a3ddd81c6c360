package manager

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"receptionist/internal/model"
)

// ErrInvalidToken is returned for a session token that cannot be decoded.
var ErrInvalidToken = errors.New("invalid session token")

// Mode is the screen a management session is on.
type Mode string

// Management modes.
const (
	ModeHome   Mode = "home"
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
	ModeDelete Mode = "delete"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeHome, ModeCreate, ModeEdit, ModeDelete}

// Description returns the title shown for the mode.
func (m Mode) Description() string {
	switch m {
	case ModeHome:
		return "Management home"
	case ModeCreate:
		return "Create a rule"
	case ModeEdit:
		return "Edit an existing rule"
	case ModeDelete:
		return "Delete an existing rule"
	default:
		return string(m)
	}
}

func (m Mode) valid() bool {
	switch m {
	case ModeHome, ModeCreate, ModeEdit, ModeDelete:
		return true
	}
	return false
}

// Session is the whole state of a form between two interactions. It is not
// kept on the server: every view carries it as an opaque token.
type Session struct {
	UserID string      `json:"user_id"`
	Mode   Mode        `json:"mode"`
	Rule   *model.Rule `json:"rule,omitempty"`
}

// EncodeSession serializes a session into a URL safe token.
func EncodeSession(s Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeSession restores a session from a token produced by EncodeSession.
func DecodeSession(token string) (Session, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !s.Mode.valid() {
		return Session{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidToken, s.Mode)
	}
	return s, nil
}
