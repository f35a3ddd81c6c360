package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRouteNotFound is returned for a field identifier no form field answers to.
var ErrRouteNotFound = errors.New("route not found")

const (
	indexDelimiter = "_IDX_"
	blockPrefix    = "BLOCK-"
)

// FieldKind names a form field. Indexed kinds address one entry of the
// condition or action list.
type FieldKind string

// Form fields. No kind is a prefix of another.
const (
	FieldModeSelect       FieldKind = "mode-select"
	FieldRuleSelect       FieldKind = "rule-select"
	FieldCollaborators    FieldKind = "collaborators-input"
	FieldListenerChannel  FieldKind = "listener-channel"
	FieldConditionKind    FieldKind = "condition-kind"
	FieldConditionValue   FieldKind = "condition-value"
	FieldConditionAdd     FieldKind = "condition-add"
	FieldConditionRemove  FieldKind = "condition-remove"
	FieldActionKind       FieldKind = "action-kind"
	FieldEmoji            FieldKind = "action-emoji"
	FieldThreadMessage    FieldKind = "action-thread-text"
	FieldChannelMessage   FieldKind = "action-channel-text"
	FieldEscalationPolicy FieldKind = "action-policy"
	FieldEscalationText   FieldKind = "action-escalation-text"
	FieldForwardChannel   FieldKind = "action-forward-channel"
	FieldForwardContext   FieldKind = "action-forward-context"
	FieldActionAdd        FieldKind = "action-add"
	FieldActionRemove     FieldKind = "action-remove"
)

// FieldKinds lists every routable field kind.
var FieldKinds = []FieldKind{
	FieldModeSelect,
	FieldRuleSelect,
	FieldCollaborators,
	FieldListenerChannel,
	FieldConditionKind,
	FieldConditionValue,
	FieldConditionAdd,
	FieldConditionRemove,
	FieldActionKind,
	FieldEmoji,
	FieldThreadMessage,
	FieldChannelMessage,
	FieldEscalationPolicy,
	FieldEscalationText,
	FieldForwardChannel,
	FieldForwardContext,
	FieldActionAdd,
	FieldActionRemove,
}

// FieldID addresses one form field, optionally at a list index.
type FieldID struct {
	Kind  FieldKind
	Index int
}

// Field returns the identifier of the kind at index.
func (k FieldKind) Field(index int) FieldID {
	return FieldID{Kind: k, Index: index}
}

// String encodes the identifier as "<kind>_IDX_<index>".
func (f FieldID) String() string {
	return string(f.Kind) + indexDelimiter + strconv.Itoa(f.Index)
}

// BlockID returns the identifier of the block holding the field.
func (f FieldID) BlockID() string {
	return blockPrefix + f.String()
}

// ParseFieldID decodes an identifier produced by FieldID.String.
func ParseFieldID(s string) (FieldID, error) {
	name, idx, ok := strings.Cut(s, indexDelimiter)
	if !ok {
		return FieldID{}, fmt.Errorf("parse field id %q: missing %s delimiter", s, indexDelimiter)
	}
	index, err := strconv.Atoi(idx)
	if err != nil || index < 0 {
		return FieldID{}, fmt.Errorf("parse field id %q: invalid index %q", s, idx)
	}
	kind, err := LookupFieldKind(name)
	if err != nil {
		return FieldID{}, err
	}
	if kind != FieldKind(name) {
		return FieldID{}, fmt.Errorf("parse field id %q: %w", s, ErrRouteNotFound)
	}
	return FieldID{Kind: kind, Index: index}, nil
}

// LookupFieldKind finds the field kind an identifier starts with. The index
// part is optional, so single-instance fields resolve from a bare name.
func LookupFieldKind(s string) (FieldKind, error) {
	for _, k := range FieldKinds {
		if strings.HasPrefix(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("lookup field %q: %w", s, ErrRouteNotFound)
}

// ResolveField returns the field an identifier addresses. Unlike
// ParseFieldID it accepts identifiers without an index, which default to 0.
func ResolveField(s string) (FieldID, error) {
	if strings.Contains(s, indexDelimiter) {
		return ParseFieldID(s)
	}
	kind, err := LookupFieldKind(s)
	if err != nil {
		return FieldID{}, err
	}
	return kind.Field(0), nil
}
