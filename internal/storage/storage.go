// Package storage defines the rule persistence interface and its implementations.
//
// A rule is stored denormalized: one rule record partitioned by the listener
// key, plus one collaborator record per collaborator partitioned by user id.
// Both carry the rule id as sort key, which a secondary index serves for
// lookups by id.
package storage

import (
	"context"
	"errors"

	"receptionist/internal/model"
)

// Errors returned by Storage implementations. Callers match them with errors.Is.
var (
	ErrNotFound     = errors.New("rule not found")
	ErrConflict     = errors.New("rule already exists")
	ErrInconsistent = errors.New("inconsistent rule records")
	ErrUnavailable  = errors.New("storage unavailable")
)

// Storage is the interface for all rule persistence operations.
type Storage interface {
	// Create writes the rule and its collaborator records. It fails with
	// ErrConflict when a rule with the same id exists.
	Create(ctx context.Context, rule model.Rule) error
	// Update replaces every record of the rule, removing collaborator
	// records that are no longer part of it. A missing rule is created.
	Update(ctx context.Context, rule model.Rule) error
	// Delete removes the rule and all of its collaborator records.
	Delete(ctx context.Context, rule model.Rule) error

	GetByID(ctx context.Context, id string) (*model.Rule, error)
	GetByListener(ctx context.Context, listener model.Listener) ([]model.Rule, error)
	GetByCollaborator(ctx context.Context, userID string) ([]model.Rule, error)

	Close() error
}
