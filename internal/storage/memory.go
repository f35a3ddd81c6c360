package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"receptionist/internal/model"
)

// Memory implements Storage in process memory. It keeps the same record
// layout as SQLite, including the sort key index, and loses everything on
// restart.
type Memory struct {
	mu    sync.RWMutex
	items map[recordKey]record
	bySK  map[string]map[recordKey]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[recordKey]record),
		bySK:  make(map[string]map[recordKey]struct{}),
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Create inserts the rule record and its collaborator records.
func (m *Memory) Create(ctx context.Context, rule model.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs, err := ruleRecords(rule)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rulesByIDLocked(rule.ID)) > 0 {
		return fmt.Errorf("create rule %s: %w", rule.ID, ErrConflict)
	}
	m.putLocked(recs)
	return nil
}

// Update replaces the stored record set of the rule with the current one.
func (m *Memory) Update(ctx context.Context, rule model.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs, err := ruleRecords(rule)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteLocked(staleKeys(m.keysForIDLocked(rule.ID), recs))
	m.putLocked(recs)
	return nil
}

// Delete removes the rule record and every collaborator record of the rule.
func (m *Memory) Delete(ctx context.Context, rule model.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.keysForIDLocked(rule.ID)
	if len(existing) == 0 {
		return fmt.Errorf("delete rule %s: %w", rule.ID, ErrNotFound)
	}
	m.deleteLocked(deleteKeys(rule, existing))
	return nil
}

// GetByID returns the rule with the given id using the sort key index.
func (m *Memory) GetByID(ctx context.Context, id string) (*model.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	recs := m.rulesByIDLocked(id)
	m.mu.RUnlock()

	return singleRule(id, recs)
}

// GetByListener returns every rule in the listener's partition, ordered by id.
func (m *Memory) GetByListener(ctx context.Context, listener model.Listener) ([]model.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	recs := m.partitionLocked(itemRule, listener.Key())
	m.mu.RUnlock()

	return decodeRules(recs)
}

// GetByCollaborator returns the rules the user collaborates on, ordered by id.
func (m *Memory) GetByCollaborator(ctx context.Context, userID string) ([]model.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	links := m.partitionLocked(itemCollaborator, userID)
	rules := make([]model.Rule, 0, len(links))
	for _, l := range links {
		r, ok := m.items[recordKey{Type: itemRule, PK: l.ListenerPK, SK: l.SK}]
		if !ok {
			continue
		}
		rule, err := decodeRule(r)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (m *Memory) putLocked(recs []record) {
	for _, r := range recs {
		k := r.key()
		m.items[k] = r
		if m.bySK[k.SK] == nil {
			m.bySK[k.SK] = make(map[recordKey]struct{})
		}
		m.bySK[k.SK][k] = struct{}{}
	}
}

func (m *Memory) deleteLocked(keys []recordKey) {
	for _, k := range keys {
		delete(m.items, k)
		if idx := m.bySK[k.SK]; idx != nil {
			delete(idx, k)
			if len(idx) == 0 {
				delete(m.bySK, k.SK)
			}
		}
	}
}

func (m *Memory) keysForIDLocked(id string) []recordKey {
	keys := make([]recordKey, 0, len(m.bySK[id]))
	for k := range m.bySK[id] {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func (m *Memory) rulesByIDLocked(id string) []record {
	var recs []record
	for _, k := range m.keysForIDLocked(id) {
		if k.Type == itemRule {
			recs = append(recs, m.items[k])
		}
	}
	return recs
}

func (m *Memory) partitionLocked(itemType, pk string) []record {
	var recs []record
	for k, r := range m.items {
		if k.Type == itemType && k.PK == pk {
			recs = append(recs, r)
		}
	}
	slices.SortFunc(recs, func(a, b record) int { return compareKeys(a.key(), b.key()) })
	return recs
}
