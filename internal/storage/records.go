package storage

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"receptionist/internal/model"
)

// Item types stored alongside each record.
const (
	itemRule         = "rule"
	itemCollaborator = "collaborator"
)

// batchGetLimit caps the number of keys fetched per batched read.
const batchGetLimit = 100

// recordKey is the composite primary key of a stored record.
type recordKey struct {
	Type string
	PK   string
	SK   string
}

func compareKeys(a, b recordKey) int {
	if c := cmp.Compare(a.PK, b.PK); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SK, b.SK); c != 0 {
		return c
	}
	return cmp.Compare(a.Type, b.Type)
}

// record is the physical form of a rule or collaborator entry.
//
// Rule records are keyed (listener key, rule id) and carry the JSON encoded
// rule in Body. Collaborator records are keyed (user id, rule id) and carry
// the listener key of their rule so the rule record can be fetched directly.
type record struct {
	Type       string
	PK         string
	SK         string
	ListenerPK string
	Body       []byte
}

func (r record) key() recordKey {
	return recordKey{Type: r.Type, PK: r.PK, SK: r.SK}
}

func checkRule(rule model.Rule) error {
	if rule.ID == "" {
		return errors.New("rule id is empty")
	}
	if rule.Listener.ChannelID == "" {
		return errors.New("rule listener is empty")
	}
	return nil
}

// ruleRecords translates a rule into the records that represent it.
func ruleRecords(rule model.Rule) ([]record, error) {
	if err := checkRule(rule); err != nil {
		return nil, err
	}
	body, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("encode rule: %w", err)
	}

	listenerKey := rule.Listener.Key()
	recs := []record{{
		Type:       itemRule,
		PK:         listenerKey,
		SK:         rule.ID,
		ListenerPK: listenerKey,
		Body:       body,
	}}
	seen := make(map[string]bool, len(rule.Collaborators))
	for _, userID := range rule.Collaborators {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		recs = append(recs, record{
			Type:       itemCollaborator,
			PK:         userID,
			SK:         rule.ID,
			ListenerPK: listenerKey,
		})
	}
	return recs, nil
}

// decodeRule rebuilds a rule from its rule record.
func decodeRule(r record) (model.Rule, error) {
	if r.Type != itemRule {
		return model.Rule{}, fmt.Errorf("decode rule %s: record is a %s", r.SK, r.Type)
	}
	var rule model.Rule
	if err := json.Unmarshal(r.Body, &rule); err != nil {
		return model.Rule{}, fmt.Errorf("decode rule %s: %w", r.SK, err)
	}
	return rule, nil
}

// staleKeys returns the existing keys the next record set does not rewrite.
func staleKeys(existing []recordKey, next []record) []recordKey {
	keep := make(map[recordKey]bool, len(next))
	for _, r := range next {
		keep[r.key()] = true
	}
	var stale []recordKey
	for _, k := range existing {
		if !keep[k] {
			stale = append(stale, k)
		}
	}
	return stale
}

// deleteKeys returns every key that must go when the rule is deleted: the
// keys derived from the rule itself plus any record still stored under its id.
func deleteKeys(rule model.Rule, existing []recordKey) []recordKey {
	set := make(map[recordKey]bool)
	listenerKey := rule.Listener.Key()
	set[recordKey{Type: itemRule, PK: listenerKey, SK: rule.ID}] = true
	for _, userID := range rule.Collaborators {
		set[recordKey{Type: itemCollaborator, PK: userID, SK: rule.ID}] = true
	}
	for _, k := range existing {
		set[k] = true
	}

	keys := make([]recordKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// singleRule resolves the rule records found for one id.
func singleRule(id string, recs []record) (*model.Rule, error) {
	switch len(recs) {
	case 0:
		return nil, fmt.Errorf("get rule %s: %w", id, ErrNotFound)
	case 1:
		rule, err := decodeRule(recs[0])
		if err != nil {
			return nil, err
		}
		return &rule, nil
	default:
		partitions := make([]string, len(recs))
		for i, r := range recs {
			partitions[i] = r.PK
		}
		return nil, fmt.Errorf("get rule %s: %d records in %v: %w", id, len(recs), partitions, ErrInconsistent)
	}
}
