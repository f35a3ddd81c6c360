package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"receptionist/internal/model"
	"receptionist/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases whole and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Create inserts the rule record and its collaborator records.
func (s *SQLite) Create(ctx context.Context, rule model.Rule) error {
	recs, err := ruleRecords(rule)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := queryRecords(ctx, tx,
		`SELECT item_type, pk, sk, listener_pk, body FROM items WHERE sk = ? AND item_type = ?`,
		rule.ID, itemRule)
	if err != nil {
		return fmt.Errorf("create rule %s: %w", rule.ID, err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("create rule %s: %w", rule.ID, ErrConflict)
	}

	if err := putRecords(ctx, tx, recs); err != nil {
		return fmt.Errorf("create rule %s: %w", rule.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// Update replaces the stored record set of the rule with the current one.
func (s *SQLite) Update(ctx context.Context, rule model.Rule) error {
	recs, err := ruleRecords(rule)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := keysForID(ctx, tx, rule.ID)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if err := deleteRecords(ctx, tx, staleKeys(existing, recs)); err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if err := putRecords(ctx, tx, recs); err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// Delete removes the rule record and every collaborator record of the rule.
func (s *SQLite) Delete(ctx context.Context, rule model.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := keysForID(ctx, tx, rule.ID)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", rule.ID, err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("delete rule %s: %w", rule.ID, ErrNotFound)
	}
	if err := deleteRecords(ctx, tx, deleteKeys(rule, existing)); err != nil {
		return fmt.Errorf("delete rule %s: %w", rule.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// GetByID returns the rule with the given id using the sort key index.
func (s *SQLite) GetByID(ctx context.Context, id string) (*model.Rule, error) {
	recs, err := queryRecords(ctx, s.db,
		`SELECT item_type, pk, sk, listener_pk, body FROM items WHERE sk = ? AND item_type = ?`,
		id, itemRule)
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return singleRule(id, recs)
}

// GetByListener returns every rule in the listener's partition.
func (s *SQLite) GetByListener(ctx context.Context, listener model.Listener) ([]model.Rule, error) {
	recs, err := queryRecords(ctx, s.db,
		`SELECT item_type, pk, sk, listener_pk, body FROM items WHERE pk = ? AND item_type = ? ORDER BY sk`,
		listener.Key(), itemRule)
	if err != nil {
		return nil, fmt.Errorf("query rules for %s: %w", listener.Key(), err)
	}
	return decodeRules(recs)
}

// GetByCollaborator returns the rules the user collaborates on. The
// collaborator partition is read first, then the rule records are fetched by
// their composite keys in batches.
func (s *SQLite) GetByCollaborator(ctx context.Context, userID string) ([]model.Rule, error) {
	links, err := queryRecords(ctx, s.db,
		`SELECT item_type, pk, sk, listener_pk, body FROM items WHERE pk = ? AND item_type = ? ORDER BY sk`,
		userID, itemCollaborator)
	if err != nil {
		return nil, fmt.Errorf("query collaborator %s: %w", userID, err)
	}

	found := make(map[recordKey]record, len(links))
	for batch := range slices.Chunk(links, batchGetLimit) {
		recs, err := s.batchGet(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch get rules for %s: %w", userID, err)
		}
		for _, r := range recs {
			found[r.key()] = r
		}
	}

	rules := make([]model.Rule, 0, len(links))
	for _, l := range links {
		r, ok := found[recordKey{Type: itemRule, PK: l.ListenerPK, SK: l.SK}]
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

func (s *SQLite) batchGet(ctx context.Context, links []record) ([]record, error) {
	placeholders := make([]string, len(links))
	args := []any{itemRule}
	for i, l := range links {
		placeholders[i] = "(?, ?)"
		args = append(args, l.ListenerPK, l.SK)
	}
	query := `SELECT item_type, pk, sk, listener_pk, body FROM items
		WHERE item_type = ? AND (pk, sk) IN (VALUES ` + strings.Join(placeholders, ", ") + `)`
	return queryRecords(ctx, s.db, query, args...)
}

func keysForID(ctx context.Context, q querier, id string) ([]recordKey, error) {
	rows, err := q.QueryContext(ctx, `SELECT item_type, pk, sk FROM items WHERE sk = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var keys []recordKey
	for rows.Next() {
		var k recordKey
		if err := rows.Scan(&k.Type, &k.PK, &k.SK); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return keys, nil
}

func putRecords(ctx context.Context, q querier, recs []record) error {
	now := time.Now().UTC().Format(timeLayout)
	for _, r := range recs {
		_, err := q.ExecContext(ctx,
			`INSERT INTO items (item_type, pk, sk, listener_pk, body, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (pk, sk, item_type) DO UPDATE SET
			   listener_pk = excluded.listener_pk, body = excluded.body, updated_at = excluded.updated_at`,
			r.Type, r.PK, r.SK, r.ListenerPK, r.Body, now,
		)
		if err != nil {
			return fmt.Errorf("put %s %s/%s: %w", r.Type, r.PK, r.SK, classify(err))
		}
	}
	return nil
}

func deleteRecords(ctx context.Context, q querier, keys []recordKey) error {
	for _, k := range keys {
		_, err := q.ExecContext(ctx,
			`DELETE FROM items WHERE item_type = ? AND pk = ? AND sk = ?`, k.Type, k.PK, k.SK)
		if err != nil {
			return fmt.Errorf("delete %s %s/%s: %w", k.Type, k.PK, k.SK, classify(err))
		}
	}
	return nil
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) ([]record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	var recs []record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return recs, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (record, error) {
	var r record
	if err := row.Scan(&r.Type, &r.PK, &r.SK, &r.ListenerPK, &r.Body); err != nil {
		return record{}, fmt.Errorf("scan item: %w", err)
	}
	return r, nil
}

func decodeRules(recs []record) ([]model.Rule, error) {
	rules := make([]model.Rule, 0, len(recs))
	for _, r := range recs {
		rule, err := decodeRule(r)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// classify marks transient SQLite failures with ErrUnavailable.
func classify(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return err
}
