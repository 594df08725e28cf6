// Package sqlite implements task.Store on pure-Go SQLite. Zero CGO required.
//
// Records live in a tasks table; the id allocator is a single-row table so
// the high watermark survives any amount of deletion churn, same as the file
// store's highwatermark.json.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/edenmoss/kata/task"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements task.Store backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ task.Store = (*Store)(nil)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Open creates a Store at dbPath and ensures its schema. A single shared
// connection (SetMaxOpenConns(1)) serializes all goroutines through one
// writer, eliminating SQLITE_BUSY errors.
func Open(dbPath string, opts ...StoreOption) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug("sqlite: task store opened", "path", dbPath)
	return s, nil
}

func (s *Store) init() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			description TEXT,
			active_form TEXT,
			status TEXT NOT NULL,
			owner TEXT,
			metadata TEXT,
			blocks TEXT,
			blocked_by TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS allocator (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			high INTEGER NOT NULL
		)`,
		`INSERT OR IGNORE INTO allocator (id, high) VALUES (1, 0)`,
	}
	for _, q := range ddl {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return nil
}

// Allocate advances the high watermark and returns the new id. Runs in a
// transaction so concurrent callers never see the same value.
func (s *Store) Allocate() (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("sqlite: allocate: %w", err)
	}
	defer tx.Rollback()

	var high int
	if err := tx.QueryRow(`SELECT high FROM allocator WHERE id = 1`).Scan(&high); err != nil {
		return "", fmt.Errorf("sqlite: read watermark: %w", err)
	}
	high++
	if _, err := tx.Exec(`UPDATE allocator SET high = ? WHERE id = 1`, high); err != nil {
		return "", fmt.Errorf("sqlite: advance watermark: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlite: allocate commit: %w", err)
	}
	return strconv.Itoa(high), nil
}

func (s *Store) Save(t task.Task) error {
	metadata, err := encodeMap(t.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encode metadata: %w", err)
	}
	blocks, err := encodeList(t.Blocks)
	if err != nil {
		return fmt.Errorf("sqlite: encode blocks: %w", err)
	}
	blockedBy, err := encodeList(t.BlockedBy)
	if err != nil {
		return fmt.Errorf("sqlite: encode blocked_by: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO tasks (id, subject, description, active_form, status, owner, metadata, blocks, blocked_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			description = excluded.description,
			active_form = excluded.active_form,
			status = excluded.status,
			owner = excluded.owner,
			metadata = excluded.metadata,
			blocks = excluded.blocks,
			blocked_by = excluded.blocked_by,
			updated_at = excluded.updated_at`,
		t.ID, t.Subject, t.Description, t.ActiveForm, string(t.Status), t.Owner,
		metadata, blocks, blockedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: save task %s: %w", t.ID, err)
	}
	s.logger.Debug("sqlite: task saved", "id", t.ID, "status", string(t.Status))
	return nil
}

func (s *Store) Load(id string) (task.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, subject, description, active_form, status, owner, metadata, blocks, blocked_by, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return task.Task{}, task.ErrNotFound
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("sqlite: load task %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) Delete(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: delete task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: delete task %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) List() ([]task.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, subject, description, active_form, status, owner, metadata, blocks, blocked_by, created_at, updated_at
		FROM tasks ORDER BY CAST(id AS INTEGER)`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list tasks: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (task.Task, error) {
	var t task.Task
	var status, metadata, blocks, blockedBy string
	err := r.Scan(&t.ID, &t.Subject, &t.Description, &t.ActiveForm, &status, &t.Owner,
		&metadata, &blocks, &blockedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	t.Status = task.Status(status)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &t.Metadata); err != nil {
			return task.Task{}, err
		}
	}
	if blocks != "" {
		if err := json.Unmarshal([]byte(blocks), &t.Blocks); err != nil {
			return task.Task{}, err
		}
	}
	if blockedBy != "" {
		if err := json.Unmarshal([]byte(blockedBy), &t.BlockedBy); err != nil {
			return task.Task{}, err
		}
	}
	return t, nil
}

func encodeMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(m)
	return string(raw), err
}

func encodeList(l []string) (string, error) {
	if len(l) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(l)
	return string(raw), err
}
