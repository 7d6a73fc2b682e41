package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is RFC 3339 with a fixed-width fraction, so started_at sorts
// correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Schema version tracking:
// 0 - no schema
// 1 - sessions and mutations tables
const currentSchemaVersion = 1

// Journal is an open journal database.
type Journal struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the journal's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(j *Journal) { j.log = l }
}

// Open creates or opens the journal at path. Pragmas and schema are applied
// on every open; calling Open on an existing file is safe.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to journal: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	j := &Journal{db: db, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// NewSession starts a session. source is free text shown by Sessions,
// typically the API URL the dashboard followed.
func (j *Journal) NewSession(ctx context.Context, source string) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("new session id: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, source, started_at)
		VALUES (?, ?, ?)
	`, id.String(), source, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	j.log.Debugw("journal session started", "session", id.String(), "source", source)
	return &Session{journal: j, id: id.String()}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (j *Journal) verifyPragma(name, expected string) error {
	var value string
	if err := j.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
