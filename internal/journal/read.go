package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/engine"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
)

// ErrNoSessions is returned by Latest on an empty journal.
var ErrNoSessions = errors.New("journal has no sessions")

// SessionInfo summarizes one session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"startedAt"`
	Mutations int       `json:"mutations"`
	LastSeq   int64     `json:"lastSeq"`
}

// Sessions lists all sessions, oldest first.
func (j *Journal) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.id, s.source, s.started_at, COUNT(m.seq), COALESCE(MAX(m.seq), 0)
		FROM sessions s
		LEFT JOIN mutations m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at ASC, s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			info    SessionInfo
			started string
		)
		if err := rows.Scan(&info.ID, &info.Source, &started, &info.Mutations, &info.LastSeq); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		info.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("list sessions: session %s: %w", info.ID, err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Latest returns the ID of the most recent session.
func (j *Journal) Latest(ctx context.Context) (string, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `
		SELECT id FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSessions
	}
	if err != nil {
		return "", fmt.Errorf("latest session: %w", err)
	}
	return id, nil
}

// Records returns a session's mutations in seq order.
func (j *Journal) Records(ctx context.Context, sessionID string) ([]engine.Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, mutation, outcome, error
		FROM mutations
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []engine.Record
	for rows.Next() {
		var (
			rec     engine.Record
			data    string
			outcome string
		)
		if err := rows.Scan(&rec.Seq, &data, &outcome, &rec.Err); err != nil {
			return nil, fmt.Errorf("read session %s: %w", sessionID, err)
		}
		if err := json.Unmarshal([]byte(data), &rec.Mutation); err != nil {
			return nil, fmt.Errorf("read session %s: seq %d: decode mutation: %w", sessionID, rec.Seq, err)
		}
		rec.Outcome = reconcile.Outcome(outcome)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	return out, nil
}
