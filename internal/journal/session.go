package journal

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/engine"
)

// Session appends the mutations of one dashboard run. It implements
// engine.Recorder.
type Session struct {
	journal *Journal
	id      string
}

// ID returns the session's UUIDv7.
func (s *Session) ID() string {
	return s.id
}

// Record appends rec to the session.
//
// Uses ON CONFLICT(session_id, seq) DO NOTHING, so writing the same seq
// twice keeps the first row.
func (s *Session) Record(ctx context.Context, rec engine.Record) error {
	data, err := json.Marshal(rec.Mutation)
	if err != nil {
		return fmt.Errorf("record seq %d: marshal mutation: %w", rec.Seq, err)
	}

	_, err = s.journal.db.ExecContext(ctx, `
		INSERT INTO mutations
		(session_id, seq, kind, name, mutation, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		s.id,
		rec.Seq,
		string(rec.Mutation.Kind),
		rec.Mutation.Name,
		string(data),
		string(rec.Outcome),
		rec.Err,
	)
	if err != nil {
		return fmt.Errorf("record seq %d: %w", rec.Seq, err)
	}
	return nil
}
