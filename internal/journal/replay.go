package journal

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/engine"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
)

// Mismatch is a mutation whose replayed outcome differs from the recorded one.
type Mismatch struct {
	Seq         int64              `json:"seq"`
	Mutation    reconcile.Mutation `json:"mutation"`
	Recorded    reconcile.Outcome  `json:"recorded"`
	Replayed    reconcile.Outcome  `json:"replayed"`
	RecordedErr string             `json:"recordedError,omitempty"`
	ReplayedErr string             `json:"replayedError,omitempty"`
}

// Report is the result of replaying one session.
type Report struct {
	Session   string `json:"session"`
	Mutations int    `json:"mutations"`

	// Gaps counts seq numbers missing from the session, usually journal
	// writes that failed. Outcomes after a gap may legitimately differ.
	Gaps int `json:"gaps"`

	// Mismatches compares the first replay against the recorded outcomes.
	Mismatches []Mismatch `json:"mismatches"`

	// Diverged is true when two replays of the same records disagree.
	Diverged bool `json:"diverged"`

	// Final is the projection after replaying every record.
	Final reconcile.View `json:"final"`
}

// OK reports whether the session replayed exactly as recorded.
func (r Report) OK() bool {
	return len(r.Mismatches) == 0 && !r.Diverged
}

// Replay reads a session and replays it. See ReplayRecords.
func (j *Journal) Replay(ctx context.Context, sessionID string) (Report, error) {
	recs, err := j.Records(ctx, sessionID)
	if err != nil {
		return Report{}, err
	}
	if len(recs) == 0 {
		return Report{}, fmt.Errorf("replay: session %s has no mutations", sessionID)
	}
	report := ReplayRecords(sessionID, recs)
	j.log.Debugw("session replayed", "session", sessionID, "mutations", report.Mutations,
		"mismatches", len(report.Mismatches), "diverged", report.Diverged)
	return report, nil
}

// ReplayRecords applies recs to a fresh store twice and compares both runs
// with each other and with the recorded outcomes.
func ReplayRecords(sessionID string, recs []engine.Record) Report {
	report := Report{Session: sessionID, Mutations: len(recs)}

	var prev int64
	for _, rec := range recs {
		if rec.Seq > prev+1 {
			report.Gaps += int(rec.Seq - prev - 1)
		}
		prev = rec.Seq
	}

	first, firstView := replayOnce(recs)
	second, secondView := replayOnce(recs)
	report.Diverged = !reflect.DeepEqual(first, second) || !reflect.DeepEqual(firstView, secondView)

	for i, rec := range recs {
		got := first[i]
		if got.outcome == rec.Outcome && (got.err != "") == (rec.Err != "") {
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			Seq:         rec.Seq,
			Mutation:    rec.Mutation,
			Recorded:    rec.Outcome,
			Replayed:    got.outcome,
			RecordedErr: rec.Err,
			ReplayedErr: got.err,
		})
	}

	report.Final = firstView
	return report
}

type replayed struct {
	outcome reconcile.Outcome
	err     string
}

func replayOnce(recs []engine.Record) ([]replayed, reconcile.View) {
	s := reconcile.New()
	out := make([]replayed, len(recs))
	for i, rec := range recs {
		o, _, err := s.Apply(rec.Mutation)
		out[i] = replayed{outcome: o}
		if err != nil {
			out[i].err = err.Error()
		}
	}

	v := s.View()
	if n := len(recs); n > 0 {
		v.Seq = recs[n-1].Seq
	}
	return out, v
}
