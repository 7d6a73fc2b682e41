// Package snapshot fetches the full job state and seeds the engine with it.
//
// Record normalization happens here, at the boundary: every raw record
// passes through topic.NormalizeJobRecord, and a record that cannot be
// normalized is logged and skipped without affecting the rest of the
// snapshot. A failed fetch leaves the store exactly as it was.
package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/engine"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/metrics"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/upstream"
)

// Fetcher retrieves the raw status resource.
type Fetcher interface {
	Status(ctx context.Context) (upstream.RawSnapshot, error)
}

// Applier applies a mutation and waits for it. *engine.Engine implements it.
type Applier interface {
	Apply(ctx context.Context, m reconcile.Mutation) (engine.Result, error)
}

// Loader turns status responses into seed mutations.
type Loader struct {
	fetch   Fetcher
	apply   Applier
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(ld *Loader) { ld.log = l }
}

// WithMetrics counts refreshes and skipped records.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ld *Loader) { ld.metrics = m }
}

// New creates a loader.
func New(fetch Fetcher, apply Applier, opts ...Option) *Loader {
	l := &Loader{
		fetch: fetch,
		apply: apply,
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches and normalizes a snapshot without touching the store.
func (l *Loader) Load(ctx context.Context) (topic.Snapshot, error) {
	raw, err := l.fetch.Status(ctx)
	if err != nil {
		return topic.Snapshot{}, err
	}

	snap, skipped := Normalize(raw)
	for _, s := range skipped {
		l.metrics.Malformed(metrics.SourceRecord)
		l.log.Warnw("skipping malformed snapshot record", "list", s.List, "index", s.Index, "error", s.Err)
	}
	return snap, nil
}

// Refresh loads a snapshot and seeds the store with it, waiting until the
// seed is applied.
//
// On failure the error is logged and returned, and the store is not
// touched. Callers are free to ignore the error.
func (l *Loader) Refresh(ctx context.Context) error {
	snap, err := l.Load(ctx)
	if err != nil {
		l.metrics.Refresh(metrics.ResultFailure)
		l.log.Warnw("snapshot refresh failed, keeping current state", "error", err)
		return err
	}

	res, err := l.apply.Apply(ctx, reconcile.Seed(snap))
	if err != nil {
		l.metrics.Refresh(metrics.ResultFailure)
		return err
	}
	l.metrics.Refresh(metrics.ResultOK)
	l.log.Infow("snapshot applied",
		"seq", res.Seq,
		"processing", len(snap.Processing),
		"processed", len(snap.Processed))
	return nil
}

// Run refreshes once and then every interval until ctx ends. An interval
// of zero or less makes it a one-shot refresh.
//
// Refresh failures never stop the loop. Run returns the first refresh's
// error in one-shot mode and ctx.Err() otherwise.
func (l *Loader) Run(ctx context.Context, interval time.Duration) error {
	err := l.Refresh(ctx)
	if interval <= 0 {
		return err
	}
	return l.Poll(ctx, interval)
}

// Poll refreshes every interval until ctx ends, starting one interval from
// now. It is Run for callers that already did the first refresh.
func (l *Loader) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = l.Refresh(ctx)
		}
	}
}

// Skipped describes one record Normalize dropped.
type Skipped struct {
	List  string
	Index int
	Err   error
}

// Normalize converts a raw status response into a snapshot, dropping
// records that cannot be normalized. Completed records lose any progress
// they carried.
func Normalize(raw upstream.RawSnapshot) (topic.Snapshot, []Skipped) {
	var skipped []Skipped
	snap := topic.Snapshot{
		Processed:  make([]topic.Job, 0, len(raw.Processed)),
		Processing: make([]topic.Job, 0, len(raw.Processing)),
	}

	for i, r := range raw.Processed {
		job, err := topic.NormalizeJobRecord(r)
		if err != nil {
			skipped = append(skipped, Skipped{List: "processed", Index: i, Err: err})
			continue
		}
		job.Progress = 0
		snap.Processed = append(snap.Processed, job)
	}

	for i, r := range raw.Processing {
		job, err := topic.NormalizeJobRecord(r)
		if err != nil {
			skipped = append(skipped, Skipped{List: "processing", Index: i, Err: err})
			continue
		}
		snap.Processing = append(snap.Processing, job)
	}

	return snap, skipped
}
