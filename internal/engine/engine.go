package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/metrics"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// Result reports what happened to one applied mutation.
type Result struct {
	Seq     int64
	Outcome reconcile.Outcome
	// Handle is set for accepted submissions.
	Handle topic.Handle
	Err    error
}

// Record is what the engine hands to a Recorder after each mutation.
type Record struct {
	Seq      int64              `json:"seq"`
	Mutation reconcile.Mutation `json:"mutation"`
	Outcome  reconcile.Outcome  `json:"outcome"`
	Err      string             `json:"error,omitempty"`
}

// Recorder receives every applied mutation in seq order. It is called from
// the Run goroutine, so it must not call back into the engine.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Engine owns a reconcile.Store and serializes all access to it.
//
// Thread-safety model:
//   - Enqueue, Apply, View, Changed: safe from any goroutine
//   - Run: exactly one goroutine
//   - the store is touched only by Run
type Engine struct {
	store    *reconcile.Store
	clock    *Clock
	queue    *mutationQueue
	recorder Recorder
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger

	running atomic.Bool
	view    atomic.Pointer[reconcile.View]

	mu      sync.Mutex
	changed chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder journals every applied mutation.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithMetrics counts outcomes and tracks projection sizes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine's logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine around s. A nil store starts empty.
func New(s *reconcile.Store, opts ...Option) *Engine {
	if s == nil {
		s = reconcile.New()
	}
	e := &Engine{
		store:   s,
		clock:   NewClock(),
		queue:   newMutationQueue(),
		log:     zap.NewNop().Sugar(),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	v := s.View()
	v.Seq = e.clock.Current()
	e.view.Store(&v)
	return e
}

// Enqueue submits m without waiting. Returns false once the engine stopped.
func (e *Engine) Enqueue(m reconcile.Mutation) bool {
	return e.queue.Enqueue(request{mutation: m})
}

// Apply submits m and waits until Run has applied it.
//
// The returned error is the mutation's own error (a rejected submission),
// ErrStopped, or ctx.Err(). When ctx ends first the mutation stays queued
// and may still be applied.
func (e *Engine) Apply(ctx context.Context, m reconcile.Mutation) (Result, error) {
	reply := make(chan Result, 1)
	if !e.queue.Enqueue(request{mutation: m, reply: reply}) {
		return Result{}, ErrStopped
	}
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-reply:
		return r, r.Err
	}
}

// View returns the projection published after the last state change.
func (e *Engine) View() reconcile.View {
	return *e.view.Load()
}

// Changed returns a channel that is closed the next time a new View is
// published. Call it again after each wake-up:
//
//	for {
//	    ch := e.Changed()
//	    render(e.View())
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case <-ch:
//	    }
//	}
func (e *Engine) Changed() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.changed
}

// QueueLen returns the number of mutations waiting to be applied.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run applies queued mutations until ctx is cancelled or Stop is called.
//
// Returns ctx.Err() on cancellation and nil after Stop. Mutations still
// queued when Run returns are dropped; their Apply callers get ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine is already running")
	}
	e.log.Debugw("engine starting", "seq", e.clock.Current())

	defer func() {
		for _, r := range e.queue.Close() {
			if r.reply != nil {
				r.reply <- Result{Err: ErrStopped}
			}
		}
	}()

	for {
		if r, ok := e.queue.TryDequeue(); ok {
			e.apply(ctx, r)
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Debugw("engine stopping", "reason", ctx.Err())
			return ctx.Err()

		case <-e.queue.Wait():
			// Stop closes the signal channel; a closed, empty queue ends
			// the loop.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.log.Debug("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns nil once it has finished the mutation
// in hand.
func (e *Engine) Stop() {
	for _, r := range e.queue.Close() {
		if r.reply != nil {
			r.reply <- Result{Err: ErrStopped}
		}
	}
}

// apply runs one mutation. Called only from Run.
func (e *Engine) apply(ctx context.Context, r request) {
	m := r.mutation
	seq := e.clock.Next()

	out, h, err := e.store.Apply(m)
	e.metrics.Mutation(string(m.Kind), string(out))

	switch {
	case err != nil:
		e.log.Warnw("mutation rejected", "seq", seq, "mutation", m.String(), "error", err)
	case out == reconcile.OutcomeStale || out == reconcile.OutcomeDuplicate:
		e.log.Debugw("mutation ignored", "seq", seq, "mutation", m.String(), "outcome", out)
	default:
		e.log.Debugw("mutation applied", "seq", seq, "mutation", m.String(), "outcome", out)
	}

	if e.recorder != nil {
		rec := Record{Seq: seq, Mutation: m, Outcome: out}
		if err != nil {
			rec.Err = err.Error()
		}
		if rerr := e.recorder.Record(ctx, rec); rerr != nil {
			e.log.Warnw("journal write failed", "seq", seq, "error", rerr)
		}
	}

	if out.Changed() {
		e.publish(seq)
	}

	if r.reply != nil {
		r.reply <- Result{Seq: seq, Outcome: out, Handle: h, Err: err}
	}
}

func (e *Engine) publish(seq int64) {
	v := e.store.View()
	v.Seq = seq
	e.view.Store(&v)

	c := v.Counts()
	e.metrics.Jobs(c.Pending, c.InFlight, c.Completed)

	e.mu.Lock()
	close(e.changed)
	e.changed = make(chan struct{})
	e.mu.Unlock()
}
