// Package dashboard wires the engine to its sources.
//
// A Dashboard owns one engine and feeds it from three places: snapshot
// refreshes, the event stream, and local submissions. It also owns the
// reconnection policy for the stream. The consumer itself never retries;
// when a subscription closes on a transport failure the dashboard waits
// with exponential backoff, subscribes again, and re-seeds from a fresh
// snapshot to cover whatever was missed while disconnected.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/engine"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/logger"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/metrics"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/snapshot"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/stream"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// Client is the upstream surface the dashboard needs. *upstream.Client
// implements it.
type Client interface {
	snapshot.Fetcher
	stream.Opener
	Submit(ctx context.Context, req topic.SubmitRequest) error
}

// Dashboard keeps a live projection of all jobs.
type Dashboard struct {
	client   Client
	engine   *engine.Engine
	loader   *snapshot.Loader
	consumer *stream.Consumer
	tokens   engine.TokenGenerator
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	refreshInterval time.Duration
	newBackOff      func() backoff.BackOff
	recorder        engine.Recorder

	connected atomic.Bool
	submits   sync.WaitGroup
	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithLogger sets the base logger. Each part logs under its own name.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *Dashboard) { d.log = l }
}

// WithMetrics instruments every part of the dashboard.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dashboard) { d.metrics = m }
}

// WithTokens sets the submission token generator. Defaults to UUIDv7.
func WithTokens(g engine.TokenGenerator) Option {
	return func(d *Dashboard) { d.tokens = g }
}

// WithRefreshInterval enables periodic snapshot refreshes.
func WithRefreshInterval(interval time.Duration) Option {
	return func(d *Dashboard) { d.refreshInterval = interval }
}

// WithBackOff sets the reconnect policy. newBackOff is called once per Run.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(d *Dashboard) { d.newBackOff = newBackOff }
}

// WithRecorder journals every mutation the engine applies.
func WithRecorder(r engine.Recorder) Option {
	return func(d *Dashboard) { d.recorder = r }
}

// ReconnectBackOff returns the exponential policy used between stream
// reconnects. A zero maxElapsed retries forever.
func ReconnectBackOff(initial, maxInterval, maxElapsed time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxInterval
		b.MaxElapsedTime = maxElapsed
		b.Reset()
		return b
	}
}

// New creates a dashboard. Nothing happens until Run.
func New(client Client, opts ...Option) *Dashboard {
	d := &Dashboard{
		client:     client,
		tokens:     engine.UUIDv7Generator{},
		log:        zap.NewNop().Sugar(),
		newBackOff: ReconnectBackOff(500*time.Millisecond, 30*time.Second, 0),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(d.log.Named(logger.ComponentEngine)),
		engine.WithMetrics(d.metrics),
	}
	if d.recorder != nil {
		engineOpts = append(engineOpts, engine.WithRecorder(d.recorder))
	}
	d.engine = engine.New(nil, engineOpts...)
	d.loader = snapshot.New(client, d.engine,
		snapshot.WithLogger(d.log.Named(logger.ComponentSnapshot)),
		snapshot.WithMetrics(d.metrics))
	d.consumer = stream.New(client,
		stream.WithLogger(d.log.Named(logger.ComponentStream)),
		stream.WithMetrics(d.metrics))
	return d
}

// Run starts the engine, seeds it from the server, and follows the event
// stream until ctx ends or reconnecting gives up.
//
// A failed initial snapshot is logged and tolerated; the stream still
// starts and the next refresh or reconnect seeds the store. Every
// subscription is closed before Run returns.
func (d *Dashboard) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineDone := make(chan error, 1)
	go func() { engineDone <- d.engine.Run(ctx) }()

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		<-engineDone
	}()

	_ = d.loader.Refresh(ctx)
	d.readyOnce.Do(func() { close(d.ready) })

	if d.refreshInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.loader.Poll(ctx, d.refreshInterval)
		}()
	}

	return d.follow(ctx)
}

// follow keeps one subscription open at a time.
func (d *Dashboard) follow(ctx context.Context) error {
	b := backoff.WithContext(d.newBackOff(), ctx)
	first := true

	for {
		sub, err := d.consumer.Subscribe(ctx, d.onEvent)
		if err == nil {
			if !first {
				d.log.Infow("event stream reconnected, refreshing snapshot")
				_ = d.loader.Refresh(ctx)
			}
			b.Reset()
			err = d.wait(ctx, sub)
			if err == nil {
				return ctx.Err()
			}
		}
		first = false

		if ctx.Err() != nil {
			return ctx.Err()
		}
		next := b.NextBackOff()
		if next == backoff.Stop {
			return fmt.Errorf("event stream: giving up reconnecting: %w", err)
		}
		d.log.Warnw("event stream lost, reconnecting", "in", next, "error", err)

		t := time.NewTimer(next)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// wait blocks until sub closes and returns its error. The subscription is
// always unsubscribed on return.
func (d *Dashboard) wait(ctx context.Context, sub *stream.Subscription) error {
	d.connected.Store(true)
	defer d.connected.Store(false)
	defer sub.Unsubscribe()

	select {
	case <-ctx.Done():
		return nil
	case <-sub.Done():
		return sub.Err()
	}
}

func (d *Dashboard) onEvent(ev topic.Event) {
	if m, ok := reconcile.FromEvent(ev); ok {
		d.engine.Enqueue(m)
	}
}

// Submission tracks one submit call until the server answers.
type Submission struct {
	// Handle identifies the optimistic entry.
	Handle topic.Handle

	done chan struct{}
	err  error
}

// Done is closed once the entry was confirmed or rolled back.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Err is the submit call's error after Done is closed. Non-nil means the
// entry was rolled back.
func (s *Submission) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Submit inserts name as pending and asks the server to start it.
//
// The optimistic insert is visible in View before Submit returns. The
// server call runs in the background and is not bound to ctx; when it
// settles the entry is confirmed or rolled back. An invalid submission
// returns INVALID_INPUT and changes nothing.
func (d *Dashboard) Submit(ctx context.Context, name, sourceURL string) (*Submission, error) {
	if !topic.IsAbsoluteURL(sourceURL) {
		return nil, topic.NewInvalidInput(topic.NormalizeName(name), "image URL must be an absolute http(s) URL")
	}

	r, err := d.engine.Apply(ctx, reconcile.Submit(name, sourceURL, d.tokens.Generate()))
	if err != nil {
		return nil, err
	}

	sub := &Submission{Handle: r.Handle, done: make(chan struct{})}
	req := topic.SubmitRequest{TopicName: r.Handle.Name, ImageURL: sourceURL}

	d.submits.Add(1)
	go d.settle(context.WithoutCancel(ctx), sub, req)
	return sub, nil
}

func (d *Dashboard) settle(ctx context.Context, sub *Submission, req topic.SubmitRequest) {
	defer d.submits.Done()
	defer close(sub.done)

	m := reconcile.Confirm(sub.Handle)
	if err := d.client.Submit(ctx, req); err != nil {
		sub.err = err
		m = reconcile.Rollback(sub.Handle)
		d.metrics.Submission(metrics.ResultFailure)
		d.log.Warnw("submission failed, rolling back", "name", sub.Handle.Name, "error", err)
	} else {
		d.metrics.Submission(metrics.ResultOK)
		d.log.Infow("submission accepted", "name", sub.Handle.Name)
	}

	if _, err := d.engine.Apply(ctx, m); err != nil && !errors.Is(err, engine.ErrStopped) {
		d.log.Warnw("settling submission failed", "name", sub.Handle.Name, "error", err)
	}
}

// Ready is closed once Run has attempted the initial snapshot, whether or
// not it succeeded.
func (d *Dashboard) Ready() <-chan struct{} {
	return d.ready
}

// WaitSubmissions blocks until every background submit call has settled.
func (d *Dashboard) WaitSubmissions() {
	d.submits.Wait()
}

// Refresh fetches a snapshot now and seeds the store with it.
func (d *Dashboard) Refresh(ctx context.Context) error {
	return d.loader.Refresh(ctx)
}

// View returns the current projection.
func (d *Dashboard) View() reconcile.View {
	return d.engine.View()
}

// Changed is closed the next time the projection changes.
func (d *Dashboard) Changed() <-chan struct{} {
	return d.engine.Changed()
}

// Connected reports whether an event stream subscription is open.
func (d *Dashboard) Connected() bool {
	return d.connected.Load()
}
