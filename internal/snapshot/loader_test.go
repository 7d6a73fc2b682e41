package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/engine"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/upstream"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snaps []upstream.RawSnapshot
	errs  []error
	calls int
}

func (f *fakeFetcher) Status(context.Context) (upstream.RawSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return upstream.RawSnapshot{}, f.errs[i]
	}
	if len(f.snaps) == 0 {
		return upstream.RawSnapshot{}, nil
	}
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	return f.snaps[i], nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func raw(t *testing.T, doc string) upstream.RawSnapshot {
	t.Helper()
	var r upstream.RawSnapshot
	require.NoError(t, json.Unmarshal([]byte(doc), &r))
	return r
}

func runningEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func TestNormalize_AllShapes(t *testing.T) {
	r := raw(t, `{
		"processed": [
			{"name":"b","imageURL":"http://x/b.png","upscaledURL":"http://x/b2.png","progress":100},
			"{\"name\":\"c\",\"upscaledURL\":\"http://x/c2.png\"}",
			{"name":"{\"name\":\"d\",\"imageURL\":\"http://x/d.png\",\"upscaledURL\":\"http://x/d2.png\"}"}
		],
		"processing": [
			{"name":"a","progress":"40"},
			{"name":"e","progress":7}
		]
	}`)

	snap, skipped := Normalize(r)
	assert.Empty(t, skipped)
	assert.Equal(t, topic.Snapshot{
		Processed: []topic.Job{
			{Name: "b", SourceURL: "http://x/b.png", ResultURL: "http://x/b2.png"},
			{Name: "c", ResultURL: "http://x/c2.png"},
			{Name: "d", SourceURL: "http://x/d.png", ResultURL: "http://x/d2.png"},
		},
		Processing: []topic.Job{
			{Name: "a", Progress: 40},
			{Name: "e", Progress: 7},
		},
	}, snap)
}

func TestNormalize_SkipsMalformed(t *testing.T) {
	r := raw(t, `{
		"processed": [42, {"name":"ok"}, {"name":"{broken"}],
		"processing": [null, {"name":"a","progress":"lots"}, {"name":"b","progress":1}]
	}`)

	snap, skipped := Normalize(r)
	assert.Equal(t, []topic.Job{{Name: "ok"}}, snap.Processed)
	assert.Equal(t, []topic.Job{{Name: "b", Progress: 1}}, snap.Processing)

	require.Len(t, skipped, 4)
	assert.Equal(t, "processed", skipped[0].List)
	assert.Equal(t, 0, skipped[0].Index)
	assert.Equal(t, "processing", skipped[3].List)
	assert.Equal(t, 1, skipped[3].Index)
	for _, s := range skipped {
		assert.True(t, topic.IsMalformed(s.Err))
	}
}

func TestRefresh_SeedsStore(t *testing.T) {
	e := runningEngine(t)
	f := &fakeFetcher{snaps: []upstream.RawSnapshot{raw(t, `{
		"processed": [{"name":"done","upscaledURL":"http://x/done.png"}],
		"processing": [{"name":"a","progress":"40"}, 17]
	}`)}}
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(f, e, WithLogger(zap.New(core).Sugar()))

	require.NoError(t, l.Refresh(context.Background()))

	v := e.View()
	assert.Equal(t, []reconcile.InFlightJob{{Name: "a", Progress: 40, State: topic.StateInFlight}}, v.InFlight)
	assert.Equal(t, []reconcile.CompletedJob{{Name: "done", ResultURL: "http://x/done.png"}}, v.Completed)
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed snapshot record").Len())

	// The seeded progress guards against a stale stream update.
	r, err := e.Apply(context.Background(), reconcile.Progress("a", 30))
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeStale, r.Outcome)
}

func TestRefresh_FailureLeavesStateUntouched(t *testing.T) {
	e := runningEngine(t)
	ctx := context.Background()
	_, err := e.Apply(ctx, reconcile.Progress("a", 10))
	require.NoError(t, err)
	before := e.View()

	f := &fakeFetcher{errs: []error{topic.NewTransportFailure("GET /get-status", errors.New("connection refused"))}}
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(f, e, WithLogger(zap.New(core).Sugar()))

	err = l.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, topic.IsTransportFailure(err))
	assert.Equal(t, before, e.View())

	entries := logs.FilterMessage("snapshot refresh failed, keeping current state").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestRun_OneShot(t *testing.T) {
	e := runningEngine(t)
	f := &fakeFetcher{snaps: []upstream.RawSnapshot{raw(t, `{"processed":[],"processing":[{"name":"a","progress":1}]}`)}}

	require.NoError(t, New(f, e).Run(context.Background(), 0))
	assert.Equal(t, 1, f.Calls())
	assert.Len(t, e.View().InFlight, 1)
}

func TestRun_Periodic(t *testing.T) {
	e := runningEngine(t)
	f := &fakeFetcher{
		snaps: []upstream.RawSnapshot{
			raw(t, `{"processed":[],"processing":[{"name":"a","progress":10}]}`),
			raw(t, `{"processed":[],"processing":[{"name":"a","progress":20}]}`),
			raw(t, `{"processed":[{"name":"a","upscaledURL":"http://x/a.png"}],"processing":[]}`),
		},
		errs: []error{nil, errors.New("temporary")},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(f, e).Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return e.View().StateOf("a") == topic.StateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.GreaterOrEqual(t, f.Calls(), 3)
}

func TestPoll_WaitsForFirstTick(t *testing.T) {
	e := runningEngine(t)
	f := &fakeFetcher{}
	l := New(f, e)

	require.NoError(t, l.Poll(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Poll(ctx, time.Hour) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, f.Calls())
}
