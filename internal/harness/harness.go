package harness

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/engine"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// Harness runs scenarios through a real engine.
type Harness struct {
	log *zap.SugaredLogger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger passes l to every engine the harness starts.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *Harness) { h.log = l }
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes scenario against a fresh engine and evaluates its
// expectations and assertions.
//
// The returned error is reserved for failures to execute at all; failed
// expectations are reported through Result.Errors.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	e := engine.New(nil, engine.WithLogger(h.log))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- e.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	muts := resolveTokens(scenario.Flow)
	result := NewResult()

	for i, step := range scenario.Flow {
		r, err := e.Apply(ctx, muts[i])
		if err != nil && r.Seq == 0 {
			// Not applied at all: the engine stopped or ctx ended.
			return nil, fmt.Errorf("flow[%d] %s: %w", i, muts[i], err)
		}

		ts := TraceStep{Seq: r.Seq, Mutation: muts[i].String(), Outcome: r.Outcome}
		if err != nil {
			ts.Error = err.Error()
		}
		result.Trace = append(result.Trace, ts)

		if step.Expect != "" && r.Outcome != step.Expect {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected outcome %s, got %s", i, ts.Mutation, step.Expect, r.Outcome))
		}
		if step.ExpectError != "" && topic.CodeOf(err) != step.ExpectError {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got %v", i, ts.Mutation, step.ExpectError, err))
		}
		if step.ExpectError == "" && err != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, ts.Mutation, err))
		}
	}

	result.Final = e.View()

	for _, msg := range EvaluateAssertions(result.Final, scenario.Assertions) {
		result.AddError(msg)
	}
	if scenario.AnyOrder {
		for _, msg := range CheckOrderIndependence(muts, result.Final) {
			result.AddError(msg)
		}
	}
	return result, nil
}

// resolveTokens fills in missing submission tokens.
func resolveTokens(flow []Step) []reconcile.Mutation {
	gen := engine.NewCountingGenerator("tok")
	last := make(map[string]string)

	out := make([]reconcile.Mutation, len(flow))
	for i, step := range flow {
		m := step.Mutation
		name := topic.NormalizeName(m.Name)
		switch m.Kind {
		case reconcile.KindSubmit:
			if m.Token == "" {
				m.Token = gen.Generate()
			}
			last[name] = m.Token
		case reconcile.KindConfirm, reconcile.KindRollback:
			if m.Token == "" {
				m.Token = last[name]
			}
		}
		out[i] = m
	}
	return out
}
