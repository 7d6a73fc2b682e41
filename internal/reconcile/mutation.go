package reconcile

import (
	"fmt"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// Kind names a store operation.
type Kind string

const (
	KindSeed     Kind = "seed"
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindSubmit   Kind = "submit"
	KindConfirm  Kind = "confirm"
	KindRollback Kind = "rollback"
)

// Kinds lists every mutation kind in a stable order.
var Kinds = []Kind{KindSeed, KindProgress, KindComplete, KindSubmit, KindConfirm, KindRollback}

// Mutation is one store operation as data, so it can be queued, journaled,
// and replayed. Only the fields relevant to Kind are set.
type Mutation struct {
	Kind      Kind            `json:"kind" yaml:"kind"`
	Name      string          `json:"name,omitempty" yaml:"name,omitempty"`
	Progress  int             `json:"progress,omitempty" yaml:"progress,omitempty"`
	SourceURL string          `json:"imageURL,omitempty" yaml:"imageURL,omitempty"`
	ResultURL string          `json:"upscaledURL,omitempty" yaml:"upscaledURL,omitempty"`
	Token     string          `json:"token,omitempty" yaml:"token,omitempty"`
	Snapshot  *topic.Snapshot `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
}

// Seed builds a seed mutation.
func Seed(snap topic.Snapshot) Mutation {
	return Mutation{Kind: KindSeed, Snapshot: &snap}
}

// Progress builds a progress mutation.
func Progress(name string, progress int) Mutation {
	return Mutation{Kind: KindProgress, Name: name, Progress: progress}
}

// Complete builds a completion mutation.
func Complete(name, resultURL, sourceURL string) Mutation {
	return Mutation{Kind: KindComplete, Name: name, ResultURL: resultURL, SourceURL: sourceURL}
}

// Submit builds an optimistic insert.
func Submit(name, sourceURL, token string) Mutation {
	return Mutation{Kind: KindSubmit, Name: name, SourceURL: sourceURL, Token: token}
}

// Confirm builds a confirmation for h.
func Confirm(h topic.Handle) Mutation {
	return Mutation{Kind: KindConfirm, Name: h.Name, Token: h.Token}
}

// Rollback builds a rollback for h.
func Rollback(h topic.Handle) Mutation {
	return Mutation{Kind: KindRollback, Name: h.Name, Token: h.Token}
}

// FromEvent converts a stream event into a mutation. Info frames carry no
// job and yield ok=false.
func FromEvent(ev topic.Event) (Mutation, bool) {
	switch ev.Kind {
	case topic.EventProgress:
		return Progress(ev.Name, ev.Progress), true
	case topic.EventComplete:
		return Complete(ev.Name, ev.ResultURL, ev.SourceURL), true
	}
	return Mutation{}, false
}

// Handle returns the submission handle a confirm or rollback refers to.
func (m Mutation) Handle() topic.Handle {
	return topic.Handle{Name: topic.NormalizeName(m.Name), Token: m.Token}
}

// String returns a short description for logs.
func (m Mutation) String() string {
	switch m.Kind {
	case KindSeed:
		if m.Snapshot == nil {
			return "seed(nil)"
		}
		return fmt.Sprintf("seed(processing=%d, processed=%d)", len(m.Snapshot.Processing), len(m.Snapshot.Processed))
	case KindProgress:
		return fmt.Sprintf("progress(%q, %d)", m.Name, m.Progress)
	case KindComplete:
		return fmt.Sprintf("complete(%q)", m.Name)
	default:
		return fmt.Sprintf("%s(%q)", m.Kind, m.Name)
	}
}

// Apply dispatches m to the matching store operation.
//
// The returned error is non-nil only for rejected submissions (INVALID_INPUT)
// and for mutations that cannot be dispatched at all. The Handle is set for
// accepted submissions.
func (s *Store) Apply(m Mutation) (Outcome, topic.Handle, error) {
	switch m.Kind {
	case KindSeed:
		if m.Snapshot == nil {
			return OutcomeNoOp, topic.Handle{}, fmt.Errorf("seed mutation has no snapshot")
		}
		return s.Seed(*m.Snapshot), topic.Handle{}, nil

	case KindProgress:
		return s.ApplyProgress(m.Name, m.Progress), topic.Handle{}, nil

	case KindComplete:
		return s.ApplyCompletion(m.Name, m.ResultURL, m.SourceURL), topic.Handle{}, nil

	case KindSubmit:
		h, err := s.SubmitOptimistic(m.Name, m.SourceURL, m.Token)
		if err != nil {
			return OutcomeRejected, topic.Handle{}, err
		}
		return OutcomeInserted, h, nil

	case KindConfirm:
		return s.Confirm(m.Handle()), topic.Handle{}, nil

	case KindRollback:
		return s.Rollback(m.Handle()), topic.Handle{}, nil

	default:
		return OutcomeNoOp, topic.Handle{}, fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
}
