package reconcile

import (
	"sort"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// entry is one in-flight job. ord fixes its position in the projection.
type entry struct {
	job    topic.Job
	origin topic.Origin
	token  string
	ord    uint64
}

// Store is the authoritative job state.
//
// The zero value is not usable; call New.
type Store struct {
	inFlight  map[string]*entry
	completed []topic.Job
	nextOrd   uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		inFlight: make(map[string]*entry),
	}
}

// Seed reconciles the store with a full snapshot.
//
// The in-flight mapping is rebuilt from the snapshot, and completions the
// snapshot reports are appended. A snapshot may have been taken before
// events that were applied while it was in transit, so Seed never undoes
// them:
//   - a name already completed locally stays completed and keeps its record
//   - an in-flight name keeps the higher of its local and snapshot progress
//   - optimistic entries the snapshot does not mention are carried over
//
// The snapshot is expected to hold normalized records; malformed records are
// dropped by the loader before they get here. Seed still enforces the store
// invariants on whatever it is given: completed entries are de-duplicated by
// name with the first occurrence winning, in-flight entries whose name is
// completed are dropped, and duplicate in-flight names keep the highest
// progress.
func (s *Store) Seed(snap topic.Snapshot) Outcome {
	completed := make([]topic.Job, len(s.completed), len(s.completed)+len(snap.Processed))
	copy(completed, s.completed)
	done := make(map[string]struct{}, cap(completed))
	for _, j := range completed {
		done[j.Name] = struct{}{}
	}
	for _, j := range snap.Processed {
		name := topic.NormalizeName(j.Name)
		if name == "" {
			continue
		}
		if _, dup := done[name]; dup {
			continue
		}
		done[name] = struct{}{}
		completed = append(completed, topic.Job{
			Name:      name,
			SourceURL: j.SourceURL,
			ResultURL: j.ResultURL,
		})
	}

	prev := s.inFlight
	s.inFlight = make(map[string]*entry, len(snap.Processing))
	s.completed = completed

	for _, j := range snap.Processing {
		name := topic.NormalizeName(j.Name)
		if name == "" {
			continue
		}
		if _, ok := done[name]; ok {
			continue
		}
		progress := topic.ClampProgress(j.Progress)
		if e, ok := s.inFlight[name]; ok {
			if progress > e.job.Progress {
				e.job.Progress = progress
			}
			if e.job.SourceURL == "" {
				e.job.SourceURL = j.SourceURL
			}
			continue
		}
		e := &entry{
			job:    topic.Job{Name: name, SourceURL: j.SourceURL, Progress: progress},
			origin: topic.OriginConfirmed,
			ord:    s.ord(),
		}
		// Keep what events already taught us about the job, and the token
		// of an optimistic submission so its pending Confirm still matches.
		if old, ok := prev[name]; ok {
			e.token = old.token
			if old.job.Progress > e.job.Progress {
				e.job.Progress = old.job.Progress
			}
			if e.job.SourceURL == "" {
				e.job.SourceURL = old.job.SourceURL
			}
		}
		s.inFlight[name] = e
	}

	for _, old := range sortedEntries(prev) {
		if old.origin != topic.OriginOptimistic {
			continue
		}
		if _, ok := done[old.job.Name]; ok {
			continue
		}
		if _, ok := s.inFlight[old.job.Name]; ok {
			continue
		}
		carried := *old
		carried.ord = s.ord()
		s.inFlight[old.job.Name] = &carried
	}

	return OutcomeSeeded
}

// ApplyProgress upserts an in-flight entry.
//
// An absent name is inserted. A present name is updated only when progress
// is at least the recorded value; a lower value is stale and dropped.
// Progress for a name that already completed is stale as well. Any progress
// event is server evidence, so an optimistic entry becomes confirmed.
func (s *Store) ApplyProgress(name string, progress int) Outcome {
	name = topic.NormalizeName(name)
	if name == "" {
		return OutcomeNoOp
	}
	progress = topic.ClampProgress(progress)

	if s.isCompleted(name) {
		return OutcomeStale
	}

	e, ok := s.inFlight[name]
	if !ok {
		s.inFlight[name] = &entry{
			job:    topic.Job{Name: name, Progress: progress},
			origin: topic.OriginConfirmed,
			ord:    s.ord(),
		}
		return OutcomeInserted
	}

	if progress < e.job.Progress {
		return OutcomeStale
	}
	if progress == e.job.Progress && e.origin == topic.OriginConfirmed {
		return OutcomeNoOp
	}
	e.job.Progress = progress
	e.origin = topic.OriginConfirmed
	return OutcomeUpdated
}

// ApplyCompletion moves name from the in-flight mapping to the completed
// list. The name need not be in flight: a completion can overtake its
// progress events or arrive without any.
//
// sourceURL may be empty, in which case the in-flight entry's is used. A
// repeated completion for the same name returns OutcomeDuplicate and leaves
// the first record untouched.
func (s *Store) ApplyCompletion(name, resultURL, sourceURL string) Outcome {
	name = topic.NormalizeName(name)
	if name == "" {
		return OutcomeNoOp
	}

	e, inFlight := s.inFlight[name]
	if inFlight {
		delete(s.inFlight, name)
	}

	if s.isCompleted(name) {
		return OutcomeDuplicate
	}

	if sourceURL == "" && inFlight {
		sourceURL = e.job.SourceURL
	}
	s.completed = append(s.completed, topic.Job{
		Name:      name,
		SourceURL: sourceURL,
		ResultURL: resultURL,
	})
	return OutcomeAppended
}

// SubmitOptimistic inserts a pending entry with zero progress before the
// server has seen the job.
//
// token identifies this particular insert; Confirm and Rollback only act on
// the entry while it still carries the same token. Returns an INVALID_INPUT
// error, with no state change, when the name is empty, the token is empty,
// or the name is already in flight or completed.
func (s *Store) SubmitOptimistic(name, sourceURL, token string) (topic.Handle, error) {
	name = topic.NormalizeName(name)
	if name == "" {
		return topic.Handle{}, topic.NewInvalidInput("", "name is empty")
	}
	if token == "" {
		return topic.Handle{}, topic.NewInvalidInput(name, "submission token is empty")
	}
	if _, ok := s.inFlight[name]; ok {
		return topic.Handle{}, topic.NewInvalidInput(name, "job is already in flight")
	}
	if s.isCompleted(name) {
		return topic.Handle{}, topic.NewInvalidInput(name, "job is already completed")
	}

	s.inFlight[name] = &entry{
		job:    topic.Job{Name: name, SourceURL: sourceURL},
		origin: topic.OriginOptimistic,
		token:  token,
		ord:    s.ord(),
	}
	return topic.Handle{Name: name, Token: token}, nil
}

// Confirm marks the entry created by h as acknowledged by the server.
// It is a no-op if the entry is gone, already confirmed, or belongs to a
// different submission.
func (s *Store) Confirm(h topic.Handle) Outcome {
	e, ok := s.owned(h)
	if !ok || e.origin == topic.OriginConfirmed {
		return OutcomeNoOp
	}
	e.origin = topic.OriginConfirmed
	return OutcomeUpdated
}

// Rollback removes the entry created by h after a failed submit call.
//
// Removal is by name, never by position. The entry is kept when the server
// has already reported it through a progress event or a snapshot, and when
// it belongs to a different submission of the same name.
func (s *Store) Rollback(h topic.Handle) Outcome {
	e, ok := s.owned(h)
	if !ok || e.origin != topic.OriginOptimistic {
		return OutcomeNoOp
	}
	delete(s.inFlight, e.job.Name)
	return OutcomeRemoved
}

// View returns an immutable projection of the current state. Seq is left
// zero; the engine stamps it.
func (s *Store) View() View {
	entries := sortedEntries(s.inFlight)
	v := View{
		InFlight:  make([]InFlightJob, 0, len(entries)),
		Completed: make([]CompletedJob, 0, len(s.completed)),
	}
	for _, e := range entries {
		v.InFlight = append(v.InFlight, InFlightJob{
			Name:      e.job.Name,
			SourceURL: e.job.SourceURL,
			Progress:  e.job.Progress,
			State:     topic.StateOf(e.origin),
		})
	}
	for _, j := range s.completed {
		v.Completed = append(v.Completed, CompletedJob{
			Name:      j.Name,
			SourceURL: j.SourceURL,
			ResultURL: j.ResultURL,
		})
	}
	return v
}

func (s *Store) owned(h topic.Handle) (*entry, bool) {
	if h.IsZero() {
		return nil, false
	}
	e, ok := s.inFlight[topic.NormalizeName(h.Name)]
	if !ok || e.token != h.Token {
		return nil, false
	}
	return e, true
}

// isCompleted scans the completed list. The in-flight map stays the only
// index the store keeps.
func (s *Store) isCompleted(name string) bool {
	for i := range s.completed {
		if s.completed[i].Name == name {
			return true
		}
	}
	return false
}

func (s *Store) ord() uint64 {
	s.nextOrd++
	return s.nextOrd
}

func sortedEntries(m map[string]*entry) []*entry {
	out := make([]*entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ord < out[j].ord })
	return out
}
