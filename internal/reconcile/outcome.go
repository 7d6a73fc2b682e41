package reconcile

// Outcome describes what a mutation did to the store.
type Outcome string

const (
	// OutcomeInserted means a new in-flight entry was created.
	OutcomeInserted Outcome = "inserted"

	// OutcomeUpdated means an existing in-flight entry changed.
	OutcomeUpdated Outcome = "updated"

	// OutcomeStale means a progress update arrived below the recorded value,
	// or for a job that already completed. Nothing changed.
	OutcomeStale Outcome = "stale"

	// OutcomeAppended means a job moved to the completed list.
	OutcomeAppended Outcome = "appended"

	// OutcomeDuplicate means a completion repeated an already completed job.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeRemoved means an optimistic entry was rolled back.
	OutcomeRemoved Outcome = "removed"

	// OutcomeRejected means a submission failed validation. Nothing changed.
	OutcomeRejected Outcome = "rejected"

	// OutcomeSeeded means both collections were replaced from a snapshot.
	OutcomeSeeded Outcome = "seeded"

	// OutcomeNoOp means the mutation was valid but had nothing to do.
	OutcomeNoOp Outcome = "noop"
)

// Changed reports whether the outcome altered store state.
func (o Outcome) Changed() bool {
	switch o {
	case OutcomeInserted, OutcomeUpdated, OutcomeAppended, OutcomeRemoved, OutcomeSeeded:
		return true
	}
	return false
}
