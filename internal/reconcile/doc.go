// Package reconcile implements the in-memory reconciliation store.
//
// The Store is the sole owner of job state. It holds one keyed mapping of
// in-flight jobs and an append-only list of completed jobs, and merges three
// kinds of input into them:
//
//   - full snapshots (Seed), which replace both collections
//   - incremental stream events (ApplyProgress, ApplyCompletion)
//   - local optimistic submissions (SubmitOptimistic, Confirm, Rollback)
//
// Inputs arrive from several sources with no ordering guarantee between
// them. Every operation is therefore keyed by name and safe to apply zero,
// one, or many times in any order:
//
//   - progress for a key never decreases while the key is in flight
//   - completion removes by key and de-duplicates by key
//   - rollback removes by key and only if the entry still belongs to the
//     submission being rolled back
//
// INVARIANTS:
//   - at most one in-flight entry per name
//   - a completed name is never in flight
//   - completed entries carry no progress and are never mutated
//
// The Store does no I/O and takes no locks. Callers serialize access; in
// this module that is the engine's single writer goroutine.
package reconcile
