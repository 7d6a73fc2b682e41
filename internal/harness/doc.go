// Package harness runs reconciliation scenarios against the engine.
//
// A scenario is a YAML file listing mutations in the order they reach the
// engine, the outcome expected for each, and assertions on the final
// projection:
//
//	name: late_progress_after_completion
//	description: "A progress event that arrives after its completion is stale"
//	flow:
//	  - kind: complete
//	    name: cat
//	    upscaledURL: http://x/cat-4x.png
//	    expect: appended
//	  - kind: progress
//	    name: cat
//	    progress: 90
//	    expect: stale
//	assertions:
//	  - type: state
//	    name: cat
//	    state: completed
//
// Submit steps without a token get one from a counting generator (tok-1,
// tok-2, ...). Confirm and rollback steps without a token use the last
// token issued for the same name.
//
// # Assertion Types
//
//   - state: a job's lifecycle state, optionally its progress and result URL
//   - counts: number of pending, in-flight, and completed jobs
//   - in_flight_order: names of in-flight jobs, in projection order
//   - completed_order: names of completed jobs, in completion order
//
// # Orderings
//
// With any_order: true the harness also replays every permutation of the
// flow against a fresh store and fails if any ordering ends in a different
// set of jobs. Per-step expectations only apply to the written order.
//
// # Golden Files
//
// RunWithGolden renders the trace and final projection as text and compares
// it against testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
