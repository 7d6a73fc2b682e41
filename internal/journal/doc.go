// Package journal records applied mutations in SQLite for later diagnosis.
//
// Each dashboard run writes one session. A session is the exact sequence of
// mutations the engine applied, with the outcome of each, in seq order.
// Replay feeds a session back into a fresh store to check that the
// recorded outcomes are reproducible.
//
// The journal is write-only from the dashboard's point of view: a running
// dashboard never restores state from it.
//
// # Database Configuration
//
//   - WAL mode: readers (replay, listing) never block the writer
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// All reads order by seq ASC so output is identical across runs.
package journal
