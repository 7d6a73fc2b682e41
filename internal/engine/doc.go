// Package engine runs the reconciliation store behind a single writer.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// Snapshot refreshes, stream events, and submissions arrive on different
// goroutines. None of them touches the store. Each one enqueues a
// reconcile.Mutation, and Engine.Run applies mutations strictly one at a
// time in FIFO order. The store therefore needs no locks.
//
// Processing Flow:
//  1. A source calls Enqueue (fire-and-forget) or Apply (waits for the
//     outcome).
//  2. Run dequeues the mutation and stamps it with the next clock seq.
//  3. The store applies it and reports an Outcome.
//  4. The recorder (if any) journals {seq, mutation, outcome}.
//  5. A fresh View is published through an atomic pointer and watchers of
//     Changed are woken.
//
// Readers call View from any goroutine and get an immutable projection.
//
// Errors never stop the loop. A rejected mutation is reported to its Apply
// caller and logged; recorder failures are logged. Retrying inside the loop
// would make the applied order depend on timing.
//
// Logical Clock:
// Every applied mutation gets a strictly increasing seq from Clock. Views
// carry the seq of the last mutation they reflect, so a renderer can tell
// whether anything changed without comparing contents.
package engine
