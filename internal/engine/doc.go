// Package engine owns the authoritative state machine per quiz-generation
// task: creation, execution dispatch, state transition, result storage and
// cancellation. It depends only on a task store and a quiz generator, so it
// tests with in-memory fakes. All task mutation goes through optimistic
// compare-and-update against the store, which makes transitions linearizable
// per task and keeps polling snapshots monotonic.
package engine
