// Package store defines the interface for task persistence and provides the
// default in-memory implementation. The store is a dumb keyed container with
// optimistic concurrency control; all business logic, including which state
// transitions are legal, lives in the engine that owns the records.
package store
