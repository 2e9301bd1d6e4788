// Package domain contains the core business entities and invariants of the
// application: the quiz-generation task, its lifecycle state machine, and
// the quiz artifact with its structural constraints. It is independent of
// any specific infrastructure or delivery mechanism.
package domain
