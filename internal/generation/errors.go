package generation

import "errors"

// Synthesis failure classes. Once the synthesizer's retry budgets are
// exhausted, one of these is recorded as the task's terminal failure cause.
var (
	// ErrCollaboratorUnavailable is returned when the text-completion
	// collaborator keeps failing after the configured retry budget.
	ErrCollaboratorUnavailable = errors.New("text-completion collaborator unavailable")

	// ErrSynthesisTimeout is returned when the synthesis time budget is
	// exceeded.
	ErrSynthesisTimeout = errors.New("synthesis time budget exceeded")

	// ErrValidationExhausted is returned when the collaborator output never
	// converged to a structurally valid quiz within the repair budget.
	ErrValidationExhausted = errors.New("quiz validation repair budget exhausted")

	// ErrInternal is returned for failures that indicate a bug rather than
	// a normal operating condition, such as repeated store version
	// conflicts on a single task.
	ErrInternal = errors.New("internal synthesis error")

	// ErrInvalidConfig is returned when a synthesizer or collaborator is
	// constructed with invalid configuration.
	ErrInvalidConfig = errors.New("invalid generation configuration")
)

// Cause codes surfaced to polling clients on a failed task.
const (
	CauseCollaboratorUnavailable = "collaborator_unavailable"
	CauseTimeout                 = "timeout"
	CauseValidationExhausted     = "validation_exhausted"
	CauseInternal                = "internal"
)

// CauseCode classifies a synthesis error into the cause code recorded on
// the failed task. Unrecognized errors are reported as internal.
func CauseCode(err error) string {
	switch {
	case errors.Is(err, ErrCollaboratorUnavailable):
		return CauseCollaboratorUnavailable
	case errors.Is(err, ErrSynthesisTimeout):
		return CauseTimeout
	case errors.Is(err, ErrValidationExhausted):
		return CauseValidationExhausted
	default:
		return CauseInternal
	}
}
