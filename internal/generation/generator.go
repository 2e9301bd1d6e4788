package generation

import (
	"context"

	"github.com/quizsmith/quizsmith-api/internal/domain"
)

// Generator defines the interface for synthesizing a quiz from text. This
// interface is the boundary between the lifecycle engine and the generation
// pipeline; the engine never sees the collaborator directly.
type Generator interface {
	// Synthesize derives a ten-question multiple-choice quiz from the given
	// text. The returned quiz is structurally valid: callers may rely on
	// every invariant of domain.Quiz holding.
	//
	// Synthesize honors ctx for cooperative cancellation, checked at phase
	// boundaries of the pipeline. On failure it returns an error matching
	// one of the taxonomy sentinels in errors.go.
	Synthesize(ctx context.Context, text string) (*domain.Quiz, error)
}

// Completer is the text-completion collaborator consumed by the synthesizer.
// It is assumed to be unreliable and rate-limited; any non-success is
// treated as retryable up to the synthesizer's retry budget.
type Completer interface {
	// Complete sends a single prompt and returns the raw completion text.
	// Implementations bound the call with their own per-call timeout and
	// honor ctx cancellation.
	Complete(ctx context.Context, prompt string) (string, error)
}
