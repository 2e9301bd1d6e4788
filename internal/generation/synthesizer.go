package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/quizsmith/quizsmith-api/internal/domain"
)

// Config holds the synthesizer's budgets.
type Config struct {
	// MaxRetries is the number of attempts per collaborator call.
	MaxRetries int

	// RetryBaseDelay is the initial backoff interval between attempts.
	RetryBaseDelay time.Duration

	// SynthesisTimeout bounds one whole Synthesize call.
	SynthesisTimeout time.Duration

	// RepairBudget is the number of regeneration rounds allowed for
	// structurally invalid questions before giving up.
	RepairBudget int
}

// DefaultConfig returns a Config with conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		RetryBaseDelay:   2 * time.Second,
		SynthesisTimeout: 120 * time.Second,
		RepairBudget:     3,
	}
}

// Synthesizer implements the Generator interface on top of a text-completion
// collaborator. One Synthesize call runs three phases: a generation call that
// extracts learning points and drafts all ten questions, a validate-then-
// repair loop that regenerates only structurally invalid questions, and a
// final validation gate. Cancellation is checked at each phase boundary.
type Synthesizer struct {
	completer Completer
	config    Config
	logger    *slog.Logger
}

// NewSynthesizer creates a Synthesizer with the provided collaborator and
// budgets. Returns ErrInvalidConfig if a budget is non-positive.
func NewSynthesizer(completer Completer, config Config, logger *slog.Logger) (*Synthesizer, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: completer cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
	}
	if config.MaxRetries < 1 {
		return nil, fmt.Errorf("%w: max retries must be at least 1", ErrInvalidConfig)
	}
	if config.RepairBudget < 1 {
		return nil, fmt.Errorf("%w: repair budget must be at least 1", ErrInvalidConfig)
	}
	if config.SynthesisTimeout <= 0 {
		return nil, fmt.Errorf("%w: synthesis timeout must be positive", ErrInvalidConfig)
	}

	return &Synthesizer{
		completer: completer,
		config:    config,
		logger:    logger.With("component", "synthesizer"),
	}, nil
}

// Ensure Synthesizer implements the Generator interface
var _ Generator = (*Synthesizer)(nil)

// questionSchema mirrors the JSON shape requested from the collaborator.
type questionSchema struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// quizSchema is the top-level collaborator response.
type quizSchema struct {
	Questions []questionSchema `json:"questions"`
}

// Synthesize implements Generator.Synthesize.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*domain.Quiz, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SynthesisTimeout)
	defer cancel()

	// Generation phase: one collaborator call extracts the salient points
	// and drafts the full quiz.
	if err := s.checkpoint(ctx); err != nil {
		return nil, err
	}

	prompt, err := buildQuizPrompt(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	raw, err := s.completeWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	quiz := s.parseQuiz(ctx, raw)

	// Repair phase: regenerate only the structurally invalid questions,
	// bounded by the repair budget.
	for round := 0; round < s.config.RepairBudget; round++ {
		invalid := invalidQuestionIndexes(quiz)
		if len(invalid) == 0 {
			break
		}

		if err := s.checkpoint(ctx); err != nil {
			return nil, err
		}

		s.logger.InfoContext(ctx, "repairing structurally invalid questions",
			"round", round+1,
			"invalid_count", len(invalid))

		for _, idx := range invalid {
			if err := s.checkpoint(ctx); err != nil {
				return nil, err
			}

			if err := s.repairQuestion(ctx, text, quiz, idx); err != nil {
				return nil, err
			}
		}
	}

	// Validation phase: the quiz must now satisfy every invariant.
	if err := s.checkpoint(ctx); err != nil {
		return nil, err
	}

	if err := quiz.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationExhausted, err)
	}

	s.logger.InfoContext(ctx, "quiz synthesized",
		"question_count", len(quiz.Questions))
	return quiz, nil
}

// parseQuiz decodes the collaborator output into a quiz sized to exactly
// QuizQuestionCount entries. Undecodable output or missing questions leave
// zero-valued slots behind, which the repair loop then regenerates.
func (s *Synthesizer) parseQuiz(ctx context.Context, raw string) *domain.Quiz {
	var schema quizSchema
	if err := json.Unmarshal([]byte(stripFences(raw)), &schema); err != nil {
		s.logger.WarnContext(ctx, "collaborator response is not valid JSON, repairing all questions",
			"error", err)
	}

	questions := make([]domain.Question, domain.QuizQuestionCount)
	for i := 0; i < len(schema.Questions) && i < domain.QuizQuestionCount; i++ {
		questions[i] = domain.Question(schema.Questions[i])
	}

	if n := len(schema.Questions); n != domain.QuizQuestionCount {
		s.logger.WarnContext(ctx, "collaborator returned wrong question count",
			"got", n,
			"want", domain.QuizQuestionCount)
	}

	return &domain.Quiz{Questions: questions}
}

// repairQuestion regenerates the question at idx in place. A replacement
// that is itself invalid is left for the next repair round.
func (s *Synthesizer) repairQuestion(ctx context.Context, text string, quiz *domain.Quiz, idx int) error {
	current := quiz.Questions[idx]

	violation := "missing question"
	if verr := current.Validate(); verr != nil && current.Prompt != "" {
		violation = verr.Error()
	}

	prompt, err := buildRepairPrompt(text, current.Prompt, violation)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	raw, err := s.completeWithRetry(ctx, prompt)
	if err != nil {
		return err
	}

	var schema questionSchema
	if err := json.Unmarshal([]byte(stripFences(raw)), &schema); err != nil {
		s.logger.WarnContext(ctx, "repair response is not valid JSON",
			"question_index", idx,
			"error", err)
		return nil
	}

	replacement := domain.Question(schema)
	if err := replacement.Validate(); err != nil {
		s.logger.WarnContext(ctx, "repair produced an invalid question",
			"question_index", idx,
			"error", err)
		return nil
	}

	quiz.Questions[idx] = replacement
	return nil
}

// completeWithRetry calls the collaborator with exponential backoff, up to
// the configured retry budget. Context expiry stops the retry loop
// immediately.
func (s *Synthesizer) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var out string
	attempt := 0

	operation := func() error {
		attempt++
		text, err := s.completer.Complete(ctx, prompt)
		if err != nil {
			s.logger.WarnContext(ctx, "collaborator call failed",
				"attempt", attempt,
				"max_attempts", s.config.MaxRetries,
				"error", err)
			return err
		}
		out = text
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.config.RetryBaseDelay

	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(s.config.MaxRetries-1)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", classifyContextErr(ctxErr)
		}
		return "", fmt.Errorf("%w: exhausted %d attempts: %v",
			ErrCollaboratorUnavailable, s.config.MaxRetries, err)
	}

	return out, nil
}

// checkpoint reports context expiry at a phase boundary.
func (s *Synthesizer) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return classifyContextErr(err)
	}
	return nil
}

// classifyContextErr maps a context error into the synthesis taxonomy.
// Plain cancellation is passed through untouched so the engine can tell a
// cooperative cancel apart from a blown time budget.
func classifyContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrSynthesisTimeout, err)
	}
	return err
}

// invalidQuestionIndexes returns the indexes of questions that fail
// structural validation, in order.
func invalidQuestionIndexes(quiz *domain.Quiz) []int {
	var invalid []int
	for i := range quiz.Questions {
		if err := quiz.Questions[i].Validate(); err != nil {
			invalid = append(invalid, i)
		}
	}
	return invalid
}

// stripFences removes a wrapping markdown code fence if the collaborator
// ignored the plain-JSON instruction.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
