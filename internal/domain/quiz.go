package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Structural constants for a generated quiz.
const (
	// QuizQuestionCount is the exact number of questions a quiz must contain.
	QuizQuestionCount = 10

	// QuestionOptionCount is the exact number of options per question.
	QuestionOptionCount = 4
)

// Quiz-specific validation errors
var (
	ErrQuizQuestionCount = fmt.Errorf(
		"quiz must contain exactly %d questions", QuizQuestionCount,
	)
	ErrQuestionPromptEmpty      = errors.New("question prompt cannot be empty")
	ErrQuestionOptionCount      = fmt.Errorf("question must have exactly %d options", QuestionOptionCount)
	ErrQuestionOptionEmpty      = errors.New("question options cannot be empty")
	ErrQuestionOptionDuplicate  = errors.New("question options must be distinct")
	ErrQuestionCorrectIndex     = errors.New("question correct index out of range")
	ErrQuestionExplanationEmpty = errors.New("question explanation cannot be empty")
)

// Question is a single multiple-choice question. Options are labeled A-D by
// position and exactly one, referenced by CorrectIndex, is correct.
type Question struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// Quiz is the synthesis artifact produced for a completed task. Question
// order matches extraction rank and is preserved.
type Quiz struct {
	Questions []Question `json:"questions"`
}

// Validate checks the structural invariants of a single question: non-empty
// prompt, exactly four distinct non-empty options (case-insensitive compare),
// an in-range correct index and a non-empty explanation.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return ErrQuestionPromptEmpty
	}

	if len(q.Options) != QuestionOptionCount {
		return ErrQuestionOptionCount
	}

	seen := make(map[string]struct{}, QuestionOptionCount)
	for _, option := range q.Options {
		if strings.TrimSpace(option) == "" {
			return ErrQuestionOptionEmpty
		}

		key := strings.ToLower(strings.TrimSpace(option))
		if _, dup := seen[key]; dup {
			return ErrQuestionOptionDuplicate
		}
		seen[key] = struct{}{}
	}

	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ErrQuestionCorrectIndex
	}

	if strings.TrimSpace(q.Explanation) == "" {
		return ErrQuestionExplanationEmpty
	}

	return nil
}

// Validate checks the structural invariants of the quiz: exactly ten
// questions, each individually valid. The first violation is returned with
// the offending question index.
func (z *Quiz) Validate() error {
	if len(z.Questions) != QuizQuestionCount {
		return fmt.Errorf("%w: got %d", ErrQuizQuestionCount, len(z.Questions))
	}

	for i := range z.Questions {
		if err := z.Questions[i].Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}

	return nil
}

// Clone returns a deep copy of the quiz.
func (z *Quiz) Clone() *Quiz {
	clone := &Quiz{Questions: make([]Question, len(z.Questions))}
	for i, q := range z.Questions {
		options := make([]string, len(q.Options))
		copy(options, q.Options)
		q.Options = options
		clone.Questions[i] = q
	}
	return clone
}
