package generation

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/quizsmith/quizsmith-api/internal/domain"
)

// quizPromptTemplate asks the collaborator for the full quiz in strict JSON.
// The instruction set mirrors the assessment-expert register the product
// uses: exactly ten MCQs, four options labeled by position, one correct
// answer, a one-sentence explanation per question.
const quizPromptTemplate = `You are a professional teacher and educational assessment expert.
Generate a quiz based on the source text below.

Requirements:
1. Create exactly {{.QuestionCount}} multiple choice questions covering the most salient learning points of the text, ordered from most to least salient. If the text has fewer distinct points, reuse facts under distinct framings so the quiz still has exactly {{.QuestionCount}} questions.
2. Each question has exactly {{.OptionCount}} options. The three incorrect options must be topically plausible but unambiguously wrong.
3. Exactly one option is correct.
4. Provide a one-sentence explanation of why the correct option is right.
5. Keep the language clear and academic.

Respond with JSON only, no markdown fences, matching this schema exactly:
{"questions":[{"prompt":"...","options":["...","...","...","..."],"correct_index":0,"explanation":"..."}]}

Source text:
{{.SourceText}}`

// repairPromptTemplate regenerates a single structurally invalid question.
const repairPromptTemplate = `You are a professional teacher and educational assessment expert.
A previously generated quiz question about the source text below was structurally invalid ({{.Violation}}).
Generate one replacement multiple choice question about this learning point: {{.Topic}}

Requirements:
1. Exactly {{.OptionCount}} options, all distinct, three plausible but unambiguously wrong.
2. Exactly one correct option.
3. A one-sentence explanation of why the correct option is right.

Respond with JSON only, no markdown fences, matching this schema exactly:
{"prompt":"...","options":["...","...","...","..."],"correct_index":0,"explanation":"..."}

Source text:
{{.SourceText}}`

var (
	quizPrompt   = template.Must(template.New("quiz").Parse(quizPromptTemplate))
	repairPrompt = template.Must(template.New("repair").Parse(repairPromptTemplate))
)

// quizPromptData carries the values rendered into quizPromptTemplate.
type quizPromptData struct {
	QuestionCount int
	OptionCount   int
	SourceText    string
}

// repairPromptData carries the values rendered into repairPromptTemplate.
type repairPromptData struct {
	OptionCount int
	Violation   string
	Topic       string
	SourceText  string
}

// buildQuizPrompt renders the full-quiz generation prompt for the given
// source text.
func buildQuizPrompt(text string) (string, error) {
	var buf bytes.Buffer
	err := quizPrompt.Execute(&buf, quizPromptData{
		QuestionCount: domain.QuizQuestionCount,
		OptionCount:   domain.QuestionOptionCount,
		SourceText:    text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute quiz prompt template: %w", err)
	}
	return buf.String(), nil
}

// buildRepairPrompt renders the single-question regeneration prompt. topic
// is the offending question's prompt when available, so the replacement
// stays on the same learning point.
func buildRepairPrompt(text, topic, violation string) (string, error) {
	if topic == "" {
		topic = "one additional salient fact from the source text"
	}

	var buf bytes.Buffer
	err := repairPrompt.Execute(&buf, repairPromptData{
		OptionCount: domain.QuestionOptionCount,
		Violation:   violation,
		Topic:       topic,
		SourceText:  text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute repair prompt template: %w", err)
	}
	return buf.String(), nil
}
