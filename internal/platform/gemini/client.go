package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quizsmith/quizsmith-api/internal/generation"
	"google.golang.org/genai"
)

// Client implements the generation.Completer interface using Google's
// Gemini API.
type Client struct {
	client      *genai.Client
	model       string
	callTimeout time.Duration
	logger      *slog.Logger
}

// Config holds the collaborator's settings.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model is the model name to use, e.g. "gemini-2.0-flash".
	Model string

	// CallTimeout bounds a single completion call. If zero, a 60s default
	// applies.
	CallTimeout time.Duration
}

// NewClient creates a Gemini-backed completer.
func NewClient(ctx context.Context, config Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Client{
		client:      client,
		model:       config.Model,
		callTimeout: config.CallTimeout,
		logger:      logger.With("component", "gemini"),
	}, nil
}

// Ensure Client implements the Completer interface
var _ generation.Completer = (*Client)(nil)

// Complete implements generation.Completer.Complete. It requests a JSON
// response from the configured model and returns the raw completion text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", errors.New("prompt cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	c.logger.DebugContext(ctx, "calling Gemini API",
		"model", c.model,
		"prompt_length", len(prompt))

	resp, err := c.client.Models.GenerateContent(
		ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", errors.New("gemini blocked content by safety filters")
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("gemini returned empty content")
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned no text parts")
	}

	c.logger.DebugContext(ctx, "Gemini API call successful",
		"response_length", len(text))

	return text, nil
}
