// Package gen holds the LLM-backed collaborators: requirement extraction,
// test spec generation, test and implementation code generation. Everything
// speaks to the model through the Client interface so tests and offline runs
// can substitute a deterministic stub.
package gen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"claimchain/internal/config"
	"claimchain/internal/logging"
)

// Client is a minimal text-in, text-out LLM surface.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiClient talks to the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: cfg.Timeout,
		log:     logging.For(logging.CategoryGen),
	}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	c.log.Debug("generation complete",
		zap.String("model", c.model),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("response_bytes", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}

// permanentError marks a failure that retrying cannot fix (malformed output,
// rejected prompt). withRetry gives up on these immediately.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so withRetry will not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// transientError forces a retry for failures the classifier would not
// otherwise recognize, such as a one-off undecodable response.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so withRetry will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// retryable reports whether an error class is worth another attempt:
// transient network failures, rate limits, server-side hiccups.
func retryable(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "429", "500", "502", "503", "overloaded", "unavailable", "connection reset"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn up to maxAttempts times with linear backoff, stopping
// early on permanent errors or context cancellation.
func withRetry(ctx context.Context, log *zap.Logger, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts || !retryable(err) {
			break
		}
		backoff := time.Duration(attempt) * 500 * time.Millisecond
		log.Warn("generation attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
