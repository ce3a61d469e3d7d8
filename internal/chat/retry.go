package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetryConfig configures the retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for Gemini API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category.
// Matched case-insensitively against err.Error().
//
// NOTE: This uses string matching because the genai SDK does not expose
// typed errors for transient failures. Re-evaluate if a future version
// adds structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "resource_exhausted", "429"}, // rate limiting
	{"500", "502", "503", "504", "unavailable"},                   // transient server errors
	{"connection reset", "timeout", "temporary"},                  // network errors
}

// retryableError reports whether err is transient and should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// Retry wraps a Generator with exponential backoff on transient errors.
//
// A streamed call is only retried while nothing has been emitted yet:
// once text reached the caller, replaying the request would duplicate
// output, so the error is returned as-is.
type Retry struct {
	gen    Generator
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetry creates a retrying Generator. logger may be nil.
func NewRetry(gen Generator, cfg RetryConfig, logger *slog.Logger) *Retry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retry{gen: gen, cfg: cfg, logger: logger}
}

func (r *Retry) Generate(ctx context.Context, model string, turns []Turn, tools []ToolDef, emit func(text string)) (*Reply, error) {
	var lastErr error
	delay := r.cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		emitted := false
		reply, err := r.gen.Generate(ctx, model, turns, tools, func(text string) {
			emitted = true
			emit(text)
		})
		if err == nil {
			return reply, nil
		}

		lastErr = err

		if emitted || !retryableError(err) {
			return nil, err
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		r.logger.Debug("retrying after error",
			"attempt", attempt+1,
			"delay", delay,
			"elapsed", time.Since(start),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, r.cfg.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		r.cfg.MaxRetries, time.Since(start), lastErr)
}
