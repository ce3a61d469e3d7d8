package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koopa0/relay/internal/testutil"
)

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()

	if cfg.MaxRetries <= 0 {
		t.Errorf("MaxRetries should be positive, got %d", cfg.MaxRetries)
	}
	if cfg.InitialInterval <= 0 {
		t.Errorf("InitialInterval should be positive, got %v", cfg.InitialInterval)
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		t.Error("MaxInterval should be >= InitialInterval")
	}
}

func TestRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "rate limit", err: errors.New("rate limit exceeded"), want: true},
		{name: "quota", err: errors.New("quota exceeded for project"), want: true},
		{name: "429 status", err: errors.New("HTTP 429: Too Many Requests"), want: true},
		{name: "resource exhausted", err: errors.New("rpc error: code = RESOURCE_EXHAUSTED"), want: true},
		{name: "503 unavailable", err: errors.New("503 Service Unavailable"), want: true},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: true},
		{name: "invalid argument", err: errors.New("invalid argument: unknown model"), want: false},
		{name: "auth failure", err: errors.New("API key not valid"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// flakyGen fails with err for the first failures calls, then succeeds.
type flakyGen struct {
	failures int
	err      error
	calls    int
	emitText string
}

func (g *flakyGen) Generate(ctx context.Context, model string, turns []Turn, tools []ToolDef, emit func(string)) (*Reply, error) {
	g.calls++
	if g.emitText != "" {
		emit(g.emitText)
	}
	if g.calls <= g.failures {
		return nil, g.err
	}
	return &Reply{Text: "ok"}, nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	gen := &flakyGen{failures: 2, err: errors.New("503 Service Unavailable")}
	r := NewRetry(gen, fastRetryConfig(), testutil.DiscardLogger())

	reply, err := r.Generate(context.Background(), "m", nil, nil, func(string) {})
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if reply.Text != "ok" {
		t.Errorf("reply.Text = %q, want %q", reply.Text, "ok")
	}
	if gen.calls != 3 {
		t.Errorf("generator called %d times, want 3", gen.calls)
	}
}

func TestRetry_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	genErr := errors.New("API key not valid")
	gen := &flakyGen{failures: 10, err: genErr}
	r := NewRetry(gen, fastRetryConfig(), testutil.DiscardLogger())

	_, err := r.Generate(context.Background(), "m", nil, nil, func(string) {})
	if !errors.Is(err, genErr) {
		t.Fatalf("Generate() error = %v, want %v", err, genErr)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
}

func TestRetry_NoRetryAfterEmission(t *testing.T) {
	t.Parallel()

	gen := &flakyGen{failures: 10, err: errors.New("connection reset"), emitText: "partial"}
	r := NewRetry(gen, fastRetryConfig(), testutil.DiscardLogger())

	var got []string
	_, err := r.Generate(context.Background(), "m", nil, nil, func(s string) { got = append(got, s) })
	if err == nil {
		t.Fatal("Generate() expected error after partial emission")
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1 (no replay after output)", gen.calls)
	}
	if len(got) != 1 {
		t.Errorf("emitted %d chunks, want 1", len(got))
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	genErr := errors.New("HTTP 429: Too Many Requests")
	gen := &flakyGen{failures: 10, err: genErr}
	r := NewRetry(gen, fastRetryConfig(), testutil.DiscardLogger())

	_, err := r.Generate(context.Background(), "m", nil, nil, func(string) {})
	if !errors.Is(err, genErr) {
		t.Fatalf("Generate() error = %v, want wrapped %v", err, genErr)
	}
	if gen.calls != 4 {
		t.Errorf("generator called %d times, want 4 (1 + 3 retries)", gen.calls)
	}
}

func TestRetry_ContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	gen := &flakyGen{failures: 10, err: errors.New("503 Service Unavailable")}
	cfg := RetryConfig{MaxRetries: 3, InitialInterval: time.Hour, MaxInterval: time.Hour}
	r := NewRetry(gen, cfg, testutil.DiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Generate(ctx, "m", nil, nil, func(string) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate() error = %v, want context.Canceled", err)
	}
}
