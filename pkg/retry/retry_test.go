package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_DefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseBackoff != 500*time.Millisecond {
		t.Errorf("expected BaseBackoff=500ms, got %v", cfg.BaseBackoff)
	}
	if cfg.MaxBackoff != 5*time.Second {
		t.Errorf("expected MaxBackoff=5s, got %v", cfg.MaxBackoff)
	}
}

func TestRetry_Do_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_Do_SuccessAfterRetries(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  100 * time.Millisecond,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_Do_NonRetryableStopsEarly(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  100 * time.Millisecond,
	}

	sentinel := errors.New("syntax error")
	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_Do_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MaxAttempts: 3,
		BaseBackoff: 5 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_Do_ContextCancelled(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MaxAttempts: 5,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, cfg, func() error {
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetry_IsRetryable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"postgres starting up", errors.New("FATAL: the database system is starting up"), true},
		{"too many clients", errors.New("FATAL: sorry, too many clients already"), true},
		{"syntax error", errors.New("ERROR: syntax error at or near"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
