package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/backend"
)

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Class
	}{
		{"timeout", backend.NewError(backend.KindTimeout, "t"), Retryable},
		{"unavailable", backend.NewError(backend.KindUnavailable, "u"), Retryable},
		{"internal", backend.NewError(backend.KindInternal, "i"), Retryable},
		{"network", backend.NewError(backend.KindNetwork, "n"), Retryable},
		{"not found", backend.NewError(backend.KindNotFound, "nf"), Terminal},
		{"cas mismatch", backend.NewError(backend.KindCasMismatch, "c"), NonRetryable},
		{"parse", backend.NewError(backend.KindParse, "p"), NonRetryable},
		{"auth", backend.NewError(backend.KindAuth, "a"), NonRetryable},
		{"invalid argument", backend.NewError(backend.KindInvalidArgument, "ia"), NonRetryable},
		{"plain error", errors.New("boom"), NonRetryable},
		{"deadline", context.DeadlineExceeded, Retryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassifier(tt.err); got != tt.expected {
				t.Errorf("DefaultClassifier(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestNextDelay(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond}
	for n, expected := range []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	} {
		if got := p.NextDelay(n); got != expected {
			t.Errorf("NextDelay(%d) = %v, want %v", n, got, expected)
		}
	}
}

func TestDoRecoversFromTransientErrors(t *testing.T) {
	// for every failure count below the budget, the operation must succeed
	// with exactly failures+1 calls
	for failures := 0; failures < 3; failures++ {
		p := Policy{MaxAttempts: 3, BaseDelay: time.Microsecond}
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls <= failures {
				return backend.NewError(backend.KindUnavailable, "try again")
			}
			return nil
		})
		if err != nil {
			t.Errorf("failures=%d: unexpected error: %v", failures, err)
		}
		if calls != failures+1 {
			t.Errorf("failures=%d: expected %d calls, got %d", failures, failures+1, calls)
		}
	}
}

func TestDoDoesNotRetryNonRetryable(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour} // a retry would hang the test
	calls := 0
	start := time.Now()
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return backend.NewError(backend.KindParse, "bad statement")
	})
	if !backend.IsKind(err, backend.KindParse) {
		t.Errorf("expected the parse error to surface, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
	if time.Since(start) > time.Second {
		t.Errorf("non-retryable failure must not incur a backoff delay")
	}
}

func TestDoDoesNotRetryTerminalAbsence(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return backend.NewError(backend.KindNotFound, "no such document")
	})
	if !backend.IsKind(err, backend.KindNotFound) {
		t.Errorf("expected the absence to surface, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
}

func TestDoExhaustion(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Microsecond}
	calls := 0
	last := backend.NewError(backend.KindTimeout, "still down")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return last
	})

	if calls != 4 { // 1 initial try + 3 retries
		t.Errorf("expected 4 calls, got %d", calls)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("expected Attempts=4, got %d", exhausted.Attempts)
	}
	// the last transient error must remain reachable through the wrapper
	if !backend.IsKind(err, backend.KindTimeout) {
		t.Errorf("expected the wrapped error kind to be visible, got %v", err)
	}
}

func TestDoHonorsCancellationDuringBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(ctx context.Context) error {
			calls++
			return backend.NewError(backend.KindUnavailable, "down")
		})
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected no further attempts after cancellation, got %d calls", calls)
	}
}

func TestDoAppliesAttemptTimeout(t *testing.T) {
	p := Policy{MaxAttempts: 1, BaseDelay: time.Microsecond, AttemptTimeout: 10 * time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done() // simulates an attempt blocked on I/O
		return ctx.Err()
	})

	// the deadline classifies as a transient timeout and is retried until
	// the budget is exhausted
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
