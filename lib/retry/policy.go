package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/rKV/lib/backend"
)

// --------------------------------------------------------------------------
// Classification
// --------------------------------------------------------------------------

// Class is the retry classification of an error.
type Class uint8

const (
	// NonRetryable failures are surfaced to the caller immediately.
	NonRetryable Class = iota
	// Retryable failures are expected to succeed when tried again.
	Retryable
	// Terminal marks a valid outcome that happens to travel as an error,
	// e.g. "document not found" on a lookup. Like NonRetryable it is
	// returned immediately; callers translate it into a typed result.
	Terminal
)

// Classifier maps an error onto a retry Class. The mapping is backend
// specific and therefore supplied as configuration, not hardcoded: a
// different driver names its transient errors differently and provides its
// own classifier.
type Classifier func(err error) Class

// DefaultClassifier classifies by the backend error kind: timeouts,
// unavailability, internal server errors and network failures are
// retryable, absence is terminal, everything else (including CAS
// mismatches, which are a correctness signal) is non-retryable.
func DefaultClassifier(err error) Class {
	switch backend.KindOf(err) {
	case backend.KindTimeout, backend.KindUnavailable, backend.KindInternal, backend.KindNetwork:
		return Retryable
	case backend.KindNotFound:
		return Terminal
	default:
		return NonRetryable
	}
}

// --------------------------------------------------------------------------
// Policy
// --------------------------------------------------------------------------

// Defaults used when the corresponding Policy field is zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 50 * time.Millisecond
)

// Policy is an error classifying exponential backoff retry policy.
// The zero value is usable: 3 retries, 50ms base delay, DefaultClassifier.
type Policy struct {
	// MaxAttempts is the number of retries after the initial try
	// (3 means up to 4 calls in total).
	MaxAttempts int
	// BaseDelay is the backoff delay before the first retry; it doubles
	// with every further retry.
	BaseDelay time.Duration
	// AttemptTimeout bounds a single attempt. Zero means no per-attempt
	// timeout beyond what the passed context carries.
	AttemptTimeout time.Duration
	// Classify decides retryability. Nil means DefaultClassifier.
	Classify Classifier
}

// NextDelay returns the backoff delay after the given zero-indexed failed
// attempt: BaseDelay * 2^attempt.
func (p Policy) NextDelay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return base << uint(attempt)
}

// Do runs fn until it succeeds, fails non-retryably, or the retry budget is
// exhausted. The backoff delay between attempts honors ctx cancellation, so
// a delayed retry never outlives its caller. On exhaustion the last
// observed error is returned wrapped in an *ExhaustedError.
//
// Note that failed attempts may have had side effects on the backend;
// callers needing idempotence must guard writes with a CAS token.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	classify := p.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	var last error
	for attempt := 0; ; attempt++ {
		err := p.runAttempt(ctx, fn)
		if err == nil {
			return nil
		}
		if classify(err) != Retryable {
			return err
		}
		last = err

		if attempt == maxAttempts {
			return &ExhaustedError{Attempts: attempt + 1, Last: last}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.NextDelay(attempt)):
		}
	}
}

// runAttempt executes fn once under the per-attempt timeout.
func (p Policy) runAttempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(actx)
}

// --------------------------------------------------------------------------
// Exhaustion Error
// --------------------------------------------------------------------------

// ExhaustedError wraps the last transient error after the retry budget is
// used up.
type ExhaustedError struct {
	// Attempts is the total number of calls made (initial try + retries).
	Attempts int
	// Last is the last transient error observed.
	Last error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap exposes the last transient error for errors.Is/As.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
