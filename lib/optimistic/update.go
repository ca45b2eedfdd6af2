package optimistic

import (
	"context"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/retry"
)

// DefaultMaxCycles bounds the conflict re-run loop of UpdateWithRetry.
const DefaultMaxCycles = 3

// --------------------------------------------------------------------------
// Result Types
// --------------------------------------------------------------------------

// Status is the terminal state of an update cycle.
type Status uint8

const (
	// Committed means the CAS-guarded write succeeded.
	Committed Status = iota
	// Conflict means another writer won the race for this token generation.
	Conflict
	// Absent means the document does not exist; the caller decides whether
	// to create it.
	Absent
	// Failed means a fault other than a CAS conflict stopped the cycle.
	Failed
)

func (s Status) String() string {
	switch s {
	case Committed:
		return "committed"
	case Conflict:
		return "conflict"
	case Absent:
		return "absent"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of an update cycle. Value and Cas are only set for
// Committed results.
type Result struct {
	Status Status
	Value  []byte
	Cas    backend.CasToken
}

// MutateFunc transforms the fetched value into the value to write. It must
// be pure: no I/O, no retained references to the input. It is re-invoked
// with a freshly fetched value on every conflict re-run.
type MutateFunc func(current []byte) ([]byte, error)

// --------------------------------------------------------------------------
// Update Protocol
// --------------------------------------------------------------------------

// Update runs a single Fetch -> Mutate -> CasWrite cycle on a key.
//
// Transient faults during Fetch or CasWrite are retried per the policy. A
// CAS mismatch is a correctness signal, not a transient fault: it is never
// retried here and surfaces as a Conflict result (with a nil error), so the
// caller can decide whether to re-run the whole cycle. A document removed
// between Fetch and CasWrite also counts as Conflict since another writer
// won that token generation.
func Update(ctx context.Context, be backend.Backend, policy retry.Policy, key string, mutate MutateFunc) (Result, error) {
	// Fetch
	var doc backend.Document
	err := policy.Do(ctx, func(ctx context.Context) error {
		d, err := be.Fetch(ctx, key)
		doc = d
		return err
	})
	if backend.IsKind(err, backend.KindNotFound) {
		return Result{Status: Absent}, nil
	}
	if err != nil {
		return Result{Status: Failed}, err
	}

	// Mutate
	next, err := mutate(doc.Value)
	if err != nil {
		return Result{Status: Failed}, err
	}

	// CasWrite, guarded by the token observed during Fetch. A conflict
	// must never re-send the stale token; re-running starts at Fetch.
	var newCas backend.CasToken
	err = policy.Do(ctx, func(ctx context.Context) error {
		cas, err := be.Write(ctx, key, next, doc.Cas)
		newCas = cas
		return err
	})
	switch {
	case err == nil:
		return Result{Status: Committed, Value: next, Cas: newCas}, nil
	case backend.IsKind(err, backend.KindCasMismatch), backend.IsKind(err, backend.KindNotFound):
		return Result{Status: Conflict}, nil
	default:
		return Result{Status: Failed}, err
	}
}

// UpdateWithRetry re-runs the full Fetch -> Mutate -> CasWrite cycle on
// Conflict, up to maxCycles times (DefaultMaxCycles if <= 0). The bound
// avoids unbounded livelock under contention; once it is reached the last
// Conflict result is returned and the caller decides how to proceed.
func UpdateWithRetry(ctx context.Context, be backend.Backend, policy retry.Policy, key string, mutate MutateFunc, maxCycles int) (Result, error) {
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}

	var res Result
	var err error
	for cycle := 0; cycle < maxCycles; cycle++ {
		res, err = Update(ctx, be, policy, key, mutate)
		if err != nil || res.Status != Conflict {
			return res, err
		}
	}
	return res, err
}
