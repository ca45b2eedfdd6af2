package optimistic

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/backend/memkv"
	"github.com/ValentinKolb/rKV/lib/retry"
)

// flakyBackend wraps a backend and injects errors before selected calls.
type flakyBackend struct {
	backend.Backend

	mu          sync.Mutex
	fetchErrs   []error
	writeErrs   []error
	fetchCalls  int
	writeCalls  int
	writtenCas  []backend.CasToken
	interceptWr func(cas backend.CasToken)
}

func (f *flakyBackend) Fetch(ctx context.Context, key string) (backend.Document, error) {
	f.mu.Lock()
	f.fetchCalls++
	var err error
	if len(f.fetchErrs) > 0 {
		err, f.fetchErrs = f.fetchErrs[0], f.fetchErrs[1:]
	}
	f.mu.Unlock()
	if err != nil {
		return backend.Document{}, err
	}
	return f.Backend.Fetch(ctx, key)
}

func (f *flakyBackend) Write(ctx context.Context, key string, value []byte, cas backend.CasToken) (backend.CasToken, error) {
	f.mu.Lock()
	f.writeCalls++
	f.writtenCas = append(f.writtenCas, cas)
	var err error
	if len(f.writeErrs) > 0 {
		err, f.writeErrs = f.writeErrs[0], f.writeErrs[1:]
	}
	intercept := f.interceptWr
	f.mu.Unlock()
	if err != nil {
		return backend.CasNone, err
	}
	if intercept != nil {
		intercept(cas)
	}
	return f.Backend.Write(ctx, key, value, cas)
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Microsecond}
}

func TestUpdateCommits(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	if _, err := store.Write(ctx, "doc1", []byte("a"), backend.CasNone); err != nil {
		t.Fatal(err)
	}

	res, err := Update(ctx, store, fastPolicy(), "doc1", func(current []byte) ([]byte, error) {
		return append(append([]byte{}, current...), 'b'), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != Committed {
		t.Fatalf("expected Committed, got %v", res.Status)
	}
	if !bytes.Equal(res.Value, []byte("ab")) {
		t.Errorf("expected value %q, got %q", "ab", res.Value)
	}

	doc, err := store.Fetch(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Cas != res.Cas {
		t.Errorf("expected the new cas token %d, got %d", res.Cas, doc.Cas)
	}
}

func TestUpdateAbsent(t *testing.T) {
	res, err := Update(context.Background(), memkv.New(), fastPolicy(), "missing", func(current []byte) ([]byte, error) {
		t.Error("mutate must not run for an absent document")
		return current, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != Absent {
		t.Errorf("expected Absent, got %v", res.Status)
	}
}

func TestUpdateRetriesTransientFetch(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	if _, err := store.Write(ctx, "doc1", []byte("a"), backend.CasNone); err != nil {
		t.Fatal(err)
	}

	flaky := &flakyBackend{
		Backend:   store,
		fetchErrs: []error{backend.NewError(backend.KindUnavailable, "down")},
	}
	res, err := Update(ctx, flaky, fastPolicy(), "doc1", func(current []byte) ([]byte, error) {
		return []byte("b"), nil
	})
	if err != nil || res.Status != Committed {
		t.Fatalf("expected Committed, got %v / %v", res.Status, err)
	}
	if flaky.fetchCalls != 2 {
		t.Errorf("expected 2 fetch calls, got %d", flaky.fetchCalls)
	}
}

func TestUpdateConflictIsNotRetriedWithStaleToken(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	if _, err := store.Write(ctx, "doc1", []byte("a"), backend.CasNone); err != nil {
		t.Fatal(err)
	}

	// a competing writer sneaks in between Fetch and CasWrite
	raced := false
	flaky := &flakyBackend{Backend: store}
	flaky.interceptWr = func(cas backend.CasToken) {
		if !raced {
			raced = true
			if _, err := store.Write(ctx, "doc1", []byte("intruder"), backend.CasNone); err != nil {
				t.Fatal(err)
			}
		}
	}

	res, err := Update(ctx, flaky, fastPolicy(), "doc1", func(current []byte) ([]byte, error) {
		return []byte("b"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != Conflict {
		t.Fatalf("expected Conflict, got %v", res.Status)
	}
	// the stale token must have been sent exactly once
	if flaky.writeCalls != 1 {
		t.Errorf("expected 1 write call, got %d", flaky.writeCalls)
	}
}

func TestUpdateWithRetryResolvesConflict(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	if _, err := store.Write(ctx, "doc1", []byte("a"), backend.CasNone); err != nil {
		t.Fatal(err)
	}

	raced := false
	flaky := &flakyBackend{Backend: store}
	flaky.interceptWr = func(cas backend.CasToken) {
		if !raced {
			raced = true
			if _, err := store.Write(ctx, "doc1", []byte("intruder"), backend.CasNone); err != nil {
				t.Fatal(err)
			}
		}
	}

	res, err := UpdateWithRetry(ctx, flaky, fastPolicy(), "doc1", func(current []byte) ([]byte, error) {
		return append(append([]byte{}, current...), '!'), nil
	}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != Committed {
		t.Fatalf("expected Committed after conflict re-run, got %v", res.Status)
	}
	// the re-run mutated the intruder's value, not the originally fetched one
	if !bytes.Equal(res.Value, []byte("intruder!")) {
		t.Errorf("expected %q, got %q", "intruder!", res.Value)
	}
	// every write attempt used a token from its own fresh fetch
	if len(flaky.writtenCas) != 2 || flaky.writtenCas[0] == flaky.writtenCas[1] {
		t.Errorf("expected two distinct tokens, got %v", flaky.writtenCas)
	}
}

func TestUpdateWithRetryBoundsConflictCycles(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	if _, err := store.Write(ctx, "doc1", []byte("a"), backend.CasNone); err != nil {
		t.Fatal(err)
	}

	// a competitor that always wins
	flaky := &flakyBackend{Backend: store}
	flaky.interceptWr = func(cas backend.CasToken) {
		if _, err := store.Write(ctx, "doc1", []byte("intruder"), backend.CasNone); err != nil {
			t.Fatal(err)
		}
	}

	res, err := UpdateWithRetry(ctx, flaky, fastPolicy(), "doc1", func(current []byte) ([]byte, error) {
		return []byte("b"), nil
	}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != Conflict {
		t.Fatalf("expected Conflict after exhausting cycles, got %v", res.Status)
	}
	if flaky.writeCalls != 3 {
		t.Errorf("expected 3 cycles, got %d write calls", flaky.writeCalls)
	}
}

func TestUpdateSurfacesExhaustion(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	if _, err := store.Write(ctx, "doc1", []byte("a"), backend.CasNone); err != nil {
		t.Fatal(err)
	}

	down := backend.NewError(backend.KindUnavailable, "down")
	flaky := &flakyBackend{
		Backend:   store,
		fetchErrs: []error{down, down, down, down},
	}
	res, err := Update(ctx, flaky, fastPolicy(), "doc1", func(current []byte) ([]byte, error) {
		return current, nil
	})
	if res.Status != Failed {
		t.Errorf("expected Failed, got %v", res.Status)
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Errorf("expected *retry.ExhaustedError, got %v", err)
	}
}

// TestConcurrentIncrements verifies there is no lost update: two concurrent
// counter increments starting from 0 always end at 2, never 1.
func TestConcurrentIncrements(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	if _, err := store.Write(ctx, "counter", []byte("0"), backend.CasNone); err != nil {
		t.Fatal(err)
	}

	increment := func(current []byte) ([]byte, error) {
		n, err := strconv.ParseInt(string(current), 10, 64)
		if err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(n+1, 10)), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := UpdateWithRetry(ctx, store, fastPolicy(), "counter", increment, 10)
			if err != nil || res.Status != Committed {
				t.Errorf("increment did not commit: %v / %v", res.Status, err)
			}
		}()
	}
	wg.Wait()

	doc, err := store.Fetch(ctx, "counter")
	if err != nil {
		t.Fatal(err)
	}
	if string(doc.Value) != "2" {
		t.Errorf("expected counter 2, got %s", doc.Value)
	}
}
