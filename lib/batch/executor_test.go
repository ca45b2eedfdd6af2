package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/backend/memkv"
	"github.com/ValentinKolb/rKV/lib/plancache"
	"github.com/ValentinKolb/rKV/lib/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Microsecond}
}

// verifyIndexCover checks that Succeeded and Failed partition 0..n-1.
func verifyIndexCover(t *testing.T, res BatchResult, n int) {
	t.Helper()
	seen := make(map[int]bool, n)
	for _, r := range res.Succeeded {
		if seen[r.Index] {
			t.Errorf("index %d reported twice", r.Index)
		}
		seen[r.Index] = true
	}
	for _, e := range res.Failed {
		if seen[e.Index] {
			t.Errorf("index %d reported twice", e.Index)
		}
		seen[e.Index] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d reported indices, got %d", n, len(seen))
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			t.Errorf("index %d missing from the result", i)
		}
	}
}

func TestRunMixedBatch(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	if _, err := store.Write(ctx, "existing", []byte("v"), backend.CasNone); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Write(ctx, "doomed", []byte("v"), backend.CasNone); err != nil {
		t.Fatal(err)
	}

	ops := []Operation{
		{Kind: KindGet, Key: "existing"},
		{Kind: KindGet, Key: "missing"},
		{Kind: KindUpsert, Key: "fresh", Value: []byte("f")},
		{Kind: KindInsert, Key: "existing", Value: []byte("x")}, // fails: already exists
		{Kind: KindRemove, Key: "doomed"},
		{Kind: KindRemove, Key: "missing"}, // fails: not found
	}

	res := NewExecutor(store, fastPolicy(), nil, 2).Run(ctx, ops)
	verifyIndexCover(t, res, len(ops))

	if len(res.Failed) != 2 {
		t.Fatalf("expected 2 failed items, got %d: %v", len(res.Failed), res.Failed)
	}
	if res.Failed[0].Index != 3 || !backend.IsKind(res.Failed[0].Err, backend.KindAlreadyExists) {
		t.Errorf("expected index 3 to fail with AlreadyExists, got %v", res.Failed[0])
	}
	if res.Failed[1].Index != 5 || !backend.IsKind(res.Failed[1].Err, backend.KindNotFound) {
		t.Errorf("expected index 5 to fail with NotFound, got %v", res.Failed[1])
	}

	for _, r := range res.Succeeded {
		switch r.Index {
		case 0:
			if !r.Found || string(r.Value) != "v" {
				t.Errorf("index 0: expected found value v, got %+v", r)
			}
		case 1:
			if r.Found {
				t.Errorf("index 1: a missing key must report Found=false, got %+v", r)
			}
		case 2:
			if r.Cas == backend.CasNone {
				t.Errorf("index 2: expected a fresh cas token")
			}
		}
	}

	// the removal took effect, the failed insert did not
	if _, err := store.Fetch(ctx, "doomed"); !backend.IsKind(err, backend.KindNotFound) {
		t.Errorf("expected doomed to be removed, got %v", err)
	}
	doc, err := store.Fetch(ctx, "existing")
	if err != nil || string(doc.Value) != "v" {
		t.Errorf("the failed insert must not have touched existing: %s / %v", doc.Value, err)
	}
}

func TestRunQueries(t *testing.T) {
	store := memkv.New()
	store.RegisterQuery("SELECT $1", func(params backend.Params) (backend.Rows, error) {
		return backend.Rows(params), nil
	})
	plans := plancache.New(store, plancache.Options{})

	ops := []Operation{
		{Kind: KindQuery, Query: plancache.Query{Name: "echo", Version: 1, Statement: "SELECT $1"}, Params: backend.Params{[]byte("a")}},
		{Kind: KindQuery, Query: plancache.Query{Name: "echo", Version: 1, Statement: "SELECT $1"}, Params: backend.Params{[]byte("b")}},
	}
	res := NewExecutor(store, fastPolicy(), plans, 0).Run(context.Background(), ops)
	if !res.OK() {
		t.Fatalf("expected all queries to succeed, got %v", res.Failed)
	}
	for _, r := range res.Succeeded {
		if len(r.Rows) != 1 {
			t.Errorf("index %d: expected 1 row, got %d", r.Index, len(r.Rows))
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()

	// every odd index targets a missing key with Remove and fails; the even
	// siblings must be unaffected
	const n = 20
	ops := make([]Operation, n)
	for i := range ops {
		if i%2 == 0 {
			ops[i] = Operation{Kind: KindUpsert, Key: fmt.Sprintf("k%d", i), Value: []byte("v")}
		} else {
			ops[i] = Operation{Kind: KindRemove, Key: fmt.Sprintf("missing%d", i)}
		}
	}

	res := NewExecutor(store, fastPolicy(), nil, 4).Run(ctx, ops)
	verifyIndexCover(t, res, n)
	if len(res.Failed) != n/2 || len(res.Succeeded) != n/2 {
		t.Fatalf("expected %d/%d split, got %d succeeded / %d failed",
			n/2, n/2, len(res.Succeeded), len(res.Failed))
	}
	for i := 0; i < n; i += 2 {
		if _, err := store.Fetch(ctx, fmt.Sprintf("k%d", i)); err != nil {
			t.Errorf("upsert %d did not take effect: %v", i, err)
		}
	}
}

// slowBackend tracks the peak number of in-flight calls.
type slowBackend struct {
	backend.Backend

	mu       sync.Mutex
	inflight int
	peak     int
}

func (s *slowBackend) Fetch(ctx context.Context, key string) (backend.Document, error) {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.peak {
		s.peak = s.inflight
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
	return s.Backend.Fetch(ctx, key)
}

func TestRunBoundsConcurrency(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		if _, err := store.Write(ctx, fmt.Sprintf("k%d", i), []byte("v"), backend.CasNone); err != nil {
			t.Fatal(err)
		}
	}
	slow := &slowBackend{Backend: store}

	ops := make([]Operation, 8)
	for i := range ops {
		ops[i] = Operation{Kind: KindGet, Key: fmt.Sprintf("k%d", i)}
	}
	res := NewExecutor(slow, fastPolicy(), nil, 2).Run(ctx, ops)
	if !res.OK() {
		t.Fatalf("expected all gets to succeed, got %v", res.Failed)
	}
	if slow.peak > 2 {
		t.Errorf("expected at most 2 concurrent calls, observed %d", slow.peak)
	}
}

func TestRunCancelledContext(t *testing.T) {
	store := memkv.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ops := []Operation{
		{Kind: KindGet, Key: "a"},
		{Kind: KindGet, Key: "b"},
	}
	res := NewExecutor(store, fastPolicy(), nil, 1).Run(ctx, ops)
	verifyIndexCover(t, res, len(ops))
	if res.OK() {
		t.Error("expected items of a cancelled batch to fail")
	}
}
