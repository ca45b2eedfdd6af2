package plancache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/backend/memkv"
)

// countingBackend wraps a backend and counts plan-related calls.
type countingBackend struct {
	backend.Backend

	mu       sync.Mutex
	prepares int
	executes int
}

func (c *countingBackend) Prepare(ctx context.Context, statement string) (backend.PlanHandle, error) {
	c.mu.Lock()
	c.prepares++
	c.mu.Unlock()
	return c.Backend.Prepare(ctx, statement)
}

func (c *countingBackend) ExecutePlan(ctx context.Context, plan backend.PlanHandle, params backend.Params) (backend.Rows, error) {
	c.mu.Lock()
	c.executes++
	c.mu.Unlock()
	return c.Backend.ExecutePlan(ctx, plan, params)
}

const echoStmt = "SELECT $1"

// newEchoStore returns a memkv store with a statement that echoes its
// parameters back as rows.
func newEchoStore() *memkv.Store {
	store := memkv.New()
	store.RegisterQuery(echoStmt, func(params backend.Params) (backend.Rows, error) {
		return backend.Rows(params), nil
	})
	return store
}

func TestExecutePreparesOnceAndReuses(t *testing.T) {
	counting := &countingBackend{Backend: newEchoStore()}
	cache := New(counting, Options{})
	q := Query{Name: "echo", Version: 1, Statement: echoStmt}

	for i := 0; i < 3; i++ {
		rows, err := cache.Execute(context.Background(), q, backend.Params{[]byte("x")})
		if err != nil {
			t.Fatalf("execution %d failed: %v", i, err)
		}
		if len(rows) != 1 || string(rows[0]) != "x" {
			t.Fatalf("execution %d: unexpected rows %v", i, rows)
		}
	}
	if counting.prepares != 1 {
		t.Errorf("expected 1 prepare, got %d", counting.prepares)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cached plan, got %d", cache.Len())
	}
}

// TestExecuteRecoversFromServerEviction runs the same query five times with
// a server-side plan drop in the middle. Every execution must succeed and
// the statement must be compiled exactly twice.
func TestExecuteRecoversFromServerEviction(t *testing.T) {
	store := newEchoStore()
	counting := &countingBackend{Backend: store}
	cache := New(counting, Options{})
	q := Query{Name: "echo", Version: 1, Statement: echoStmt}

	for i := 0; i < 5; i++ {
		if i == 2 {
			store.DropPlans()
		}
		rows, err := cache.Execute(context.Background(), q, backend.Params{[]byte("x")})
		if err != nil {
			t.Fatalf("execution %d failed: %v", i, err)
		}
		if len(rows) != 1 || string(rows[0]) != "x" {
			t.Fatalf("execution %d: unexpected rows %v", i, rows)
		}
	}
	if counting.prepares != 2 {
		t.Errorf("expected 2 prepares (initial + recompile), got %d", counting.prepares)
	}
}

// rejectingBackend issues plans but never accepts them back.
type rejectingBackend struct {
	*memkv.Store
	executes int
}

func (r *rejectingBackend) ExecutePlan(ctx context.Context, plan backend.PlanHandle, params backend.Params) (backend.Rows, error) {
	r.executes++
	return nil, backend.Errorf(backend.KindPlanUnknown, "plan %q not found", plan)
}

func TestExecuteRecompilesExactlyOnce(t *testing.T) {
	rejecting := &rejectingBackend{Store: newEchoStore()}
	cache := New(rejecting, Options{})
	q := Query{Name: "echo", Version: 1, Statement: echoStmt}

	_, err := cache.Execute(context.Background(), q, nil)
	if !backend.IsKind(err, backend.KindPlanUnknown) {
		t.Errorf("expected the second rejection to surface, got %v", err)
	}
	if rejecting.executes != 2 {
		t.Errorf("expected exactly 2 execution attempts, got %d", rejecting.executes)
	}
}

func TestExecuteSurfacesParseError(t *testing.T) {
	cache := New(newEchoStore(), Options{})
	q := Query{Name: "bogus", Version: 1, Statement: "SELEC typo"}

	_, err := cache.Execute(context.Background(), q, nil)
	if !backend.IsKind(err, backend.KindParse) {
		t.Errorf("expected a parse error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("a failed compilation must not be cached, got %d entries", cache.Len())
	}
}

func TestCacheKeyCoversStatementText(t *testing.T) {
	store := newEchoStore()
	store.RegisterQuery("SELECT $1, $2", func(params backend.Params) (backend.Rows, error) {
		return backend.Rows(params), nil
	})
	counting := &countingBackend{Backend: store}
	cache := New(counting, Options{})

	// same name and version, changed statement: must compile a fresh plan
	if _, err := cache.Execute(context.Background(), Query{Name: "q", Version: 1, Statement: echoStmt}, backend.Params{[]byte("x")}); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Execute(context.Background(), Query{Name: "q", Version: 1, Statement: "SELECT $1, $2"}, backend.Params{[]byte("x"), []byte("y")}); err != nil {
		t.Fatal(err)
	}
	if counting.prepares != 2 {
		t.Errorf("expected 2 prepares for 2 distinct statements, got %d", counting.prepares)
	}

	// whitespace differences must not produce distinct cache entries
	if _, err := cache.Execute(context.Background(), Query{Name: "q", Version: 1, Statement: "  SELECT\n\t$1  "}, backend.Params{[]byte("x")}); err != nil {
		t.Fatal(err)
	}
	if counting.prepares != 2 {
		t.Errorf("expected the normalized statement to hit the cache, got %d prepares", counting.prepares)
	}
}

func TestEvictionIsOldestFirst(t *testing.T) {
	store := newEchoStore()
	for i := 0; i < 3; i++ {
		store.RegisterQuery(fmt.Sprintf("SELECT %d", i), func(params backend.Params) (backend.Rows, error) {
			return nil, nil
		})
	}
	counting := &countingBackend{Backend: store}
	cache := New(counting, Options{MaxEntries: 2})

	for i := 0; i < 3; i++ {
		q := Query{Name: fmt.Sprintf("q%d", i), Version: 1, Statement: fmt.Sprintf("SELECT %d", i)}
		if _, err := cache.Execute(context.Background(), q, nil); err != nil {
			t.Fatal(err)
		}
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 cached plans after eviction, got %d", cache.Len())
	}

	// the first-admitted plan was evicted, so running it again recompiles
	prepares := counting.prepares
	if _, err := cache.Execute(context.Background(), Query{Name: "q0", Version: 1, Statement: "SELECT 0"}, nil); err != nil {
		t.Fatal(err)
	}
	if counting.prepares != prepares+1 {
		t.Errorf("expected the evicted plan to be recompiled, prepares went %d -> %d", prepares, counting.prepares)
	}
}
