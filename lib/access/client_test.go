package access

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/backend/memkv"
	"github.com/ValentinKolb/rKV/lib/batch"
	"github.com/ValentinKolb/rKV/lib/optimistic"
	"github.com/ValentinKolb/rKV/lib/plancache"
	"github.com/ValentinKolb/rKV/lib/retry"
)

func newTestClient(store *memkv.Store, opts Options) *Client {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Microsecond}
	}
	return New(store, plancache.New(store, plancache.Options{}), nil, opts)
}

func TestDocumentLifecycle(t *testing.T) {
	client := newTestClient(memkv.New(), Options{})
	ctx := context.Background()

	// absent
	_, found, err := client.Get(ctx, "user:1")
	if err != nil || found {
		t.Fatalf("expected a clean miss, got found=%v err=%v", found, err)
	}

	// insert, then insert again must fail
	cas, err := client.Insert(ctx, "user:1", []byte("alice"))
	if err != nil || cas == backend.CasNone {
		t.Fatalf("insert failed: cas=%d err=%v", cas, err)
	}
	if _, err := client.Insert(ctx, "user:1", []byte("bob")); !backend.IsKind(err, backend.KindAlreadyExists) {
		t.Errorf("expected AlreadyExists, got %v", err)
	}

	// replace with the current token succeeds and rotates the token
	cas2, err := client.Replace(ctx, "user:1", []byte("alice2"), cas)
	if err != nil || cas2 == cas {
		t.Fatalf("replace failed: cas=%d err=%v", cas2, err)
	}
	// the old token is now stale
	if _, err := client.Replace(ctx, "user:1", []byte("x"), cas); !backend.IsKind(err, backend.KindCasMismatch) {
		t.Errorf("expected CasMismatch for the stale token, got %v", err)
	}
	// a replace without a token is rejected before hitting the backend
	if _, err := client.Replace(ctx, "user:1", []byte("x"), backend.CasNone); !backend.IsKind(err, backend.KindInvalidArgument) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}

	doc, found, err := client.Get(ctx, "user:1")
	if err != nil || !found || string(doc.Value) != "alice2" {
		t.Fatalf("get after replace: found=%v value=%s err=%v", found, doc.Value, err)
	}

	if ok, err := client.Exists(ctx, "user:1"); err != nil || !ok {
		t.Errorf("expected user:1 to exist: ok=%v err=%v", ok, err)
	}

	if err := client.Remove(ctx, "user:1", doc.Cas); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if ok, _ := client.Exists(ctx, "user:1"); ok {
		t.Error("expected user:1 to be gone")
	}
}

func TestUpsertIsUnconditional(t *testing.T) {
	client := newTestClient(memkv.New(), Options{})
	ctx := context.Background()

	if _, err := client.Upsert(ctx, "cfg", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Upsert(ctx, "cfg", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	doc, _, err := client.Get(ctx, "cfg")
	if err != nil || string(doc.Value) != "v2" {
		t.Fatalf("expected v2, got %s / %v", doc.Value, err)
	}
}

func TestUpdate(t *testing.T) {
	store := memkv.New()
	client := newTestClient(store, Options{ConflictRetries: 5})
	ctx := context.Background()

	if _, err := client.Upsert(ctx, "doc", []byte("a")); err != nil {
		t.Fatal(err)
	}
	res, err := client.Update(ctx, "doc", func(current []byte) ([]byte, error) {
		return append(append([]byte{}, current...), 'b'), nil
	})
	if err != nil || res.Status != optimistic.Committed {
		t.Fatalf("update: status=%v err=%v", res.Status, err)
	}
	if string(res.Value) != "ab" {
		t.Errorf("expected ab, got %s", res.Value)
	}
}

func TestIncrement(t *testing.T) {
	client := newTestClient(memkv.New(), Options{})
	ctx := context.Background()

	// first increment creates the counter
	n, cas, err := client.Increment(ctx, "hits", 1)
	if err != nil || n != 1 || cas == backend.CasNone {
		t.Fatalf("first increment: n=%d cas=%d err=%v", n, cas, err)
	}
	n, _, err = client.Increment(ctx, "hits", 41)
	if err != nil || n != 42 {
		t.Fatalf("second increment: n=%d err=%v", n, err)
	}
	n, _, err = client.Increment(ctx, "hits", -2)
	if err != nil || n != 40 {
		t.Fatalf("negative delta: n=%d err=%v", n, err)
	}
}

func TestIncrementConcurrent(t *testing.T) {
	client := newTestClient(memkv.New(), Options{})
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := client.Increment(ctx, "hits", 1); err != nil {
				t.Errorf("increment failed: %v", err)
			}
		}()
	}
	wg.Wait()

	n, _, err := client.Increment(ctx, "hits", 0)
	if err != nil || n != workers {
		t.Errorf("expected %d after %d concurrent increments, got %d / %v", workers, workers, n, err)
	}
}

func TestIncrementRejectsNonNumeric(t *testing.T) {
	client := newTestClient(memkv.New(), Options{})
	ctx := context.Background()

	if _, err := client.Upsert(ctx, "hits", []byte("not a number")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := client.Increment(ctx, "hits", 1); !backend.IsKind(err, backend.KindParse) {
		t.Errorf("expected a parse error, got %v", err)
	}
}

func TestRunQuery(t *testing.T) {
	store := memkv.New()
	store.RegisterQuery("SELECT key FROM bucket WHERE key LIKE $1", func(params backend.Params) (backend.Rows, error) {
		if len(params) != 1 {
			return nil, backend.NewError(backend.KindInvalidArgument, "expected one parameter")
		}
		var rows backend.Rows
		store.Range(func(key string, doc backend.Document) bool {
			if strings.HasPrefix(key, string(params[0])) {
				rows = append(rows, []byte(key))
			}
			return true
		})
		return rows, nil
	})
	client := newTestClient(store, Options{})
	ctx := context.Background()

	for _, key := range []string{"user:1", "user:2", "order:1"} {
		if _, err := client.Upsert(ctx, key, []byte("v")); err != nil {
			t.Fatal(err)
		}
	}

	q := plancache.Query{Name: "keys-by-prefix", Version: 1, Statement: "SELECT key FROM bucket WHERE key LIKE $1"}
	rows, err := client.RunQuery(ctx, q, backend.Params{[]byte("user:")})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d: %v", len(rows), rows)
	}

	// the plan survives a server-side eviction transparently
	store.DropPlans()
	rows, err = client.RunQuery(ctx, q, backend.Params{[]byte("order:")})
	if err != nil || len(rows) != 1 {
		t.Errorf("query after plan drop: rows=%d err=%v", len(rows), err)
	}
}

func TestRunBatch(t *testing.T) {
	client := newTestClient(memkv.New(), Options{BatchConcurrency: 4})
	ctx := context.Background()

	ops := make([]batch.Operation, 10)
	for i := range ops {
		ops[i] = batch.Operation{Kind: batch.KindUpsert, Key: fmt.Sprintf("k%d", i), Value: []byte("v")}
	}
	if res := client.RunBatch(ctx, ops); !res.OK() {
		t.Fatalf("batch upsert failed: %v", res.Failed)
	}

	ops = []batch.Operation{
		{Kind: batch.KindGet, Key: "k0"},
		{Kind: batch.KindGet, Key: "nope"},
	}
	res := client.RunBatch(ctx, ops)
	if !res.OK() || len(res.Succeeded) != 2 {
		t.Fatalf("batch get failed: %+v", res)
	}
	if !res.Succeeded[0].Found || res.Succeeded[1].Found {
		t.Errorf("expected found/missing, got %+v", res.Succeeded)
	}
}

func TestGetReplicaFallback(t *testing.T) {
	store := memkv.New()
	ctx := context.Background()
	if _, err := store.Write(ctx, "doc", []byte("v"), backend.CasNone); err != nil {
		t.Fatal(err)
	}

	// active copy permanently down, replica healthy
	be := &splitBackend{Store: store}
	client := New(be, nil, nil, Options{
		Retry:           retry.Policy{MaxAttempts: 1, BaseDelay: time.Microsecond},
		ReplicaFallback: true,
	})

	doc, found, err := client.Get(ctx, "doc")
	if err != nil || !found {
		t.Fatalf("expected the replica to serve the read: found=%v err=%v", found, err)
	}
	if string(doc.Value) != "v" {
		t.Errorf("expected v, got %s", doc.Value)
	}
}

// splitBackend fails every active-copy fetch but serves replica reads.
type splitBackend struct {
	*memkv.Store
}

func (s *splitBackend) Fetch(ctx context.Context, key string) (backend.Document, error) {
	return backend.Document{}, backend.NewError(backend.KindUnavailable, "active copy down")
}
