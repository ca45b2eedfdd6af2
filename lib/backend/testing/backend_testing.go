package testing

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/ValentinKolb/rKV/lib/backend"
)

// BackendFactory is a function that creates a new instance of a Backend
// implementation.
type BackendFactory func() backend.Backend

// RunBackendTests runs a conformance test suite for a Backend
// implementation. Query support (Prepare/ExecutePlan) is implementation
// specific and therefore tested by the implementations themselves.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Write&Fetch", func(t *testing.T) {
			testWriteFetch(t, factory())
		})

		t.Run("Absence", func(t *testing.T) {
			testAbsence(t, factory())
		})

		t.Run("CasGuard", func(t *testing.T) {
			testCasGuard(t, factory())
		})

		t.Run("WriteIfAbsent", func(t *testing.T) {
			testWriteIfAbsent(t, factory())
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, factory())
		})

		t.Run("ConcurrentCas", func(t *testing.T) {
			testConcurrentCas(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteFetch(t *testing.T, be backend.Backend) {
	defer be.Close()
	ctx := context.Background()

	cas, err := be.Write(ctx, "doc1", []byte("v1"), backend.CasNone)
	if err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if cas == backend.CasNone {
		t.Errorf("expected a non-zero cas token after write")
	}

	doc, err := be.Fetch(ctx, "doc1")
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if !bytes.Equal(doc.Value, []byte("v1")) {
		t.Errorf("expected value %q, got %q", "v1", doc.Value)
	}
	if doc.Cas != cas {
		t.Errorf("expected cas %d, got %d", cas, doc.Cas)
	}

	// an unguarded overwrite must issue a fresh token
	cas2, err := be.Write(ctx, "doc1", []byte("v2"), backend.CasNone)
	if err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if cas2 == cas {
		t.Errorf("expected a new cas token, got the old one (%d)", cas)
	}

	replica, err := be.FetchReplica(ctx, "doc1")
	if err != nil {
		t.Fatalf("unexpected replica fetch error: %v", err)
	}
	if !bytes.Equal(replica.Value, []byte("v2")) {
		t.Errorf("expected replica value %q, got %q", "v2", replica.Value)
	}
}

func testAbsence(t *testing.T, be backend.Backend) {
	defer be.Close()
	ctx := context.Background()

	_, err := be.Fetch(ctx, "missing")
	if !backend.IsKind(err, backend.KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", err)
	}

	err = be.Remove(ctx, "missing", backend.CasNone)
	if !backend.IsKind(err, backend.KindNotFound) {
		t.Errorf("expected KindNotFound on remove, got %v", err)
	}
}

func testCasGuard(t *testing.T, be backend.Backend) {
	defer be.Close()
	ctx := context.Background()

	cas, err := be.Write(ctx, "doc1", []byte("v1"), backend.CasNone)
	if err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	// guarded write with the current token succeeds and rotates the token
	cas2, err := be.Write(ctx, "doc1", []byte("v2"), cas)
	if err != nil {
		t.Fatalf("unexpected guarded write error: %v", err)
	}

	// the old token is now stale
	_, err = be.Write(ctx, "doc1", []byte("v3"), cas)
	if !backend.IsKind(err, backend.KindCasMismatch) {
		t.Errorf("expected KindCasMismatch for stale token, got %v", err)
	}

	// the document is untouched by the failed write
	doc, err := be.Fetch(ctx, "doc1")
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if !bytes.Equal(doc.Value, []byte("v2")) {
		t.Errorf("expected value %q, got %q", "v2", doc.Value)
	}
	if doc.Cas != cas2 {
		t.Errorf("expected cas %d, got %d", cas2, doc.Cas)
	}

	// a guarded write to a removed document fails
	if err := be.Remove(ctx, "doc1", backend.CasNone); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	_, err = be.Write(ctx, "doc1", []byte("v4"), cas2)
	if !backend.IsKind(err, backend.KindNotFound) {
		t.Errorf("expected KindNotFound for write to removed document, got %v", err)
	}
}

func testWriteIfAbsent(t *testing.T, be backend.Backend) {
	defer be.Close()
	ctx := context.Background()

	if _, err := be.WriteIfAbsent(ctx, "doc1", []byte("v1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := be.WriteIfAbsent(ctx, "doc1", []byte("v2"))
	if !backend.IsKind(err, backend.KindAlreadyExists) {
		t.Errorf("expected KindAlreadyExists, got %v", err)
	}

	doc, err := be.Fetch(ctx, "doc1")
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if !bytes.Equal(doc.Value, []byte("v1")) {
		t.Errorf("expected original value to survive, got %q", doc.Value)
	}
}

func testRemove(t *testing.T, be backend.Backend) {
	defer be.Close()
	ctx := context.Background()

	cas, err := be.Write(ctx, "doc1", []byte("v1"), backend.CasNone)
	if err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	// removal guarded by a stale token fails
	err = be.Remove(ctx, "doc1", cas+1)
	if !backend.IsKind(err, backend.KindCasMismatch) {
		t.Errorf("expected KindCasMismatch, got %v", err)
	}

	// removal guarded by the current token succeeds
	if err := be.Remove(ctx, "doc1", cas); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}

	_, err = be.Fetch(ctx, "doc1")
	if !backend.IsKind(err, backend.KindNotFound) {
		t.Errorf("expected KindNotFound after removal, got %v", err)
	}
}

// testConcurrentCas checks that for any token generation at most one
// guarded write succeeds.
func testConcurrentCas(t *testing.T, be backend.Backend) {
	defer be.Close()
	ctx := context.Background()

	cas, err := be.Write(ctx, "doc1", []byte("base"), backend.CasNone)
	if err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := be.Write(ctx, "doc1", []byte("contender"), cas); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for range wins {
		winners++
	}
	if winners != 1 {
		t.Errorf("expected exactly one winning writer per token generation, got %d", winners)
	}
}
