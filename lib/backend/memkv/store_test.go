package memkv

import (
	"bytes"
	"context"
	"testing"

	"github.com/ValentinKolb/rKV/lib/backend"
	backendtesting "github.com/ValentinKolb/rKV/lib/backend/testing"
)

func TestMemKVConformance(t *testing.T) {
	backendtesting.RunBackendTests(t, "memkv", func() backend.Backend {
		return New()
	})
}

func TestQueryLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.RegisterQuery("SELECT v FROM b WHERE k = $1", func(params backend.Params) (backend.Rows, error) {
		if len(params) != 1 {
			return nil, backend.Errorf(backend.KindInvalidArgument, "expected 1 parameter, got %d", len(params))
		}
		return backend.Rows{params[0]}, nil
	})

	// unknown statements fail to compile
	if _, err := s.Prepare(ctx, "SELECT nothing"); !backend.IsKind(err, backend.KindParse) {
		t.Errorf("expected KindParse for unknown statement, got %v", err)
	}

	// whitespace differences resolve to the same statement
	plan, err := s.Prepare(ctx, "SELECT v\n  FROM b   WHERE k = $1")
	if err != nil {
		t.Fatalf("unexpected prepare error: %v", err)
	}

	rows, err := s.ExecutePlan(ctx, plan, backend.Params{[]byte("x")})
	if err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}
	if len(rows) != 1 || !bytes.Equal(rows[0], []byte("x")) {
		t.Errorf("unexpected rows: %v", rows)
	}

	// dropping plans invalidates issued handles but not the statements
	s.DropPlans()
	if _, err := s.ExecutePlan(ctx, plan, backend.Params{[]byte("x")}); !backend.IsKind(err, backend.KindPlanUnknown) {
		t.Errorf("expected KindPlanUnknown after DropPlans, got %v", err)
	}
	if _, err := s.Prepare(ctx, "SELECT v FROM b WHERE k = $1"); err != nil {
		t.Errorf("expected statement to survive DropPlans, got %v", err)
	}
}

func TestRange(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if _, err := s.Write(ctx, key, []byte(key), backend.CasNone); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
	}

	seen := map[string]bool{}
	s.Range(func(key string, doc backend.Document) bool {
		seen[key] = true
		return true
	})
	if len(seen) != 3 {
		t.Errorf("expected 3 documents, got %d", len(seen))
	}
}
