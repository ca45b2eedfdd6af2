package memkv

import (
	"fmt"
	"strings"
	"sync/atomic"

	"context"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/puzpuzpuz/xsync/v3"
)

// QueryFunc executes a registered statement with positional parameters.
type QueryFunc func(params backend.Params) (backend.Rows, error)

// entry is a stored document together with its current version token.
type entry struct {
	value []byte
	cas   backend.CasToken
}

// Store is an in-memory implementation of backend.Backend with full CAS
// semantics and a registered-statement query engine. It is primarily used
// as the bucket store of the rpc server and as the reference backend in
// tests.
type Store struct {
	entries *xsync.MapOf[string, entry]
	casSeq  atomic.Uint64

	// query engine: normalized statement -> handler, plan handle -> handler
	stmts   *xsync.MapOf[string, QueryFunc]
	plans   *xsync.MapOf[backend.PlanHandle, QueryFunc]
	planSeq atomic.Uint64
}

// New creates a new empty in-memory store.
func New() *Store {
	return &Store{
		entries: xsync.NewMapOf[string, entry](),
		stmts:   xsync.NewMapOf[string, QueryFunc](),
		plans:   xsync.NewMapOf[backend.PlanHandle, QueryFunc](),
	}
}

// --------------------------------------------------------------------------
// Statement Registry
// --------------------------------------------------------------------------

// RegisterQuery registers a handler for a statement. Statements are matched
// after whitespace normalization; Prepare fails with a parse error for any
// statement without a registered handler, mirroring a query service
// rejecting an unknown/malformed statement.
func (s *Store) RegisterQuery(statement string, fn QueryFunc) {
	s.stmts.Store(normalize(statement), fn)
}

// DropPlans discards all issued plan handles without touching the
// registered statements. Subsequent ExecutePlan calls on old handles fail
// with KindPlanUnknown, which simulates a server-side plan cache eviction
// or restart.
func (s *Store) DropPlans() {
	s.plans.Clear()
}

// Range calls fn for every stored document until fn returns false.
// The iteration order is unspecified.
func (s *Store) Range(fn func(key string, doc backend.Document) bool) {
	s.entries.Range(func(key string, e entry) bool {
		return fn(key, backend.Document{Value: e.value, Cas: e.cas})
	})
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Fetch(ctx context.Context, key string) (backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return backend.Document{}, err
	}
	e, ok := s.entries.Load(key)
	if !ok {
		return backend.Document{}, backend.Errorf(backend.KindNotFound, "document %q not found", key)
	}
	return backend.Document{Value: e.value, Cas: e.cas}, nil
}

// FetchReplica serves from the active copy since the store is a single node.
func (s *Store) FetchReplica(ctx context.Context, key string) (backend.Document, error) {
	return s.Fetch(ctx, key)
}

func (s *Store) Write(ctx context.Context, key string, value []byte, cas backend.CasToken) (backend.CasToken, error) {
	if err := ctx.Err(); err != nil {
		return backend.CasNone, err
	}

	var werr error
	var newCas backend.CasToken

	// Compute is atomic per key, which makes the compare-and-swap race free.
	s.entries.Compute(key, func(old entry, loaded bool) (entry, bool) {
		if cas != backend.CasNone {
			if !loaded {
				werr = backend.Errorf(backend.KindNotFound, "document %q not found", key)
				return old, true
			}
			if old.cas != cas {
				werr = backend.Errorf(backend.KindCasMismatch, "stale cas token for %q", key)
				return old, false
			}
		}
		newCas = backend.CasToken(s.casSeq.Add(1))
		return entry{value: value, cas: newCas}, false
	})

	if werr != nil {
		return backend.CasNone, werr
	}
	return newCas, nil
}

func (s *Store) WriteIfAbsent(ctx context.Context, key string, value []byte) (backend.CasToken, error) {
	if err := ctx.Err(); err != nil {
		return backend.CasNone, err
	}

	var werr error
	var newCas backend.CasToken

	s.entries.Compute(key, func(old entry, loaded bool) (entry, bool) {
		if loaded {
			werr = backend.Errorf(backend.KindAlreadyExists, "document %q already exists", key)
			return old, false
		}
		newCas = backend.CasToken(s.casSeq.Add(1))
		return entry{value: value, cas: newCas}, false
	})

	if werr != nil {
		return backend.CasNone, werr
	}
	return newCas, nil
}

func (s *Store) Remove(ctx context.Context, key string, cas backend.CasToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var werr error

	s.entries.Compute(key, func(old entry, loaded bool) (entry, bool) {
		if !loaded {
			werr = backend.Errorf(backend.KindNotFound, "document %q not found", key)
			return old, true
		}
		if cas != backend.CasNone && old.cas != cas {
			werr = backend.Errorf(backend.KindCasMismatch, "stale cas token for %q", key)
			return old, false
		}
		return old, true
	})

	return werr
}

func (s *Store) Prepare(ctx context.Context, statement string) (backend.PlanHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fn, ok := s.stmts.Load(normalize(statement))
	if !ok {
		return "", backend.Errorf(backend.KindParse, "cannot compile statement: %q", statement)
	}
	handle := backend.PlanHandle(fmt.Sprintf("plan-%d", s.planSeq.Add(1)))
	s.plans.Store(handle, fn)
	return handle, nil
}

func (s *Store) ExecutePlan(ctx context.Context, plan backend.PlanHandle, params backend.Params) (backend.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn, ok := s.plans.Load(plan)
	if !ok {
		return nil, backend.Errorf(backend.KindPlanUnknown, "plan %q not found", plan)
	}
	return fn(params)
}

func (s *Store) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// normalize collapses all whitespace so that formatting differences do not
// produce distinct statements.
func normalize(statement string) string {
	return strings.Join(strings.Fields(statement), " ")
}
