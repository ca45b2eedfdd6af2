package batch

import (
	"context"
	"sync"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/plancache"
	"github.com/ValentinKolb/rKV/lib/retry"
	"golang.org/x/sync/semaphore"
)

// --------------------------------------------------------------------------
// Operation Types
// --------------------------------------------------------------------------

// Kind selects the backend operation a batch item performs.
type Kind uint8

const (
	KindGet Kind = iota
	KindUpsert
	KindInsert
	KindRemove
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindGet:
		return "get"
	case KindUpsert:
		return "upsert"
	case KindInsert:
		return "insert"
	case KindRemove:
		return "remove"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Operation is one item of a batch. Key/Value/Cas apply to the document
// kinds, Query/Params to KindQuery.
type Operation struct {
	Kind   Kind
	Key    string
	Value  []byte
	Cas    backend.CasToken
	Query  plancache.Query
	Params backend.Params
}

// ItemResult is the successful outcome of one operation, tagged with the
// operation's submission index. Found is false for a KindGet on a missing
// key, which counts as a successful lookup with a negative answer.
type ItemResult struct {
	Index int
	Value []byte
	Cas   backend.CasToken
	Found bool
	Rows  backend.Rows
}

// ItemError is the failed outcome of one operation.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return e.Err.Error()
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BatchResult aggregates the per-item outcomes of a batch run. Every
// submitted operation appears in exactly one of the two slices; both are
// ordered by submission index.
type BatchResult struct {
	Succeeded []ItemResult
	Failed    []ItemError
}

// OK reports whether every operation succeeded.
func (r BatchResult) OK() bool {
	return len(r.Failed) == 0
}

// --------------------------------------------------------------------------
// Executor
// --------------------------------------------------------------------------

// Executor fans a batch of independent operations out over goroutines,
// bounded by a concurrency limit, and applies the retry policy to each
// operation individually. Items fail independently: one failed item never
// cancels its siblings.
type Executor struct {
	be     backend.Backend
	policy retry.Policy
	plans  *plancache.Cache
	limit  int64
}

// NewExecutor creates an executor. maxConcurrency <= 0 means unbounded;
// plans may be nil if the batch never contains KindQuery operations.
func NewExecutor(be backend.Backend, policy retry.Policy, plans *plancache.Cache, maxConcurrency int) *Executor {
	return &Executor{
		be:     be,
		policy: policy,
		plans:  plans,
		limit:  int64(maxConcurrency),
	}
}

// Run executes all operations and blocks until every one of them finished.
// The context bounds the batch as a whole; cancelling it fails the items
// that have not completed yet.
func (e *Executor) Run(ctx context.Context, ops []Operation) BatchResult {
	results := make([]ItemResult, len(ops))
	errs := make([]error, len(ops))

	var sem *semaphore.Weighted
	if e.limit > 0 {
		sem = semaphore.NewWeighted(e.limit)
	}

	var wg sync.WaitGroup
	for i := range ops {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					errs[idx] = err
					return
				}
				defer sem.Release(1)
			}
			results[idx], errs[idx] = e.runOne(ctx, ops[idx])
		}(i)
	}
	wg.Wait()

	var res BatchResult
	for i := range ops {
		if errs[i] != nil {
			res.Failed = append(res.Failed, ItemError{Index: i, Err: errs[i]})
			continue
		}
		results[i].Index = i
		res.Succeeded = append(res.Succeeded, results[i])
	}
	return res
}

// runOne executes a single operation under the retry policy.
func (e *Executor) runOne(ctx context.Context, op Operation) (ItemResult, error) {
	switch op.Kind {
	case KindGet:
		var doc backend.Document
		err := e.policy.Do(ctx, func(ctx context.Context) error {
			d, err := e.be.Fetch(ctx, op.Key)
			doc = d
			return err
		})
		if backend.IsKind(err, backend.KindNotFound) {
			return ItemResult{Found: false}, nil
		}
		if err != nil {
			return ItemResult{}, err
		}
		return ItemResult{Value: doc.Value, Cas: doc.Cas, Found: true}, nil

	case KindUpsert:
		var cas backend.CasToken
		err := e.policy.Do(ctx, func(ctx context.Context) error {
			c, err := e.be.Write(ctx, op.Key, op.Value, op.Cas)
			cas = c
			return err
		})
		if err != nil {
			return ItemResult{}, err
		}
		return ItemResult{Cas: cas, Found: true}, nil

	case KindInsert:
		var cas backend.CasToken
		err := e.policy.Do(ctx, func(ctx context.Context) error {
			c, err := e.be.WriteIfAbsent(ctx, op.Key, op.Value)
			cas = c
			return err
		})
		if err != nil {
			return ItemResult{}, err
		}
		return ItemResult{Cas: cas, Found: true}, nil

	case KindRemove:
		err := e.policy.Do(ctx, func(ctx context.Context) error {
			return e.be.Remove(ctx, op.Key, op.Cas)
		})
		if err != nil {
			return ItemResult{}, err
		}
		return ItemResult{}, nil

	case KindQuery:
		if e.plans == nil {
			return ItemResult{}, backend.NewError(backend.KindInvalidArgument, "executor has no plan cache")
		}
		var rows backend.Rows
		err := e.policy.Do(ctx, func(ctx context.Context) error {
			r, err := e.plans.Execute(ctx, op.Query, op.Params)
			rows = r
			return err
		})
		if err != nil {
			return ItemResult{}, err
		}
		return ItemResult{Rows: rows, Found: true}, nil

	default:
		return ItemResult{}, backend.Errorf(backend.KindInvalidArgument, "unknown operation kind %d", op.Kind)
	}
}
