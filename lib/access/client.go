package access

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/batch"
	"github.com/ValentinKolb/rKV/lib/metrics"
	"github.com/ValentinKolb/rKV/lib/optimistic"
	"github.com/ValentinKolb/rKV/lib/plancache"
	"github.com/ValentinKolb/rKV/lib/retry"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("access")

// incrementRaces bounds the CAS retry loop of Increment. Separate from
// ConflictRetries since counters are contention hotspots by nature.
const incrementRaces = 16

const (
	// DefaultKVTimeout bounds a single key-value attempt when the retry
	// policy carries no AttemptTimeout of its own.
	DefaultKVTimeout = 5 * time.Second
	// DefaultQueryTimeout bounds a single query attempt. Queries get more
	// headroom than key-value calls.
	DefaultQueryTimeout = 75 * time.Second
)

// Options configures a Client.
type Options struct {
	// Retry is the policy applied to every backend call.
	Retry retry.Policy

	// ConflictRetries bounds the update cycle re-runs of Update
	// (optimistic.DefaultMaxCycles if <= 0).
	ConflictRetries int

	// SlowOpThreshold marks operations slower than this as slow in the
	// metrics sink and the log. Zero disables the check.
	SlowOpThreshold time.Duration

	// ReplicaFallback serves Get from a replica when the active copy stays
	// unreachable after retry exhaustion. The result may be stale.
	ReplicaFallback bool

	// BatchConcurrency bounds the fan-out of RunBatch (unbounded if <= 0).
	BatchConcurrency int
}

// Client is the high-level entry point of the access layer. It composes the
// retry policy, the optimistic update protocol, the plan cache and the batch
// executor over one backend and reports timings to the metrics sink.
type Client struct {
	be          backend.Backend
	plans       *plancache.Cache
	sink        metrics.ISink
	exec        *batch.Executor
	kvPolicy    retry.Policy
	queryPolicy retry.Policy
	opts        Options
}

// New creates a client. plans may be nil to disable query support; a nil
// sink falls back to the no-op sink.
func New(be backend.Backend, plans *plancache.Cache, sink metrics.ISink, opts Options) *Client {
	if sink == nil {
		sink = metrics.NewNopSink()
	}

	// Key-value and query calls run under the same policy but with
	// different per-attempt timeout defaults.
	kvPolicy := opts.Retry
	if kvPolicy.AttemptTimeout <= 0 {
		kvPolicy.AttemptTimeout = DefaultKVTimeout
	}
	queryPolicy := opts.Retry
	if queryPolicy.AttemptTimeout <= 0 {
		queryPolicy.AttemptTimeout = DefaultQueryTimeout
	}

	return &Client{
		be:          be,
		plans:       plans,
		sink:        sink,
		exec:        batch.NewExecutor(be, kvPolicy, plans, opts.BatchConcurrency),
		kvPolicy:    kvPolicy,
		queryPolicy: queryPolicy,
		opts:        opts,
	}
}

// --------------------------------------------------------------------------
// Document Operations
// --------------------------------------------------------------------------

// Get reads a document. A missing key is not an error: it returns a zero
// document, false and a nil error. With ReplicaFallback enabled, an
// unreachable active copy is retried against a replica before giving up.
func (c *Client) Get(ctx context.Context, key string) (backend.Document, bool, error) {
	defer c.observe("get", time.Now())

	var doc backend.Document
	err := c.kvPolicy.Do(ctx, func(ctx context.Context) error {
		d, err := c.be.Fetch(ctx, key)
		doc = d
		return err
	})

	var exhausted *retry.ExhaustedError
	if err != nil && c.opts.ReplicaFallback && errors.As(err, &exhausted) {
		log.Warningf("get %q: active copy unreachable (%v), falling back to replica", key, err)
		err = c.kvPolicy.Do(ctx, func(ctx context.Context) error {
			d, err := c.be.FetchReplica(ctx, key)
			doc = d
			return err
		})
	}

	if backend.IsKind(err, backend.KindNotFound) {
		return backend.Document{}, false, nil
	}
	if err != nil {
		return backend.Document{}, false, err
	}
	return doc, true, nil
}

// Exists reports whether a key holds a document.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := c.Get(ctx, key)
	return found, err
}

// Insert stores a new document. An existing key yields KindAlreadyExists.
func (c *Client) Insert(ctx context.Context, key string, value []byte) (backend.CasToken, error) {
	defer c.observe("insert", time.Now())

	var cas backend.CasToken
	err := c.kvPolicy.Do(ctx, func(ctx context.Context) error {
		t, err := c.be.WriteIfAbsent(ctx, key, value)
		cas = t
		return err
	})
	return cas, err
}

// Upsert stores a document unconditionally, creating or replacing it.
func (c *Client) Upsert(ctx context.Context, key string, value []byte) (backend.CasToken, error) {
	defer c.observe("upsert", time.Now())

	var cas backend.CasToken
	err := c.kvPolicy.Do(ctx, func(ctx context.Context) error {
		t, err := c.be.Write(ctx, key, value, backend.CasNone)
		cas = t
		return err
	})
	return cas, err
}

// Replace overwrites an existing document guarded by its CasToken. The
// token is mandatory here; unconditional writes go through Upsert.
func (c *Client) Replace(ctx context.Context, key string, value []byte, cas backend.CasToken) (backend.CasToken, error) {
	defer c.observe("replace", time.Now())

	if cas == backend.CasNone {
		return backend.CasNone, backend.NewError(backend.KindInvalidArgument, "replace requires a cas token")
	}
	var newCas backend.CasToken
	err := c.kvPolicy.Do(ctx, func(ctx context.Context) error {
		t, err := c.be.Write(ctx, key, value, cas)
		newCas = t
		return err
	})
	return newCas, err
}

// Remove deletes a document. With a non-zero cas the removal is CAS-guarded.
func (c *Client) Remove(ctx context.Context, key string, cas backend.CasToken) error {
	defer c.observe("remove", time.Now())

	return c.kvPolicy.Do(ctx, func(ctx context.Context) error {
		return c.be.Remove(ctx, key, cas)
	})
}

// Update runs the optimistic read-modify-write protocol on a key, re-running
// the cycle on CAS conflicts up to ConflictRetries times.
func (c *Client) Update(ctx context.Context, key string, mutate optimistic.MutateFunc) (optimistic.Result, error) {
	defer c.observe("update", time.Now())

	return optimistic.UpdateWithRetry(ctx, c.be, c.kvPolicy, key, mutate, c.opts.ConflictRetries)
}

// Increment atomically adds delta to a counter stored as a decimal string,
// creating it with the value delta if absent, and returns the new value.
// Lost CAS races are retried; with concurrent increments every caller's
// delta is applied exactly once.
func (c *Client) Increment(ctx context.Context, key string, delta int64) (int64, backend.CasToken, error) {
	defer c.observe("increment", time.Now())

	var value int64
	mutate := func(current []byte) ([]byte, error) {
		n, err := strconv.ParseInt(string(current), 10, 64)
		if err != nil {
			return nil, backend.Errorf(backend.KindParse, "counter %q holds a non-numeric value: %v", key, err)
		}
		value = n + delta
		return []byte(strconv.FormatInt(value, 10)), nil
	}

	for race := 0; race < incrementRaces; race++ {
		res, err := optimistic.Update(ctx, c.be, c.kvPolicy, key, mutate)
		if err != nil {
			return 0, backend.CasNone, err
		}
		switch res.Status {
		case optimistic.Committed:
			return value, res.Cas, nil
		case optimistic.Conflict:
			continue
		case optimistic.Absent:
			// first increment creates the counter; a concurrent creator
			// wins the race and we fall back to the CAS path
			cas, err := c.Insert(ctx, key, []byte(strconv.FormatInt(delta, 10)))
			if backend.IsKind(err, backend.KindAlreadyExists) {
				continue
			}
			if err != nil {
				return 0, backend.CasNone, err
			}
			return delta, cas, nil
		}
	}
	return 0, backend.CasNone, backend.Errorf(backend.KindCasMismatch, "increment of %q lost %d consecutive races", key, incrementRaces)
}

// --------------------------------------------------------------------------
// Queries and Batches
// --------------------------------------------------------------------------

// RunQuery executes a named query through the plan cache under the retry
// policy.
func (c *Client) RunQuery(ctx context.Context, q plancache.Query, params backend.Params) (backend.Rows, error) {
	defer c.observe("query", time.Now())

	if c.plans == nil {
		return nil, backend.NewError(backend.KindInvalidArgument, "client has no plan cache")
	}
	var rows backend.Rows
	err := c.queryPolicy.Do(ctx, func(ctx context.Context) error {
		r, err := c.plans.Execute(ctx, q, params)
		rows = r
		return err
	})
	return rows, err
}

// RunBatch executes independent operations concurrently. See package batch
// for the result contract.
func (c *Client) RunBatch(ctx context.Context, ops []batch.Operation) batch.BatchResult {
	defer c.observe("batch", time.Now())

	return c.exec.Run(ctx, ops)
}

// Close releases the underlying backend.
func (c *Client) Close() error {
	return c.be.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// observe reports the duration of one operation to the sink. Used as
// defer c.observe(op, time.Now()).
func (c *Client) observe(op string, start time.Time) {
	d := time.Since(start)
	c.sink.RecordLatency(op, d)
	if c.opts.SlowOpThreshold > 0 && d >= c.opts.SlowOpThreshold {
		c.sink.RecordSlowOp(op, d, c.opts.SlowOpThreshold)
		log.Warningf("slow operation %s took %v (threshold %v)", op, d, c.opts.SlowOpThreshold)
	}
}
