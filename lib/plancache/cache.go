package plancache

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultMaxEntries is the default capacity of a cache.
const DefaultMaxEntries = 256

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Query identifies a statement to execute. Name and Version address the
// logical query; the Statement text is additionally hashed into the cache
// key so that a changed statement under an unchanged version can never be
// served a stale plan.
type Query struct {
	Name      string
	Version   int
	Statement string
}

// Options configures a Cache.
type Options struct {
	// MaxEntries caps the number of cached plans (DefaultMaxEntries if <= 0).
	// When the cap is exceeded the oldest entries are evicted first.
	MaxEntries int
}

// cacheEntry is a compiled plan together with its admission sequence number,
// which drives first-in-first-out eviction.
type cacheEntry struct {
	plan backend.PlanHandle
	seq  int64
}

// Cache maps queries to backend-compiled plan handles and transparently
// recompiles a plan the backend no longer recognizes. It is safe for
// concurrent use.
type Cache struct {
	be         backend.Backend
	maxEntries int

	entries *xsync.MapOf[string, cacheEntry]
	seq     atomic.Int64
}

// New creates a plan cache on top of the given backend.
func New(be backend.Backend, opts Options) *Cache {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		be:         be,
		maxEntries: maxEntries,
		entries:    xsync.NewMapOf[string, cacheEntry](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods
// --------------------------------------------------------------------------

// Execute runs the query, preparing (and caching) its plan on first use.
//
// If the backend reports the cached handle as unknown (server-side eviction
// or restart), the stale entry is dropped, the statement is recompiled and
// the execution is repeated exactly once. Any failure of that second pass
// surfaces to the caller; there is no second recompile, so a backend that
// keeps rejecting freshly issued handles cannot trap the call in a loop.
func (c *Cache) Execute(ctx context.Context, q Query, params backend.Params) (backend.Rows, error) {
	key := cacheKey(q)

	entry, ok := c.entries.Load(key)
	if !ok {
		plan, err := c.be.Prepare(ctx, q.Statement)
		if err != nil {
			return nil, err
		}
		entry = c.store(key, plan)
	}

	rows, err := c.be.ExecutePlan(ctx, entry.plan, params)
	if !backend.IsKind(err, backend.KindPlanUnknown) {
		return rows, err
	}

	// the handle went stale underneath us: recompile and retry once
	c.entries.Delete(key)
	plan, err := c.be.Prepare(ctx, q.Statement)
	if err != nil {
		return nil, err
	}
	entry = c.store(key, plan)
	return c.be.ExecutePlan(ctx, entry.plan, params)
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	return c.entries.Size()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// store admits a plan under the given key and evicts down to capacity.
func (c *Cache) store(key string, plan backend.PlanHandle) cacheEntry {
	entry := cacheEntry{plan: plan, seq: c.seq.Add(1)}
	c.entries.Store(key, entry)
	c.evict()
	return entry
}

// evict removes the oldest entries until the cache is within capacity.
func (c *Cache) evict() {
	for c.entries.Size() > c.maxEntries {
		var (
			oldestKey string
			oldestSeq int64
			found     bool
		)
		c.entries.Range(func(key string, e cacheEntry) bool {
			if !found || e.seq < oldestSeq {
				oldestKey, oldestSeq, found = key, e.seq, true
			}
			return true
		})
		if !found {
			return
		}
		c.entries.Delete(oldestKey)
	}
}

// cacheKey derives the cache key from name, version and a hash of the
// whitespace-normalized statement text.
func cacheKey(q Query) string {
	normalized := strings.Join(strings.Fields(q.Statement), " ")
	return fmt.Sprintf("%s@%d:%016x", q.Name, q.Version, xxhash.Sum64String(normalized))
}
