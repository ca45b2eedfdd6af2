package backend

import (
	"context"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// CasToken is an opaque version stamp issued by the backend on every
// successful read or write of a document. A write guarded by a CasToken
// succeeds only if the document's current token equals the supplied token;
// on success the backend issues a new token, invalidating the old one.
type CasToken uint64

// CasNone is the zero token. Passing it to Write or Remove disables the
// compare-and-swap guard (unconditional write/remove).
const CasNone CasToken = 0

// Document is a value together with the CasToken under which it was read
// or written.
type Document struct {
	Value []byte
	Cas   CasToken
}

// PlanHandle is an opaque reference to a backend-compiled query plan.
// It is only valid for the backend instance that issued it and may be
// invalidated by the backend at any time (e.g. after a server-side cache
// eviction or restart). Executing an invalidated handle yields a
// KindPlanUnknown error.
type PlanHandle string

// Params are the positional parameters of a query execution. Each parameter
// is an encoded value the backend interprets; the access layer treats them
// as opaque bytes.
type Params [][]byte

// Rows is the result set of a query execution, one encoded row per entry.
type Rows [][]byte

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// Backend is the port the resilience layer consumes: single-key operations
// guarded by a CasToken plus a prepare/execute split for queries. It is
// implemented by store drivers (see memkv for the in-memory reference
// implementation and rpc/client for the remote one).
//
// All errors returned by an implementation must be classifiable via KindOf,
// i.e. they should be (or wrap) a *Error with the appropriate ErrorKind.
// Implementations must be safe for concurrent use; the layer never
// serializes unrelated operations.
type Backend interface {
	// Fetch reads the current value and CasToken for a key.
	// A missing key yields a KindNotFound error.
	Fetch(ctx context.Context, key string) (Document, error)

	// FetchReplica reads the value for a key from a replica. The returned
	// document may be stale; its CasToken follows normal CAS rules (a write
	// guarded by a stale token fails with KindCasMismatch).
	// Backends without replicas serve this from the active copy.
	FetchReplica(ctx context.Context, key string) (Document, error)

	// Write stores a value under a key. With cas == CasNone the write is
	// unconditional (upsert). With a non-zero cas the write succeeds only
	// if the document's current token equals cas; otherwise it fails with
	// KindCasMismatch (or KindNotFound if the document was removed in the
	// meantime). On success the new CasToken is returned.
	Write(ctx context.Context, key string, value []byte, cas CasToken) (CasToken, error)

	// WriteIfAbsent stores a value only if the key does not exist yet.
	// An existing key yields a KindAlreadyExists error.
	WriteIfAbsent(ctx context.Context, key string, value []byte) (CasToken, error)

	// Remove deletes a key. A missing key yields KindNotFound. With a
	// non-zero cas the removal is CAS-guarded like Write.
	Remove(ctx context.Context, key string, cas CasToken) error

	// Prepare compiles a query statement into a reusable plan.
	// Malformed statements yield a KindParse error.
	Prepare(ctx context.Context, statement string) (PlanHandle, error)

	// ExecutePlan runs a previously prepared plan with the given positional
	// parameters. An unknown or evicted handle yields KindPlanUnknown.
	ExecutePlan(ctx context.Context, plan PlanHandle, params Params) (Rows, error)

	// Close releases all resources held by the backend.
	Close() error
}
