// Package memkv provides an in-memory implementation of the
// backend.Backend interface.
//
// Documents are kept in a concurrent map (xsync.MapOf) with a process-wide
// monotonic counter serving as the CAS token source; all CAS checks happen
// inside per-key atomic Compute callbacks, so two writers racing on the
// same stale token can never both succeed.
//
// Queries are served by a registered-statement engine: callers register a
// Go handler per statement (RegisterQuery), Prepare resolves the statement
// to a fresh plan handle, and ExecutePlan dispatches by handle. DropPlans
// invalidates every issued handle, which is how tests and demos simulate a
// server-side plan cache eviction.
package memkv
