// Package backend defines the port between the resilience layer and an
// actual key-value/query store driver.
//
// The package focuses on:
//   - A unified interface for CAS-guarded key-value operations
//   - A prepare/execute split for query statements
//   - A backend-independent error taxonomy (ErrorKind)
//
// Key Components:
//
//   - Backend Interface: single-key Fetch/Write/Remove with a CasToken
//     guard, WriteIfAbsent for create-only semantics, FetchReplica for
//     stale reads, and Prepare/ExecutePlan for reusable query plans.
//
//   - CasToken: an opaque version stamp. Exactly one write guarded by a
//     given token can ever succeed; concurrent writers racing on the same
//     token observe KindCasMismatch.
//
//   - Error / ErrorKind: a tagged error type that maps any driver's
//     failure taxonomy onto a fixed enumeration. The retry policy decides
//     retryability on the kind alone, which isolates the resilience logic
//     from backend specific exception hierarchies.
//
// Related Packages:
//
// The memkv package (github.com/ValentinKolb/rKV/lib/backend/memkv)
// provides an in-memory reference implementation backed by concurrent
// maps. The rpc/client package provides a remote implementation that
// speaks to an rKV bucket server. The testing package
// (github.com/ValentinKolb/rKV/lib/backend/testing) provides a
// conformance suite for implementations of the Backend interface.
package backend
