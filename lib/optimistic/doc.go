// Package optimistic implements the read-modify-write update protocol with
// CAS verification.
//
// The state machine of a single cycle is Fetch -> Mutate -> CasWrite with
// the terminal states Committed, Conflict, Absent and Failed. The last
// writer to present a valid (non-stale) token wins; exactly one CasWrite
// with a given token can ever succeed.
//
// A CAS conflict is deliberately not retried inside Update: blind retry of
// a write with a stale token can mask lost updates. UpdateWithRetry offers
// the bounded alternative of re-running the whole cycle, which always
// starts with a fresh Fetch.
package optimistic
