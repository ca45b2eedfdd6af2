// Package access is the high-level client of the resilience layer.
//
// A Client wraps one backend and applies the full stack to every call: the
// classifying retry policy (lib/retry), the optimistic update protocol
// (lib/optimistic), the self-healing plan cache (lib/plancache) and the
// concurrent batch executor (lib/batch). Operation timings are reported to
// a metrics sink, with slow operations flagged separately.
package access
