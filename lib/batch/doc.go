// Package batch executes independent document and query operations
// concurrently against one backend.
//
// Each operation runs in its own goroutine under its own retry budget; a
// semaphore bounds the fan-out when a concurrency limit is set. The result
// partitions the submitted operations by outcome: every index appears in
// exactly one of Succeeded or Failed, and a missing document on a lookup is
// a success with Found == false, not a failure.
package batch
