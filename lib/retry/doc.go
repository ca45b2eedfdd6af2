// Package retry provides the error classifying exponential backoff policy
// used by every operation of the access layer.
//
// The policy is an explicit bounded loop carrying the attempt count, which
// keeps the number of backend calls directly testable. Classification is
// pluggable (Classifier) so the retry logic stays independent of any one
// backend's failure taxonomy; the default classifier works on the
// backend.ErrorKind enumeration.
//
// Delays follow delay(attempt) = BaseDelay * 2^attempt with the attempt
// zero-indexed. Exhaustion surfaces as *ExhaustedError wrapping the last
// transient failure.
package retry
