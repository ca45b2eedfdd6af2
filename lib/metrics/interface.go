package metrics

import (
	"time"
)

// ISink receives operation timings from the access layer. Implementations
// must be safe for concurrent use and must not block the caller.
type ISink interface {
	// RecordLatency records the duration of one completed operation.
	RecordLatency(op string, d time.Duration)

	// RecordSlowOp records an operation that exceeded the configured
	// slow-operation threshold.
	RecordSlowOp(op string, d, threshold time.Duration)
}
