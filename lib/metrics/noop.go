package metrics

import (
	"time"
)

type nopSink struct{}

// NewNopSink creates a sink that discards all recordings.
func NewNopSink() ISink {
	return nopSink{}
}

func (nopSink) RecordLatency(op string, d time.Duration)           {}
func (nopSink) RecordSlowOp(op string, d, threshold time.Duration) {}
