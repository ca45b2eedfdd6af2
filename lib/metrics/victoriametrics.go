package metrics

import (
	"fmt"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// vmSink exports operation timings as VictoriaMetrics summaries and
// counters. Metric sets are created lazily per operation name; scraping
// goes through the default registry (vm.WritePrometheus).
type vmSink struct{}

// NewVictoriaMetricsSink creates a sink backed by the default
// VictoriaMetrics registry.
func NewVictoriaMetricsSink() ISink {
	return vmSink{}
}

func (vmSink) RecordLatency(op string, d time.Duration) {
	vm.GetOrCreateSummary(fmt.Sprintf(`rkv_operation_duration_seconds{op=%q}`, op)).Update(d.Seconds())
}

func (vmSink) RecordSlowOp(op string, d, threshold time.Duration) {
	vm.GetOrCreateCounter(fmt.Sprintf(`rkv_slow_operations_total{op=%q}`, op)).Inc()
}
