// Package metrics defines the sink the access layer reports operation
// timings to, with a VictoriaMetrics implementation for export and a no-op
// implementation for callers that do not scrape.
package metrics
