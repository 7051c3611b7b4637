// Package metric provides Prometheus metrics for the wallet subsystem.
//
// This package implements metrics collection:
//
//   - prometheus.go: lifecycle counters and operation histograms
//   - collector.go: gauges read from live subsystem state at scrape time
//
// Metrics are registered on a caller-supplied prometheus.Registerer; a nil
// registerer keeps them unregistered so recording stays valid.
package metric
