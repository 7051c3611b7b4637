package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Source reports live subsystem state.
type Source interface {
	OpenHandles() int
	RegisteredTypes() int
	ReservedNames() int
}

// Collector exposes Source state as gauges computed at scrape time.
type Collector struct {
	source Source

	handlesOpen     *prometheus.Desc
	typesRegistered *prometheus.Desc
	namesReserved   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		handlesOpen: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "handles_open"),
			"Wallet handles currently open", nil, nil),
		typesRegistered: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "types_registered"),
			"Wallet types currently registered", nil, nil),
		namesReserved: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "names_reserved"),
			"Wallet names held by an in-flight create or delete", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.handlesOpen
	ch <- c.typesRegistered
	ch <- c.namesReserved
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.handlesOpen, prometheus.GaugeValue, float64(c.source.OpenHandles()))
	ch <- prometheus.MustNewConstMetric(c.typesRegistered, prometheus.GaugeValue, float64(c.source.RegisteredTypes()))
	ch <- prometheus.MustNewConstMetric(c.namesReserved, prometheus.GaugeValue, float64(c.source.ReservedNames()))
}
