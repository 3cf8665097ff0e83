package perfmon

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Monitor's aggregates as Prometheus metrics. Register
// it with a prometheus.Registry; scrapes read the current report.
type Collector struct {
	mon *Monitor

	totalOps   *prometheus.Desc
	failedOps  *prometheus.Desc
	errorRate  *prometheus.Desc
	avgElapsed *prometheus.Desc
	emaElapsed *prometheus.Desc
	throughput *prometheus.Desc
	peakTput   *prometheus.Desc
}

// NewCollector wraps mon for scraping under the given namespace
// (defaults to "plantgraph").
func NewCollector(mon *Monitor, namespace string) *Collector {
	if namespace == "" {
		namespace = "plantgraph"
	}
	return &Collector{
		mon: mon,
		totalOps: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "query", "ops_total"),
			"Total operations recorded.", nil, nil),
		failedOps: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "query", "failures_total"),
			"Total failed operations recorded.", nil, nil),
		errorRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "query", "error_rate"),
			"Failed operations as a fraction of total.", nil, nil),
		avgElapsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "query", "avg_elapsed_seconds"),
			"Mean elapsed time over the sample window.", nil, nil),
		emaElapsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "query", "ema_elapsed_seconds"),
			"Exponential moving average of elapsed time.", nil, nil),
		throughput: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "query", "throughput_ops"),
			"Operations per second over the sample window.", nil, nil),
		peakTput: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "query", "peak_throughput_ops"),
			"Highest observed window throughput.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalOps
	ch <- c.failedOps
	ch <- c.errorRate
	ch <- c.avgElapsed
	ch <- c.emaElapsed
	ch <- c.throughput
	ch <- c.peakTput
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	r := c.mon.GenerateReport()
	ch <- prometheus.MustNewConstMetric(c.totalOps, prometheus.CounterValue, float64(r.TotalOps))
	ch <- prometheus.MustNewConstMetric(c.failedOps, prometheus.CounterValue, float64(r.FailedOps))
	ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, r.ErrorRate)
	ch <- prometheus.MustNewConstMetric(c.avgElapsed, prometheus.GaugeValue, r.AvgElapsed.Seconds())
	ch <- prometheus.MustNewConstMetric(c.emaElapsed, prometheus.GaugeValue, r.EMAElapsed.Seconds())
	ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, r.Throughput)
	ch <- prometheus.MustNewConstMetric(c.peakTput, prometheus.GaugeValue, r.PeakThroughput)
}
