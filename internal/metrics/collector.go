package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitsDesc = prometheus.NewDesc(
		"tierstore_cache_hits_total",
		"Cache lookups served from memory or disk.",
		[]string{"cache"}, nil)
	cacheMissesDesc = prometheus.NewDesc(
		"tierstore_cache_misses_total",
		"Cache lookups that required a backend load.",
		[]string{"cache"}, nil)
	cacheLoadSuccessDesc = prometheus.NewDesc(
		"tierstore_cache_load_successes_total",
		"Cache loads that completed.",
		[]string{"cache"}, nil)
	cacheLoadFailureDesc = prometheus.NewDesc(
		"tierstore_cache_load_failures_total",
		"Cache loads that failed.",
		[]string{"cache"}, nil)
	cacheEvictionsDesc = prometheus.NewDesc(
		"tierstore_cache_evictions_total",
		"Cache entries discarded, by cause.",
		[]string{"cache", "cause"}, nil)
	opsDesc = prometheus.NewDesc(
		"tierstore_operations_total",
		"Completed segment operations, by kind.",
		[]string{"op"}, nil)
	bytesInDesc = prometheus.NewDesc(
		"tierstore_object_store_bytes_written_total",
		"Bytes uploaded to the object store.",
		nil, nil)
	bytesOutDesc = prometheus.NewDesc(
		"tierstore_plaintext_bytes_served_total",
		"Plaintext bytes served to the host.",
		nil, nil)
)

// Collector bridges the in-memory counters to a Prometheus registry.
type Collector struct {
	caches []*CacheCounters
	ops    *OpCounters
}

// NewCollector builds a collector over the given counter sets. Nil entries
// are skipped.
func NewCollector(ops *OpCounters, caches ...*CacheCounters) *Collector {
	kept := make([]*CacheCounters, 0, len(caches))
	for _, c := range caches {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return &Collector{caches: kept, ops: ops}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cacheHitsDesc
	ch <- cacheMissesDesc
	ch <- cacheLoadSuccessDesc
	ch <- cacheLoadFailureDesc
	ch <- cacheEvictionsDesc
	ch <- opsDesc
	ch <- bytesInDesc
	ch <- bytesOutDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, counters := range c.caches {
		stats := counters.Snapshot()
		ch <- prometheus.MustNewConstMetric(cacheHitsDesc, prometheus.CounterValue, float64(stats.Hits), stats.Name)
		ch <- prometheus.MustNewConstMetric(cacheMissesDesc, prometheus.CounterValue, float64(stats.Misses), stats.Name)
		ch <- prometheus.MustNewConstMetric(cacheLoadSuccessDesc, prometheus.CounterValue, float64(stats.LoadSuccesses), stats.Name)
		ch <- prometheus.MustNewConstMetric(cacheLoadFailureDesc, prometheus.CounterValue, float64(stats.LoadFailures), stats.Name)
		for cause, n := range stats.Evictions {
			ch <- prometheus.MustNewConstMetric(cacheEvictionsDesc, prometheus.CounterValue, float64(n), stats.Name, string(cause))
		}
	}
	if c.ops != nil {
		stats := c.ops.Snapshot()
		for op, n := range stats.Counts {
			ch <- prometheus.MustNewConstMetric(opsDesc, prometheus.CounterValue, float64(n), op)
		}
		ch <- prometheus.MustNewConstMetric(bytesInDesc, prometheus.CounterValue, float64(stats.BytesIn))
		ch <- prometheus.MustNewConstMetric(bytesOutDesc, prometheus.CounterValue, float64(stats.BytesOut))
	}
}

var _ prometheus.Collector = (*Collector)(nil)
