package cache

import "github.com/prometheus/client_golang/prometheus"

// Collectors returns Prometheus collectors reading the cache counters. The
// labels distinguish caches of different buffers.
func (c *Cache) Collectors(labels prometheus.Labels) []prometheus.Collector {
	counter := func(name, help string, f func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "tessera",
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(f()) })
	}
	return []prometheus.Collector{
		counter("hits_total", "Block reads served from the cache.", c.hits.Load),
		counter("misses_total", "Block reads that materialized from the tree.", c.misses.Load),
		counter("evictions_total", "Blocks evicted to stay within budget.", c.evictions.Load),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "tessera",
			Subsystem:   "cache",
			Name:        "bytes",
			Help:        "Bytes currently held by the cache.",
			ConstLabels: labels,
		}, func() float64 { return float64(c.bytes.Load()) }),
	}
}
