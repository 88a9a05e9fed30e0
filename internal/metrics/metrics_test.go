package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheCountersSnapshot(t *testing.T) {
	c := NewCacheCounters("chunk")
	c.Hit()
	c.Hit()
	c.Miss()
	c.LoadSuccess()
	c.LoadFailure()
	c.Eviction(EvictSize)
	c.Eviction(EvictSize)
	c.Eviction(EvictExpired)

	stats := c.Snapshot()
	if stats.Name != "chunk" {
		t.Fatalf("Name = %q", stats.Name)
	}
	if stats.Hits != 2 || stats.Misses != 1 || stats.LoadSuccesses != 1 || stats.LoadFailures != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Evictions[EvictSize] != 2 || stats.Evictions[EvictExpired] != 1 {
		t.Fatalf("evictions = %v", stats.Evictions)
	}

	// The snapshot is a copy, not a view.
	c.Eviction(EvictManual)
	if _, ok := stats.Evictions[EvictManual]; ok {
		t.Fatal("snapshot reflects later mutations")
	}
}

func TestNilCountersAreNoOps(t *testing.T) {
	var c *CacheCounters
	c.Hit()
	c.Miss()
	c.LoadSuccess()
	c.LoadFailure()
	c.Eviction(EvictManual)
	if stats := c.Snapshot(); stats.Hits != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	var o *OpCounters
	o.Record("copy_segment")
	o.AddBytesIn(10)
	o.AddBytesOut(10)
	if stats := o.Snapshot(); stats.BytesIn != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCacheCountersConcurrent(t *testing.T) {
	c := NewCacheCounters("chunk")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Hit()
				c.Eviction(EvictExpired)
			}
		}()
	}
	wg.Wait()
	stats := c.Snapshot()
	if stats.Hits != 800 || stats.Evictions[EvictExpired] != 800 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestOpCountersSnapshot(t *testing.T) {
	o := NewOpCounters()
	o.Record("copy_segment")
	o.Record("copy_segment")
	o.Record("fetch_segment")
	o.AddBytesIn(1024)
	o.AddBytesOut(512)
	o.AddBytesIn(-5)

	stats := o.Snapshot()
	if stats.Counts["copy_segment"] != 2 || stats.Counts["fetch_segment"] != 1 {
		t.Fatalf("counts = %v", stats.Counts)
	}
	if stats.BytesIn != 1024 || stats.BytesOut != 512 {
		t.Fatalf("bytes = %d/%d", stats.BytesIn, stats.BytesOut)
	}
}

func TestCollectorExposesCounters(t *testing.T) {
	ops := NewOpCounters()
	ops.Record("copy_segment")
	ops.AddBytesIn(100)
	ops.AddBytesOut(40)
	chunk := NewCacheCounters("chunk")
	chunk.Hit()
	chunk.Miss()
	chunk.Eviction(EvictSize)
	man := NewCacheCounters("manifest")
	man.Hit()

	collector := NewCollector(ops, chunk, man)
	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(collector); err != nil {
		t.Fatalf("Register: %v", err)
	}

	expected := `
# HELP tierstore_cache_hits_total Cache lookups served from memory or disk.
# TYPE tierstore_cache_hits_total counter
tierstore_cache_hits_total{cache="chunk"} 1
tierstore_cache_hits_total{cache="manifest"} 1
# HELP tierstore_cache_misses_total Cache lookups that required a backend load.
# TYPE tierstore_cache_misses_total counter
tierstore_cache_misses_total{cache="chunk"} 1
tierstore_cache_misses_total{cache="manifest"} 0
# HELP tierstore_cache_evictions_total Cache entries discarded, by cause.
# TYPE tierstore_cache_evictions_total counter
tierstore_cache_evictions_total{cache="chunk",cause="SIZE"} 1
# HELP tierstore_operations_total Completed segment operations, by kind.
# TYPE tierstore_operations_total counter
tierstore_operations_total{op="copy_segment"} 1
# HELP tierstore_object_store_bytes_written_total Bytes uploaded to the object store.
# TYPE tierstore_object_store_bytes_written_total counter
tierstore_object_store_bytes_written_total 100
# HELP tierstore_plaintext_bytes_served_total Plaintext bytes served to the host.
# TYPE tierstore_plaintext_bytes_served_total counter
tierstore_plaintext_bytes_served_total 40
`
	err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"tierstore_cache_hits_total",
		"tierstore_cache_misses_total",
		"tierstore_cache_evictions_total",
		"tierstore_operations_total",
		"tierstore_object_store_bytes_written_total",
		"tierstore_plaintext_bytes_served_total",
	)
	if err != nil {
		t.Fatalf("GatherAndCompare: %v", err)
	}
}
