// Package metrics collects in-memory counters for the tiered-storage core
// and exposes them to Prometheus.
package metrics

import (
	"sync"
	"sync/atomic"
)

// EvictionCause labels why a cache entry was discarded.
type EvictionCause string

const (
	EvictExpired EvictionCause = "EXPIRED"
	EvictSize    EvictionCause = "SIZE"
	EvictManual  EvictionCause = "MANUAL"
)

// CacheCounters tracks one cache's hit/miss/load/eviction activity.
// The zero value is unusable; create with NewCacheCounters. A nil receiver
// is a no-op so callers can leave metrics unwired.
type CacheCounters struct {
	name string

	hits          atomic.Int64
	misses        atomic.Int64
	loadSuccesses atomic.Int64
	loadFailures  atomic.Int64

	evictionsMu sync.Mutex
	evictions   map[EvictionCause]int64
}

// NewCacheCounters creates counters for the named cache.
func NewCacheCounters(name string) *CacheCounters {
	return &CacheCounters{
		name:      name,
		evictions: make(map[EvictionCause]int64),
	}
}

func (c *CacheCounters) Hit() {
	if c == nil {
		return
	}
	c.hits.Add(1)
}

func (c *CacheCounters) Miss() {
	if c == nil {
		return
	}
	c.misses.Add(1)
}

func (c *CacheCounters) LoadSuccess() {
	if c == nil {
		return
	}
	c.loadSuccesses.Add(1)
}

func (c *CacheCounters) LoadFailure() {
	if c == nil {
		return
	}
	c.loadFailures.Add(1)
}

func (c *CacheCounters) Eviction(cause EvictionCause) {
	if c == nil {
		return
	}
	c.evictionsMu.Lock()
	c.evictions[cause]++
	c.evictionsMu.Unlock()
}

// CacheStats is a point-in-time copy of one cache's counters.
type CacheStats struct {
	Name          string
	Hits          int64
	Misses        int64
	LoadSuccesses int64
	LoadFailures  int64
	Evictions     map[EvictionCause]int64
}

// Snapshot copies the current counter values.
func (c *CacheCounters) Snapshot() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	stats := CacheStats{
		Name:          c.name,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		LoadSuccesses: c.loadSuccesses.Load(),
		LoadFailures:  c.loadFailures.Load(),
		Evictions:     make(map[EvictionCause]int64),
	}
	c.evictionsMu.Lock()
	for cause, n := range c.evictions {
		stats.Evictions[cause] = n
	}
	c.evictionsMu.Unlock()
	return stats
}

// OpCounters tracks segment-level operations of the host surface.
type OpCounters struct {
	countsMu sync.Mutex
	counts   map[string]int64

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

// NewOpCounters creates empty operation counters.
func NewOpCounters() *OpCounters {
	return &OpCounters{counts: make(map[string]int64)}
}

// Record counts one completed operation, e.g. "copy_segment".
func (o *OpCounters) Record(op string) {
	if o == nil {
		return
	}
	o.countsMu.Lock()
	o.counts[op]++
	o.countsMu.Unlock()
}

// AddBytesIn counts bytes uploaded to the object store.
func (o *OpCounters) AddBytesIn(n int64) {
	if o == nil || n <= 0 {
		return
	}
	o.bytesIn.Add(n)
}

// AddBytesOut counts plaintext bytes served to the host.
func (o *OpCounters) AddBytesOut(n int64) {
	if o == nil || n <= 0 {
		return
	}
	o.bytesOut.Add(n)
}

// OpStats is a point-in-time copy of the operation counters.
type OpStats struct {
	Counts   map[string]int64
	BytesIn  int64
	BytesOut int64
}

// Snapshot copies the current counter values.
func (o *OpCounters) Snapshot() OpStats {
	if o == nil {
		return OpStats{}
	}
	stats := OpStats{
		Counts:   make(map[string]int64),
		BytesIn:  o.bytesIn.Load(),
		BytesOut: o.bytesOut.Load(),
	}
	o.countsMu.Lock()
	for op, n := range o.counts {
		stats.Counts[op] = n
	}
	o.countsMu.Unlock()
	return stats
}
