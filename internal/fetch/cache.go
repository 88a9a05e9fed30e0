// Package fetch implements the read path of the tiered-storage core: the
// chunk manager that rebuilds plaintext chunks from the object store, the
// chunk cache that memoizes them, and the range reader that stitches them
// into one byte sequence.
package fetch

import (
	"bytes"
	"container/list"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/kk-code-lab/tierstore/internal/metrics"
)

// ChunkKey identifies one plaintext chunk of an uploaded segment.
type ChunkKey struct {
	SegmentKey string
	Ordinal    int
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s#%d", k.SegmentKey, k.Ordinal)
}

// Loader materializes the plaintext bytes of one chunk.
type Loader func(ctx context.Context) (io.ReadCloser, error)

// Executor runs background work. The default spawns a goroutine per task.
type Executor func(task func())

// LoadError wraps a failure raised while materializing a cache entry. The
// underlying cause is preserved for errors.Is/As.
type LoadError struct {
	Key ChunkKey
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("fetch: load chunk %s: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CacheOptions configures the chunk cache.
type CacheOptions struct {
	// Size bounds the total cached plaintext bytes; -1 disables the bound.
	Size int64
	// Retention evicts entries this long after insertion; -1 disables
	// time-based expiry.
	Retention time.Duration
	// Path, when set, materializes payloads as files under this directory
	// instead of holding them in memory.
	Path     string
	Logger   zerolog.Logger
	Counters *metrics.CacheCounters
	Executor Executor
}

type cacheEntry struct {
	key        ChunkKey
	data       []byte // nil when disk-backed
	path       string // empty when in memory
	size       int64
	insertedAt time.Time
}

// Cache memoizes plaintext chunk payloads by ChunkKey. Concurrent misses on
// the same key share one load; every caller receives a freshly positioned
// stream over the cached bytes. Failed loads are never cached.
type Cache struct {
	size      int64
	retention time.Duration
	dir       string
	log       zerolog.Logger
	counters  *metrics.CacheCounters
	execute   Executor

	group singleflight.Group

	mu      sync.Mutex
	entries map[ChunkKey]*list.Element
	lru     *list.List // front = most recent
	total   int64
	closed  bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// NewCache builds a chunk cache.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Size == 0 || opts.Size < -1 {
		return nil, fmt.Errorf("fetch: cache size must be positive or -1")
	}
	if opts.Retention == 0 || opts.Retention < -1 {
		return nil, fmt.Errorf("fetch: cache retention must be positive or -1")
	}
	if opts.Path != "" {
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("fetch: create cache dir: %w", err)
		}
	}
	execute := opts.Executor
	if execute == nil {
		execute = func(task func()) { go task() }
	}
	c := &Cache{
		size:      opts.Size,
		retention: opts.Retention,
		dir:       opts.Path,
		log:       opts.Logger,
		counters:  opts.Counters,
		execute:   execute,
		entries:   make(map[ChunkKey]*list.Element),
		lru:       list.New(),
	}
	if c.retention > 0 {
		c.sweepStop = make(chan struct{})
		c.sweepDone = make(chan struct{})
		go c.sweep()
	}
	return c, nil
}

// Fetch returns a fresh stream over the chunk's plaintext bytes, loading
// and caching them on a miss.
func (c *Cache) Fetch(ctx context.Context, key ChunkKey, load Loader) (io.ReadCloser, error) {
	if rc, ok := c.open(key); ok {
		c.counters.Hit()
		return rc, nil
	}
	c.counters.Miss()
	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if data, ok := c.payload(key); ok {
			return data, nil
		}
		data, err := c.materialize(ctx, key, load)
		if err != nil {
			c.counters.LoadFailure()
			return nil, &LoadError{Key: key, Err: err}
		}
		c.counters.LoadSuccess()
		c.insert(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(v.([]byte))), nil
}

// Prepare schedules background materialization for the given keys without
// blocking. Completion is observable via Fetch.
func (c *Cache) Prepare(ctx context.Context, keys []ChunkKey, load func(ChunkKey) Loader) {
	for _, key := range keys {
		c.mu.Lock()
		_, present := c.entries[key]
		closed := c.closed
		c.mu.Unlock()
		if present || closed {
			continue
		}
		key := key
		c.execute(func() {
			rc, err := c.Fetch(ctx, key, load(key))
			if err != nil {
				c.log.Debug().Err(err).Str("chunk", key.String()).Msg("prefetch failed")
				return
			}
			_ = rc.Close()
		})
	}
}

// Invalidate drops the entry for the key, if present.
func (c *Cache) Invalidate(key ChunkKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.evictLocked(elem, metrics.EvictManual)
	}
}

// Stats snapshots the cache counters.
func (c *Cache) Stats() metrics.CacheStats {
	return c.counters.Snapshot()
}

// Close stops the sweeper and removes every cached entry, deleting any
// disk-backed payload files.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for c.lru.Len() > 0 {
		c.evictLocked(c.lru.Back(), metrics.EvictManual)
	}
	c.mu.Unlock()
	if c.sweepStop != nil {
		close(c.sweepStop)
		<-c.sweepDone
	}
	return nil
}

// open returns a fresh reader over a present, unexpired entry.
func (c *Cache) open(key ChunkKey) (io.ReadCloser, bool) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.expired(entry, time.Now()) {
		c.evictLocked(elem, metrics.EvictExpired)
		c.mu.Unlock()
		return nil, false
	}
	c.lru.MoveToFront(elem)
	data, path := entry.data, entry.path
	c.mu.Unlock()

	if data != nil {
		return io.NopCloser(bytes.NewReader(data)), true
	}
	file, err := os.Open(path)
	if err != nil {
		c.log.Warn().Err(err).Str("chunk", key.String()).Msg("cached chunk file unreadable, reloading")
		c.Invalidate(key)
		return nil, false
	}
	return file, true
}

// payload returns the raw bytes of a present, unexpired entry. Used inside
// the flight to re-check after acquiring the key.
func (c *Cache) payload(key ChunkKey) ([]byte, bool) {
	rc, ok := c.open(key)
	if !ok {
		return nil, false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) materialize(ctx context.Context, key ChunkKey, load Loader) ([]byte, error) {
	rc, err := load(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Cache) insert(key ChunkKey, data []byte) {
	entry := &cacheEntry{
		key:        key,
		size:       int64(len(data)),
		insertedAt: time.Now(),
	}
	if c.dir != "" {
		path, err := c.writeFile(key, data)
		if err != nil {
			c.log.Warn().Err(err).Str("chunk", key.String()).Msg("cache file write failed, holding in memory")
			entry.data = data
		} else {
			entry.path = path
		}
	} else {
		entry.data = data
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if entry.path != "" {
			c.removeFile(entry)
		}
		return
	}
	if elem, ok := c.entries[key]; ok {
		c.evictLocked(elem, metrics.EvictManual)
	}
	elem := c.lru.PushFront(entry)
	c.entries[key] = elem
	c.total += entry.size
	if c.size > 0 {
		for c.total > c.size && c.lru.Len() > 0 {
			c.evictLocked(c.lru.Back(), metrics.EvictSize)
		}
	}
}

func (c *Cache) evictLocked(elem *list.Element, cause metrics.EvictionCause) {
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.key)
	c.total -= entry.size
	c.counters.Eviction(cause)
	if entry.path != "" {
		c.removeFile(entry)
	}
}

func (c *Cache) removeFile(entry *cacheEntry) {
	if err := os.Remove(entry.path); err != nil && !os.IsNotExist(err) {
		c.log.Warn().Err(err).Str("chunk", entry.key.String()).Msg("cache file delete failed")
	}
}

func (c *Cache) writeFile(key ChunkKey, data []byte) (string, error) {
	sum := blake3.Sum256([]byte(key.String()))
	path := filepath.Join(c.dir, hex.EncodeToString(sum[:]))
	tmp, err := os.CreateTemp(c.dir, ".chunk-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

func (c *Cache) expired(entry *cacheEntry, now time.Time) bool {
	return c.retention > 0 && now.Sub(entry.insertedAt) >= c.retention
}

func (c *Cache) sweep() {
	defer close(c.sweepDone)
	interval := c.retention / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.sweepStop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for elem := c.lru.Back(); elem != nil; {
				prev := elem.Prev()
				if c.expired(elem.Value.(*cacheEntry), now) {
					c.evictLocked(elem, metrics.EvictExpired)
				}
				elem = prev
			}
			c.mu.Unlock()
		}
	}
}
