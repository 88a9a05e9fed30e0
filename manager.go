// Package tierstore offloads immutable log segments to an object store and
// serves random-access reads from them. Segments pass through a symmetric
// transform pipeline (chunk, optionally compress, optionally encrypt) on
// upload; reads locate the covering chunks through the segment manifest and
// rebuild plaintext through a single-flight chunk cache.
package tierstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kk-code-lab/tierstore/internal/crypto"
	"github.com/kk-code-lab/tierstore/internal/fetch"
	"github.com/kk-code-lab/tierstore/internal/manifest"
	"github.com/kk-code-lab/tierstore/internal/metrics"
	"github.com/kk-code-lab/tierstore/internal/segment"
	"github.com/kk-code-lab/tierstore/internal/storage"
	"github.com/kk-code-lab/tierstore/internal/transform"
)

// ErrOffsetOutOfRange reports a fetch start offset outside the segment.
var ErrOffsetOutOfRange = errors.New("tierstore: start offset out of range")

// Options configures a Manager.
type Options struct {
	Backend storage.Backend
	Config  Config
	Logger  zerolog.Logger
	// Executor runs prefetch work in the background. Defaults to one
	// goroutine per task. Manifests are fetched and parsed on the calling
	// goroutine.
	Executor fetch.Executor
}

// Manager implements the host's remote-storage surface over an object
// store. Safe for concurrent use.
type Manager struct {
	cfg     Config
	backend storage.Backend
	keys    *crypto.KeyPair
	factory segment.KeyFactory
	log     zerolog.Logger

	manifests *manifest.Provider
	chunks    *fetch.Manager
	cache     *fetch.Cache

	ops              *metrics.OpCounters
	chunkCounters    *metrics.CacheCounters
	manifestCounters *metrics.CacheCounters
}

// New builds a Manager from a parsed configuration and an object-store
// backend.
func New(opts Options) (*Manager, error) {
	if opts.Backend == nil {
		return nil, errors.New("tierstore: backend required")
	}
	cfg := opts.Config
	if cfg.ChunkSize == 0 {
		cfg = DefaultConfig()
	}
	m := &Manager{
		cfg:              cfg,
		backend:          opts.Backend,
		factory:          segment.KeyFactory{Prefix: cfg.KeyPrefix},
		log:              opts.Logger,
		ops:              metrics.NewOpCounters(),
		chunkCounters:    metrics.NewCacheCounters("chunk"),
		manifestCounters: metrics.NewCacheCounters("manifest"),
	}
	if cfg.EncryptionEnabled {
		keys, err := crypto.LoadKeyPair(cfg.PublicKeyFile, cfg.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		m.keys = keys
	}
	provider, err := manifest.NewProvider(manifest.ProviderOptions{
		Backend:   opts.Backend,
		Size:      cfg.ManifestCacheSize,
		Retention: cfg.ManifestCacheRetention,
		Logger:    opts.Logger,
		Counters:  m.manifestCounters,
	})
	if err != nil {
		return nil, err
	}
	m.manifests = provider
	cache, err := fetch.NewCache(fetch.CacheOptions{
		Size:      cfg.ChunkCacheSize,
		Retention: cfg.ChunkCacheRetention,
		Path:      cfg.ChunkCachePath,
		Logger:    opts.Logger,
		Counters:  m.chunkCounters,
		Executor:  opts.Executor,
	})
	if err != nil {
		return nil, err
	}
	m.cache = cache
	m.chunks = fetch.NewManager(opts.Backend, m.keys)
	return m, nil
}

// CopyLogSegment uploads the segment through the transform pipeline, its
// index files in parallel, and the manifest last.
func (m *Manager) CopyLogSegment(ctx context.Context, meta segment.Meta, data io.Reader, size int64, indexes map[segment.IndexType]io.Reader) error {
	compress := m.cfg.CompressionEnabled
	if compress && m.cfg.CompressionHeuristic {
		already, rest, err := m.sniff(data)
		if err != nil {
			return err
		}
		data = rest
		compress = !already
	}

	var enc *manifest.EncryptionMetadata
	var cipher *crypto.Cipher
	if m.cfg.EncryptionEnabled {
		dataKey, err := crypto.NewDataKey()
		if err != nil {
			return err
		}
		wrapped, err := m.keys.Wrap(dataKey.Key)
		if err != nil {
			return err
		}
		cipher, err = crypto.NewCipher(dataKey.Key, dataKey.AAD)
		if err != nil {
			return err
		}
		enc = &manifest.EncryptionMetadata{WrappedDataKey: wrapped, AAD: dataKey.AAD}
	}

	chunker, err := transform.NewChunker(data, m.cfg.ChunkSize)
	if err != nil {
		return err
	}
	var stream transform.ChunkStream = chunker
	if compress {
		stream = transform.NewCompressStream(stream)
	}
	if cipher != nil {
		stream = transform.NewEncryptStream(stream, cipher)
	}
	finisher := transform.NewFinisher(stream, size)

	logKey := m.factory.ObjectKey(meta, segment.SuffixLog)
	if err := m.backend.Upload(ctx, logKey, finisher); err != nil {
		return err
	}
	index, err := finisher.Index()
	if err != nil {
		return err
	}
	m.ops.AddBytesIn(index.TransformedTotal())

	indexSizes, err := m.uploadIndexes(ctx, meta, indexes)
	if err != nil {
		return err
	}

	man := &manifest.Manifest{
		Index:          index,
		Compressed:     compress,
		Encryption:     enc,
		SegmentIndexes: indexSizes,
	}
	encoded, err := manifest.Marshal(man)
	if err != nil {
		return err
	}
	manifestKey := m.factory.ObjectKey(meta, segment.SuffixManifest)
	if err := m.backend.Upload(ctx, manifestKey, bytes.NewReader(encoded)); err != nil {
		return err
	}
	m.ops.Record("copy_segment")
	m.log.Info().
		Str("segment", logKey).
		Int64("size", size).
		Int64("uploaded", index.TransformedTotal()).
		Bool("compressed", compress).
		Bool("encrypted", enc != nil).
		Msg("segment copied")
	return nil
}

// sniff reads the head of the segment and reports whether the first record
// batch is already compressed. The consumed bytes are stitched back onto
// the returned reader. A segment too short to sniff is uploaded
// uncompressed with a warning.
func (m *Manager) sniff(data io.Reader) (bool, io.Reader, error) {
	head := make([]byte, transform.SniffLen)
	n, err := io.ReadFull(data, head)
	rest := io.MultiReader(bytes.NewReader(head[:n]), data)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			m.log.Warn().Int("bytes", n).Msg("segment too short to sniff compression, uploading uncompressed")
			return true, rest, nil
		}
		return false, nil, fmt.Errorf("tierstore: sniff segment: %w", err)
	}
	already, err := transform.SniffCompression(head)
	if err != nil {
		m.log.Warn().Err(err).Msg("compression sniff failed, uploading uncompressed")
		return true, rest, nil
	}
	return already, rest, nil
}

func (m *Manager) uploadIndexes(ctx context.Context, meta segment.Meta, indexes map[segment.IndexType]io.Reader) (map[segment.IndexType]int, error) {
	sizes := make(map[segment.IndexType]int, len(indexes))
	var sizesMu sync.Mutex
	var group errgroup.Group
	for indexType, r := range indexes {
		if r == nil {
			continue
		}
		indexType, r := indexType, r
		group.Go(func() error {
			counter := &countingReader{r: r}
			key := m.factory.ObjectKey(meta, indexType.Suffix())
			if err := m.backend.Upload(ctx, key, counter); err != nil {
				return err
			}
			sizesMu.Lock()
			sizes[indexType] = int(counter.n)
			sizesMu.Unlock()
			m.ops.AddBytesIn(counter.n)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return sizes, nil
}

// FetchLogSegment returns the plaintext bytes of the segment from start to
// its end.
func (m *Manager) FetchLogSegment(ctx context.Context, meta segment.Meta, start int64) (io.ReadCloser, error) {
	return m.fetchRange(ctx, meta, start, -1)
}

// FetchLogSegmentRange returns the plaintext bytes [start, end] of the
// segment. end past the segment is clamped to its last byte.
func (m *Manager) FetchLogSegmentRange(ctx context.Context, meta segment.Meta, start, end int64) (io.ReadCloser, error) {
	if end < start {
		return nil, fmt.Errorf("tierstore: invalid range [%d, %d]", start, end)
	}
	return m.fetchRange(ctx, meta, start, end)
}

func (m *Manager) fetchRange(ctx context.Context, meta segment.Meta, start, end int64) (io.ReadCloser, error) {
	manifestKey := m.factory.ObjectKey(meta, segment.SuffixManifest)
	man, err := m.manifests.Get(ctx, manifestKey)
	if err != nil {
		return nil, err
	}
	total := man.Index.OriginalTotal()
	if start < 0 || start >= total {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOffsetOutOfRange, start, total)
	}
	if end < 0 || end >= total {
		end = total - 1
	}
	logKey := m.factory.ObjectKey(meta, segment.SuffixLog)
	reader, err := fetch.NewRangeReader(ctx, m.cache, m.chunks, logKey, man, start, end)
	if err != nil {
		return nil, err
	}
	m.prefetch(ctx, logKey, man, end)
	m.ops.Record("fetch_segment")
	m.ops.AddBytesOut(end - start + 1)
	return reader, nil
}

// prefetch schedules background materialization of the chunks following the
// requested range.
func (m *Manager) prefetch(ctx context.Context, logKey string, man *manifest.Manifest, end int64) {
	if m.cfg.PrefetchCount <= 0 {
		return
	}
	last, err := man.Index.FindChunkForOriginalOffset(end)
	if err != nil {
		return
	}
	count := man.Index.Count()
	keys := make([]fetch.ChunkKey, 0, m.cfg.PrefetchCount)
	for ordinal := last.Ordinal + 1; ordinal < count && len(keys) < m.cfg.PrefetchCount; ordinal++ {
		keys = append(keys, fetch.ChunkKey{SegmentKey: logKey, Ordinal: ordinal})
	}
	m.cache.Prepare(context.WithoutCancel(ctx), keys, func(key fetch.ChunkKey) fetch.Loader {
		return m.chunks.Loader(logKey, man, key.Ordinal)
	})
}

// FetchIndex returns one of the segment's index objects. A missing
// transaction index returns (nil, nil); every other missing index is an
// error.
func (m *Manager) FetchIndex(ctx context.Context, meta segment.Meta, indexType segment.IndexType) (io.ReadCloser, error) {
	key := m.factory.ObjectKey(meta, indexType.Suffix())
	body, err := m.backend.Fetch(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) && indexType == segment.TransactionIndex {
			return nil, nil
		}
		return nil, err
	}
	m.ops.Record("fetch_index")
	return body, nil
}

// DeleteLogSegmentData removes every object the segment may have persisted.
// Missing objects are skipped.
func (m *Manager) DeleteLogSegmentData(ctx context.Context, meta segment.Meta) error {
	for _, suffix := range segment.AllSuffixes() {
		if err := m.backend.Delete(ctx, m.factory.ObjectKey(meta, suffix)); err != nil {
			return err
		}
	}
	logKey := m.factory.ObjectKey(meta, segment.SuffixLog)
	m.chunks.Forget(logKey)
	m.manifests.Invalidate(m.factory.ObjectKey(meta, segment.SuffixManifest))
	m.ops.Record("delete_segment")
	return nil
}

// Close releases the chunk cache and logs a final metrics snapshot.
func (m *Manager) Close() error {
	err := m.cache.Close()
	ops := m.ops.Snapshot()
	chunk := m.chunkCounters.Snapshot()
	m.log.Info().
		Interface("operations", ops.Counts).
		Int64("bytes_in", ops.BytesIn).
		Int64("bytes_out", ops.BytesOut).
		Int64("chunk_cache_hits", chunk.Hits).
		Int64("chunk_cache_misses", chunk.Misses).
		Msg("tierstore closed")
	return err
}

// ManifestJSON returns the raw serialized manifest of a segment.
func (m *Manager) ManifestJSON(ctx context.Context, meta segment.Meta) ([]byte, error) {
	body, err := m.backend.Fetch(ctx, m.factory.ObjectKey(meta, segment.SuffixManifest))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// Collector exposes the manager's counters to a Prometheus registry.
func (m *Manager) Collector() *metrics.Collector {
	return metrics.NewCollector(m.ops, m.chunkCounters, m.manifestCounters)
}

// CacheStats snapshots the chunk cache counters.
func (m *Manager) CacheStats() metrics.CacheStats {
	return m.cache.Stats()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
