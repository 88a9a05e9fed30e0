package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kk-code-lab/tierstore/internal/manifest"
)

// RangeReader yields the plaintext bytes [from, to] of a segment as one
// concatenated sequence, pulling chunk streams from the cache one at a
// time. The head of the first chunk is skipped and the tail of the last is
// truncated so exactly to-from+1 bytes are emitted.
type RangeReader struct {
	ctx     context.Context
	cache   *Cache
	manager *Manager
	logKey  string
	man     *manifest.Manifest

	ordinal   int
	last      int
	skip      int64
	remaining int64
	chunk     io.ReadCloser
}

// NewRangeReader validates the range against the chunk index and returns a
// lazy reader over it. Both bounds are inclusive plaintext offsets.
func NewRangeReader(ctx context.Context, cache *Cache, manager *Manager, logKey string, man *manifest.Manifest, from, to int64) (*RangeReader, error) {
	if from < 0 || to < from {
		return nil, fmt.Errorf("fetch: invalid range [%d, %d]", from, to)
	}
	start, err := man.Index.FindChunkForOriginalOffset(from)
	if err != nil {
		return nil, err
	}
	end, err := man.Index.FindChunkForOriginalOffset(to)
	if err != nil {
		return nil, err
	}
	return &RangeReader{
		ctx:       ctx,
		cache:     cache,
		manager:   manager,
		logKey:    logKey,
		man:       man,
		ordinal:   start.Ordinal,
		last:      end.Ordinal,
		skip:      from - start.OriginalFrom,
		remaining: to - from + 1,
	}, nil
}

func (r *RangeReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) {
		if r.remaining == 0 {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		if err := r.checkContext(); err != nil {
			return n, err
		}
		if r.chunk == nil {
			if err := r.openNextChunk(); err != nil {
				return n, err
			}
		}
		limit := int64(len(p) - n)
		if limit > r.remaining {
			limit = r.remaining
		}
		copied, err := r.chunk.Read(p[n : n+int(limit)])
		n += copied
		r.remaining -= int64(copied)
		if err != nil {
			if errors.Is(err, io.EOF) {
				_ = r.chunk.Close()
				r.chunk = nil
				r.ordinal++
				continue
			}
			return n, err
		}
	}
	return n, nil
}

func (r *RangeReader) Close() error {
	if r.chunk != nil {
		err := r.chunk.Close()
		r.chunk = nil
		return err
	}
	return nil
}

func (r *RangeReader) openNextChunk() error {
	if r.ordinal > r.last {
		return io.ErrUnexpectedEOF
	}
	rc, err := r.cache.Fetch(r.ctx, ChunkKey{SegmentKey: r.logKey, Ordinal: r.ordinal},
		r.manager.Loader(r.logKey, r.man, r.ordinal))
	if err != nil {
		return err
	}
	if r.skip > 0 {
		if _, err := io.CopyN(io.Discard, rc, r.skip); err != nil {
			_ = rc.Close()
			return fmt.Errorf("fetch: skip chunk head: %w", err)
		}
		r.skip = 0
	}
	r.chunk = rc
	return nil
}

func (r *RangeReader) checkContext() error {
	if r.ctx == nil {
		return nil
	}
	select {
	case <-r.ctx.Done():
		return r.ctx.Err()
	default:
		return nil
	}
}

var _ io.ReadCloser = (*RangeReader)(nil)
