// Package transform implements the symmetric segment transform pipeline:
// inbound (split, compress, encrypt) on the write path and outbound
// (dechunk, decrypt, decompress) on the read path. Streams are lazy,
// finite, and pull one block at a time; each stage preserves block
// identity so a random byte read lands on a single chunk.
package transform

import (
	"errors"
	"io"
)

// ErrCorrupt reports a block that failed to decompress.
var ErrCorrupt = errors.New("transform: corrupt compressed chunk")

// ChunkStream is a lazy, finite, non-restartable sequence of byte blocks.
type ChunkStream interface {
	// Next returns the next block, or io.EOF when the stream is exhausted.
	Next() ([]byte, error)
	// OriginalChunkSize returns the fixed plaintext block size the stream
	// was chunked with.
	OriginalChunkSize() int
}

// NewReader adapts a chunk stream to io.ReadCloser, concatenating blocks.
// Closing closes the underlying source exactly once.
func NewReader(stream ChunkStream, source io.Closer) io.ReadCloser {
	return &streamReader{stream: stream, source: source}
}

type streamReader struct {
	stream ChunkStream
	source io.Closer
	buf    []byte
	off    int
	err    error
}

func (r *streamReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) {
		if r.off >= len(r.buf) {
			if r.err != nil {
				if n > 0 && errors.Is(r.err, io.EOF) {
					return n, nil
				}
				return n, r.err
			}
			block, err := r.stream.Next()
			if err != nil {
				r.err = err
				if n > 0 && errors.Is(err, io.EOF) {
					return n, nil
				}
				return n, err
			}
			r.buf = block
			r.off = 0
			continue
		}
		copied := copy(p[n:], r.buf[r.off:])
		n += copied
		r.off += copied
	}
	return n, nil
}

func (r *streamReader) Close() error {
	if r.source == nil {
		return nil
	}
	src := r.source
	r.source = nil
	return src.Close()
}
