package transform

import (
	"errors"
	"io"

	"github.com/kk-code-lab/tierstore/internal/chunkindex"
)

// Finisher drives an inbound stream to completion. It presents the
// transformed blocks as one contiguous io.Reader for the uploader and
// records per-block sizes so the chunk index can be emitted afterwards.
// The index is unavailable until the stream is fully consumed.
type Finisher struct {
	stream           ChunkStream
	originalTotal    int64
	transformedSizes []int
	buf              []byte
	off              int
	done             bool
	err              error
}

// NewFinisher wraps the final inbound stage. originalTotal is the plaintext
// size of the segment.
func NewFinisher(stream ChunkStream, originalTotal int64) *Finisher {
	return &Finisher{stream: stream, originalTotal: originalTotal}
}

func (f *Finisher) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) {
		if f.off >= len(f.buf) {
			if f.done {
				if n > 0 {
					return n, nil
				}
				return 0, io.EOF
			}
			if f.err != nil {
				return n, f.err
			}
			block, err := f.stream.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					f.done = true
					continue
				}
				f.err = err
				return n, err
			}
			f.transformedSizes = append(f.transformedSizes, len(block))
			f.buf = block
			f.off = 0
			continue
		}
		copied := copy(p[n:], f.buf[f.off:])
		n += copied
		f.off += copied
	}
	return n, nil
}

// Index builds the chunk index from the recorded sizes. It emits the
// compact fixed form when all non-final blocks are identical in both
// dimensions, and the variable form otherwise.
func (f *Finisher) Index() (chunkindex.Index, error) {
	if !f.done {
		return nil, errors.New("transform: stream not fully consumed")
	}
	chunkSize := f.stream.OriginalChunkSize()
	sizes := f.transformedSizes
	if len(sizes) == 0 {
		return chunkindex.NewFixed(chunkSize, 0, chunkSize, 0)
	}
	if fixed, total := fixedForm(sizes); fixed > 0 {
		return chunkindex.NewFixed(chunkSize, f.originalTotal, fixed, total)
	}
	return chunkindex.NewVariable(chunkSize, f.originalTotal, sizes)
}

// fixedForm returns the shared transformed chunk size and the transformed
// total when the sizes fit the fixed representation, or 0.
func fixedForm(sizes []int) (int, int64) {
	common := sizes[0]
	var total int64
	for i, size := range sizes {
		total += int64(size)
		if i < len(sizes)-1 && size != common {
			return 0, 0
		}
	}
	if sizes[len(sizes)-1] > common {
		return 0, 0
	}
	return common, total
}
