package chunkindex

import (
	"errors"
	"fmt"
	"sort"
)

// ErrOutOfRange is returned for offsets outside [0, OriginalTotal).
var ErrOutOfRange = errors.New("chunkindex: offset out of range")

// Chunk locates one block of a segment in both coordinate spaces.
// Original positions address the plaintext; transformed positions address
// bytes in the uploaded object.
type Chunk struct {
	Ordinal         int
	OriginalFrom    int64
	OriginalSize    int
	TransformedFrom int64
	TransformedSize int
}

// Index maps plaintext byte offsets to stored chunks. Implementations are
// immutable after construction and safe for concurrent readers.
type Index interface {
	// FindChunkForOriginalOffset returns the chunk containing the plaintext
	// offset, or ErrOutOfRange.
	FindChunkForOriginalOffset(offset int64) (Chunk, error)
	// Get returns the chunk with the given ordinal, or ErrOutOfRange.
	Get(ordinal int) (Chunk, error)
	// Count returns the number of chunks.
	Count() int
	// Chunks returns all chunks in ordinal order.
	Chunks() []Chunk
	// OriginalChunkSize returns the fixed plaintext block size.
	OriginalChunkSize() int
	// OriginalTotal returns the plaintext size of the segment.
	OriginalTotal() int64
	// TransformedTotal returns the size of the uploaded object.
	TransformedTotal() int64
}

func chunkCount(total int64, chunkSize int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(chunkSize) - 1) / int64(chunkSize))
}

// Fixed is a chunk index where every chunk shares one original and one
// transformed size, except possibly the final chunk. Lookups are arithmetic.
type Fixed struct {
	originalChunkSize    int
	originalTotal        int64
	transformedChunkSize int
	transformedTotal     int64
	count                int
}

// NewFixed validates the compact representation and returns a Fixed index.
func NewFixed(originalChunkSize int, originalTotal int64, transformedChunkSize int, transformedTotal int64) (*Fixed, error) {
	if originalChunkSize <= 0 {
		return nil, errors.New("chunkindex: original chunk size must be positive")
	}
	if originalTotal < 0 || transformedTotal < 0 {
		return nil, errors.New("chunkindex: negative total")
	}
	count := chunkCount(originalTotal, originalChunkSize)
	if count == 0 {
		if transformedTotal != 0 {
			return nil, errors.New("chunkindex: empty original with non-empty transformed")
		}
		return &Fixed{
			originalChunkSize:    originalChunkSize,
			transformedChunkSize: transformedChunkSize,
		}, nil
	}
	if transformedChunkSize <= 0 {
		return nil, errors.New("chunkindex: transformed chunk size must be positive")
	}
	lastTransformed := transformedTotal - int64(count-1)*int64(transformedChunkSize)
	if lastTransformed <= 0 || lastTransformed > int64(transformedChunkSize) {
		return nil, fmt.Errorf("chunkindex: transformed total %d inconsistent with %d chunks of %d", transformedTotal, count, transformedChunkSize)
	}
	return &Fixed{
		originalChunkSize:    originalChunkSize,
		originalTotal:        originalTotal,
		transformedChunkSize: transformedChunkSize,
		transformedTotal:     transformedTotal,
		count:                count,
	}, nil
}

func (x *Fixed) FindChunkForOriginalOffset(offset int64) (Chunk, error) {
	if offset < 0 || offset >= x.originalTotal {
		return Chunk{}, fmt.Errorf("chunkindex: offset %d not in [0, %d): %w", offset, x.originalTotal, ErrOutOfRange)
	}
	return x.chunk(int(offset / int64(x.originalChunkSize))), nil
}

func (x *Fixed) Get(ordinal int) (Chunk, error) {
	if ordinal < 0 || ordinal >= x.count {
		return Chunk{}, fmt.Errorf("chunkindex: ordinal %d not in [0, %d): %w", ordinal, x.count, ErrOutOfRange)
	}
	return x.chunk(ordinal), nil
}

func (x *Fixed) chunk(ordinal int) Chunk {
	c := Chunk{
		Ordinal:         ordinal,
		OriginalFrom:    int64(ordinal) * int64(x.originalChunkSize),
		OriginalSize:    x.originalChunkSize,
		TransformedFrom: int64(ordinal) * int64(x.transformedChunkSize),
		TransformedSize: x.transformedChunkSize,
	}
	if ordinal == x.count-1 {
		c.OriginalSize = int(x.originalTotal - c.OriginalFrom)
		c.TransformedSize = int(x.transformedTotal - c.TransformedFrom)
	}
	return c
}

func (x *Fixed) Count() int { return x.count }

func (x *Fixed) Chunks() []Chunk {
	chunks := make([]Chunk, x.count)
	for i := range chunks {
		chunks[i] = x.chunk(i)
	}
	return chunks
}

func (x *Fixed) OriginalChunkSize() int { return x.originalChunkSize }

func (x *Fixed) OriginalTotal() int64 { return x.originalTotal }

func (x *Fixed) TransformedTotal() int64 { return x.transformedTotal }

// TransformedChunkSize returns the shared transformed block size.
func (x *Fixed) TransformedChunkSize() int { return x.transformedChunkSize }

// Variable is a chunk index with explicit per-chunk transformed sizes, used
// when transformation changes block sizes unevenly. Offset lookups search
// the precomputed prefix sums.
type Variable struct {
	originalChunkSize int
	originalTotal     int64
	transformedTotal  int64
	chunks            []Chunk
}

// NewVariable builds a Variable index from the per-chunk transformed sizes.
func NewVariable(originalChunkSize int, originalTotal int64, transformedSizes []int) (*Variable, error) {
	if originalChunkSize <= 0 {
		return nil, errors.New("chunkindex: original chunk size must be positive")
	}
	if originalTotal < 0 {
		return nil, errors.New("chunkindex: negative total")
	}
	count := chunkCount(originalTotal, originalChunkSize)
	if len(transformedSizes) != count {
		return nil, fmt.Errorf("chunkindex: %d transformed sizes for %d chunks", len(transformedSizes), count)
	}
	chunks := make([]Chunk, count)
	var originalFrom, transformedFrom int64
	for i, size := range transformedSizes {
		if size <= 0 {
			return nil, fmt.Errorf("chunkindex: transformed size of chunk %d must be positive", i)
		}
		originalSize := originalChunkSize
		if i == count-1 {
			originalSize = int(originalTotal - originalFrom)
		}
		chunks[i] = Chunk{
			Ordinal:         i,
			OriginalFrom:    originalFrom,
			OriginalSize:    originalSize,
			TransformedFrom: transformedFrom,
			TransformedSize: size,
		}
		originalFrom += int64(originalSize)
		transformedFrom += int64(size)
	}
	return &Variable{
		originalChunkSize: originalChunkSize,
		originalTotal:     originalTotal,
		transformedTotal:  transformedFrom,
		chunks:            chunks,
	}, nil
}

func (x *Variable) FindChunkForOriginalOffset(offset int64) (Chunk, error) {
	if offset < 0 || offset >= x.originalTotal {
		return Chunk{}, fmt.Errorf("chunkindex: offset %d not in [0, %d): %w", offset, x.originalTotal, ErrOutOfRange)
	}
	i := sort.Search(len(x.chunks), func(i int) bool {
		return x.chunks[i].OriginalFrom+int64(x.chunks[i].OriginalSize) > offset
	})
	return x.chunks[i], nil
}

func (x *Variable) Get(ordinal int) (Chunk, error) {
	if ordinal < 0 || ordinal >= len(x.chunks) {
		return Chunk{}, fmt.Errorf("chunkindex: ordinal %d not in [0, %d): %w", ordinal, len(x.chunks), ErrOutOfRange)
	}
	return x.chunks[ordinal], nil
}

func (x *Variable) Count() int { return len(x.chunks) }

func (x *Variable) Chunks() []Chunk {
	chunks := make([]Chunk, len(x.chunks))
	copy(chunks, x.chunks)
	return chunks
}

func (x *Variable) OriginalChunkSize() int { return x.originalChunkSize }

func (x *Variable) OriginalTotal() int64 { return x.originalTotal }

func (x *Variable) TransformedTotal() int64 { return x.transformedTotal }

// TransformedSizes returns the per-chunk transformed sizes.
func (x *Variable) TransformedSizes() []int {
	sizes := make([]int, len(x.chunks))
	for i, c := range x.chunks {
		sizes[i] = c.TransformedSize
	}
	return sizes
}
