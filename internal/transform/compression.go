package transform

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Shared zstd coders; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("transform: zstd encoder init: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("transform: zstd decoder init: " + err.Error())
	}
}

// CompressStream compresses each block with zstd. One input block yields
// one output block of variable size.
type CompressStream struct {
	inner ChunkStream
}

// NewCompressStream wraps an inbound stage with per-block compression.
func NewCompressStream(inner ChunkStream) *CompressStream {
	return &CompressStream{inner: inner}
}

func (s *CompressStream) Next() ([]byte, error) {
	block, err := s.inner.Next()
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(block, nil), nil
}

func (s *CompressStream) OriginalChunkSize() int { return s.inner.OriginalChunkSize() }

// DecompressStream reverses CompressStream block by block.
type DecompressStream struct {
	inner ChunkStream
}

// NewDecompressStream wraps an outbound stage with per-block decompression.
func NewDecompressStream(inner ChunkStream) *DecompressStream {
	return &DecompressStream{inner: inner}
}

func (s *DecompressStream) Next() ([]byte, error) {
	block, err := s.inner.Next()
	if err != nil {
		return nil, err
	}
	plain, err := zstdDecoder.DecodeAll(block, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return plain, nil
}

func (s *DecompressStream) OriginalChunkSize() int { return s.inner.OriginalChunkSize() }
