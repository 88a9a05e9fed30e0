package transform

import (
	"errors"
	"fmt"
	"io"

	"github.com/kk-code-lab/tierstore/internal/chunkindex"
)

// Chunker is the inbound base stage: it splits a source reader into fixed
// chunkSize blocks. The final block may be shorter.
type Chunker struct {
	r         io.Reader
	chunkSize int
	done      bool
}

// NewChunker creates the inbound base stage.
func NewChunker(r io.Reader, chunkSize int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, errors.New("transform: chunk size must be positive")
	}
	return &Chunker{r: r, chunkSize: chunkSize}, nil
}

func (c *Chunker) Next() ([]byte, error) {
	if c.done {
		return nil, io.EOF
	}
	buf := make([]byte, c.chunkSize)
	n, err := io.ReadFull(c.r, buf)
	switch {
	case err == io.EOF:
		c.done = true
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		c.done = true
		return buf[:n], nil
	case err != nil:
		c.done = true
		return nil, fmt.Errorf("transform: read source: %w", err)
	}
	return buf, nil
}

func (c *Chunker) OriginalChunkSize() int { return c.chunkSize }

// Dechunker is the outbound base stage: it reads exactly the transformed
// bytes of each given chunk from the source and yields them as one block
// per chunk.
type Dechunker struct {
	r         io.Reader
	chunks    []chunkindex.Chunk
	chunkSize int
	index     int
}

// NewDechunker creates the outbound base stage over the chunks the source
// reader was positioned to serve, in order.
func NewDechunker(r io.Reader, chunkSize int, chunks []chunkindex.Chunk) *Dechunker {
	return &Dechunker{r: r, chunks: chunks, chunkSize: chunkSize}
}

func (d *Dechunker) Next() ([]byte, error) {
	if d.index >= len(d.chunks) {
		return nil, io.EOF
	}
	c := d.chunks[d.index]
	d.index++
	buf := make([]byte, c.TransformedSize)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, fmt.Errorf("transform: read chunk %d: %w", c.Ordinal, err)
	}
	return buf, nil
}

func (d *Dechunker) OriginalChunkSize() int { return d.chunkSize }
