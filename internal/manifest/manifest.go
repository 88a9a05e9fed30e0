// Package manifest defines the segment manifest, its stable JSON form, and
// the cached provider that memoizes manifest fetches.
package manifest

import (
	"github.com/kk-code-lab/tierstore/internal/chunkindex"
	"github.com/kk-code-lab/tierstore/internal/segment"
)

// EncryptionMetadata carries the wrapped per-segment data key and the AAD
// bound into every chunk ciphertext.
type EncryptionMetadata struct {
	WrappedDataKey []byte
	AAD            []byte
}

// Manifest describes how a segment was chunked and transformed. Immutable
// once constructed.
type Manifest struct {
	Index      chunkindex.Index
	Compressed bool
	Encryption *EncryptionMetadata
	// SegmentIndexes records the uploaded size of each index object.
	SegmentIndexes map[segment.IndexType]int
}
