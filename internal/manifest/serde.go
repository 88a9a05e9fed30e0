package manifest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kk-code-lab/tierstore/internal/chunkindex"
	"github.com/kk-code-lab/tierstore/internal/segment"
)

// ErrParse reports malformed manifest JSON.
var ErrParse = errors.New("manifest: parse failed")

// ErrVersionUnknown reports an unrecognized manifest or chunk index type tag.
var ErrVersionUnknown = errors.New("manifest: unknown version")

const (
	typeV1            = "v1"
	indexTypeFixed    = "fixed"
	indexTypeVariable = "variable"
)

type manifestJSON struct {
	Type           string          `json:"type"`
	ChunkIndex     chunkIndexJSON  `json:"chunkIndex"`
	Compression    bool            `json:"compression"`
	Encryption     *encryptionJSON `json:"encryption,omitempty"`
	SegmentIndexes map[string]int  `json:"segmentIndexes,omitempty"`
}

type chunkIndexJSON struct {
	Type                 string `json:"type"`
	OriginalChunkSize    int    `json:"originalChunkSize"`
	OriginalFileSize     int64  `json:"originalFileSize"`
	TransformedChunkSize *int   `json:"transformedChunkSize,omitempty"`
	TransformedFileSize  *int64 `json:"transformedFileSize,omitempty"`
	TransformedChunks    []int  `json:"transformedChunks,omitempty"`
}

type encryptionJSON struct {
	DataKey []byte `json:"dataKey"`
	AAD     []byte `json:"aad"`
}

// Marshal serializes a manifest to its stable JSON form.
func Marshal(m *Manifest) ([]byte, error) {
	if m == nil || m.Index == nil {
		return nil, errors.New("manifest: nil manifest")
	}
	out := manifestJSON{
		Type:        typeV1,
		Compression: m.Compressed,
	}
	switch idx := m.Index.(type) {
	case *chunkindex.Fixed:
		size := idx.TransformedChunkSize()
		total := idx.TransformedTotal()
		out.ChunkIndex = chunkIndexJSON{
			Type:                 indexTypeFixed,
			OriginalChunkSize:    idx.OriginalChunkSize(),
			OriginalFileSize:     idx.OriginalTotal(),
			TransformedChunkSize: &size,
			TransformedFileSize:  &total,
		}
	case *chunkindex.Variable:
		out.ChunkIndex = chunkIndexJSON{
			Type:              indexTypeVariable,
			OriginalChunkSize: idx.OriginalChunkSize(),
			OriginalFileSize:  idx.OriginalTotal(),
			TransformedChunks: idx.TransformedSizes(),
		}
	default:
		return nil, fmt.Errorf("manifest: unsupported chunk index type %T", m.Index)
	}
	if m.Encryption != nil {
		out.Encryption = &encryptionJSON{
			DataKey: m.Encryption.WrappedDataKey,
			AAD:     m.Encryption.AAD,
		}
	}
	if len(m.SegmentIndexes) > 0 {
		sizes := make(map[string]int, len(m.SegmentIndexes))
		for t, size := range m.SegmentIndexes {
			sizes[t.String()] = size
		}
		out.SegmentIndexes = sizes
	}
	return json.Marshal(out)
}

// Unmarshal parses the stable JSON form. Unknown manifest versions and
// chunk index variants are hard errors and must never be cached.
func Unmarshal(data []byte) (*Manifest, error) {
	var raw manifestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if raw.Type != typeV1 {
		return nil, fmt.Errorf("%w: manifest type %q", ErrVersionUnknown, raw.Type)
	}
	index, err := parseChunkIndex(raw.ChunkIndex)
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		Index:      index,
		Compressed: raw.Compression,
	}
	if raw.Encryption != nil {
		if len(raw.Encryption.DataKey) == 0 {
			return nil, fmt.Errorf("%w: empty wrapped data key", ErrParse)
		}
		m.Encryption = &EncryptionMetadata{
			WrappedDataKey: raw.Encryption.DataKey,
			AAD:            raw.Encryption.AAD,
		}
	}
	if len(raw.SegmentIndexes) > 0 {
		sizes := make(map[segment.IndexType]int, len(raw.SegmentIndexes))
		for name, size := range raw.SegmentIndexes {
			t, err := segment.ParseIndexType(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
			sizes[t] = size
		}
		m.SegmentIndexes = sizes
	}
	return m, nil
}

func parseChunkIndex(raw chunkIndexJSON) (chunkindex.Index, error) {
	switch raw.Type {
	case indexTypeFixed:
		if raw.TransformedChunkSize == nil || raw.TransformedFileSize == nil {
			return nil, fmt.Errorf("%w: fixed chunk index missing transformed sizes", ErrParse)
		}
		index, err := chunkindex.NewFixed(raw.OriginalChunkSize, raw.OriginalFileSize, *raw.TransformedChunkSize, *raw.TransformedFileSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return index, nil
	case indexTypeVariable:
		index, err := chunkindex.NewVariable(raw.OriginalChunkSize, raw.OriginalFileSize, raw.TransformedChunks)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return index, nil
	default:
		return nil, fmt.Errorf("%w: chunk index type %q", ErrVersionUnknown, raw.Type)
	}
}
