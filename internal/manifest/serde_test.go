package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/kk-code-lab/tierstore/internal/chunkindex"
	"github.com/kk-code-lab/tierstore/internal/segment"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	fixed, err := chunkindex.NewFixed(10, 25, 38, 95)
	if err != nil {
		t.Fatalf("NewFixed: %v", err)
	}
	variable, err := chunkindex.NewVariable(10, 25, []int{8, 12, 3})
	if err != nil {
		t.Fatalf("NewVariable: %v", err)
	}

	cases := []struct {
		name string
		man  *Manifest
	}{
		{name: "fixed-plain", man: &Manifest{Index: fixed}},
		{name: "fixed-compressed", man: &Manifest{Index: fixed, Compressed: true}},
		{name: "variable-compressed", man: &Manifest{Index: variable, Compressed: true}},
		{
			name: "encrypted-with-indexes",
			man: &Manifest{
				Index:      fixed,
				Compressed: true,
				Encryption: &EncryptionMetadata{
					WrappedDataKey: []byte("wrapped-key-material"),
					AAD:            []byte("aad-material"),
				},
				SegmentIndexes: map[segment.IndexType]int{
					segment.OffsetIndex:    128,
					segment.TimestampIndex: 64,
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Marshal(tc.man)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Compressed != tc.man.Compressed {
				t.Fatalf("Compressed = %v", got.Compressed)
			}
			if !reflect.DeepEqual(got.Index.Chunks(), tc.man.Index.Chunks()) {
				t.Fatal("chunk index differs after round trip")
			}
			if tc.man.Encryption == nil {
				if got.Encryption != nil {
					t.Fatal("unexpected encryption metadata")
				}
			} else {
				if !bytes.Equal(got.Encryption.WrappedDataKey, tc.man.Encryption.WrappedDataKey) {
					t.Fatal("wrapped data key differs")
				}
				if !bytes.Equal(got.Encryption.AAD, tc.man.Encryption.AAD) {
					t.Fatal("aad differs")
				}
			}
			if tc.man.SegmentIndexes != nil && !reflect.DeepEqual(got.SegmentIndexes, tc.man.SegmentIndexes) {
				t.Fatalf("segment indexes = %v", got.SegmentIndexes)
			}
		})
	}
}

func TestMarshalStableFields(t *testing.T) {
	fixed, err := chunkindex.NewFixed(10, 20, 10, 20)
	if err != nil {
		t.Fatalf("NewFixed: %v", err)
	}
	data, err := Marshal(&Manifest{Index: fixed, Compressed: true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("json: %v", err)
	}
	if raw["type"] != "v1" {
		t.Fatalf("type = %v", raw["type"])
	}
	index, ok := raw["chunkIndex"].(map[string]any)
	if !ok {
		t.Fatalf("chunkIndex = %v", raw["chunkIndex"])
	}
	for field, want := range map[string]float64{
		"originalChunkSize":    10,
		"originalFileSize":     20,
		"transformedChunkSize": 10,
		"transformedFileSize":  20,
	} {
		if index[field] != want {
			t.Fatalf("chunkIndex.%s = %v, want %v", field, index[field], want)
		}
	}
	if index["type"] != "fixed" {
		t.Fatalf("chunkIndex.type = %v", index["type"])
	}
	if raw["compression"] != true {
		t.Fatalf("compression = %v", raw["compression"])
	}
}

func TestUnmarshalVariableIndex(t *testing.T) {
	data := []byte(`{"type":"v1","chunkIndex":{"type":"variable","originalChunkSize":10,"originalFileSize":25,"transformedChunks":[8,12,3]},"compression":true}`)
	man, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if man.Index.Count() != 3 {
		t.Fatalf("Count = %d", man.Index.Count())
	}
	if man.Index.TransformedTotal() != 23 {
		t.Fatalf("TransformedTotal = %d", man.Index.TransformedTotal())
	}
}

func TestUnmarshalErrors(t *testing.T) {
	cases := []struct {
		name string
		data string
		want error
	}{
		{name: "not-json", data: `{{{`, want: ErrParse},
		{name: "unknown-version", data: `{"type":"v7","chunkIndex":{"type":"fixed","originalChunkSize":1,"originalFileSize":0,"transformedChunkSize":1,"transformedFileSize":0}}`, want: ErrVersionUnknown},
		{name: "unknown-index-variant", data: `{"type":"v1","chunkIndex":{"type":"rolling","originalChunkSize":1,"originalFileSize":0}}`, want: ErrVersionUnknown},
		{name: "fixed-missing-transformed", data: `{"type":"v1","chunkIndex":{"type":"fixed","originalChunkSize":10,"originalFileSize":20}}`, want: ErrParse},
		{name: "inconsistent-sizes", data: `{"type":"v1","chunkIndex":{"type":"variable","originalChunkSize":10,"originalFileSize":25,"transformedChunks":[8]}}`, want: ErrParse},
		{name: "empty-wrapped-key", data: `{"type":"v1","chunkIndex":{"type":"fixed","originalChunkSize":10,"originalFileSize":10,"transformedChunkSize":10,"transformedFileSize":10},"encryption":{"dataKey":"","aad":""}}`, want: ErrParse},
		{name: "unknown-segment-index", data: `{"type":"v1","chunkIndex":{"type":"fixed","originalChunkSize":10,"originalFileSize":10,"transformedChunkSize":10,"transformedFileSize":10},"segmentIndexes":{"BOGUS":1}}`, want: ErrParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(tc.data)); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func FuzzUnmarshal(f *testing.F) {
	f.Add([]byte(`{"type":"v1","chunkIndex":{"type":"fixed","originalChunkSize":10,"originalFileSize":20,"transformedChunkSize":10,"transformedFileSize":20},"compression":false}`))
	f.Add([]byte(`{"type":"v1","chunkIndex":{"type":"variable","originalChunkSize":10,"originalFileSize":25,"transformedChunks":[8,12,3]},"compression":true}`))
	f.Add([]byte(`{}`))
	f.Fuzz(func(t *testing.T, data []byte) {
		man, err := Unmarshal(data)
		if err != nil {
			return
		}
		// A successfully parsed manifest must survive a marshal round trip.
		out, err := Marshal(man)
		if err != nil {
			t.Fatalf("Marshal after Unmarshal: %v", err)
		}
		again, err := Unmarshal(out)
		if err != nil {
			t.Fatalf("Unmarshal after Marshal: %v", err)
		}
		if !reflect.DeepEqual(again.Index.Chunks(), man.Index.Chunks()) {
			t.Fatal("chunk index not stable across round trip")
		}
	})
}
