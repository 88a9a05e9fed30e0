package chunkindex

import (
	"errors"
	"testing"
)

func TestFixedLayout(t *testing.T) {
	cases := []struct {
		name              string
		originalChunkSize int
		originalTotal     int64
		transformedSize   int
		transformedTotal  int64
		wantCount         int
		wantLastOriginal  int
	}{
		{name: "exact-multiple", originalChunkSize: 10, originalTotal: 30, transformedSize: 10, transformedTotal: 30, wantCount: 3, wantLastOriginal: 10},
		{name: "short-tail", originalChunkSize: 10, originalTotal: 25, transformedSize: 10, transformedTotal: 25, wantCount: 3, wantLastOriginal: 5},
		{name: "single", originalChunkSize: 10, originalTotal: 7, transformedSize: 7, transformedTotal: 7, wantCount: 1, wantLastOriginal: 7},
		{name: "grown-transform", originalChunkSize: 10, originalTotal: 20, transformedSize: 38, transformedTotal: 76, wantCount: 2, wantLastOriginal: 10},
		{name: "empty", originalChunkSize: 10, originalTotal: 0, transformedSize: 10, transformedTotal: 0, wantCount: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			index, err := NewFixed(tc.originalChunkSize, tc.originalTotal, tc.transformedSize, tc.transformedTotal)
			if err != nil {
				t.Fatalf("NewFixed: %v", err)
			}
			if got := index.Count(); got != tc.wantCount {
				t.Fatalf("Count = %d, want %d", got, tc.wantCount)
			}
			if index.OriginalTotal() != tc.originalTotal {
				t.Fatalf("OriginalTotal = %d", index.OriginalTotal())
			}
			if tc.wantCount == 0 {
				return
			}
			last, err := index.Get(tc.wantCount - 1)
			if err != nil {
				t.Fatalf("Get(last): %v", err)
			}
			if last.OriginalSize != tc.wantLastOriginal {
				t.Fatalf("last OriginalSize = %d, want %d", last.OriginalSize, tc.wantLastOriginal)
			}
			verifyContiguous(t, index)
		})
	}
}

func TestFixedRejectsInconsistentTotals(t *testing.T) {
	if _, err := NewFixed(10, 20, 10, 35); err == nil {
		t.Fatal("expected error for transformed total larger than two chunks")
	}
	if _, err := NewFixed(10, 20, 10, 10); err == nil {
		t.Fatal("expected error for transformed total smaller than chunk count allows")
	}
	if _, err := NewFixed(0, 20, 10, 20); err == nil {
		t.Fatal("expected error for zero chunk size")
	}
}

func TestVariableLayout(t *testing.T) {
	index, err := NewVariable(10, 25, []int{8, 12, 3})
	if err != nil {
		t.Fatalf("NewVariable: %v", err)
	}
	if index.Count() != 3 {
		t.Fatalf("Count = %d", index.Count())
	}
	if index.TransformedTotal() != 23 {
		t.Fatalf("TransformedTotal = %d", index.TransformedTotal())
	}
	second, err := index.Get(1)
	if err != nil {
		t.Fatalf("Get(1): %v", err)
	}
	if second.TransformedFrom != 8 || second.TransformedSize != 12 {
		t.Fatalf("chunk 1 transformed position = (%d, %d)", second.TransformedFrom, second.TransformedSize)
	}
	if second.OriginalFrom != 10 || second.OriginalSize != 10 {
		t.Fatalf("chunk 1 original position = (%d, %d)", second.OriginalFrom, second.OriginalSize)
	}
	verifyContiguous(t, index)
}

func TestVariableRejectsSizeMismatch(t *testing.T) {
	if _, err := NewVariable(10, 25, []int{8, 12}); err == nil {
		t.Fatal("expected error for two sizes covering three chunks")
	}
	if _, err := NewVariable(10, 25, []int{8, 0, 3}); err == nil {
		t.Fatal("expected error for zero transformed size")
	}
}

// Every chunk must be found again by the offsets of its first and last byte.
func TestFindChunkBoundaries(t *testing.T) {
	fixed, err := NewFixed(10, 25, 10, 25)
	if err != nil {
		t.Fatalf("NewFixed: %v", err)
	}
	variable, err := NewVariable(10, 25, []int{4, 9, 2})
	if err != nil {
		t.Fatalf("NewVariable: %v", err)
	}
	for name, index := range map[string]Index{"fixed": fixed, "variable": variable} {
		t.Run(name, func(t *testing.T) {
			for _, c := range index.Chunks() {
				first, err := index.FindChunkForOriginalOffset(c.OriginalFrom)
				if err != nil {
					t.Fatalf("find first byte of chunk %d: %v", c.Ordinal, err)
				}
				if first != c {
					t.Fatalf("first byte of chunk %d resolved to %+v", c.Ordinal, first)
				}
				last, err := index.FindChunkForOriginalOffset(c.OriginalFrom + int64(c.OriginalSize) - 1)
				if err != nil {
					t.Fatalf("find last byte of chunk %d: %v", c.Ordinal, err)
				}
				if last != c {
					t.Fatalf("last byte of chunk %d resolved to %+v", c.Ordinal, last)
				}
			}
		})
	}
}

func TestFindChunkOutOfRange(t *testing.T) {
	index, err := NewFixed(10, 25, 10, 25)
	if err != nil {
		t.Fatalf("NewFixed: %v", err)
	}
	for _, offset := range []int64{-1, 25, 100} {
		if _, err := index.FindChunkForOriginalOffset(offset); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("offset %d: got %v, want ErrOutOfRange", offset, err)
		}
	}
	if _, err := index.Get(3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Get(3): got %v, want ErrOutOfRange", err)
	}
	if _, err := index.Get(-1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Get(-1): got %v, want ErrOutOfRange", err)
	}
}

// verifyContiguous checks the density and adjacency invariants in both
// coordinate spaces.
func verifyContiguous(t *testing.T, index Index) {
	t.Helper()
	var originalPos, transformedPos int64
	for i, c := range index.Chunks() {
		if c.Ordinal != i {
			t.Fatalf("ordinal %d at position %d", c.Ordinal, i)
		}
		if c.OriginalFrom != originalPos {
			t.Fatalf("chunk %d original gap: from %d, expected %d", i, c.OriginalFrom, originalPos)
		}
		if c.TransformedFrom != transformedPos {
			t.Fatalf("chunk %d transformed gap: from %d, expected %d", i, c.TransformedFrom, transformedPos)
		}
		originalPos += int64(c.OriginalSize)
		transformedPos += int64(c.TransformedSize)
	}
	if originalPos != index.OriginalTotal() {
		t.Fatalf("original sizes sum to %d, total %d", originalPos, index.OriginalTotal())
	}
	if transformedPos != index.TransformedTotal() {
		t.Fatalf("transformed sizes sum to %d, total %d", transformedPos, index.TransformedTotal())
	}
}
