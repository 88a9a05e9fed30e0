package segment

import (
	"testing"

	"github.com/google/uuid"
)

func TestObjectKeyLayout(t *testing.T) {
	meta := Meta{
		Topic:      "payments",
		Partition:  3,
		BaseOffset: 4200,
		ID:         uuid.MustParse("3c9e8b12-77aa-4f10-9c52-0d1f6a3b44ee"),
	}

	cases := []struct {
		name    string
		factory KeyFactory
		suffix  Suffix
		want    string
	}{
		{
			name:   "no-prefix",
			suffix: SuffixLog,
			want:   "payments-3/00000000000000004200-3c9e8b12-77aa-4f10-9c52-0d1f6a3b44ee.log",
		},
		{
			name:    "with-prefix",
			factory: KeyFactory{Prefix: "tiered"},
			suffix:  SuffixManifest,
			want:    "tiered/payments-3/00000000000000004200-3c9e8b12-77aa-4f10-9c52-0d1f6a3b44ee.rsm-manifest",
		},
		{
			name:   "index",
			suffix: SuffixTimeIndex,
			want:   "payments-3/00000000000000004200-3c9e8b12-77aa-4f10-9c52-0d1f6a3b44ee.timeindex",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.factory.ObjectKey(meta, tc.suffix); got != tc.want {
				t.Fatalf("ObjectKey = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestObjectKeysSortByOffset(t *testing.T) {
	id := uuid.MustParse("3c9e8b12-77aa-4f10-9c52-0d1f6a3b44ee")
	low := KeyFactory{}.ObjectKey(Meta{Topic: "t", BaseOffset: 999, ID: id}, SuffixLog)
	high := KeyFactory{}.ObjectKey(Meta{Topic: "t", BaseOffset: 1000, ID: id}, SuffixLog)
	if !(low < high) {
		t.Fatalf("keys do not sort by offset: %q >= %q", low, high)
	}
}

func TestIndexTypeNames(t *testing.T) {
	for _, indexType := range IndexTypes() {
		name := indexType.String()
		parsed, err := ParseIndexType(name)
		if err != nil {
			t.Fatalf("ParseIndexType(%q): %v", name, err)
		}
		if parsed != indexType {
			t.Fatalf("ParseIndexType(%q) = %v", name, parsed)
		}
	}
	if _, err := ParseIndexType("BOGUS"); err == nil {
		t.Fatal("expected error for unknown index type name")
	}
}

func TestIndexTypeSuffixes(t *testing.T) {
	want := map[IndexType]Suffix{
		OffsetIndex:           SuffixOffsetIndex,
		TimestampIndex:        SuffixTimeIndex,
		ProducerSnapshotIndex: SuffixProducerSnapshot,
		TransactionIndex:      SuffixTransactionIndex,
		LeaderEpochIndex:      SuffixLeaderEpoch,
	}
	for indexType, suffix := range want {
		if got := indexType.Suffix(); got != suffix {
			t.Fatalf("%v.Suffix() = %q, want %q", indexType, got, suffix)
		}
	}
}
