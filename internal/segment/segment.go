package segment

import (
	"fmt"

	"github.com/google/uuid"
)

// Meta identifies an immutable log segment in remote storage.
type Meta struct {
	Topic      string
	Partition  int32
	BaseOffset int64
	ID         uuid.UUID
}

// Suffix names one of the per-segment objects.
type Suffix string

const (
	SuffixLog              Suffix = "log"
	SuffixOffsetIndex      Suffix = "index"
	SuffixTimeIndex        Suffix = "timeindex"
	SuffixProducerSnapshot Suffix = "snapshot"
	SuffixTransactionIndex Suffix = "txnindex"
	SuffixLeaderEpoch      Suffix = "leader-epoch-checkpoint"
	SuffixManifest         Suffix = "rsm-manifest"
)

// AllSuffixes lists every object suffix a segment may persist.
func AllSuffixes() []Suffix {
	return []Suffix{
		SuffixLog,
		SuffixOffsetIndex,
		SuffixTimeIndex,
		SuffixProducerSnapshot,
		SuffixTransactionIndex,
		SuffixLeaderEpoch,
		SuffixManifest,
	}
}

// IndexType enumerates the index objects uploaded next to a segment.
type IndexType int

const (
	OffsetIndex IndexType = iota
	TimestampIndex
	ProducerSnapshotIndex
	TransactionIndex
	LeaderEpochIndex
)

// String returns the stable name used in manifests.
func (t IndexType) String() string {
	switch t {
	case OffsetIndex:
		return "OFFSET"
	case TimestampIndex:
		return "TIMESTAMP"
	case ProducerSnapshotIndex:
		return "PRODUCER_SNAPSHOT"
	case TransactionIndex:
		return "TRANSACTION"
	case LeaderEpochIndex:
		return "LEADER_EPOCH"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// ParseIndexType parses the stable manifest name of an index type.
func ParseIndexType(name string) (IndexType, error) {
	switch name {
	case "OFFSET":
		return OffsetIndex, nil
	case "TIMESTAMP":
		return TimestampIndex, nil
	case "PRODUCER_SNAPSHOT":
		return ProducerSnapshotIndex, nil
	case "TRANSACTION":
		return TransactionIndex, nil
	case "LEADER_EPOCH":
		return LeaderEpochIndex, nil
	default:
		return 0, fmt.Errorf("segment: unknown index type %q", name)
	}
}

// Suffix returns the object suffix for the index type.
func (t IndexType) Suffix() Suffix {
	switch t {
	case OffsetIndex:
		return SuffixOffsetIndex
	case TimestampIndex:
		return SuffixTimeIndex
	case ProducerSnapshotIndex:
		return SuffixProducerSnapshot
	case TransactionIndex:
		return SuffixTransactionIndex
	case LeaderEpochIndex:
		return SuffixLeaderEpoch
	default:
		return Suffix(fmt.Sprintf("unknown-%d", int(t)))
	}
}

// IndexTypes lists every index type in manifest order.
func IndexTypes() []IndexType {
	return []IndexType{
		OffsetIndex,
		TimestampIndex,
		ProducerSnapshotIndex,
		TransactionIndex,
		LeaderEpochIndex,
	}
}

// KeyFactory derives object keys for segment objects under a fixed prefix.
type KeyFactory struct {
	Prefix string
}

// ObjectKey returns "{prefix}/{topic}-{partition}/{baseOffset}-{uuid}.{suffix}".
// The base offset is zero-padded to 20 digits so keys sort by offset.
func (f KeyFactory) ObjectKey(m Meta, s Suffix) string {
	name := fmt.Sprintf("%020d-%s.%s", m.BaseOffset, m.ID, s)
	dir := fmt.Sprintf("%s-%d", m.Topic, m.Partition)
	if f.Prefix == "" {
		return dir + "/" + name
	}
	return f.Prefix + "/" + dir + "/" + name
}
