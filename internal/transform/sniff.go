package transform

import (
	"encoding/binary"
	"errors"
)

// A record batch header holds its attributes int16 after baseOffset(8),
// batchLength(4), partitionLeaderEpoch(4), magic(1), and crc(4); the low
// three bits carry the compression codec.
const (
	batchAttributesOffset = 21
	// SniffLen is how many leading segment bytes the sniffer needs.
	SniffLen = batchAttributesOffset + 2
)

// ErrSniff reports a segment too short to carry a record batch header.
var ErrSniff = errors.New("transform: segment too short to sniff compression")

// SniffCompression inspects the first record batch of a segment and
// reports whether its payload is already compressed. Callers use it to
// skip re-compression of compressed producer batches.
func SniffCompression(head []byte) (bool, error) {
	if len(head) < SniffLen {
		return false, ErrSniff
	}
	attributes := binary.BigEndian.Uint16(head[batchAttributesOffset : batchAttributesOffset+2])
	return attributes&0x07 != 0, nil
}
