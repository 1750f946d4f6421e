// Shard placement: md5(uuid bytes), first 4 bytes big-endian, mod N.
// Shard placement reduces a key to a bucket index by reading the first
// four hash bytes as a big-endian integer and taking it mod the bucket
// count.
package strata

import (
	"crypto/md5"
	"encoding/binary"

	"github.com/google/uuid"
)

// shardFor returns the shard index in [0, shardCount) that owns id.
func shardFor(id string, shardCount uint32) (uint32, error) {
	raw, err := parseUUIDBytes(id)
	if err != nil {
		return 0, err
	}
	sum := md5.Sum(raw[:])
	prefix := binary.BigEndian.Uint32(sum[:4])
	return prefix % shardCount, nil
}

// parseUUIDBytes parses a canonical UUID string into its 16 raw bytes,
// the fixed slot shard.go stores alongside each record's BSON body.
func parseUUIDBytes(id string) ([16]byte, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, err
	}
	return u, nil
}

// formatUUIDBytes is the inverse of parseUUIDBytes.
func formatUUIDBytes(b []byte) string {
	var u uuid.UUID
	copy(u[:], b)
	return u.String()
}
