package consensus

import (
	"encoding/binary"

	"github.com/equiflux/node/internal/crypto"
)

// ComputeSeed derives the shared per-round VRF seed:
// SHA256(previous_hash(32) || round_be_u64(8) || epoch_be_u64(8))
func ComputeSeed(previousHash []byte, round, epoch uint64) []byte {
	var roundBytes, epochBytes [8]byte
	binary.BigEndian.PutUint64(roundBytes[:], round)
	binary.BigEndian.PutUint64(epochBytes[:], epoch)
	return crypto.Hash(previousHash, roundBytes[:], epochBytes[:])
}

// EpochForTimestamp maps a wall-clock timestamp to its epoch number. Every
// node derives the epoch from the previous block's timestamp, so the seed is
// agreed without clock coordination.
func EpochForTimestamp(timestampMs, epochLengthMs uint64) uint64 {
	if epochLengthMs == 0 {
		return 0
	}
	return timestampMs / epochLengthMs
}

// QuorumSize returns the minimum valid announcement count for n super
// nodes: ceil(2n/3)
func QuorumSize(n int) int {
	if n <= 0 {
		return 0
	}
	return (2*n + 2) / 3
}
