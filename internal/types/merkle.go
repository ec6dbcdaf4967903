package types

import (
	"github.com/equiflux/node/internal/crypto"
)

// MerkleRoot computes the binary SHA-256 Merkle root over the transaction
// hashes. Odd levels duplicate the last node. An empty set yields 32 zero
// bytes.
func MerkleRoot(txs []*Transaction) []byte {
	if len(txs) == 0 {
		return make([]byte, HashSize)
	}

	level := make([][]byte, len(txs))
	for i, tx := range txs {
		level[i] = tx.Hash()
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, crypto.Hash(level[i], level[i+1]))
		}
		level = next
	}

	return level[0]
}
