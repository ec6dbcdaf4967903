package consensus

import (
	"context"
	"math/big"
	"time"

	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/types"
)

// PoWEngine mines and verifies the lightweight proof-of-work shield. The
// work is not a mining competition: it is an anti-spam cost on proposing,
// tuned to a couple of seconds on a commodity CPU.
type PoWEngine struct{}

// NewPoWEngine creates a PoW engine
func NewPoWEngine() *PoWEngine {
	return &PoWEngine{}
}

// MineResult reports a successful mining run
type MineResult struct {
	Nonce    uint64        `json:"nonce"`
	Hash     []byte        `json:"hash"`
	Attempts uint64        `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Mine scans nonces from zero until the PoW hash, read as an unsigned
// big-endian integer, is strictly below target. Cancellation is observed on
// every iteration; the returned nonce is the smallest accepting one in the
// scanned space. The preimage carries target in the difficulty field, so a
// block whose DifficultyTarget equals target verifies with the returned
// nonce. Returns ErrMiningTimeout when the budget elapses first.
func (e *PoWEngine) Mine(ctx context.Context, block *types.Block, target *big.Int, timeout time.Duration) (*MineResult, error) {
	deadline := time.Now().Add(timeout)
	start := time.Now()

	header := *block
	header.DifficultyTarget = target

	hashValue := new(big.Int)
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return nil, ErrMiningTimeout
		default:
		}

		// Check the wall clock sparsely; one hash is far cheaper than a
		// clock read on most platforms.
		if nonce%1024 == 0 && time.Now().After(deadline) {
			return nil, ErrMiningTimeout
		}

		hash := crypto.Hash(header.PoWPreimage(nonce))
		hashValue.SetBytes(hash)
		if hashValue.Cmp(target) < 0 {
			return &MineResult{
				Nonce:    nonce,
				Hash:     hash,
				Attempts: nonce + 1,
				Elapsed:  time.Since(start),
			}, nil
		}
	}
}

// Verify recomputes the PoW hash from the block's own fields and checks the
// strict inequality against its difficulty target. Pure.
func (e *PoWEngine) Verify(block *types.Block) bool {
	if block.DifficultyTarget == nil || block.DifficultyTarget.Sign() <= 0 {
		return false
	}

	hash := crypto.Hash(block.PoWPreimage(block.Nonce))
	return new(big.Int).SetBytes(hash).Cmp(block.DifficultyTarget) < 0
}
