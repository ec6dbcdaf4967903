package consensus

import (
	"context"
	"fmt"
	"math/big"

	"github.com/equiflux/node/internal/types"
)

var (
	bigOne  = big.NewInt(1)
	bigFour = big.NewInt(4)
)

// DifficultyCalculator retargets the PoW difficulty so the mean inter-block
// time tracks the configured target. Both the proposer and the validator
// derive the target from block history alone, so any advertised target that
// differs from the recomputation is rejected.
type DifficultyCalculator struct {
	baseTarget   *big.Int
	targetTimeMs uint64
	window       int
}

// NewDifficultyCalculator creates a difficulty calculator. baseTarget is
// the target for the first block after genesis; targetTimeMs the desired
// inter-block time; window the number of trailing intervals averaged.
func NewDifficultyCalculator(baseTarget *big.Int, targetTimeMs uint64, window int) *DifficultyCalculator {
	if window <= 0 {
		window = 10
	}
	return &DifficultyCalculator{
		baseTarget:   new(big.Int).Set(baseTarget),
		targetTimeMs: targetTimeMs,
		window:       window,
	}
}

// Next computes the retargeted difficulty from the previous target and the
// trailing block timestamps (oldest first, milliseconds). The adjustment is
// clamped to [prev/4, prev*4] and never drops below 1.
func (d *DifficultyCalculator) Next(prevTarget *big.Int, timestamps []uint64) *big.Int {
	if len(timestamps) < 2 || d.targetTimeMs == 0 {
		return new(big.Int).Set(prevTarget)
	}

	first := timestamps[0]
	last := timestamps[len(timestamps)-1]
	intervals := uint64(len(timestamps) - 1)
	if last <= first {
		return new(big.Int).Set(prevTarget)
	}
	meanMs := (last - first) / intervals
	if meanMs == 0 {
		meanMs = 1
	}

	// next = prev * actual / target
	next := new(big.Int).Mul(prevTarget, new(big.Int).SetUint64(meanMs))
	next.Div(next, new(big.Int).SetUint64(d.targetTimeMs))

	// Clamp to a factor of four in either direction
	minTarget := new(big.Int).Div(prevTarget, bigFour)
	maxTarget := new(big.Int).Mul(prevTarget, bigFour)
	if next.Cmp(minTarget) < 0 {
		next.Set(minTarget)
	}
	if next.Cmp(maxTarget) > 0 {
		next.Set(maxTarget)
	}
	if next.Sign() <= 0 {
		next.Set(bigOne)
	}

	return next
}

// RequiredTarget recomputes the difficulty target for the block that
// extends prev, walking back up to window blocks of history.
func (d *DifficultyCalculator) RequiredTarget(ctx context.Context, store BlockStore, prev *types.Block) (*big.Int, error) {
	// First block after genesis mines at the base difficulty
	if prev.IsGenesis() {
		return new(big.Int).Set(d.baseTarget), nil
	}

	start := uint64(0)
	if prev.Height > uint64(d.window) {
		start = prev.Height - uint64(d.window)
	}

	timestamps := make([]uint64, 0, prev.Height-start+1)
	for h := start; h < prev.Height; h++ {
		block, err := store.GetByHeight(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("failed to load block %d for retarget: %w", h, err)
		}
		timestamps = append(timestamps, block.Timestamp)
	}
	timestamps = append(timestamps, prev.Timestamp)

	return d.Next(prev.DifficultyTarget, timestamps), nil
}
