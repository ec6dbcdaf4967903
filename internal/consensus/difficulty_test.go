package consensus

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetargetHalvesOnFastBlocks(t *testing.T) {
	calc := NewDifficultyCalculator(big.NewInt(1_000_000), 3000, 10)

	// Ten 1.5s intervals against a 3s goal: new = old * 1.5/3.0 = old/2
	timestamps := make([]uint64, 11)
	for i := range timestamps {
		timestamps[i] = uint64(i) * 1500
	}

	old := big.NewInt(1_000_000)
	next := calc.Next(old, timestamps)
	assert.Equal(t, int64(500_000), next.Int64())
}

func TestRetargetWidensOnSlowBlocks(t *testing.T) {
	calc := NewDifficultyCalculator(big.NewInt(1_000_000), 3000, 10)

	// 6s intervals: new = old * 2
	timestamps := make([]uint64, 11)
	for i := range timestamps {
		timestamps[i] = uint64(i) * 6000
	}

	next := calc.Next(big.NewInt(1_000_000), timestamps)
	assert.Equal(t, int64(2_000_000), next.Int64())
}

func TestRetargetClampedToFourTimes(t *testing.T) {
	calc := NewDifficultyCalculator(big.NewInt(1_000_000), 3000, 10)

	// 1ms intervals would divide by 3000; the clamp holds at /4
	fast := make([]uint64, 11)
	for i := range fast {
		fast[i] = uint64(i)
	}
	next := calc.Next(big.NewInt(1_000_000), fast)
	assert.Equal(t, int64(250_000), next.Int64())

	// 60s intervals would multiply by 20; the clamp holds at x4
	slow := make([]uint64, 11)
	for i := range slow {
		slow[i] = uint64(i) * 60_000
	}
	next = calc.Next(big.NewInt(1_000_000), slow)
	assert.Equal(t, int64(4_000_000), next.Int64())
}

func TestRetargetDegenerateInputs(t *testing.T) {
	calc := NewDifficultyCalculator(big.NewInt(1_000_000), 3000, 10)

	// Too little history keeps the target
	next := calc.Next(big.NewInt(777), []uint64{1000})
	assert.Equal(t, int64(777), next.Int64())

	// Non-advancing clocks keep the target
	next = calc.Next(big.NewInt(777), []uint64{5000, 5000, 5000})
	assert.Equal(t, int64(777), next.Int64())
}

func TestRequiredTargetFirstBlockUsesBase(t *testing.T) {
	cfg := testConfig(1)
	calc := NewDifficultyCalculator(cfg.PoWBaseDifficulty, cfg.PoWTargetTimeMs(), cfg.PoWRetargetWindow)

	genesis := GenesisBlock(cfg)
	target, err := calc.RequiredTarget(context.Background(), newMemBlockStore(), genesis)
	require.NoError(t, err)
	assert.Equal(t, 0, target.Cmp(cfg.PoWBaseDifficulty))
}

func TestRequiredTargetWalksHistory(t *testing.T) {
	cfg := testConfig(1)
	store := newMemBlockStore()

	genesis := GenesisBlock(cfg)
	require.NoError(t, store.Put(context.Background(), genesis))

	// A height-1 block 1.5s after genesis
	block1 := GenesisBlock(cfg)
	block1.Height = 1
	block1.Timestamp = genesis.Timestamp + 1500
	block1.PreviousHash = genesis.Hash()
	block1.DifficultyTarget = new(big.Int).Set(cfg.PoWBaseDifficulty)
	require.NoError(t, store.Put(context.Background(), block1))

	calc := NewDifficultyCalculator(cfg.PoWBaseDifficulty, cfg.PoWTargetTimeMs(), cfg.PoWRetargetWindow)
	target, err := calc.RequiredTarget(context.Background(), store, block1)
	require.NoError(t, err)

	// One 1.5s interval against a 3s goal halves the target
	expected := new(big.Int).Div(cfg.PoWBaseDifficulty, big.NewInt(2))
	assert.Equal(t, 0, target.Cmp(expected))
}
