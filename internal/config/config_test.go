package config

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.SuperNodeCount)
	assert.Equal(t, cfg.SuperNodeCount, cfg.CoreNodeCount+cfg.RotateNodeCount)
	assert.Equal(t, 15, cfg.RewardedTopX)
	assert.Equal(t, uint64(3000), cfg.BlockTimeMs)
}

func TestValidateNodeCountSplit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoreNodeCount = 30
	cfg.RotateNodeCount = 30

	assert.ErrorIs(t, cfg.Validate(), ErrNodeCountSplit)
}

func TestValidateTimerOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VRFCollectionTimeoutMs = cfg.BlockProductionTimeoutMs
	assert.ErrorIs(t, cfg.Validate(), ErrCollectionTimeout)

	cfg = DefaultConfig()
	cfg.BlockProductionTimeoutMs = cfg.BlockTimeMs + 1
	assert.ErrorIs(t, cfg.Validate(), ErrProductionTimeout)
}

func TestValidateRewardedTopX(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RewardedTopX = cfg.SuperNodeCount + 1
	assert.ErrorIs(t, cfg.Validate(), ErrRewardedTopX)
}

func TestValidateBaseDifficulty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoWBaseDifficulty = big.NewInt(0)
	assert.ErrorIs(t, cfg.Validate(), ErrBaseDifficulty)
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockTimeMs = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PoWBaseDifficulty = nil
	assert.Error(t, cfg.Validate())
}

func TestDerivedValues(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*1024*1024, cfg.MaxBlockSizeBytes())
	assert.Equal(t, uint64(3000), cfg.PoWTargetTimeMs())
}
