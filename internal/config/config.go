package config

import (
	"math/big"

	"github.com/go-playground/validator/v10"
)

// Config is the immutable node configuration. It is validated once at boot
// and passed explicitly to every component constructor.
type Config struct {
	// Super-node set
	SuperNodeCount  int `json:"super_node_count" validate:"gt=0"`
	CoreNodeCount   int `json:"core_node_count" validate:"min=0"`
	RotateNodeCount int `json:"rotate_node_count" validate:"min=0"`

	// Round timing (milliseconds)
	BlockTimeMs              uint64 `json:"block_time_ms" validate:"gt=0"`
	VRFCollectionTimeoutMs   uint64 `json:"vrf_collection_timeout_ms" validate:"gt=0"`
	BlockProductionTimeoutMs uint64 `json:"block_production_timeout_ms" validate:"gt=0"`

	// Rewards
	RewardedTopX int    `json:"rewarded_top_x" validate:"gt=0"`
	BlockReward  uint64 `json:"block_reward"`

	// Proof of work
	PoWBaseDifficulty *big.Int `json:"pow_base_difficulty" validate:"required"`
	PoWTargetTimeS    uint64   `json:"pow_target_time_s" validate:"gt=0"`
	PoWRetargetWindow int      `json:"pow_retarget_window" validate:"gt=0"`

	// Stake thresholds
	MinStakeCore   uint64 `json:"min_stake_core"`
	MinStakeRotate uint64 `json:"min_stake_rotate"`

	// Block limits
	MaxTransactionsPerBlock int `json:"max_transactions_per_block" validate:"gt=0"`
	MaxBlockSizeMB          int `json:"max_block_size_mb" validate:"gt=0"`

	// Validation timing
	ClockSkewMs uint64 `json:"clock_skew_ms" validate:"gt=0"`

	// Epoch length used as the coarse seed salt
	EpochLengthMs uint64 `json:"epoch_length_ms" validate:"gt=0"`

	// Genesis
	GenesisTimestampMs uint64 `json:"genesis_timestamp_ms"`

	// Scoring
	DecayHalfLifeDays float64 `json:"decay_half_life_days" validate:"gt=0"`

	// Bounded ingress queues
	AnnouncementQueueSize int `json:"announcement_queue_size" validate:"gt=0"`
	BlockQueueSize        int `json:"block_queue_size" validate:"gt=0"`
}

// DefaultConfig returns the default node configuration
func DefaultConfig() *Config {
	return &Config{
		SuperNodeCount:  50,
		CoreNodeCount:   25,
		RotateNodeCount: 25,

		BlockTimeMs:              3000,
		VRFCollectionTimeoutMs:   2000,
		BlockProductionTimeoutMs: 3000,

		RewardedTopX: 15,
		BlockReward:  1_000_000,

		// Roughly 2-3s of single-threaded SHA-256 on a commodity CPU
		PoWBaseDifficulty: new(big.Int).Lsh(big.NewInt(1), 232),
		PoWTargetTimeS:    3,
		PoWRetargetWindow: 10,

		MinStakeCore:   100_000,
		MinStakeRotate: 50_000,

		MaxTransactionsPerBlock: 500,
		MaxBlockSizeMB:          2,

		ClockSkewMs:   1000,
		EpochLengthMs: 24 * 60 * 60 * 1000,

		GenesisTimestampMs: 0,

		DecayHalfLifeDays: 30,

		AnnouncementQueueSize: 256,
		BlockQueueSize:        64,
	}
}

// Validate checks field constraints and the cross-field invariants that tie
// the round timers together
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.CoreNodeCount+c.RotateNodeCount != c.SuperNodeCount {
		return ErrNodeCountSplit
	}
	if c.VRFCollectionTimeoutMs >= c.BlockProductionTimeoutMs {
		return ErrCollectionTimeout
	}
	if c.BlockProductionTimeoutMs > c.BlockTimeMs {
		return ErrProductionTimeout
	}
	if c.RewardedTopX > c.SuperNodeCount {
		return ErrRewardedTopX
	}
	if c.PoWBaseDifficulty.Sign() <= 0 {
		return ErrBaseDifficulty
	}

	return nil
}

// MaxBlockSizeBytes returns the serialized block size limit in bytes
func (c *Config) MaxBlockSizeBytes() int {
	return c.MaxBlockSizeMB * 1024 * 1024
}

// PoWTargetTimeMs returns the PoW retarget goal in milliseconds
func (c *Config) PoWTargetTimeMs() uint64 {
	return c.PoWTargetTimeS * 1000
}
