package config

import "errors"

var (
	// ErrNodeCountSplit indicates core + rotate do not sum to the super-node count
	ErrNodeCountSplit = errors.New("core_node_count + rotate_node_count must equal super_node_count")

	// ErrCollectionTimeout indicates the VRF collection window is not shorter
	// than the block production budget
	ErrCollectionTimeout = errors.New("vrf_collection_timeout_ms must be less than block_production_timeout_ms")

	// ErrProductionTimeout indicates the block production budget exceeds the
	// round budget
	ErrProductionTimeout = errors.New("block_production_timeout_ms must not exceed block_time_ms")

	// ErrRewardedTopX indicates the reward set is larger than the super-node set
	ErrRewardedTopX = errors.New("rewarded_top_x must not exceed super_node_count")

	// ErrBaseDifficulty indicates a non-positive base difficulty
	ErrBaseDifficulty = errors.New("pow_base_difficulty must be positive")
)
