package consensus

import (
	"math/big"

	"github.com/equiflux/node/internal/config"
	"github.com/equiflux/node/internal/types"
)

// GenesisDifficulty is the fixed difficulty value recorded in the genesis
// block header. Genesis is never mined; the first real block retargets from
// the configured base difficulty.
const GenesisDifficulty = 2_500_000

// GenesisBlock builds the deterministic height-zero block every node in the
// cluster derives identically from configuration alone.
func GenesisBlock(cfg *config.Config) *types.Block {
	return &types.Block{
		Height:              0,
		Round:               0,
		Timestamp:           cfg.GenesisTimestampMs,
		PreviousHash:        make([]byte, types.HashSize),
		Proposer:            []byte{},
		VRFOutput:           make([]byte, types.VRFOutputSize),
		VRFProof:            make([]byte, types.VRFProofSize),
		AllVRFAnnouncements: nil,
		RewardedNodes:       nil,
		Transactions:        nil,
		MerkleRoot:          types.MerkleRoot(nil),
		Nonce:               0,
		DifficultyTarget:    big.NewInt(GenesisDifficulty),
		Signatures:          make(map[string][]byte),
	}
}
