package store

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equiflux/node/internal/types"
)

func storeBlock(height uint64) *types.Block {
	return &types.Block{
		Height:           height,
		Timestamp:        1700000000000 + height*3000,
		PreviousHash:     make([]byte, types.HashSize),
		Proposer:         []byte{0x01},
		VRFOutput:        make([]byte, types.VRFOutputSize),
		VRFProof:         make([]byte, types.VRFProofSize),
		MerkleRoot:       make([]byte, types.HashSize),
		DifficultyTarget: big.NewInt(1000),
		Signatures:       map[string][]byte{},
	}
}

func TestMemoryBlockStorePutGet(t *testing.T) {
	s := NewMemoryBlockStore()
	ctx := context.Background()

	has, err := s.HasGenesis(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.CurrentHeight(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	genesis := storeBlock(0)
	require.NoError(t, s.Put(ctx, genesis))

	has, err = s.HasGenesis(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	byHeight, err := s.GetByHeight(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, genesis, byHeight)

	byHash, err := s.GetByHash(ctx, genesis.Hash())
	require.NoError(t, err)
	assert.Equal(t, genesis, byHash)

	height, err := s.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), height)

	_, err = s.GetByHeight(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetByHash(ctx, make([]byte, 32))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBlockStoreContiguity(t *testing.T) {
	s := NewMemoryBlockStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, nil), ErrNilBlock)
	assert.ErrorIs(t, s.Put(ctx, storeBlock(3)), ErrNonContiguous)

	require.NoError(t, s.Put(ctx, storeBlock(0)))
	assert.ErrorIs(t, s.Put(ctx, storeBlock(2)), ErrNonContiguous)
	require.NoError(t, s.Put(ctx, storeBlock(1)))
}

func TestMemoryStateStoreApplyAndSnapshot(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, &types.StateDelta{
		Height:   0,
		Accounts: map[string]types.Account{"aa": {Balance: 100, Nonce: 0}},
	}))
	require.NoError(t, s.Apply(ctx, &types.StateDelta{
		Height:   1,
		Accounts: map[string]types.Account{"aa": {Balance: 50, Nonce: 1}, "bb": {Balance: 50}},
	}))

	// Snapshots are isolated per height
	at0, err := s.SnapshotAt(ctx, 0)
	require.NoError(t, err)
	account, ok := at0.Account("aa")
	require.True(t, ok)
	assert.Equal(t, uint64(100), account.Balance)
	_, ok = at0.Account("bb")
	assert.False(t, ok)

	at1, err := s.SnapshotAt(ctx, 1)
	require.NoError(t, err)
	account, ok = at1.Account("aa")
	require.True(t, ok)
	assert.Equal(t, uint64(50), account.Balance)
	assert.Equal(t, uint64(1), account.Nonce)

	current, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), current.Height())

	_, err = s.SnapshotAt(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStateStoreSeedComposesWithGenesis(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()

	s.Seed(map[string]types.Account{"aa": {Balance: 1_000_000}})

	// The genesis delta re-applies at height 0 and merges
	require.NoError(t, s.Apply(ctx, &types.StateDelta{Height: 0, Accounts: map[string]types.Account{}}))

	snapshot, err := s.SnapshotAt(ctx, 0)
	require.NoError(t, err)
	account, ok := snapshot.Account("aa")
	require.True(t, ok)
	assert.Equal(t, uint64(1_000_000), account.Balance)
}

func TestMemoryStateStoreRejectsGaps(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.Apply(ctx, &types.StateDelta{Height: 3}), ErrNonContiguous)
}
