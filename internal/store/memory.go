package store

import (
	"context"
	"sync"

	"github.com/equiflux/node/internal/consensus"
	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/types"
)

// MemoryBlockStore is an in-memory block store: single-writer,
// many-reader, keyed by height and by hash
type MemoryBlockStore struct {
	mu     sync.RWMutex
	blocks []*types.Block
	byHash map[string]*types.Block
}

// NewMemoryBlockStore creates an empty in-memory block store
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{
		byHash: make(map[string]*types.Block),
	}
}

// Put persists a block. Heights must be contiguous from genesis.
func (s *MemoryBlockStore) Put(ctx context.Context, block *types.Block) error {
	if block == nil {
		return ErrNilBlock
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if block.Height != uint64(len(s.blocks)) {
		return ErrNonContiguous
	}

	s.blocks = append(s.blocks, block)
	s.byHash[block.HashHex()] = block
	return nil
}

// GetByHeight retrieves a block by height
func (s *MemoryBlockStore) GetByHeight(ctx context.Context, height uint64) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if height >= uint64(len(s.blocks)) {
		return nil, ErrNotFound
	}
	return s.blocks[height], nil
}

// GetByHash retrieves a block by its hash
func (s *MemoryBlockStore) GetByHash(ctx context.Context, hash []byte) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.byHash[crypto.EncodeHex(hash)]
	if !ok {
		return nil, ErrNotFound
	}
	return block, nil
}

// CurrentHeight returns the height of the latest stored block
func (s *MemoryBlockStore) CurrentHeight(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.blocks) == 0 {
		return 0, ErrNotFound
	}
	return uint64(len(s.blocks) - 1), nil
}

// HasGenesis reports whether a genesis block is stored
func (s *MemoryBlockStore) HasGenesis(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks) > 0, nil
}

// memorySnapshot is a consistent account view at one height
type memorySnapshot struct {
	height   uint64
	accounts map[string]types.Account
}

// Height implements consensus.StateSnapshot
func (s *memorySnapshot) Height() uint64 {
	return s.height
}

// Account implements consensus.StateSnapshot
func (s *memorySnapshot) Account(publicKeyHex string) (types.Account, bool) {
	account, ok := s.accounts[publicKeyHex]
	return account, ok
}

// MemoryStateStore is an in-memory account state store keeping one full
// snapshot per applied height
type MemoryStateStore struct {
	mu        sync.RWMutex
	snapshots []map[string]types.Account
}

// NewMemoryStateStore creates an empty in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// Apply merges a delta on top of the latest snapshot, producing the
// snapshot for the delta's height. Re-applying at the top height merges in
// place, so a seeded genesis state and the genesis delta compose.
func (s *MemoryStateStore) Apply(ctx context.Context, delta *types.StateDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) > 0 && delta.Height == uint64(len(s.snapshots)-1) {
		top := s.snapshots[len(s.snapshots)-1]
		for key, account := range delta.Accounts {
			top[key] = account
		}
		return nil
	}

	if delta.Height != uint64(len(s.snapshots)) {
		return ErrNonContiguous
	}

	next := make(map[string]types.Account)
	if len(s.snapshots) > 0 {
		for key, account := range s.snapshots[len(s.snapshots)-1] {
			next[key] = account
		}
	}
	for key, account := range delta.Accounts {
		next[key] = account
	}

	s.snapshots = append(s.snapshots, next)
	return nil
}

// SnapshotAt returns a consistent snapshot at the given height
func (s *MemoryStateStore) SnapshotAt(ctx context.Context, height uint64) (consensus.StateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if height >= uint64(len(s.snapshots)) {
		return nil, ErrNotFound
	}
	return &memorySnapshot{height: height, accounts: s.snapshots[height]}, nil
}

// Current returns a snapshot at the latest applied height
func (s *MemoryStateStore) Current(ctx context.Context) (consensus.StateSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, ErrNotFound
	}
	height := uint64(len(s.snapshots) - 1)
	return &memorySnapshot{height: height, accounts: s.snapshots[height]}, nil
}

// Seed pre-funds accounts before genesis is applied, for bootstrapping test
// networks and fixtures
func (s *MemoryStateStore) Seed(accounts map[string]types.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		s.snapshots = append(s.snapshots, map[string]types.Account{})
	}
	base := s.snapshots[len(s.snapshots)-1]
	for key, account := range accounts {
		base[key] = account
	}
}
