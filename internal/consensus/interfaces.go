package consensus

import (
	"context"

	"github.com/equiflux/node/internal/types"
)

// BlockStore persists canonical blocks. Single-writer (the consensus
// engine), many-reader.
type BlockStore interface {
	// Put persists a block
	Put(ctx context.Context, block *types.Block) error

	// GetByHeight retrieves a block by height
	GetByHeight(ctx context.Context, height uint64) (*types.Block, error)

	// GetByHash retrieves a block by its hash
	GetByHash(ctx context.Context, hash []byte) (*types.Block, error)

	// CurrentHeight returns the height of the latest stored block
	CurrentHeight(ctx context.Context) (uint64, error)

	// HasGenesis reports whether a genesis block is stored
	HasGenesis(ctx context.Context) (bool, error)
}

// StateSnapshot is a consistent read-only view of account state at one height
type StateSnapshot interface {
	// Height returns the height this snapshot is consistent with
	Height() uint64

	// Account returns the account for a hex-encoded public key
	Account(publicKeyHex string) (types.Account, bool)
}

// StateStore persists account state. Single-writer, many-reader, with
// snapshot-read semantics.
type StateStore interface {
	// SnapshotAt returns a consistent snapshot at the given height
	SnapshotAt(ctx context.Context, height uint64) (StateSnapshot, error)

	// Apply atomically applies a block's state delta
	Apply(ctx context.Context, delta *types.StateDelta) error

	// Current returns a snapshot at the latest applied height
	Current(ctx context.Context) (StateSnapshot, error)
}

// Network is the gossip transport the consensus core publishes to and
// receives from. Callbacks run on the transport's goroutines and must not
// block; they hand messages to the engine's bounded queues.
type Network interface {
	// BroadcastAnnouncement publishes a signed VRF announcement
	BroadcastAnnouncement(ctx context.Context, a *types.VRFAnnouncement) error

	// BroadcastBlock publishes a block
	BroadcastBlock(ctx context.Context, block *types.Block) error

	// OnAnnouncement registers the announcement receive callback
	OnAnnouncement(handler func(*types.VRFAnnouncement))

	// OnBlock registers the block receive callback
	OnBlock(handler func(*types.Block))
}

// Mempool is the shared transaction pool the proposer draws from
type Mempool interface {
	// Add inserts a transaction
	Add(tx *types.Transaction) error

	// Snapshot returns the pending transactions ordered by
	// (fee desc, timestamp asc, hash asc)
	Snapshot() []*types.Transaction

	// Remove drops transactions by hash, typically after commit
	Remove(hashes [][]byte)

	// Size returns the number of pending transactions
	Size() int
}
