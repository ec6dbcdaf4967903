package mempool

import (
	"bytes"
	"sort"
	"sync"

	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/types"
)

// Pool is a shared in-memory transaction pool. Transactions enter through
// Add; neither the gossip host nor the read-only query surface calls it.
// The consensus engine consumes a snapshot at proposal time and removes
// entries at commit.
type Pool struct {
	mu      sync.RWMutex
	maxSize int
	txs     map[string]*types.Transaction
}

// New creates a transaction pool bounded to maxSize entries
func New(maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	return &Pool{
		maxSize: maxSize,
		txs:     make(map[string]*types.Transaction),
	}
}

// Add inserts a transaction. Duplicates (by hash) and inserts beyond the
// pool bound are rejected.
func (p *Pool) Add(tx *types.Transaction) error {
	if tx == nil {
		return ErrNilTransaction
	}
	if len(tx.Sender) == 0 || len(tx.Recipient) == 0 || len(tx.Signature) != types.SignatureSize {
		return ErrMalformedTransaction
	}

	key := crypto.EncodeHex(tx.Hash())

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.txs[key]; exists {
		return ErrDuplicateTransaction
	}
	if len(p.txs) >= p.maxSize {
		return ErrPoolFull
	}

	p.txs[key] = tx
	return nil
}

// Snapshot returns the pending transactions ordered by
// (fee desc, timestamp asc, hash asc)
func (p *Pool) Snapshot() []*types.Transaction {
	p.mu.RLock()
	snapshot := make([]*types.Transaction, 0, len(p.txs))
	for _, tx := range p.txs {
		snapshot = append(snapshot, tx)
	}
	p.mu.RUnlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		a, b := snapshot[i], snapshot[j]
		if a.Fee != b.Fee {
			return a.Fee > b.Fee
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return bytes.Compare(a.Hash(), b.Hash()) < 0
	})

	return snapshot
}

// Remove drops transactions by hash, typically after a block commit
func (p *Pool) Remove(hashes [][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, hash := range hashes {
		delete(p.txs, crypto.EncodeHex(hash))
	}
}

// Size returns the number of pending transactions
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}
