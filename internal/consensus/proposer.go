package consensus

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/equiflux/node/internal/config"
	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/types"
)

// Proposer assembles, mines, and signs candidate blocks for rounds this
// node has won.
type Proposer struct {
	config     *config.Config
	signer     *crypto.Ed25519Signer
	verifier   crypto.Verifier
	pow        *PoWEngine
	difficulty *DifficultyCalculator
	store      BlockStore
	mempool    Mempool
}

// NewProposer creates a block proposer
func NewProposer(
	cfg *config.Config,
	signer *crypto.Ed25519Signer,
	verifier crypto.Verifier,
	pow *PoWEngine,
	difficulty *DifficultyCalculator,
	store BlockStore,
	mempool Mempool,
) *Proposer {
	return &Proposer{
		config:     cfg,
		signer:     signer,
		verifier:   verifier,
		pow:        pow,
		difficulty: difficulty,
		store:      store,
		mempool:    mempool,
	}
}

// Propose builds the block for a won round: header from the round result,
// transactions from the mempool, merkle root, retargeted difficulty, mined
// nonce, and the proposer's own signature over the block hash.
func (p *Proposer) Propose(ctx context.Context, prev *types.Block, result *types.RoundResult, round uint32) (*types.Block, error) {
	ownKey := []byte(p.signer.PublicKey())
	if result.Winner == nil || !bytes.Equal(result.Winner.PublicKey, ownKey) {
		return nil, ErrNotWinner
	}

	rewarded := make([][]byte, len(result.TopX))
	for i, a := range result.TopX {
		rewarded[i] = a.PublicKey
	}

	block := &types.Block{
		Height:              prev.Height + 1,
		Round:               round,
		Timestamp:           uint64(time.Now().UnixMilli()),
		PreviousHash:        prev.Hash(),
		Proposer:            ownKey,
		VRFOutput:           result.Winner.VRFOutput,
		VRFProof:            result.Winner.VRFProof,
		AllVRFAnnouncements: result.AllValid,
		RewardedNodes:       rewarded,
		Signatures:          make(map[string][]byte),
	}

	block.Transactions = p.selectTransactions(block)
	block.MerkleRoot = types.MerkleRoot(block.Transactions)

	target, err := p.difficulty.RequiredTarget(ctx, p.store, prev)
	if err != nil {
		return nil, fmt.Errorf("difficulty retarget failed: %w", err)
	}
	block.DifficultyTarget = target

	mined, err := p.pow.Mine(ctx, block, target, time.Duration(p.config.BlockProductionTimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	block.Nonce = mined.Nonce

	signature, err := p.signer.Sign(block.Hash())
	if err != nil {
		// Own-key failure is fatal for this node, not a recoverable round error
		return nil, fmt.Errorf("%w: signing proposed block: %v", ErrCryptoFailure, err)
	}
	block.Signatures[p.signer.PublicKeyHex()] = signature

	return block, nil
}

// selectTransactions draws from the mempool snapshot, which is already
// ordered by (fee desc, timestamp asc, hash asc), dropping transactions
// that fail basic checks and stopping at the block's count and byte limits.
func (p *Proposer) selectTransactions(block *types.Block) []*types.Transaction {
	candidates := p.mempool.Snapshot()
	selected := make([]*types.Transaction, 0, len(candidates))

	// Byte budget: the header without transactions, plus each included one
	budget := p.config.MaxBlockSizeBytes() - len(block.EncodeForHashing())

	for _, tx := range candidates {
		if len(selected) >= p.config.MaxTransactionsPerBlock {
			break
		}
		if !p.acceptable(tx) {
			continue
		}
		size := len(tx.SigningBytes()) + types.SignatureSize
		if size > budget {
			break
		}
		budget -= size
		selected = append(selected, tx)
	}

	return selected
}

func (p *Proposer) acceptable(tx *types.Transaction) bool {
	if len(tx.Sender) == 0 || len(tx.Recipient) == 0 {
		return false
	}
	if len(tx.Signature) != types.SignatureSize {
		return false
	}
	if tx.Amount > tx.Amount+tx.Fee {
		// amount + fee overflowed
		return false
	}
	return p.verifier.Verify(tx.Sender, tx.SigningBytes(), tx.Signature)
}
