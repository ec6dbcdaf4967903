package consensus

import (
	"bytes"
	"context"
	"math"

	"github.com/equiflux/node/internal/config"
	"github.com/equiflux/node/internal/crypto"
	"github.com/equiflux/node/internal/score"
	"github.com/equiflux/node/internal/types"
)

// ValidationMode selects how time-sensitive checks are applied
type ValidationMode int

const (
	// ModeLive validates a freshly gossiped block during live consensus
	ModeLive ValidationMode = iota

	// ModeCatchup validates a historical block during sync; the wall-clock
	// timestamp check is skipped
	ModeCatchup
)

// Validator runs the full block validation pipeline. Checks short-circuit
// on the first failure and the categorized reason is returned; no state is
// mutated on any path.
type Validator struct {
	config     *config.Config
	calc       *score.Calculator
	vrf        crypto.VRFProvider
	verifier   crypto.Verifier
	pow        *PoWEngine
	difficulty *DifficultyCalculator
	registry   *Registry
	store      BlockStore
	state      StateStore
}

// NewValidator creates a block validator
func NewValidator(
	cfg *config.Config,
	calc *score.Calculator,
	vrf crypto.VRFProvider,
	verifier crypto.Verifier,
	pow *PoWEngine,
	difficulty *DifficultyCalculator,
	registry *Registry,
	store BlockStore,
	state StateStore,
) *Validator {
	return &Validator{
		config:     cfg,
		calc:       calc,
		vrf:        vrf,
		verifier:   verifier,
		pow:        pow,
		difficulty: difficulty,
		registry:   registry,
		store:      store,
		state:      state,
	}
}

// Validate runs every stage against a candidate block extending prev.
// nowMs is the local wall clock used by the timestamp stage in live mode.
// A nil return means the block is acceptable for commit.
func (v *Validator) Validate(ctx context.Context, block, prev *types.Block, nowMs uint64, mode ValidationMode) *ValidationError {
	if block == nil {
		return NewValidationError(RejectFormat, "nil block")
	}

	// Genesis bootstrap: structural checks only, quorum and timing do not
	// apply at height 0
	if block.Height == 0 {
		return v.validateGenesis(block)
	}

	if err := v.checkFormat(block); err != nil {
		return err
	}
	if mode == ModeLive {
		if err := v.checkTimestamp(block, nowMs); err != nil {
			return err
		}
	}
	if err := v.checkHeight(block, prev); err != nil {
		return err
	}
	if err := v.checkPreviousHash(block, prev); err != nil {
		return err
	}
	if err := v.checkVRFSet(block, prev); err != nil {
		return err
	}
	if err := v.checkProposer(block); err != nil {
		return err
	}
	if err := v.checkRewards(block); err != nil {
		return err
	}
	if err := v.checkMerkleRoot(block); err != nil {
		return err
	}
	if err := v.checkPoW(block); err != nil {
		return err
	}
	if err := v.checkDifficulty(ctx, block, prev); err != nil {
		return err
	}
	if err := v.checkSignatures(block); err != nil {
		return err
	}
	if err := v.checkTransactions(ctx, block, prev); err != nil {
		return err
	}

	return nil
}

func (v *Validator) validateGenesis(block *types.Block) *ValidationError {
	if len(block.PreviousHash) != types.HashSize || !bytes.Equal(block.PreviousHash, make([]byte, types.HashSize)) {
		return NewValidationError(RejectPrevHash, "genesis previous hash must be all zero")
	}
	if len(block.AllVRFAnnouncements) != 0 || len(block.Transactions) != 0 {
		return NewValidationError(RejectFormat, "genesis must carry no announcements or transactions")
	}
	if !bytes.Equal(block.MerkleRoot, types.MerkleRoot(nil)) {
		return NewValidationError(RejectMerkle, "genesis merkle root mismatch")
	}
	if block.DifficultyTarget == nil || block.DifficultyTarget.Sign() <= 0 {
		return NewValidationError(RejectFormat, "genesis difficulty must be positive")
	}
	return nil
}

// Stage 1: structural format and size limits
func (v *Validator) checkFormat(block *types.Block) *ValidationError {
	if len(block.PreviousHash) != types.HashSize {
		return NewValidationError(RejectFormat, "previous hash must be %d bytes", types.HashSize)
	}
	if len(block.Proposer) == 0 {
		return NewValidationError(RejectFormat, "missing proposer")
	}
	if len(block.VRFOutput) != types.VRFOutputSize {
		return NewValidationError(RejectFormat, "vrf output must be %d bytes", types.VRFOutputSize)
	}
	if len(block.VRFProof) != types.VRFProofSize {
		return NewValidationError(RejectFormat, "vrf proof must be %d bytes", types.VRFProofSize)
	}
	if len(block.MerkleRoot) != types.HashSize {
		return NewValidationError(RejectFormat, "merkle root must be %d bytes", types.HashSize)
	}
	if block.DifficultyTarget == nil || block.DifficultyTarget.Sign() <= 0 {
		return NewValidationError(RejectFormat, "difficulty target must be positive")
	}
	for _, a := range block.AllVRFAnnouncements {
		if len(a.PublicKey) == 0 ||
			len(a.VRFOutput) != types.VRFOutputSize ||
			len(a.VRFProof) != types.VRFProofSize {
			return NewValidationError(RejectFormat, "malformed announcement from %s", a.PublicKeyHex())
		}
	}
	for _, sig := range block.Signatures {
		if len(sig) != types.SignatureSize {
			return NewValidationError(RejectFormat, "signature must be %d bytes", types.SignatureSize)
		}
	}
	if len(block.Transactions) > v.config.MaxTransactionsPerBlock {
		return NewValidationError(RejectFormat, "transaction count %d exceeds limit %d",
			len(block.Transactions), v.config.MaxTransactionsPerBlock)
	}
	if size := len(block.Encode()); size > v.config.MaxBlockSizeBytes() {
		return NewValidationError(RejectFormat, "serialized size %d exceeds limit %d",
			size, v.config.MaxBlockSizeBytes())
	}
	return nil
}

// Stage 2: wall-clock bound for live blocks
func (v *Validator) checkTimestamp(block *types.Block, nowMs uint64) *ValidationError {
	skew := v.config.ClockSkewMs
	if block.Timestamp > nowMs+skew || block.Timestamp+skew < nowMs {
		return NewValidationError(RejectTiming, "timestamp %d outside +/-%dms of local clock %d",
			block.Timestamp, skew, nowMs)
	}
	return nil
}

// Stage 3: height continuity
func (v *Validator) checkHeight(block, prev *types.Block) *ValidationError {
	if block.Height != prev.Height+1 {
		return NewValidationError(RejectHeightMismatch, "expected height %d, got %d",
			prev.Height+1, block.Height)
	}
	return nil
}

// Stage 4: chain linkage
func (v *Validator) checkPreviousHash(block, prev *types.Block) *ValidationError {
	if !bytes.Equal(block.PreviousHash, prev.Hash()) {
		return NewValidationError(RejectPrevHash, "previous hash does not match block %d", prev.Height)
	}
	return nil
}

// Stage 5: quorum size, eligibility, VRF proofs, duplicates, and score
// reproduction for the whole announcement set
func (v *Validator) checkVRFSet(block, prev *types.Block) *ValidationError {
	quorum := QuorumSize(v.config.SuperNodeCount)
	if len(block.AllVRFAnnouncements) < quorum {
		return NewValidationError(RejectVRFSetSize, "%d announcements, quorum is %d",
			len(block.AllVRFAnnouncements), quorum)
	}

	epoch := EpochForTimestamp(prev.Timestamp, v.config.EpochLengthMs)
	seed := ComputeSeed(block.PreviousHash, uint64(block.Round), epoch)
	averageStake := v.registry.AverageStake()

	seen := make(map[string]struct{}, len(block.AllVRFAnnouncements))
	for _, a := range block.AllVRFAnnouncements {
		if a.Round != uint64(block.Round) {
			return NewValidationError(RejectVRFProof, "announcement round %d does not match block round %d",
				a.Round, block.Round)
		}

		node, ok := v.registry.Get(a.PublicKey)
		if !ok {
			return NewValidationError(RejectVRFProof, "announcer %s not in super-node set", a.PublicKeyHex())
		}

		key := a.PublicKeyHex()
		if _, dup := seen[key]; dup {
			return NewValidationError(RejectVRFProof, "duplicate announcer %s", key)
		}
		seen[key] = struct{}{}

		if !v.vrf.Verify(a.PublicKey, seed, a.VRFOutput, a.VRFProof) {
			return NewValidationError(RejectVRFProof, "invalid VRF proof from %s", key)
		}

		recomputed := v.calc.Score(a.VRFOutput, node, averageStake, prev.Timestamp)
		if math.Abs(recomputed-a.Score) > scoreTolerance {
			return NewValidationError(RejectVRFProof, "score %g from %s not reproducible (expected %g)",
				a.Score, key, recomputed)
		}
	}

	return nil
}

// Stage 6: sort order and proposer selection
func (v *Validator) checkProposer(block *types.Block) *ValidationError {
	if !v.calc.IsSorted(block.AllVRFAnnouncements) {
		return NewValidationError(RejectProposerMismatch, "announcements not in ranking order")
	}

	winner := block.AllVRFAnnouncements[0]
	if !bytes.Equal(block.Proposer, winner.PublicKey) {
		return NewValidationError(RejectProposerMismatch, "proposer %s is not the top-ranked announcer",
			crypto.EncodeHex(block.Proposer))
	}
	if !bytes.Equal(block.VRFOutput, winner.VRFOutput) || !bytes.Equal(block.VRFProof, winner.VRFProof) {
		return NewValidationError(RejectProposerMismatch, "header VRF fields do not match the winning announcement")
	}
	return nil
}

// Stage 7: reward set
func (v *Validator) checkRewards(block *types.Block) *ValidationError {
	x := v.config.RewardedTopX
	if x > len(block.AllVRFAnnouncements) {
		x = len(block.AllVRFAnnouncements)
	}
	if len(block.RewardedNodes) != x {
		return NewValidationError(RejectRewardMismatch, "%d rewarded nodes, expected %d",
			len(block.RewardedNodes), x)
	}
	for i := 0; i < x; i++ {
		if !bytes.Equal(block.RewardedNodes[i], block.AllVRFAnnouncements[i].PublicKey) {
			return NewValidationError(RejectRewardMismatch, "rewarded node %d does not match ranking", i)
		}
	}
	return nil
}

// Stage 8: merkle root
func (v *Validator) checkMerkleRoot(block *types.Block) *ValidationError {
	if !bytes.Equal(block.MerkleRoot, types.MerkleRoot(block.Transactions)) {
		return NewValidationError(RejectMerkle, "merkle root mismatch")
	}
	return nil
}

// Stage 9: proof of work
func (v *Validator) checkPoW(block *types.Block) *ValidationError {
	if !v.pow.Verify(block) {
		return NewValidationError(RejectPoW, "pow hash not below target")
	}
	return nil
}

// Stage 10: difficulty retarget reproduction
func (v *Validator) checkDifficulty(ctx context.Context, block, prev *types.Block) *ValidationError {
	required, err := v.difficulty.RequiredTarget(ctx, v.store, prev)
	if err != nil {
		return NewValidationError(RejectDifficulty, "retarget recomputation failed: %v", err)
	}
	if required.Cmp(block.DifficultyTarget) != 0 {
		return NewValidationError(RejectDifficulty, "advertised target differs from recomputed target")
	}
	return nil
}

// Stage 11: proposer signature presence and every attestation
func (v *Validator) checkSignatures(block *types.Block) *ValidationError {
	hash := block.Hash()

	proposerKey := crypto.EncodeHex(block.Proposer)
	proposerSig, ok := block.Signatures[proposerKey]
	if !ok {
		return NewValidationError(RejectSignature, "missing proposer signature")
	}
	if !v.verifier.Verify(block.Proposer, hash, proposerSig) {
		return NewValidationError(RejectSignature, "invalid proposer signature")
	}

	for pkHex, sig := range block.Signatures {
		if pkHex == proposerKey {
			continue
		}
		pk, err := crypto.DecodeHex(pkHex)
		if err != nil {
			return NewValidationError(RejectSignature, "malformed attestation key %s", pkHex)
		}
		if !v.registry.Contains(pk) {
			return NewValidationError(RejectSignature, "attestation from %s outside super-node set", pkHex)
		}
		if !v.verifier.Verify(pk, hash, sig) {
			return NewValidationError(RejectSignature, "invalid attestation from %s", pkHex)
		}
	}

	return nil
}

// Stage 12: per-transaction format, signature, nonce, and funding against
// the state snapshot at the previous height
func (v *Validator) checkTransactions(ctx context.Context, block, prev *types.Block) *ValidationError {
	if len(block.Transactions) == 0 {
		return nil
	}

	snapshot, err := v.state.SnapshotAt(ctx, prev.Height)
	if err != nil {
		return NewValidationError(RejectTxBalance, "state snapshot at %d unavailable: %v", prev.Height, err)
	}

	// Running view of balances and nonces as the block's transactions apply
	// in order
	balances := make(map[string]uint64)
	nonces := make(map[string]uint64)

	load := func(pkHex string) (uint64, uint64) {
		if balance, ok := balances[pkHex]; ok {
			return balance, nonces[pkHex]
		}
		account, _ := snapshot.Account(pkHex)
		balances[pkHex] = account.Balance
		nonces[pkHex] = account.Nonce
		return account.Balance, account.Nonce
	}

	for i, tx := range block.Transactions {
		if len(tx.Sender) == 0 || len(tx.Recipient) == 0 {
			return NewValidationError(RejectTxFormat, "transaction %d missing sender or recipient", i)
		}
		if len(tx.Signature) != types.SignatureSize {
			return NewValidationError(RejectTxFormat, "transaction %d signature must be %d bytes", i, types.SignatureSize)
		}
		cost := tx.Amount + tx.Fee
		if cost < tx.Amount {
			return NewValidationError(RejectTxFormat, "transaction %d amount+fee overflows", i)
		}
		if !v.verifier.Verify(tx.Sender, tx.SigningBytes(), tx.Signature) {
			return NewValidationError(RejectTxSignature, "transaction %d signature invalid", i)
		}

		sender := tx.SenderHex()
		balance, nonce := load(sender)
		if tx.Nonce != nonce+1 {
			return NewValidationError(RejectTxNonce, "transaction %d nonce %d, expected %d", i, tx.Nonce, nonce+1)
		}
		if balance < cost {
			return NewValidationError(RejectTxBalance, "transaction %d spends %d with balance %d", i, cost, balance)
		}

		balances[sender] = balance - cost
		nonces[sender] = tx.Nonce

		recipient := crypto.EncodeHex(tx.Recipient)
		recipientBalance, _ := load(recipient)
		balances[recipient] = recipientBalance + tx.Amount
	}

	return nil
}
