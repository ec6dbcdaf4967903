package types

import (
	"bytes"
	"math/big"

	"github.com/equiflux/node/internal/crypto"
)

// Field sizes fixed by the consensus wire contract
const (
	HashSize      = 32
	VRFOutputSize = 32
	VRFProofSize  = 64
	SignatureSize = 64
)

// Transaction is a value transfer between two accounts
type Transaction struct {
	Sender    []byte `json:"sender" validate:"required"`
	Recipient []byte `json:"recipient" validate:"required"`
	Amount    uint64 `json:"amount"`
	Fee       uint64 `json:"fee"`
	Nonce     uint64 `json:"nonce"`
	Timestamp uint64 `json:"timestamp"`
	Signature []byte `json:"signature" validate:"required"`
}

// VRFAnnouncement is one super node's VRF evaluation for a round.
// Timestamp is the local wall time at receipt; it is carried in committed
// blocks but is not part of the signed announcement content.
type VRFAnnouncement struct {
	Round     uint64  `json:"round"`
	PublicKey []byte  `json:"public_key" validate:"required"`
	VRFOutput []byte  `json:"vrf_output" validate:"required"`
	VRFProof  []byte  `json:"vrf_proof" validate:"required"`
	Score     float64 `json:"score"`
	Timestamp uint64  `json:"timestamp"`
	Signature []byte  `json:"signature,omitempty"`
}

// Block is an immutable, content-addressed consensus record
type Block struct {
	Height              uint64             `json:"height"`
	Round               uint32             `json:"round"`
	Timestamp           uint64             `json:"timestamp"`
	PreviousHash        []byte             `json:"previous_hash"`
	Proposer            []byte             `json:"proposer"`
	VRFOutput           []byte             `json:"vrf_output"`
	VRFProof            []byte             `json:"vrf_proof"`
	AllVRFAnnouncements []*VRFAnnouncement `json:"all_vrf_announcements"`
	RewardedNodes       [][]byte           `json:"rewarded_nodes"`
	Transactions        []*Transaction     `json:"transactions"`
	MerkleRoot          []byte             `json:"merkle_root"`
	Nonce               uint64             `json:"nonce"`
	DifficultyTarget    *big.Int           `json:"difficulty_target"`

	// Signatures maps hex-encoded public keys to Ed25519 signatures over the
	// block hash. Attestations of the hash, excluded from the hash itself.
	Signatures map[string][]byte `json:"signatures"`
}

// ChainState tracks the engine's view of the canonical chain. Mutated only
// by the consensus engine at commit.
type ChainState struct {
	CurrentHeight     uint64   `json:"current_height"`
	CurrentRound      uint32   `json:"current_round"`
	TotalSupply       uint64   `json:"total_supply"`
	SuperNodeCount    int      `json:"super_node_count"`
	CurrentDifficulty *big.Int `json:"current_difficulty"`
	LastUpdateMs      uint64   `json:"last_update_ms"`
}

// RoundResult is the outcome of a closed VRF collection round
type RoundResult struct {
	Winner   *VRFAnnouncement   `json:"winner"`
	TopX     []*VRFAnnouncement `json:"top_x"`
	AllValid []*VRFAnnouncement `json:"all_valid"`
}

// Account holds the balance and last used nonce for one public key
type Account struct {
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// StateDelta is the set of account mutations a block commit applies
type StateDelta struct {
	Height       uint64             `json:"height"`
	Accounts     map[string]Account `json:"accounts"`
	SupplyChange uint64             `json:"supply_change"`
}

// Hash returns the block hash: SHA-256 of the canonical encoding with the
// signature section emptied. Independent of signature order by construction.
func (b *Block) Hash() []byte {
	return crypto.Hash(b.EncodeForHashing())
}

// HashHex returns the block hash as lowercase hex
func (b *Block) HashHex() string {
	return crypto.EncodeHex(b.Hash())
}

// IsGenesis reports whether the block is the genesis block
func (b *Block) IsGenesis() bool {
	return b.Height == 0
}

// Hash returns the transaction hash: SHA-256 of the canonical encoding with
// an empty signature
func (tx *Transaction) Hash() []byte {
	return crypto.Hash(tx.encodeSigning())
}

// SigningBytes returns the bytes a transaction signature covers
func (tx *Transaction) SigningBytes() []byte {
	return tx.encodeSigning()
}

// SenderHex returns the sender public key as lowercase hex
func (tx *Transaction) SenderHex() string {
	return crypto.EncodeHex(tx.Sender)
}

// PublicKeyHex returns the announcer public key as lowercase hex
func (a *VRFAnnouncement) PublicKeyHex() string {
	return crypto.EncodeHex(a.PublicKey)
}

// Equal reports whether two announcements carry the same signed content
func (a *VRFAnnouncement) Equal(other *VRFAnnouncement) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Round == other.Round &&
		bytes.Equal(a.PublicKey, other.PublicKey) &&
		bytes.Equal(a.VRFOutput, other.VRFOutput) &&
		bytes.Equal(a.VRFProof, other.VRFProof)
}

// Clone returns a deep copy of the chain state
func (s *ChainState) Clone() *ChainState {
	clone := *s
	if s.CurrentDifficulty != nil {
		clone.CurrentDifficulty = new(big.Int).Set(s.CurrentDifficulty)
	}
	return &clone
}
