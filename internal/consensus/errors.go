package consensus

import (
	"errors"
	"fmt"
)

var (
	// ErrConsensusTimeout indicates a VRF collection or mining deadline elapsed
	ErrConsensusTimeout = errors.New("consensus timeout")

	// ErrInsufficientQuorum indicates fewer than 2/3 of the super nodes
	// produced valid VRF announcements before the collection window closed
	ErrInsufficientQuorum = errors.New("insufficient VRF quorum")

	// ErrRoundAborted indicates the round was force-closed externally
	ErrRoundAborted = errors.New("round aborted")

	// ErrNotWinner indicates this node was asked to propose a block for a
	// round it did not win
	ErrNotWinner = errors.New("local node is not the round winner")

	// ErrMiningTimeout indicates no nonce was found within the block
	// production budget
	ErrMiningTimeout = errors.New("mining timeout")

	// ErrCryptoFailure indicates an own-key crypto operation failed; fatal
	ErrCryptoFailure = errors.New("crypto failure")

	// ErrCollectorBusy indicates a collection round is already in progress
	ErrCollectorBusy = errors.New("collector already collecting")

	// ErrCollectorClosed indicates a submission arrived while no round was
	// collecting
	ErrCollectorClosed = errors.New("collector not collecting")

	// ErrQueueFull indicates a bounded ingress queue rejected a message
	ErrQueueFull = errors.New("ingress queue full")

	// ErrEngineRunning indicates Start was called on a running engine
	ErrEngineRunning = errors.New("engine already running")

	// ErrNoGenesis indicates the block store holds no genesis block
	ErrNoGenesis = errors.New("no genesis block")
)

// RejectionKind categorizes why the validator rejected a block
type RejectionKind string

const (
	RejectFormat           RejectionKind = "format"
	RejectTiming           RejectionKind = "timing"
	RejectHeightMismatch   RejectionKind = "height-mismatch"
	RejectPrevHash         RejectionKind = "prev-hash"
	RejectVRFSetSize       RejectionKind = "vrf-set-size"
	RejectVRFProof         RejectionKind = "vrf-proof"
	RejectProposerMismatch RejectionKind = "proposer-mismatch"
	RejectRewardMismatch   RejectionKind = "reward-mismatch"
	RejectMerkle           RejectionKind = "merkle"
	RejectPoW              RejectionKind = "pow"
	RejectDifficulty       RejectionKind = "difficulty"
	RejectSignature        RejectionKind = "signature"
	RejectTxFormat         RejectionKind = "tx-format"
	RejectTxSignature      RejectionKind = "tx-signature"
	RejectTxNonce          RejectionKind = "tx-nonce"
	RejectTxBalance        RejectionKind = "tx-balance"
)

// ValidationError carries the categorized reason a block was rejected
type ValidationError struct {
	Kind   RejectionKind
	Detail string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("block rejected: %s", e.Kind)
	}
	return fmt.Sprintf("block rejected: %s: %s", e.Kind, e.Detail)
}

// NewValidationError creates a categorized validation error
func NewValidationError(kind RejectionKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
}

// AsValidationError unwraps err into a ValidationError if it is one
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
