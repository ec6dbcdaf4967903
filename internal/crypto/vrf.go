package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
)

// VRF sizes. The proof is a deterministic Ed25519 signature, the output a
// SHA-256 digest derived from it.
const (
	VRFOutputSize = sha256.Size
	VRFProofSize  = ed25519.SignatureSize
)

// VRF domain separators. Changing either is a hard fork: every node derives
// the same output from the same (key, input) pair only while these agree.
var (
	vrfProveDomain  = []byte("EQUIFLUX_VRF_V1")
	vrfOutputDomain = []byte("EQUIFLUX_VRF_OUTPUT_V1")
)

// VRF implements a verifiable random function over Ed25519 keys. RFC 8032
// signatures are deterministic, so (output, proof) are pure functions of
// (private key, input), and anyone holding the public key can recompute the
// output from the proof.
type VRF struct{}

// NewVRF creates a new VRF provider
func NewVRF() *VRF {
	return &VRF{}
}

// Evaluate computes the VRF output and proof for the given input
func (v *VRF) Evaluate(privateKey ed25519.PrivateKey, input []byte) (output, proof []byte, err error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, nil, ErrInvalidPrivateKey
	}
	if len(input) == 0 {
		return nil, nil, ErrEmptyVRFInput
	}

	proof = ed25519.Sign(privateKey, vrfMessage(input))
	output = deriveVRFOutput(proof, input)
	return output, proof, nil
}

// Verify checks that (output, proof) is the unique valid VRF evaluation of
// input under the given public key
func (v *VRF) Verify(publicKey ed25519.PublicKey, input, output, proof []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(input) == 0 {
		return false
	}
	if len(proof) != VRFProofSize || len(output) != VRFOutputSize {
		return false
	}

	if !ed25519.Verify(publicKey, vrfMessage(input), proof) {
		return false
	}

	expected := deriveVRFOutput(proof, input)
	return subtle.ConstantTimeCompare(output, expected) == 1
}

// vrfMessage builds the domain-separated digest the proof signs
func vrfMessage(input []byte) []byte {
	return Hash(vrfProveDomain, input)
}

// deriveVRFOutput derives the output digest from proof and input
func deriveVRFOutput(proof, input []byte) []byte {
	return Hash(vrfOutputDomain, proof, input)
}
