package crypto

import "crypto/ed25519"

// Signer interface for signing operations
type Signer interface {
	// Sign signs the given data and returns the signature
	Sign(data []byte) ([]byte, error)

	// PublicKey returns the public key associated with this signer
	PublicKey() ed25519.PublicKey
}

// Verifier interface for signature verification
type Verifier interface {
	// Verify verifies a signature against data using the given public key
	Verify(publicKey ed25519.PublicKey, data, signature []byte) bool
}

// VRFProvider interface for verifiable random function operations
type VRFProvider interface {
	// Evaluate computes the VRF output and proof for the given input
	Evaluate(privateKey ed25519.PrivateKey, input []byte) (output, proof []byte, err error)

	// Verify checks a VRF output and proof against a public key and input
	Verify(publicKey ed25519.PublicKey, input, output, proof []byte) bool
}
