package crypto

import "errors"

var (
	// ErrNoPrivateKey indicates no private key is available for signing
	ErrNoPrivateKey = errors.New("no private key available")

	// ErrInvalidPublicKey indicates the public key is invalid
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidPrivateKey indicates the private key is invalid
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrInvalidSignature indicates the signature is invalid
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidVRFProof indicates the VRF proof is invalid
	ErrInvalidVRFProof = errors.New("invalid VRF proof")

	// ErrEmptyVRFInput indicates the VRF input is empty
	ErrEmptyVRFInput = errors.New("VRF input cannot be empty")

	// ErrInvalidHex indicates a malformed hex string
	ErrInvalidHex = errors.New("invalid hex encoding")
)
