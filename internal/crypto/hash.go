package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSize is the size of a SHA-256 digest in bytes
const HashSize = sha256.Size

// Hash computes the SHA-256 digest of the concatenation of all chunks
func Hash(chunks ...[]byte) []byte {
	h := sha256.New()
	for _, chunk := range chunks {
		h.Write(chunk)
	}
	return h.Sum(nil)
}

// EncodeHex encodes bytes as lowercase hex with no separators
func EncodeHex(data []byte) string {
	return hex.EncodeToString(data)
}

// DecodeHex decodes a lowercase hex string produced by EncodeHex
func DecodeHex(s string) ([]byte, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidHex
	}
	return data, nil
}
