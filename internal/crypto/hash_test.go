package crypto

import (
	"crypto/sha256"
	"testing"
)

func TestHashVariadicConcatenation(t *testing.T) {
	a := []byte("abc")
	b := []byte("def")

	combined := Hash(a, b)
	direct := sha256.Sum256([]byte("abcdef"))

	if EncodeHex(combined) != EncodeHex(direct[:]) {
		t.Error("Variadic hash must equal hash of the concatenation")
	}

	if len(Hash()) != HashSize {
		t.Errorf("Empty hash must still be %d bytes", HashSize)
	}
}

func TestHexRoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, 0xab, 0xcd, 0xef, 0xff}

	encoded := EncodeHex(data)
	if encoded != "0001abcdefff" {
		t.Errorf("Expected lowercase hex without separators, got %q", encoded)
	}

	decoded, err := DecodeHex(encoded)
	if err != nil {
		t.Fatalf("Failed to decode hex: %v", err)
	}
	if EncodeHex(decoded) != encoded {
		t.Error("Hex codec must round-trip exactly")
	}

	if _, err := DecodeHex("not hex!"); err == nil {
		t.Error("Expected error for invalid hex, got nil")
	}
}
