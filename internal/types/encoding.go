package types

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/big"
	"sort"

	"github.com/equiflux/node/internal/crypto"
)

// Canonical encoding: fixed field order, big-endian integers, length-prefixed
// variable fields. The same byte layout is used for hashing and for the wire,
// except that the hashing form carries an empty signature section.

// byteWriter accumulates the canonical encoding of a structure
type byteWriter struct {
	buf bytes.Buffer
}

func (w *byteWriter) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *byteWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *byteWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *byteWriter) f64(v float64) {
	w.u64(math.Float64bits(v))
}

func (w *byteWriter) raw(b []byte) {
	w.buf.Write(b)
}

// lp writes a u16 length prefix followed by the bytes
func (w *byteWriter) lp(b []byte) {
	w.u16(uint16(len(b)))
	w.buf.Write(b)
}

func (w *byteWriter) bytes() []byte {
	return w.buf.Bytes()
}

// byteReader consumes a canonical encoding, tracking truncation
type byteReader struct {
	data []byte
	off  int
	err  error
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *byteReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *byteReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *byteReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *byteReader) f64() float64 {
	return math.Float64frombits(r.u64())
}

func (r *byteReader) fixed(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *byteReader) lp() []byte {
	n := int(r.u16())
	return r.fixed(n)
}

func (r *byteReader) done() bool {
	return r.err == nil && r.off == len(r.data)
}

// Encode returns the full canonical encoding of the block, including the
// signature section sorted by public key bytes
func (b *Block) Encode() []byte {
	return b.encode(true)
}

// EncodeForHashing returns the canonical encoding with an empty signature
// section; this is the block hash preimage
func (b *Block) EncodeForHashing() []byte {
	return b.encode(false)
}

func (b *Block) encode(withSignatures bool) []byte {
	w := &byteWriter{}

	w.u64(b.Height)
	w.u32(b.Round)
	w.u64(b.Timestamp)
	w.raw(b.PreviousHash)
	w.lp(b.Proposer)
	w.raw(b.VRFOutput)
	w.raw(b.VRFProof)

	w.u32(uint32(len(b.AllVRFAnnouncements)))
	for _, a := range b.AllVRFAnnouncements {
		w.u64(a.Round)
		w.lp(a.PublicKey)
		w.raw(a.VRFOutput)
		w.raw(a.VRFProof)
		w.f64(a.Score)
		w.u64(a.Timestamp)
	}

	w.u32(uint32(len(b.RewardedNodes)))
	for _, pk := range b.RewardedNodes {
		w.lp(pk)
	}

	w.u32(uint32(len(b.Transactions)))
	for _, tx := range b.Transactions {
		w.raw(tx.encodeFull())
	}

	w.u64(b.Nonce)

	target := []byte{}
	if b.DifficultyTarget != nil {
		target = b.DifficultyTarget.Bytes()
	}
	w.u16(uint16(len(target)))
	w.raw(target)

	if !withSignatures || len(b.Signatures) == 0 {
		w.u32(0)
		return w.bytes()
	}

	keys := make([]string, 0, len(b.Signatures))
	for pk := range b.Signatures {
		keys = append(keys, pk)
	}
	sort.Strings(keys)

	w.u32(uint32(len(keys)))
	for _, pkHex := range keys {
		pk, err := crypto.DecodeHex(pkHex)
		if err != nil {
			// Keys are produced internally as lowercase hex; a bad key
			// would make the encoding ambiguous, so skip it.
			continue
		}
		w.lp(pk)
		w.raw(b.Signatures[pkHex])
	}

	return w.bytes()
}

// DecodeBlock parses a canonical block encoding
func DecodeBlock(data []byte) (*Block, error) {
	r := &byteReader{data: data}
	b := &Block{}

	b.Height = r.u64()
	b.Round = r.u32()
	b.Timestamp = r.u64()
	b.PreviousHash = r.fixed(HashSize)
	b.Proposer = r.lp()
	b.VRFOutput = r.fixed(VRFOutputSize)
	b.VRFProof = r.fixed(VRFProofSize)

	annCount := r.u32()
	if r.err != nil {
		return nil, r.err
	}
	b.AllVRFAnnouncements = make([]*VRFAnnouncement, 0, annCount)
	for i := uint32(0); i < annCount; i++ {
		a := &VRFAnnouncement{
			Round:     r.u64(),
			PublicKey: r.lp(),
			VRFOutput: r.fixed(VRFOutputSize),
			VRFProof:  r.fixed(VRFProofSize),
			Score:     r.f64(),
			Timestamp: r.u64(),
		}
		if r.err != nil {
			return nil, r.err
		}
		b.AllVRFAnnouncements = append(b.AllVRFAnnouncements, a)
	}

	rewardCount := r.u32()
	if r.err != nil {
		return nil, r.err
	}
	b.RewardedNodes = make([][]byte, 0, rewardCount)
	for i := uint32(0); i < rewardCount; i++ {
		b.RewardedNodes = append(b.RewardedNodes, r.lp())
	}

	txCount := r.u32()
	if r.err != nil {
		return nil, r.err
	}
	b.Transactions = make([]*Transaction, 0, txCount)
	for i := uint32(0); i < txCount; i++ {
		tx := decodeTransaction(r)
		if r.err != nil {
			return nil, r.err
		}
		b.Transactions = append(b.Transactions, tx)
	}

	// The merkle root is not carried on the wire; it is derived from the
	// transaction set
	b.MerkleRoot = MerkleRoot(b.Transactions)

	b.Nonce = r.u64()

	targetLen := int(r.u16())
	targetBytes := r.fixed(targetLen)
	if r.err != nil {
		return nil, r.err
	}
	b.DifficultyTarget = new(big.Int).SetBytes(targetBytes)

	sigCount := r.u32()
	if r.err != nil {
		return nil, r.err
	}
	b.Signatures = make(map[string][]byte, sigCount)
	for i := uint32(0); i < sigCount; i++ {
		pk := r.lp()
		sig := r.fixed(SignatureSize)
		if r.err != nil {
			return nil, r.err
		}
		b.Signatures[crypto.EncodeHex(pk)] = sig
	}

	if !r.done() {
		return nil, ErrTrailingBytes
	}
	return b, nil
}

// encodeFull returns the transaction encoding including the signature
func (tx *Transaction) encodeFull() []byte {
	w := &byteWriter{}
	tx.encodeBody(w)
	w.raw(tx.Signature)
	return w.bytes()
}

// encodeSigning returns the transaction encoding the signature covers
func (tx *Transaction) encodeSigning() []byte {
	w := &byteWriter{}
	tx.encodeBody(w)
	return w.bytes()
}

func (tx *Transaction) encodeBody(w *byteWriter) {
	w.lp(tx.Sender)
	w.lp(tx.Recipient)
	w.u64(tx.Amount)
	w.u64(tx.Fee)
	w.u64(tx.Nonce)
	w.u64(tx.Timestamp)
}

func decodeTransaction(r *byteReader) *Transaction {
	return &Transaction{
		Sender:    r.lp(),
		Recipient: r.lp(),
		Amount:    r.u64(),
		Fee:       r.u64(),
		Nonce:     r.u64(),
		Timestamp: r.u64(),
		Signature: r.fixed(SignatureSize),
	}
}

// DecodeTransaction parses a standalone canonical transaction encoding
func DecodeTransaction(data []byte) (*Transaction, error) {
	r := &byteReader{data: data}
	tx := decodeTransaction(r)
	if r.err != nil {
		return nil, r.err
	}
	if !r.done() {
		return nil, ErrTrailingBytes
	}
	return tx, nil
}

// EncodeWire returns the signed gossip encoding of an announcement:
// round, public key, output, proof, score, then the announcer signature
// covering all prior bytes
func (a *VRFAnnouncement) EncodeWire() []byte {
	w := &byteWriter{}
	w.raw(a.SigningBytes())
	w.raw(a.Signature)
	return w.bytes()
}

// SigningBytes returns the announcement bytes the announcer signature covers
func (a *VRFAnnouncement) SigningBytes() []byte {
	w := &byteWriter{}
	w.u64(a.Round)
	w.lp(a.PublicKey)
	w.raw(a.VRFOutput)
	w.raw(a.VRFProof)
	w.f64(a.Score)
	return w.bytes()
}

// DecodeAnnouncement parses a signed gossip announcement
func DecodeAnnouncement(data []byte) (*VRFAnnouncement, error) {
	r := &byteReader{data: data}
	a := &VRFAnnouncement{
		Round:     r.u64(),
		PublicKey: r.lp(),
		VRFOutput: r.fixed(VRFOutputSize),
		VRFProof:  r.fixed(VRFProofSize),
		Score:     r.f64(),
		Signature: r.fixed(SignatureSize),
	}
	if r.err != nil {
		return nil, r.err
	}
	if !r.done() {
		return nil, ErrTrailingBytes
	}
	return a, nil
}

// PoWPreimage builds the mining hash preimage for the given nonce from the
// block's own header fields
func (b *Block) PoWPreimage(nonce uint64) []byte {
	w := &byteWriter{}
	w.u64(b.Height)
	w.u32(b.Round)
	w.u64(b.Timestamp)
	w.raw(b.PreviousHash)
	w.lp(b.Proposer)
	w.raw(b.VRFOutput)
	w.raw(b.MerkleRoot)
	w.u64(nonce)
	if b.DifficultyTarget != nil {
		w.raw(b.DifficultyTarget.Bytes())
	}
	return w.bytes()
}
