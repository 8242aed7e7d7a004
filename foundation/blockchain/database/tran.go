package database

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// maxPayloadBytes bounds the byte strings inside a decoded input so a
// hostile encoding can't force a large allocation. The coinbase payload
// (height, extranonce, miner tag) is the largest legitimate string.
const maxPayloadBytes = 128

// OutPoint identifies one output of one transaction.
type OutPoint struct {
	TxID signature.Hash
	Vout uint32
}

// String implements the fmt.Stringer interface.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxID, op.Vout)
}

// Key returns the 36 byte storage key for the outpoint.
func (op OutPoint) Key() []byte {
	key := make([]byte, 36)
	copy(key, op.TxID[:])
	binary.LittleEndian.PutUint32(key[32:], op.Vout)
	return key
}

// ToOutPoint decodes a 36 byte outpoint key.
func ToOutPoint(key []byte) (OutPoint, error) {
	if len(key) != 36 {
		return OutPoint{}, fmt.Errorf("invalid outpoint key length %d", len(key))
	}
	var op OutPoint
	copy(op.TxID[:], key[:32])
	op.Vout = binary.LittleEndian.Uint32(key[32:])
	return op, nil
}

// TxInput spends one previous output. For the coinbase input Prev is the
// sentinel outpoint, Signature is empty, and PubKey carries an arbitrary
// payload instead of a key.
type TxInput struct {
	Prev      OutPoint
	Signature []byte
	PubKey    []byte
}

// TxOutput creates one new spendable output locked to a pubkey hash.
type TxOutput struct {
	Value      uint64
	PubKeyHash signature.PubKeyHash
}

// Tx is the unit of value transfer.
type Tx struct {
	Version  uint32
	Inputs   []TxInput
	Outputs  []TxOutput
	LockTime uint32
}

// =============================================================================

// NewCoinbaseTx constructs the coinbase for a block at the given height.
// The payout outputs are taken as provided; the payload carries the height,
// an extranonce slot, and the miner tag.
func NewCoinbaseTx(height uint32, outputs []TxOutput, minerTag []byte) Tx {
	return Tx{
		Version: 1,
		Inputs: []TxInput{{
			Prev:      OutPoint{TxID: signature.ZeroHash, Vout: CoinbaseVout},
			Signature: nil,
			PubKey:    CoinbasePayload(height, 0, minerTag),
		}},
		Outputs: outputs,
	}
}

// CoinbasePayload builds the coinbase input payload: height, extranonce,
// miner tag. The extranonce sits at a fixed offset so miners can roll it
// without re-encoding the transaction.
func CoinbasePayload(height uint32, extraNonce uint64, minerTag []byte) []byte {
	payload := make([]byte, 12, 12+len(minerTag))
	binary.LittleEndian.PutUint32(payload, height)
	binary.LittleEndian.PutUint64(payload[4:], extraNonce)
	return append(payload, minerTag...)
}

// CoinbaseExtraNonceOffset is the byte offset of the extranonce inside the
// coinbase input payload.
const CoinbaseExtraNonceOffset = 4

// IsCoinbase reports whether the transaction carries the coinbase sentinel
// input. Position checks (first transaction, only coinbase) are the block
// validator's job.
func (tx Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 1 &&
		tx.Inputs[0].Prev.TxID.IsZero() &&
		tx.Inputs[0].Prev.Vout == CoinbaseVout
}

// TotalOutput sums the output values.
func (tx Tx) TotalOutput() uint64 {
	var sum uint64
	for _, out := range tx.Outputs {
		sum += out.Value
	}
	return sum
}

// TxID returns the identity hash of the transaction: tagged double SHA-256
// of the canonical encoding, signatures included.
func (tx Tx) TxID() signature.Hash {
	return signature.DoubleSHA256(signature.TagTransaction, tx.Encode())
}

// Size returns the canonical encoded size in bytes.
func (tx Tx) Size() int {
	return len(tx.Encode())
}

// =============================================================================

// Encode produces the canonical encoding of the transaction.
func (tx Tx) Encode() []byte {
	var buf bytes.Buffer
	tx.encode(&buf, false)
	return buf.Bytes()
}

func (tx Tx) encode(buf *bytes.Buffer, zeroSigs bool) {
	writeUint32(buf, tx.Version)

	writeUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf.Write(in.Prev.TxID[:])
		writeUint32(buf, in.Prev.Vout)
		if zeroSigs {
			writeBytes(buf, nil)
		} else {
			writeBytes(buf, in.Signature)
		}
		writeBytes(buf, in.PubKey)
	}

	writeUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		writeUint64(buf, out.Value)
		writeBytes(buf, out.PubKeyHash[:])
	}

	writeUint32(buf, tx.LockTime)
}

// DecodeTx decodes a canonical transaction encoding. The encoding must
// round-trip exactly; trailing bytes are an error.
func DecodeTx(data []byte) (Tx, error) {
	r := reader{data: data}
	tx := decodeTx(&r)
	if err := r.done(); err != nil {
		return Tx{}, err
	}
	return tx, nil
}

func decodeTx(r *reader) Tx {
	var tx Tx
	tx.Version = r.uint32()

	numIn := r.uint32()
	if numIn > maxTxSlots {
		r.fail("input count %d too large", numIn)
		return Tx{}
	}
	for i := uint32(0); i < numIn && r.err == nil; i++ {
		var in TxInput
		copy(in.Prev.TxID[:], r.take(32))
		in.Prev.Vout = r.uint32()
		in.Signature = r.bytes(maxPayloadBytes)
		in.PubKey = r.bytes(maxPayloadBytes)
		tx.Inputs = append(tx.Inputs, in)
	}

	numOut := r.uint32()
	if numOut > maxTxSlots {
		r.fail("output count %d too large", numOut)
		return Tx{}
	}
	for i := uint32(0); i < numOut && r.err == nil; i++ {
		var out TxOutput
		out.Value = r.uint64()
		pkh := r.take(4 + signature.AddressSize)
		if pkh != nil {
			if binary.LittleEndian.Uint32(pkh) != signature.AddressSize {
				r.fail("output %d: pubkey hash length %d", i, binary.LittleEndian.Uint32(pkh))
			} else {
				copy(out.PubKeyHash[:], pkh[4:])
			}
		}
		tx.Outputs = append(tx.Outputs, out)
	}

	tx.LockTime = r.uint32()
	return tx
}

// maxTxSlots bounds decoded input/output counts; a 4 MiB block can't carry
// more entries than this anyway.
const maxTxSlots = 1 << 20

// =============================================================================

// SigningDigest returns the digest every input signs: the tagged double
// SHA-256 of the canonical encoding with all signatures zeroed.
func (tx Tx) SigningDigest() signature.Hash {
	var buf bytes.Buffer
	tx.encode(&buf, true)
	return signature.DoubleSHA256(signature.TagSigning, buf.Bytes())
}

// Sign signs every input of the transaction with the private key. The
// pubkeys are part of the signed encoding, so they are all placed before
// the digest is computed.
func (tx *Tx) Sign(privateKey ed25519.PrivateKey) error {
	if len(tx.Inputs) == 0 {
		return fmt.Errorf("transaction has no inputs to sign")
	}

	pubKey := append([]byte(nil), privateKey.Public().(ed25519.PublicKey)...)
	for i := range tx.Inputs {
		tx.Inputs[i].PubKey = pubKey
	}

	digest := tx.SigningDigest()
	sig := signature.Sign(digest, privateKey)
	for i := range tx.Inputs {
		tx.Inputs[i].Signature = sig
	}

	return nil
}
