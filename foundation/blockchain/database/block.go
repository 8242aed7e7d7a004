package database

import (
	"bytes"
	"fmt"
	"time"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/holiman/uint256"
)

// HeaderSize is the canonical encoded size of a block header in bytes.
const HeaderSize = 4 + 32 + 32 + 4 + 2 + 8

// MaxBlockBytes is the consensus cap on the canonical encoded block size.
const MaxBlockBytes = 4 * 1024 * 1024

// BlockHeader is the 82 byte committed portion of a block. The proof of
// work digest and the identity hash are both computed over its canonical
// encoding.
type BlockHeader struct {
	Version    uint32
	PrevBlock  signature.Hash
	MerkleRoot signature.Hash
	Timestamp  uint32
	Bits       uint16
	Nonce      uint64
}

// Encode produces the canonical 82 byte encoding of the header.
func (bh BlockHeader) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	writeUint32(&buf, bh.Version)
	buf.Write(bh.PrevBlock[:])
	buf.Write(bh.MerkleRoot[:])
	writeUint32(&buf, bh.Timestamp)
	writeUint16(&buf, bh.Bits)
	writeUint64(&buf, bh.Nonce)
	return buf.Bytes()
}

// DecodeHeader decodes a canonical 82 byte header encoding.
func DecodeHeader(data []byte) (BlockHeader, error) {
	r := reader{data: data}
	bh := decodeHeader(&r)
	if err := r.done(); err != nil {
		return BlockHeader{}, err
	}
	return bh, nil
}

func decodeHeader(r *reader) BlockHeader {
	var bh BlockHeader
	bh.Version = r.uint32()
	copy(bh.PrevBlock[:], r.take(32))
	copy(bh.MerkleRoot[:], r.take(32))
	bh.Timestamp = r.uint32()
	bh.Bits = r.uint16()
	bh.Nonce = r.uint64()
	return bh
}

// Hash returns the identity hash of the header: tagged double SHA-256 of
// the canonical encoding. The block's hash is its header's hash.
func (bh BlockHeader) Hash() signature.Hash {
	return signature.DoubleSHA256(signature.TagHeader, bh.Encode())
}

// Time returns the header timestamp as a time.Time.
func (bh BlockHeader) Time() time.Time {
	return time.Unix(int64(bh.Timestamp), 0).UTC()
}

// Work returns the expected work the header's difficulty represents:
// 2^Bits evaluations of the proof of work function.
func (bh BlockHeader) Work() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), uint(bh.Bits))
}

// =============================================================================

// Block bundles a header with its full transaction list. The first
// transaction must be the coinbase.
type Block struct {
	Header BlockHeader
	Txs    []Tx
}

// Hash returns the block's identity hash, which is its header's hash.
func (b Block) Hash() signature.Hash {
	return b.Header.Hash()
}

// Encode produces the canonical encoding of the block: the header, a
// uvarint transaction count, then each transaction's canonical encoding.
func (b Block) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(b.Header.Encode())
	writeUvarint(&buf, uint64(len(b.Txs)))
	for _, tx := range b.Txs {
		tx.encode(&buf, false)
	}
	return buf.Bytes()
}

// Size returns the canonical encoded size of the block in bytes.
func (b Block) Size() int {
	return len(b.Encode())
}

// DecodeBlock decodes a canonical block encoding. The encoding must
// round-trip exactly; trailing bytes are an error.
func DecodeBlock(data []byte) (Block, error) {
	if len(data) > MaxBlockBytes {
		return Block{}, fmt.Errorf("block size %d exceeds limit %d", len(data), MaxBlockBytes)
	}

	r := reader{data: data}

	var b Block
	b.Header = decodeHeader(&r)

	numTxs := r.uvarint()
	if numTxs > maxTxSlots {
		return Block{}, fmt.Errorf("transaction count %d too large", numTxs)
	}
	for i := uint64(0); i < numTxs && r.err == nil; i++ {
		b.Txs = append(b.Txs, decodeTx(&r))
	}

	if err := r.done(); err != nil {
		return Block{}, err
	}
	return b, nil
}

// MerkleRoot computes the merkle root over the block's transaction ids
// using the standard pairwise double SHA-256 reduction. A level with an
// odd number of nodes duplicates its last node. An empty transaction list
// yields the zero hash; a single transaction's txid is the root.
func (b Block) MerkleRoot() signature.Hash {
	if len(b.Txs) == 0 {
		return signature.ZeroHash
	}

	level := make([]signature.Hash, len(b.Txs))
	for i, tx := range b.Txs {
		level[i] = tx.TxID()
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:len(level)/2]
		for i := range next {
			next[i] = signature.MerkleCombine(level[2*i], level[2*i+1])
		}
		level = next
	}

	return level[0]
}

// =============================================================================

// BlockIndexEntry is the per-block metadata the chain state keeps for every
// known header, main chain and side chains alike. Cumulative work decides
// the best chain.
type BlockIndexEntry struct {
	Header         BlockHeader
	Height         uint32
	CumulativeWork *uint256.Int
	BitsQ          uint32
	TxCount        uint32
}

// Hash returns the identity hash of the indexed header.
func (e BlockIndexEntry) Hash() signature.Hash {
	return e.Header.Hash()
}

// Encode produces the storage encoding of the index entry.
func (e BlockIndexEntry) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(e.Header.Encode())
	writeUint32(&buf, e.Height)

	work := e.CumulativeWork
	if work == nil {
		work = new(uint256.Int)
	}
	wb := work.Bytes32()
	buf.Write(wb[:])

	writeUint32(&buf, e.BitsQ)
	writeUint32(&buf, e.TxCount)
	return buf.Bytes()
}

// DecodeBlockIndexEntry decodes a storage encoding of an index entry.
func DecodeBlockIndexEntry(data []byte) (BlockIndexEntry, error) {
	r := reader{data: data}

	var e BlockIndexEntry
	e.Header = decodeHeader(&r)
	e.Height = r.uint32()

	if wb := r.take(32); wb != nil {
		e.CumulativeWork = new(uint256.Int).SetBytes32(wb)
	}

	e.BitsQ = r.uint32()
	e.TxCount = r.uint32()

	if err := r.done(); err != nil {
		return BlockIndexEntry{}, err
	}
	return e, nil
}
