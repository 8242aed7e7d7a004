package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/equiforge/equiforge/foundation/blockchain/storage"
)

// Key layout inside the store. Blocks and index entries exist for every
// known branch; the height mapping, the UTXO set, and the deltas describe
// the active chain only.
const (
	prefixBlock  = "b:" // hash -> canonical block bytes
	prefixIndex  = "h:" // hash -> index entry
	prefixHeight = "H:" // big endian height -> hash, active chain
	prefixUtxo   = "u:" // outpoint -> utxo entry, active chain
	prefixDelta  = "d:" // hash -> utxo delta, active chain
)

var keyTip = []byte("t")

// chainDB wraps the raw store with the chain's key layout. All writes go
// through batches assembled by the validation pipeline so a block's index
// entry, its UTXO changes, and the tip move together or not at all.
type chainDB struct {
	store storage.Storage
}

func blockKey(h signature.Hash) []byte  { return append([]byte(prefixBlock), h[:]...) }
func indexKey(h signature.Hash) []byte  { return append([]byte(prefixIndex), h[:]...) }
func deltaKey(h signature.Hash) []byte  { return append([]byte(prefixDelta), h[:]...) }
func utxoKey(op database.OutPoint) []byte {
	return append([]byte(prefixUtxo), op.Key()...)
}

func heightKey(height uint32) []byte {
	key := make([]byte, 2, 6)
	copy(key, prefixHeight)
	return binary.BigEndian.AppendUint32(key, height)
}

// =============================================================================

// GetBlock reads a full block by hash from any known branch.
func (db chainDB) GetBlock(h signature.Hash) (database.Block, error) {
	data, err := db.store.Get(blockKey(h))
	if err != nil {
		return database.Block{}, fmt.Errorf("block %s: %w", h, err)
	}
	return database.DecodeBlock(data)
}

// GetIndexEntry reads the index entry for a known header.
func (db chainDB) GetIndexEntry(h signature.Hash) (database.BlockIndexEntry, error) {
	data, err := db.store.Get(indexKey(h))
	if err != nil {
		return database.BlockIndexEntry{}, err
	}
	return database.DecodeBlockIndexEntry(data)
}

// HasIndexEntry reports whether the header hash is known to any branch.
func (db chainDB) HasIndexEntry(h signature.Hash) (bool, error) {
	_, err := db.store.Get(indexKey(h))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HashAtHeight reads the active chain hash at the given height.
func (db chainDB) HashAtHeight(height uint32) (signature.Hash, error) {
	data, err := db.store.Get(heightKey(height))
	if err != nil {
		return signature.Hash{}, err
	}
	return signature.ToHash(data)
}

// GetDelta reads the UTXO delta an active chain block committed.
func (db chainDB) GetDelta(h signature.Hash) (database.Delta, error) {
	data, err := db.store.Get(deltaKey(h))
	if err != nil {
		return database.Delta{}, err
	}
	return database.DecodeDelta(data)
}

// TipHash reads the active tip hash. storage.ErrNotFound means the store
// is empty and the chain needs its genesis block.
func (db chainDB) TipHash() (signature.Hash, error) {
	data, err := db.store.Get(keyTip)
	if err != nil {
		return signature.Hash{}, err
	}
	return signature.ToHash(data)
}

// GetUtxo implements database.UtxoReader against the active chain's set.
func (db chainDB) GetUtxo(op database.OutPoint) (database.UtxoEntry, bool, error) {
	data, err := db.store.Get(utxoKey(op))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return database.UtxoEntry{}, false, nil
		}
		return database.UtxoEntry{}, false, err
	}

	entry, err := database.DecodeUtxoEntry(data)
	if err != nil {
		return database.UtxoEntry{}, false, err
	}
	return entry, true, nil
}

// =============================================================================

// connectBatch atomically installs a block on the active chain: the block
// itself, its index entry, the height mapping, the UTXO delta, the delta
// record for later disconnection, and the tip pointer.
func (db chainDB) connectBatch(block database.Block, entry database.BlockIndexEntry, delta database.Delta) error {
	hash := block.Hash()

	sets := []storage.Pair{
		{Key: blockKey(hash), Value: block.Encode()},
		{Key: indexKey(hash), Value: entry.Encode()},
		{Key: heightKey(entry.Height), Value: hash[:]},
		{Key: deltaKey(hash), Value: delta.Encode()},
		{Key: keyTip, Value: hash[:]},
	}

	var deletes [][]byte
	for _, op := range delta.Ops {
		if op.Spend {
			deletes = append(deletes, utxoKey(op.OutPoint))
			continue
		}
		sets = append(sets, storage.Pair{Key: utxoKey(op.OutPoint), Value: op.Entry.Encode()})
	}

	return db.store.BatchWrite(sets, deletes)
}

// disconnectBatch atomically removes the tip block from the active chain
// by applying its delta's inverse in reverse order. The block and its
// index entry stay behind as a side branch record.
func (db chainDB) disconnectBatch(entry database.BlockIndexEntry, delta database.Delta, newTip signature.Hash) error {
	hash := entry.Hash()

	sets := []storage.Pair{
		{Key: keyTip, Value: newTip[:]},
	}
	deletes := [][]byte{
		heightKey(entry.Height),
		deltaKey(hash),
	}

	for i := len(delta.Ops) - 1; i >= 0; i-- {
		op := delta.Ops[i]
		if op.Spend {
			sets = append(sets, storage.Pair{Key: utxoKey(op.OutPoint), Value: op.Entry.Encode()})
			continue
		}
		deletes = append(deletes, utxoKey(op.OutPoint))
	}

	return db.store.BatchWrite(sets, deletes)
}

// sideChainBatch records a block that is valid enough to index but not on
// the active chain.
func (db chainDB) sideChainBatch(block database.Block, entry database.BlockIndexEntry) error {
	hash := block.Hash()

	sets := []storage.Pair{
		{Key: blockKey(hash), Value: block.Encode()},
		{Key: indexKey(hash), Value: entry.Encode()},
	}
	return db.store.BatchWrite(sets, nil)
}

// evictBatch drops the stored blocks of an abandoned side branch.
func (db chainDB) evictBatch(hashes []signature.Hash) error {
	var deletes [][]byte
	for _, h := range hashes {
		deletes = append(deletes, blockKey(h), indexKey(h))
	}
	return db.store.BatchWrite(nil, deletes)
}
