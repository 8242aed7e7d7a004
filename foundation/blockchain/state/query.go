package state

import (
	"errors"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/equiforge/equiforge/foundation/blockchain/storage"
)

// QueryLatest queries the latest block height in the chain.
const QueryLatest = ^uint32(0)

// ErrBlockNotFound is returned by the block queries when no block
// matches.
var ErrBlockNotFound = errors.New("block not found")

// =============================================================================

// QueryBlockByHash returns the full block with the given hash from any
// known branch.
func (s *State) QueryBlockByHash(hash signature.Hash) (database.Block, error) {
	block, err := s.db.GetBlock(hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return database.Block{}, ErrBlockNotFound
		}
		return database.Block{}, err
	}
	return block, nil
}

// QueryBlockByHeight returns the active chain block at the given height.
func (s *State) QueryBlockByHeight(height uint32) (database.Block, error) {
	s.mu.Lock()
	if height == QueryLatest {
		height = s.tip.Height
	}
	s.mu.Unlock()

	hash, err := s.db.HashAtHeight(height)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return database.Block{}, ErrBlockNotFound
		}
		return database.Block{}, err
	}

	return s.QueryBlockByHash(hash)
}

// QueryBlocksByHeight returns the active chain blocks in [from, to],
// stopping at the tip.
func (s *State) QueryBlocksByHeight(from, to uint32) []database.Block {
	var out []database.Block
	for height := from; height <= to; height++ {
		block, err := s.QueryBlockByHeight(height)
		if err != nil {
			if !errors.Is(err, ErrBlockNotFound) {
				s.evHandler("state: QueryBlocksByHeight: ERROR: %s", err)
			}
			break
		}
		out = append(out, block)
	}
	return out
}

// QueryIndexEntry returns the index entry for any known header.
func (s *State) QueryIndexEntry(hash signature.Hash) (database.BlockIndexEntry, error) {
	entry, err := s.db.GetIndexEntry(hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return database.BlockIndexEntry{}, ErrBlockNotFound
		}
		return database.BlockIndexEntry{}, err
	}
	return entry, nil
}

// QueryUtxo returns the active chain UTXO entry for the outpoint.
func (s *State) QueryUtxo(op database.OutPoint) (database.UtxoEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.GetUtxo(op)
}

// QueryBalance sums the unspent outputs locked to the pubkey hash. This
// walks the whole UTXO set; it serves wallets and explorers, not
// consensus.
func (s *State) QueryBalance(pkh signature.PubKeyHash) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.store.Iter([]byte(prefixUtxo))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var balance uint64
	for iter.Next() {
		entry, err := database.DecodeUtxoEntry(iter.Value())
		if err != nil {
			return 0, err
		}
		if entry.PubKeyHash == pkh {
			balance += entry.Value
		}
	}

	return balance, iter.Error()
}

// QueryUnspentByOwner returns every unspent outpoint locked to the pubkey
// hash with its entry, for wallet coin selection.
func (s *State) QueryUnspentByOwner(pkh signature.PubKeyHash) (map[database.OutPoint]database.UtxoEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.store.Iter([]byte(prefixUtxo))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	owned := make(map[database.OutPoint]database.UtxoEntry)
	for iter.Next() {
		entry, err := database.DecodeUtxoEntry(iter.Value())
		if err != nil {
			return nil, err
		}
		if entry.PubKeyHash != pkh {
			continue
		}

		op, err := database.ToOutPoint(iter.Key()[len(prefixUtxo):])
		if err != nil {
			return nil, err
		}
		owned[op] = entry
	}

	return owned, iter.Error()
}

// QueryUtxoCount returns the number of entries in the active chain's
// UTXO set.
func (s *State) QueryUtxoCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.store.Iter([]byte(prefixUtxo))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var count int
	for iter.Next() {
		count++
	}

	return count, iter.Error()
}

// QueryKnownBlockCount returns the number of indexed blocks across every
// known branch.
func (s *State) QueryKnownBlockCount() (int, error) {
	iter, err := s.db.store.Iter([]byte(prefixIndex))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var count int
	for iter.Next() {
		count++
	}

	return count, iter.Error()
}

// QueryBalances sums the unspent outputs per owner across the whole set.
func (s *State) QueryBalances() (map[signature.PubKeyHash]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.store.Iter([]byte(prefixUtxo))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	balances := make(map[signature.PubKeyHash]uint64)
	for iter.Next() {
		entry, err := database.DecodeUtxoEntry(iter.Value())
		if err != nil {
			return nil, err
		}
		balances[entry.PubKeyHash] += entry.Value
	}

	return balances, iter.Error()
}
