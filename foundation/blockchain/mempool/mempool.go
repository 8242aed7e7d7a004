// Package mempool maintains the mempool for the blockchain: validated,
// unconfirmed transactions waiting for a block. Entries are keyed by txid
// and every claimed outpoint is indexed so no two pool transactions ever
// spend the same output.
package mempool

import (
	"fmt"
	"sync"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/mempool/selector"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// Mempool represents a cache of unconfirmed transactions.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[signature.Hash]selector.Record
	claims   map[database.OutPoint]signature.Hash
	seq      uint64
	selectFn selector.Func
}

// New constructs a new mempool using the default fee rate strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFeeRate)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[signature.Hash]selector.Record),
		claims:   make(map[database.OutPoint]signature.Hash),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether the txid is in the pool.
func (mp *Mempool) Contains(txID signature.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[txID]
	return exists
}

// Upsert adds a transaction to the mempool with its already validated
// fee. A transaction whose inputs collide with a different pool entry is
// rejected so the pool stays conflict free.
func (mp *Mempool) Upsert(tx database.Tx, fee uint64) (int, error) {
	if tx.IsCoinbase() {
		return 0, fmt.Errorf("coinbase transactions don't belong in the mempool")
	}

	txID := tx.TxID()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[txID]; exists {
		return len(mp.pool), nil
	}

	for _, in := range tx.Inputs {
		if claimed, exists := mp.claims[in.Prev]; exists && claimed != txID {
			return 0, fmt.Errorf("outpoint %s already claimed by %s", in.Prev, claimed)
		}
	}

	mp.seq++
	mp.pool[txID] = selector.Record{
		Tx:   tx,
		Fee:  fee,
		Size: tx.Size(),
		Seq:  mp.seq,
	}
	for _, in := range tx.Inputs {
		mp.claims[in.Prev] = txID
	}

	return len(mp.pool), nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(txID signature.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.remove(txID)
}

// RemoveConfirmed removes every pool entry the block made stale: the
// confirmed transactions themselves and any entry spending an outpoint the
// block consumed.
func (mp *Mempool) RemoveConfirmed(txs []database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		mp.remove(tx.TxID())

		if tx.IsCoinbase() {
			continue
		}
		for _, in := range tx.Inputs {
			if claimed, exists := mp.claims[in.Prev]; exists {
				mp.remove(claimed)
			}
		}
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[signature.Hash]selector.Record)
	mp.claims = make(map[database.OutPoint]signature.Hash)
}

// PickBest uses the configured sort strategy to return the transactions
// for the next block, bounded by the byte budget. Receiving -1 returns
// everything in the strategy's ordering.
func (mp *Mempool) PickBest(maxBytes int) []selector.Record {
	mp.mu.RLock()
	records := make([]selector.Record, 0, len(mp.pool))
	for _, rec := range mp.pool {
		records = append(records, rec)
	}
	mp.mu.RUnlock()

	return mp.selectFn(records, maxBytes)
}

// All returns a snapshot of every record in the pool.
func (mp *Mempool) All() []selector.Record {
	return mp.PickBest(-1)
}

// remove drops one entry and its outpoint claims. Callers hold the lock.
func (mp *Mempool) remove(txID signature.Hash) {
	rec, exists := mp.pool[txID]
	if !exists {
		return
	}

	delete(mp.pool, txID)
	for _, in := range rec.Tx.Inputs {
		if mp.claims[in.Prev] == txID {
			delete(mp.claims, in.Prev)
		}
	}
}
