package state

import (
	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/genesis"
	"github.com/equiforge/equiforge/foundation/blockchain/mempool/selector"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveTip returns a copy of the current active tip's index entry.
func (s *State) RetrieveTip() database.BlockIndexEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tip
}

// RetrievePayoutHash returns the pubkey hash mined rewards pay to.
func (s *State) RetrievePayoutHash() signature.PubKeyHash {
	return s.payoutHash
}

// RetrieveMinerTag returns the tag stamped into mined coinbases.
func (s *State) RetrieveMinerTag() []byte {
	return s.minerTag
}

// RetrieveMempool returns a snapshot of the pool in the configured
// strategy's order.
func (s *State) RetrieveMempool() []selector.Record {
	return s.mempool.All()
}

// MempoolCount returns the current number of pooled transactions.
func (s *State) MempoolCount() int {
	return s.mempool.Count()
}
