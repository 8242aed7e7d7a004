package state

import (
	"github.com/equiforge/equiforge/foundation/blockchain/database"
)

// UpsertWalletTransaction accepts a transaction from a local wallet for
// inclusion, shares it with the network, and nudges the miner.
func (s *State) UpsertWalletTransaction(tx database.Tx) error {
	if err := s.acceptTransaction(tx); err != nil {
		return err
	}

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
		s.Worker.SignalStartMining()
	}

	return nil
}

// UpsertNodeTransaction accepts a transaction relayed by a peer for
// inclusion.
func (s *State) UpsertNodeTransaction(tx database.Tx) error {
	if err := s.acceptTransaction(tx); err != nil {
		return err
	}

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

// =============================================================================

// acceptTransaction validates the transaction against the active tip's
// UTXO set and places it in the mempool with its fee. The validation view
// is discarded; the UTXO set only changes when a block connects.
func (s *State) acceptTransaction(tx database.Tx) error {
	if tx.IsCoinbase() {
		return errFor(BadCoinbaseReward, "coinbase transactions can only arrive in blocks")
	}

	if err := s.validateStandaloneTx(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mempool.Contains(tx.TxID()) {
		return errFor(DuplicateTx, "tx %s already pooled", tx.TxID())
	}

	view := database.NewUtxoView(s.db)
	fee, err := s.validateContextualTx(tx, s.tip.Height+1, view, s.db)
	if err != nil {
		return err
	}

	if _, err := s.mempool.Upsert(tx, fee); err != nil {
		return errFor(DoubleSpend, "tx %s: %s", tx.TxID(), err)
	}

	s.evHandler("state: acceptTransaction: pooled tx[%s] fee[%d]", tx.TxID(), fee)
	return nil
}
