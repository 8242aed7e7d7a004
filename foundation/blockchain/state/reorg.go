package state

import (
	"github.com/equiforge/equiforge/foundation/blockchain/database"
)

// deepReorgSpan is the depth past which a reorg is considered abnormal
// and logged loudly. Consensus permits it either way; only coinbase
// maturity provides economic finality.
const deepReorgSpan = 100

// reorganize switches the active chain to the branch ending at candidate,
// which carries more cumulative work than the current tip. The caller
// holds the lock.
//
// The procedure walks both branches back to their common ancestor,
// disconnects the active blocks by inverting their stored deltas in
// reverse order, then connects the candidate blocks with full contextual
// validation. If any candidate fails, the whole branch is abandoned and
// the original chain is replayed from the ancestor.
func (s *State) reorganize(candidate database.BlockIndexEntry) error {
	oldTip := s.tip

	ancestor, detach, attach, err := s.forkPoint(oldTip, candidate)
	if err != nil {
		return err
	}

	if len(detach) > deepReorgSpan {
		s.evHandler("state: reorganize: WARNING: deep reorg: detaching %d blocks past height[%d]",
			len(detach), ancestor.Height)
	}
	s.evHandler("state: reorganize: started: detach[%d] attach[%d] ancestor height[%d]",
		len(detach), len(attach), ancestor.Height)

	// Remember the detached blocks and their deltas so an aborted reorg
	// can replay them, and so their transactions can return to the pool.
	detached, err := s.disconnectTo(detach, ancestor)
	if err != nil {
		return err
	}

	connected, failure := s.connectBranch(attach)

	if failure != nil {
		s.evHandler("state: reorganize: ABORT: %s", failure)

		// Unwind whatever part of the candidate branch connected, then
		// replay the original chain. Both replays use recorded deltas, so
		// no revalidation happens and no failure is possible short of the
		// store itself failing.
		for i := len(connected) - 1; i >= 0; i-- {
			prev := ancestor.Hash()
			if i > 0 {
				prev = connected[i-1].entry.Hash()
			}
			if err := s.db.disconnectBatch(connected[i].entry, connected[i].delta, prev); err != nil {
				return errFor(StorageFailure, "reorg unwind: %s", err)
			}
		}
		s.tip = ancestor

		for _, d := range detached {
			if err := s.db.connectBatch(d.block, d.entry, d.delta); err != nil {
				return errFor(StorageFailure, "reorg restore: %s", err)
			}
			s.tip = d.entry
		}

		return failure
	}

	s.tip = connected[len(connected)-1].entry
	s.dropSideBranch(candidate.Hash())

	// The old main chain is now a side branch; track it so it can be
	// evicted or reorganized back later.
	if len(detached) > 0 {
		branch := sideBranch{tip: oldTip.Hash()}
		for _, d := range detached {
			branch.blocks = append(branch.blocks, d.block.Hash())
		}
		s.sideBranches = append(s.sideBranches, branch)
	}

	// Return the detached transactions to the mempool where still valid,
	// and drop any pool entry the new branch confirmed or conflicted.
	for _, c := range connected {
		s.mempool.RemoveConfirmed(c.block.Txs)
	}
	s.resubmitDetached(detached)

	s.evHandler("state: reorganize: completed: tip height[%d] hash[%s]", s.tip.Height, s.tip.Hash())
	return nil
}

// =============================================================================

// connectedBlock is one block the reorg attached or detached, with the
// delta that moves the UTXO set across it.
type connectedBlock struct {
	block database.Block
	entry database.BlockIndexEntry
	delta database.Delta
}

// forkPoint walks both branches back to their lowest common ancestor. It
// returns the ancestor entry, the active chain entries to detach (tip
// first), and the candidate entries to attach (ancestor side first).
func (s *State) forkPoint(tip, candidate database.BlockIndexEntry) (database.BlockIndexEntry, []database.BlockIndexEntry, []database.BlockIndexEntry, error) {
	var detach, attach []database.BlockIndexEntry

	a, b := tip, candidate
	for b.Height > a.Height {
		attach = append(attach, b)
		var err error
		b, err = s.db.GetIndexEntry(b.Header.PrevBlock)
		if err != nil {
			return database.BlockIndexEntry{}, nil, nil, errFor(StorageFailure, "candidate ancestor: %s", err)
		}
	}
	for a.Height > b.Height {
		detach = append(detach, a)
		var err error
		a, err = s.db.GetIndexEntry(a.Header.PrevBlock)
		if err != nil {
			return database.BlockIndexEntry{}, nil, nil, errFor(StorageFailure, "tip ancestor: %s", err)
		}
	}

	for a.Hash() != b.Hash() {
		detach = append(detach, a)
		attach = append(attach, b)

		var err error
		a, err = s.db.GetIndexEntry(a.Header.PrevBlock)
		if err != nil {
			return database.BlockIndexEntry{}, nil, nil, errFor(StorageFailure, "tip ancestor: %s", err)
		}
		b, err = s.db.GetIndexEntry(b.Header.PrevBlock)
		if err != nil {
			return database.BlockIndexEntry{}, nil, nil, errFor(StorageFailure, "candidate ancestor: %s", err)
		}
	}

	// Reverse attach into chain order, ancestor side first.
	for i, j := 0, len(attach)-1; i < j; i, j = i+1, j-1 {
		attach[i], attach[j] = attach[j], attach[i]
	}

	return a, detach, attach, nil
}

// disconnectTo detaches the given active chain entries, tip first, and
// returns them in chain order with their blocks and deltas for a possible
// replay.
func (s *State) disconnectTo(detach []database.BlockIndexEntry, ancestor database.BlockIndexEntry) ([]connectedBlock, error) {
	detached := make([]connectedBlock, 0, len(detach))

	for i, entry := range detach {
		hash := entry.Hash()

		block, err := s.db.GetBlock(hash)
		if err != nil {
			return nil, errFor(StorageFailure, "detach block %s: %s", hash, err)
		}
		delta, err := s.db.GetDelta(hash)
		if err != nil {
			return nil, errFor(StorageFailure, "detach delta %s: %s", hash, err)
		}

		prev := ancestor.Hash()
		if i < len(detach)-1 {
			prev = detach[i+1].Hash()
		}
		if err := s.db.disconnectBatch(entry, delta, prev); err != nil {
			return nil, errFor(StorageFailure, "disconnect %s: %s", hash, err)
		}

		detached = append(detached, connectedBlock{block: block, entry: entry, delta: delta})
		s.tip = ancestor
		if i < len(detach)-1 {
			s.tip = detach[i+1]
		}
	}

	// Into chain order, ancestor side first, for replay.
	for i, j := 0, len(detached)-1; i < j; i, j = i+1, j-1 {
		detached[i], detached[j] = detached[j], detached[i]
	}

	return detached, nil
}

// connectBranch validates and connects the candidate entries in chain
// order. On a validation failure it returns the blocks connected so far
// and the failure; the caller unwinds.
func (s *State) connectBranch(attach []database.BlockIndexEntry) ([]connectedBlock, error) {
	connected := make([]connectedBlock, 0, len(attach))

	for _, entry := range attach {
		hash := entry.Hash()

		block, err := s.db.GetBlock(hash)
		if err != nil {
			return connected, errFor(StorageFailure, "attach block %s: %s", hash, err)
		}

		view, err := s.applyBlockTxs(block, entry.Height, s.db)
		if err != nil {
			return connected, err
		}

		delta := view.Delta()
		if err := s.db.connectBatch(block, entry, delta); err != nil {
			return connected, errFor(StorageFailure, "connect %s: %s", hash, err)
		}

		connected = append(connected, connectedBlock{block: block, entry: entry, delta: delta})
	}

	return connected, nil
}

// resubmitDetached returns the transactions of detached blocks to the
// mempool where they are still valid on the new chain. Coinbases never
// return; their outputs died with the branch.
func (s *State) resubmitDetached(detached []connectedBlock) {
	for _, d := range detached {
		for _, tx := range d.block.Txs[1:] {
			view := database.NewUtxoView(s.db)
			fee, err := s.validateContextualTx(tx, s.tip.Height+1, view, s.db)
			if err != nil {
				s.evHandler("state: reorganize: drop detached tx[%s]: %s", tx.TxID(), err)
				continue
			}
			if _, err := s.mempool.Upsert(tx, fee); err != nil {
				s.evHandler("state: reorganize: pool refuses detached tx[%s]: %s", tx.TxID(), err)
			}
		}
	}
}
