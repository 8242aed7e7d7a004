package state

import (
	"errors"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/equiforge/equiforge/foundation/blockchain/storage"
	"github.com/holiman/uint256"
)

// BlockStatus is the outcome of submitting a block.
type BlockStatus int

// The outcomes a submitted block can have.
const (
	Accepted BlockStatus = iota + 1
	AcceptedAsSideChain
	Rejected
)

// String returns the status name.
func (bs BlockStatus) String() string {
	switch bs {
	case Accepted:
		return "accepted"
	case AcceptedAsSideChain:
		return "accepted_as_side_chain"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// =============================================================================

// ProcessSubmittedBlock takes a block received from a peer or a local
// miner, validates it, and if that passes, adds the block to the chain.
// Any in-flight mining run is cancelled afterward so the next template
// builds on the new tip.
func (s *State) ProcessSubmittedBlock(block database.Block) (BlockStatus, error) {
	s.evHandler("state: ProcessSubmittedBlock: started: prevBlk[%s] newBlk[%s] txs[%d]",
		block.Header.PrevBlock, block.Hash(), len(block.Txs))
	defer s.evHandler("state: ProcessSubmittedBlock: completed: newBlk[%s]", block.Hash())

	status, err := s.UpsertBlock(block)
	if err != nil {
		return status, err
	}

	if status == Accepted && s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		defer func() {
			s.evHandler("state: ProcessSubmittedBlock: signal mining to terminate")
			done()
		}()
	}

	return status, nil
}

// UpsertBlock runs the add-block pipeline: index duplicate check, parent
// lookup, stateless and contextual validation, then either a tip advance,
// a side branch record, or a reorg when the fork carries more work.
func (s *State) UpsertBlock(block database.Block) (BlockStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := block.Hash()

	known, err := s.db.HasIndexEntry(hash)
	if err != nil {
		return Rejected, errFor(StorageFailure, "index lookup: %s", err)
	}
	if known {
		return Rejected, errFor(DuplicateBlock, "block %s already indexed", hash)
	}

	parent, err := s.db.GetIndexEntry(block.Header.PrevBlock)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Rejected, errFor(MissingParent, "parent %s unknown", block.Header.PrevBlock)
		}
		return Rejected, errFor(StorageFailure, "parent lookup: %s", err)
	}

	if err := s.validateStatelessBlock(block); err != nil {
		return Rejected, err
	}

	bitsQ, err := s.validateContextualHeader(block, parent)
	if err != nil {
		return Rejected, err
	}

	entry := database.BlockIndexEntry{
		Header:         block.Header,
		Height:         parent.Height + 1,
		CumulativeWork: new(uint256.Int).Add(workOf(parent), block.Header.Work()),
		BitsQ:          uint32(bitsQ),
		TxCount:        uint32(len(block.Txs)),
	}

	// Parent is the active tip: validate against the live UTXO set and
	// advance in one atomic batch.
	if parent.Hash() == s.tip.Hash() {
		view, err := s.applyBlockTxs(block, entry.Height, s.db)
		if err != nil {
			return Rejected, err
		}

		if err := s.db.connectBatch(block, entry, view.Delta()); err != nil {
			return Rejected, errFor(StorageFailure, "connect: %s", err)
		}
		s.tip = entry
		s.mempool.RemoveConfirmed(block.Txs)

		s.evHandler("state: UpsertBlock: tip advanced: height[%d] hash[%s]", entry.Height, hash)
		return Accepted, nil
	}

	// Fork: record the block on its side branch, then reorganize if the
	// branch now carries more work than the active tip.
	if err := s.db.sideChainBatch(block, entry); err != nil {
		return Rejected, errFor(StorageFailure, "side chain store: %s", err)
	}
	s.trackSideBlock(block.Header.PrevBlock, hash)

	if entry.CumulativeWork.Cmp(workOf(s.tip)) > 0 {
		if err := s.reorganize(entry); err != nil {
			return Rejected, err
		}
		return Accepted, nil
	}

	s.evHandler("state: UpsertBlock: side chain: height[%d] hash[%s]", entry.Height, hash)
	return AcceptedAsSideChain, nil
}

// =============================================================================

// trackSideBlock records the block on its branch, extending an existing
// branch when it builds on that branch's tip. Branches beyond the cap are
// evicted lowest work first. The bookkeeping is in-memory only; evicted
// blocks can always be requested again.
func (s *State) trackSideBlock(parent, hash signature.Hash) {
	for i := range s.sideBranches {
		if s.sideBranches[i].tip == parent {
			s.sideBranches[i].tip = hash
			s.sideBranches[i].blocks = append(s.sideBranches[i].blocks, hash)
			return
		}
	}

	s.sideBranches = append(s.sideBranches, sideBranch{tip: hash, blocks: []signature.Hash{hash}})

	if len(s.sideBranches) <= s.maxSideBranches {
		return
	}

	lowest := 0
	lowestWork := s.branchWork(s.sideBranches[0].tip)
	for i := 1; i < len(s.sideBranches); i++ {
		work := s.branchWork(s.sideBranches[i].tip)
		if work.Cmp(lowestWork) < 0 {
			lowest = i
			lowestWork = work
		}
	}

	evicted := s.sideBranches[lowest]
	s.sideBranches = append(s.sideBranches[:lowest], s.sideBranches[lowest+1:]...)

	if err := s.db.evictBatch(evicted.blocks); err != nil {
		s.evHandler("state: trackSideBlock: ERROR: evict branch tip[%s]: %s", evicted.tip, err)
		return
	}
	s.evHandler("state: trackSideBlock: evicted branch tip[%s] blocks[%d]", evicted.tip, len(evicted.blocks))
}

// branchWork reads the cumulative work of a branch tip, zero when the
// entry can't be read.
func (s *State) branchWork(tip signature.Hash) *uint256.Int {
	entry, err := s.db.GetIndexEntry(tip)
	if err != nil {
		return new(uint256.Int)
	}
	return workOf(entry)
}

// dropSideBranch forgets the in-memory bookkeeping for the branch ending
// at the given tip, after a reorg adopted it.
func (s *State) dropSideBranch(tip signature.Hash) {
	for i := range s.sideBranches {
		if s.sideBranches[i].tip == tip {
			s.sideBranches = append(s.sideBranches[:i], s.sideBranches[i+1:]...)
			return
		}
	}
}
