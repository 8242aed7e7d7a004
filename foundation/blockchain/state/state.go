// Package state is the core API for the blockchain and implements all the
// consensus rules and processing. It owns the block index, the active tip,
// the UTXO set, and the reorg machinery, serializing every mutation behind
// one lock.
package state

import (
	"errors"
	"sync"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/difficulty"
	"github.com/equiforge/equiforge/foundation/blockchain/equihash"
	"github.com/equiforge/equiforge/foundation/blockchain/genesis"
	"github.com/equiforge/equiforge/foundation/blockchain/mempool"
	"github.com/equiforge/equiforge/foundation/blockchain/peer"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/equiforge/equiforge/foundation/blockchain/storage"
	"github.com/holiman/uint256"
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for mining and sharing blocks and
// transactions with the network.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.Tx)
	SignalShareBlock(block database.Block)
}

// =============================================================================

// defaultMaxSideBranches bounds how many competing side branches the node
// stores full blocks for before evicting the lowest work one.
const defaultMaxSideBranches = 16

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Genesis         genesis.Genesis
	Storage         storage.Storage
	PayoutHash      signature.PubKeyHash
	MinerTag        []byte
	Host            string
	KnownPeers      *peer.PeerSet
	SelectStrategy  string
	MaxSideBranches int
	EvHandler       EventHandler
}

// State manages the blockchain database.
type State struct {
	mu        sync.Mutex
	evHandler EventHandler

	genesis    genesis.Genesis
	payoutHash signature.PubKeyHash
	minerTag   []byte
	host       string
	knownPeers *peer.PeerSet

	db      chainDB
	mempool *mempool.Mempool
	hasher  *equihash.Hasher

	tip             database.BlockIndexEntry
	sideBranches    []sideBranch
	maxSideBranches int

	Worker Worker
}

// sideBranch tracks the full blocks this node stored for one competing
// branch, tip last.
type sideBranch struct {
	tip    signature.Hash
	blocks []signature.Hash
}

// New constructs a new blockchain for data management. An empty store is
// bootstrapped with the deterministic genesis block.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Construct a mempool with the specified sort strategy.
	mpool, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	maxBranches := cfg.MaxSideBranches
	if maxBranches <= 0 {
		maxBranches = defaultMaxSideBranches
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	state := State{
		evHandler:       ev,
		genesis:         cfg.Genesis,
		payoutHash:      cfg.PayoutHash,
		minerTag:        cfg.MinerTag,
		host:            cfg.Host,
		knownPeers:      knownPeers,
		db:              chainDB{store: cfg.Storage},
		mempool:         mpool,
		hasher:          equihash.NewHasher(),
		maxSideBranches: maxBranches,
	}

	if err := state.loadOrBootstrap(); err != nil {
		return nil, err
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the database is properly closed.
	defer func() {
		s.db.store.Close()
	}()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// loadOrBootstrap reads the tip from the store or, for a fresh store,
// commits the genesis block. Genesis is an anchor, not a solution: it is
// accepted without a proof of work check because every node derives the
// identical block from the network parameters.
func (s *State) loadOrBootstrap() error {
	tipHash, err := s.db.TipHash()

	switch {
	case err == nil:
		entry, err := s.db.GetIndexEntry(tipHash)
		if err != nil {
			return errFor(StorageFailure, "tip index entry: %s", err)
		}
		s.tip = entry
		s.evHandler("state: startup: tip height[%d] hash[%s]", entry.Height, tipHash)
		return nil

	case errors.Is(err, storage.ErrNotFound):
		break

	default:
		return errFor(StorageFailure, "tip: %s", err)
	}

	block, err := s.genesis.Block()
	if err != nil {
		return err
	}

	entry := database.BlockIndexEntry{
		Header:         block.Header,
		Height:         0,
		CumulativeWork: block.Header.Work(),
		BitsQ:          uint32(difficulty.FromBits(block.Header.Bits)),
		TxCount:        uint32(len(block.Txs)),
	}

	view := database.NewUtxoView(s.db)
	if err := addTxOutputs(view, block.Txs[0], 0); err != nil {
		return err
	}

	if err := s.db.connectBatch(block, entry, view.Delta()); err != nil {
		return errFor(StorageFailure, "genesis commit: %s", err)
	}

	s.tip = entry
	s.evHandler("state: startup: bootstrapped genesis hash[%s]", block.Hash())
	return nil
}

// =============================================================================

// nextBitsQ computes the fixed point difficulty for the child of the
// given parent. Callers hold the lock or operate on immutable entries.
func (s *State) nextBitsQ(parent database.BlockIndexEntry) (difficulty.FixedPoint, error) {
	timestamps, err := s.windowTimestamps(parent)
	if err != nil {
		return 0, err
	}
	return difficulty.Next(difficulty.FixedPoint(parent.BitsQ), parent.Height, timestamps), nil
}

// windowTimestamps collects the controller's window of header timestamps
// ending at the parent, in chain order: the whole branch while it is
// shorter than the window, otherwise the last window plus one so every
// solve time has its predecessor.
func (s *State) windowTimestamps(parent database.BlockIndexEntry) ([]uint32, error) {
	want := parent.Height + 1
	if want > difficulty.Window {
		want = difficulty.Window + 1
	}

	timestamps := make([]uint32, want)
	entry := parent
	for i := int(want) - 1; ; i-- {
		timestamps[i] = entry.Header.Timestamp
		if i == 0 {
			break
		}

		var err error
		entry, err = s.db.GetIndexEntry(entry.Header.PrevBlock)
		if err != nil {
			return nil, errFor(StorageFailure, "window ancestor: %s", err)
		}
	}

	return timestamps, nil
}

// medianTimestamp returns the median of the last up to 11 header
// timestamps on the branch ending at the parent.
func (s *State) medianTimestamp(parent database.BlockIndexEntry) (uint32, error) {
	const span = 11

	timestamps := make([]uint32, 0, span)
	entry := parent
	for {
		timestamps = append(timestamps, entry.Header.Timestamp)
		if len(timestamps) == span || entry.Height == 0 {
			break
		}

		var err error
		entry, err = s.db.GetIndexEntry(entry.Header.PrevBlock)
		if err != nil {
			return 0, errFor(StorageFailure, "median ancestor: %s", err)
		}
	}

	for i := 1; i < len(timestamps); i++ {
		for j := i; j > 0 && timestamps[j] < timestamps[j-1]; j-- {
			timestamps[j], timestamps[j-1] = timestamps[j-1], timestamps[j]
		}
	}

	return timestamps[len(timestamps)/2], nil
}

// =============================================================================

// workOf returns the entry's cumulative work, treating nil as zero.
func workOf(entry database.BlockIndexEntry) *uint256.Int {
	if entry.CumulativeWork == nil {
		return new(uint256.Int)
	}
	return entry.CumulativeWork
}
