package state

import (
	"encoding/binary"
	"time"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// coinbaseReserve is the block space held back for the coinbase before
// transaction selection starts. Generous for any payout split and tag.
const coinbaseReserve = 256

// BlockTemplate is a candidate block ready for nonce sweeping. The header
// nonce and the extranonce inside the coinbase payload are the only
// mutable fields; rolling the extranonce requires a merkle recommit via
// SetExtraNonce.
type BlockTemplate struct {
	Block    database.Block
	Height   uint32
	Fees     uint64
	ParentID signature.Hash
}

// SetExtraNonce rolls the extranonce in the coinbase payload and
// recommits the merkle root. Miners call it when the nonce space of the
// header is exhausted.
func (bt *BlockTemplate) SetExtraNonce(extraNonce uint64) {
	payload := bt.Block.Txs[0].Inputs[0].PubKey
	binary.LittleEndian.PutUint64(payload[database.CoinbaseExtraNonceOffset:], extraNonce)
	bt.Block.Header.MerkleRoot = bt.Block.MerkleRoot()
}

// =============================================================================

// BuildTemplate assembles a candidate block on the active tip: the next
// difficulty, the best paying mempool transactions under the size cap,
// and a coinbase paying the subsidy plus fees to the payout hash. An
// empty mempool yields a coinbase only block.
func (s *State) BuildTemplate(payout signature.PubKeyHash, minerTag []byte) (BlockTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := s.tip
	height := parent.Height + 1

	bitsQ, err := s.nextBitsQ(parent)
	if err != nil {
		return BlockTemplate{}, err
	}

	median, err := s.medianTimestamp(parent)
	if err != nil {
		return BlockTemplate{}, err
	}
	timestamp := uint32(time.Now().Unix())
	if timestamp <= median {
		timestamp = median + 1
	}

	// Walk the pool in the configured strategy's order, keeping every transaction that
	// still validates against the tip plus the ones selected before it.
	// Entries invalidated by a reorg or an unexpected conflict are
	// skipped, not evicted; the next confirmed block cleans the pool.
	view := database.NewUtxoView(s.db)
	budget := int(s.genesis.MaxBlockBytes) - database.HeaderSize - coinbaseReserve

	var txs []database.Tx
	var fees uint64
	for _, rec := range s.mempool.PickBest(-1) {
		if rec.Size > budget {
			continue
		}

		if _, err := s.validateContextualTx(rec.Tx, height, view, s.db); err != nil {
			s.evHandler("state: BuildTemplate: skip tx[%s]: %s", rec.Tx.TxID(), err)
			continue
		}
		if err := addTxOutputs(view, rec.Tx, height); err != nil {
			s.evHandler("state: BuildTemplate: skip tx[%s]: %s", rec.Tx.TxID(), err)
			continue
		}

		txs = append(txs, rec.Tx)
		fees += rec.Fee
		budget -= rec.Size
	}

	coinbase, err := s.buildCoinbase(payout, minerTag, height, fees)
	if err != nil {
		return BlockTemplate{}, err
	}

	block := database.Block{
		Header: database.BlockHeader{
			Version:   1,
			PrevBlock: parent.Hash(),
			Timestamp: timestamp,
			Bits:      bitsQ.Round(),
		},
		Txs: append([]database.Tx{coinbase}, txs...),
	}
	block.Header.MerkleRoot = block.MerkleRoot()

	s.evHandler("state: BuildTemplate: height[%d] bits[%d] txs[%d] fees[%d]",
		height, block.Header.Bits, len(txs), fees)

	return BlockTemplate{
		Block:    block,
		Height:   height,
		Fees:     fees,
		ParentID: parent.Hash(),
	}, nil
}

// buildCoinbase constructs the coinbase paying subsidy plus fees, with
// the community fund split when that rule is active at the height.
func (s *State) buildCoinbase(payout signature.PubKeyHash, minerTag []byte, height uint32, fees uint64) (database.Tx, error) {
	subsidy := s.genesis.Subsidy(height)

	outputs := []database.TxOutput{{
		Value:      subsidy + fees,
		PubKeyHash: payout,
	}}

	if s.genesis.CommunitySplitActive(height) {
		communityHash, err := s.genesis.CommunityHash()
		if err != nil {
			return database.Tx{}, err
		}
		cut := s.genesis.CommunityCut(height)
		outputs = []database.TxOutput{
			{Value: subsidy - cut + fees, PubKeyHash: payout},
			{Value: cut, PubKeyHash: communityHash},
		}
	}

	if uint32(len(minerTag)) > s.genesis.MaxMinerTagBytes {
		minerTag = minerTag[:s.genesis.MaxMinerTagBytes]
	}

	return database.NewCoinbaseTx(height, outputs, minerTag), nil
}
