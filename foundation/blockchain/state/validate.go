package state

import (
	"encoding/binary"
	"time"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/difficulty"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// maxFutureDrift is how far a header timestamp may sit ahead of wall
// clock time.
const maxFutureDrift = 2 * time.Hour

// coinbaseBasePayload is the fixed portion of the coinbase input payload:
// the height and the extranonce slot.
const coinbaseBasePayload = 12

// =============================================================================

// validateStandaloneTx runs the checks that need no UTXO set: shape,
// duplicate inputs, and value range.
func (s *State) validateStandaloneTx(tx database.Tx) error {
	if len(tx.Inputs) == 0 {
		return errFor(UnknownInput, "tx %s has no inputs", tx.TxID())
	}
	if len(tx.Outputs) == 0 {
		return errFor(ValueOverflow, "tx %s has no outputs", tx.TxID())
	}

	seen := make(map[database.OutPoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, exists := seen[in.Prev]; exists {
			return errFor(DoubleSpend, "tx %s spends %s twice", tx.TxID(), in.Prev)
		}
		seen[in.Prev] = struct{}{}
	}

	var total uint64
	for _, out := range tx.Outputs {
		if out.Value > s.genesis.MaxMoney {
			return errFor(ValueOverflow, "output value %d exceeds max money", out.Value)
		}
		total += out.Value
		if total > s.genesis.MaxMoney {
			return errFor(ValueOverflow, "output sum exceeds max money")
		}
	}

	return nil
}

// validateContextualTx spends the transaction's inputs through the view,
// checking maturity, ownership, and signatures, and returns the fee. The
// caller adds the outputs afterward so a transaction can never spend its
// own outputs.
func (s *State) validateContextualTx(tx database.Tx, height uint32, view *database.UtxoView, base database.UtxoReader) (uint64, error) {
	digest := tx.SigningDigest()

	var totalIn uint64
	for _, in := range tx.Inputs {
		entry, exists, err := view.GetUtxo(in.Prev)
		if err != nil {
			return 0, errFor(StorageFailure, "utxo read %s: %s", in.Prev, err)
		}
		if !exists {
			if _, inBase, _ := base.GetUtxo(in.Prev); inBase {
				return 0, errFor(DoubleSpend, "outpoint %s already spent in this block", in.Prev)
			}
			return 0, errFor(UnknownInput, "outpoint %s is not unspent", in.Prev)
		}

		if entry.IsCoinbase && height-entry.Height < s.genesis.CoinbaseMaturity {
			return 0, errFor(ImmatureCoinbase, "coinbase %s needs depth %d, has %d",
				in.Prev, s.genesis.CoinbaseMaturity, height-entry.Height)
		}

		if signature.HashPubKey(in.PubKey) != entry.PubKeyHash {
			return 0, errFor(BadSignature, "pubkey does not hash to owner of %s", in.Prev)
		}
		if !signature.Verify(in.PubKey, digest, in.Signature) {
			return 0, errFor(BadSignature, "signature does not verify for %s", in.Prev)
		}

		totalIn += entry.Value
		if totalIn > s.genesis.MaxMoney {
			return 0, errFor(ValueOverflow, "input sum exceeds max money")
		}

		if _, err := view.Spend(in.Prev); err != nil {
			return 0, errFor(DoubleSpend, "outpoint %s: %s", in.Prev, err)
		}
	}

	totalOut := tx.TotalOutput()
	if totalOut > totalIn {
		return 0, errFor(ValueOverflow, "tx %s creates value: in %d out %d", tx.TxID(), totalIn, totalOut)
	}

	fee := totalIn - totalOut
	if fee < s.genesis.MinFee {
		return 0, errFor(FeeTooLow, "fee %d below minimum %d", fee, s.genesis.MinFee)
	}

	return fee, nil
}

// addTxOutputs creates the transaction's outputs in the view.
func addTxOutputs(view *database.UtxoView, tx database.Tx, height uint32) error {
	txID := tx.TxID()
	coinbase := tx.IsCoinbase()

	for vout, out := range tx.Outputs {
		op := database.OutPoint{TxID: txID, Vout: uint32(vout)}
		entry := database.UtxoEntry{
			Value:      out.Value,
			PubKeyHash: out.PubKeyHash,
			Height:     height,
			IsCoinbase: coinbase,
		}
		if err := view.Add(op, entry); err != nil {
			return errFor(DoubleSpend, "output %s: %s", op, err)
		}
	}
	return nil
}

// =============================================================================

// validateStatelessBlock runs the checks that need only the block itself:
// shape, size, merkle commitment, and the proof of work. The proof of work
// runs before any signature or UTXO check so a garbage block costs one hash
// evaluation, not a signature batch.
func (s *State) validateStatelessBlock(block database.Block) error {
	if len(block.Txs) == 0 {
		return errFor(BadCoinbaseReward, "block %s has no transactions", block.Hash())
	}
	if !block.Txs[0].IsCoinbase() {
		return errFor(BadCoinbaseReward, "block %s first transaction is not the coinbase", block.Hash())
	}

	seen := make(map[signature.Hash]struct{}, len(block.Txs))
	for i, tx := range block.Txs {
		if i > 0 && tx.IsCoinbase() {
			return errFor(BadCoinbaseReward, "block %s carries a second coinbase at index %d", block.Hash(), i)
		}
		txID := tx.TxID()
		if _, exists := seen[txID]; exists {
			return errFor(DuplicateTx, "block %s carries tx %s twice", block.Hash(), txID)
		}
		seen[txID] = struct{}{}
	}

	if size := block.Size(); uint32(size) > s.genesis.MaxBlockBytes {
		return errFor(OversizeBlock, "block %s is %d bytes, cap %d", block.Hash(), size, s.genesis.MaxBlockBytes)
	}

	if block.MerkleRoot() != block.Header.MerkleRoot {
		return errFor(BadMerkleRoot, "block %s merkle root mismatch", block.Hash())
	}

	if !s.hasher.Verify(block.Header.Encode(), block.Header.Bits) {
		return errFor(BadPoW, "block %s digest misses %d leading zero bits", block.Hash(), block.Header.Bits)
	}

	return nil
}

// validateContextualHeader checks the header against its parent's branch:
// the timestamp window and the difficulty the controller prescribes. It
// returns the fixed point difficulty carried into the child's index entry.
func (s *State) validateContextualHeader(block database.Block, parent database.BlockIndexEntry) (difficulty.FixedPoint, error) {
	median, err := s.medianTimestamp(parent)
	if err != nil {
		return 0, err
	}
	if block.Header.Timestamp <= median {
		return 0, errFor(TimestampOutOfRange, "timestamp %d not past median %d", block.Header.Timestamp, median)
	}
	if limit := time.Now().Add(maxFutureDrift).Unix(); int64(block.Header.Timestamp) > limit {
		return 0, errFor(TimestampOutOfRange, "timestamp %d too far in the future", block.Header.Timestamp)
	}

	bitsQ, err := s.nextBitsQ(parent)
	if err != nil {
		return 0, err
	}
	if block.Header.Bits != bitsQ.Round() {
		return 0, errFor(DifficultyMismatch, "header bits %d, controller requires %d", block.Header.Bits, bitsQ.Round())
	}

	return bitsQ, nil
}

// validateCoinbase checks the coinbase payload and the reward against the
// subsidy schedule and the fees the block collects, then creates its
// outputs in the view.
func (s *State) validateCoinbase(coinbase database.Tx, height uint32, fees uint64, view *database.UtxoView) error {
	payload := coinbase.Inputs[0].PubKey
	if len(payload) < coinbaseBasePayload {
		return errFor(BadCoinbaseReward, "coinbase payload %d bytes, need %d", len(payload), coinbaseBasePayload)
	}
	if uint32(len(payload)-coinbaseBasePayload) > s.genesis.MaxMinerTagBytes {
		return errFor(BadCoinbaseReward, "miner tag %d bytes exceeds cap %d",
			len(payload)-coinbaseBasePayload, s.genesis.MaxMinerTagBytes)
	}
	if got := binary.LittleEndian.Uint32(payload); got != height {
		return errFor(BadCoinbaseReward, "coinbase commits to height %d, block is at %d", got, height)
	}

	subsidy := s.genesis.Subsidy(height)
	if total := coinbase.TotalOutput(); total > subsidy+fees {
		return errFor(BadCoinbaseReward, "coinbase pays %d, subsidy plus fees is %d", total, subsidy+fees)
	}

	if s.genesis.CommunitySplitActive(height) {
		communityHash, err := s.genesis.CommunityHash()
		if err != nil {
			return errFor(BadCoinbaseReward, "community fund hash: %s", err)
		}
		if len(coinbase.Outputs) != 2 {
			return errFor(BadCoinbaseReward, "community split requires two coinbase outputs, got %d", len(coinbase.Outputs))
		}
		split := coinbase.Outputs[1]
		if split.PubKeyHash != communityHash {
			return errFor(BadCoinbaseReward, "second coinbase output does not pay the community fund")
		}
		if split.Value != s.genesis.CommunityCut(height) {
			return errFor(BadCoinbaseReward, "community cut %d, expected %d", split.Value, s.genesis.CommunityCut(height))
		}
	}

	return addTxOutputs(view, coinbase, height)
}

// applyBlockTxs validates every transaction of the block against a view
// layered over the base set and returns the view whose delta connects the
// block. Each transaction sees the outputs of the ones before it.
func (s *State) applyBlockTxs(block database.Block, height uint32, base database.UtxoReader) (*database.UtxoView, error) {
	view := database.NewUtxoView(base)

	var fees uint64
	for _, tx := range block.Txs[1:] {
		if err := s.validateStandaloneTx(tx); err != nil {
			return nil, err
		}

		fee, err := s.validateContextualTx(tx, height, view, base)
		if err != nil {
			return nil, err
		}
		fees += fee

		if err := addTxOutputs(view, tx, height); err != nil {
			return nil, err
		}
	}

	if err := s.validateCoinbase(block.Txs[0], height, fees, view); err != nil {
		return nil, err
	}

	return view, nil
}
