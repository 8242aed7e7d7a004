package public

import (
	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/mempool/selector"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type txInput struct {
	TxID      string        `json:"txid"`
	Vout      uint32        `json:"vout"`
	Signature hexutil.Bytes `json:"signature"`
	PubKey    hexutil.Bytes `json:"pubkey"`
}

type txOutput struct {
	Value   uint64 `json:"value"`
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type tx struct {
	TxID     string     `json:"txid"`
	Version  uint32     `json:"version"`
	Inputs   []txInput  `json:"inputs"`
	Outputs  []txOutput `json:"outputs"`
	LockTime uint32     `json:"lock_time"`
	Coinbase bool       `json:"coinbase"`
}

type block struct {
	Hash       string `json:"hash"`
	Height     uint32 `json:"height"`
	Version    uint32 `json:"version"`
	PrevBlock  string `json:"prev_block"`
	MerkleRoot string `json:"merkle_root"`
	Timestamp  uint32 `json:"timestamp"`
	Bits       uint16 `json:"bits"`
	Nonce      uint64 `json:"nonce"`
	Txs        []tx   `json:"txs"`
}

type pooledTx struct {
	Tx   tx     `json:"tx"`
	Fee  uint64 `json:"fee"`
	Size int    `json:"size"`
}

type utxo struct {
	TxID     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Value    uint64 `json:"value"`
	Height   uint32 `json:"height"`
	Coinbase bool   `json:"coinbase"`
}

type balance struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Balance uint64 `json:"balance"`
}

type tip struct {
	Hash           string `json:"hash"`
	Height         uint32 `json:"height"`
	Bits           uint16 `json:"bits"`
	CumulativeWork string `json:"cumulative_work"`
	MempoolCount   int    `json:"mempool_count"`
	UtxoCount      int    `json:"utxo_count"`
	KnownBlocks    int    `json:"known_blocks"`
}

// =============================================================================

func (h Handlers) toTx(dbTx database.Tx) tx {
	netPrefix := h.State.RetrieveGenesis().NetPrefix

	inputs := make([]txInput, len(dbTx.Inputs))
	for i, in := range dbTx.Inputs {
		inputs[i] = txInput{
			TxID:      in.Prev.TxID.String(),
			Vout:      in.Prev.Vout,
			Signature: in.Signature,
			PubKey:    in.PubKey,
		}
	}

	outputs := make([]txOutput, len(dbTx.Outputs))
	for i, out := range dbTx.Outputs {
		address := h.encodeAddress(netPrefix, out.PubKeyHash)
		outputs[i] = txOutput{
			Value:   out.Value,
			Address: address,
			Name:    h.lookupName(address),
		}
	}

	return tx{
		TxID:     dbTx.TxID().String(),
		Version:  dbTx.Version,
		Inputs:   inputs,
		Outputs:  outputs,
		LockTime: dbTx.LockTime,
		Coinbase: dbTx.IsCoinbase(),
	}
}

func (h Handlers) toBlock(dbBlock database.Block, height uint32) block {
	txs := make([]tx, len(dbBlock.Txs))
	for i, dbTx := range dbBlock.Txs {
		txs[i] = h.toTx(dbTx)
	}

	return block{
		Hash:       dbBlock.Hash().String(),
		Height:     height,
		Version:    dbBlock.Header.Version,
		PrevBlock:  dbBlock.Header.PrevBlock.String(),
		MerkleRoot: dbBlock.Header.MerkleRoot.String(),
		Timestamp:  dbBlock.Header.Timestamp,
		Bits:       dbBlock.Header.Bits,
		Nonce:      dbBlock.Header.Nonce,
		Txs:        txs,
	}
}

func (h Handlers) toPooledTx(record selector.Record) pooledTx {
	return pooledTx{
		Tx:   h.toTx(record.Tx),
		Fee:  record.Fee,
		Size: record.Size,
	}
}
