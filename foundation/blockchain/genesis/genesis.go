// Package genesis maintains access to the genesis file, which carries the
// network parameters, and to the genesis block derived from it.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// maxHalvings is the number of halvings after which the subsidy is zero.
const maxHalvings = 64

// Genesis represents the genesis file.
type Genesis struct {
	Date                time.Time `json:"date"`
	ChainID             uint16    `json:"chain_id"`              // The chain id represents an unique id for this running instance.
	NetPrefix           byte      `json:"net_prefix"`            // Address version byte; distinguishes mainnet from testnet.
	InitialBits         uint16    `json:"initial_bits"`          // Difficulty carried by the genesis header.
	Nonce               uint64    `json:"nonce"`                 // Nonce carried by the genesis header.
	InitialSubsidy      uint64    `json:"initial_subsidy"`       // Block subsidy at height zero in base units.
	HalvingInterval     uint32    `json:"halving_interval"`      // Number of blocks between subsidy halvings.
	MaxMoney            uint64    `json:"max_money"`             // Upper bound on any single output value.
	MinFee              uint64    `json:"min_fee"`               // Minimum fee for a non-coinbase transaction.
	MaxBlockBytes       uint32    `json:"max_block_bytes"`       // Upper bound on the canonical encoded block size.
	CoinbaseMaturity    uint32    `json:"coinbase_maturity"`     // Depth before a coinbase output is spendable.
	MaxMinerTagBytes    uint32    `json:"max_miner_tag_bytes"`   // Upper bound on the miner tag in the coinbase payload.
	PayoutHash          string    `json:"payout_hash"`           // Pubkey hash the genesis coinbase pays.
	MinerTag            string    `json:"miner_tag"`             // Tag carried by the genesis coinbase payload.
	CommunityFundHash   string    `json:"community_fund_hash"`   // Pubkey hash of the community fund.
	CommunityFundHeight uint32    `json:"community_fund_height"` // Height the community fund split activates; zero disables it.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// =============================================================================

// Subsidy returns the block subsidy at the given height. The subsidy
// halves every HalvingInterval blocks and is zero once the shift consumes
// all bits.
func (g Genesis) Subsidy(height uint32) uint64 {
	halvings := height / g.HalvingInterval
	if halvings >= maxHalvings {
		return 0
	}
	return g.InitialSubsidy >> halvings
}

// CommunitySplitActive reports whether the community fund split is a
// consensus rule at the given height.
func (g Genesis) CommunitySplitActive(height uint32) bool {
	return g.CommunityFundHeight != 0 && height >= g.CommunityFundHeight
}

// CommunityCut returns the community fund portion of the subsidy at the
// given height: 5 percent, rounded down.
func (g Genesis) CommunityCut(height uint32) uint64 {
	return g.Subsidy(height) * 5 / 100
}

// CommunityHash returns the community fund pubkey hash.
func (g Genesis) CommunityHash() (signature.PubKeyHash, error) {
	data, err := hexutil.Decode(g.CommunityFundHash)
	if err != nil {
		return signature.PubKeyHash{}, fmt.Errorf("community fund hash: %w", err)
	}
	return signature.ToPubKeyHash(data)
}

// =============================================================================

// Block constructs the genesis block. The construction is deterministic:
// every node derives the identical block, so its hash anchors the chain.
func (g Genesis) Block() (database.Block, error) {
	data, err := hexutil.Decode(g.PayoutHash)
	if err != nil {
		return database.Block{}, fmt.Errorf("payout hash: %w", err)
	}
	payout, err := signature.ToPubKeyHash(data)
	if err != nil {
		return database.Block{}, fmt.Errorf("payout hash: %w", err)
	}

	coinbase := database.NewCoinbaseTx(0, []database.TxOutput{{
		Value:      g.Subsidy(0),
		PubKeyHash: payout,
	}}, []byte(g.MinerTag))

	block := database.Block{
		Header: database.BlockHeader{
			Version:   1,
			PrevBlock: signature.ZeroHash,
			Timestamp: uint32(g.Date.Unix()),
			Bits:      g.InitialBits,
			Nonce:     g.Nonce,
		},
		Txs: []database.Tx{coinbase},
	}
	block.Header.MerkleRoot = block.MerkleRoot()

	return block, nil
}
