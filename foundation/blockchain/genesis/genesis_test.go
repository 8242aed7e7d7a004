package genesis_test

import (
	"testing"
	"time"

	"github.com/equiforge/equiforge/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:                time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ChainID:             1,
		NetPrefix:           33,
		InitialBits:         20,
		Nonce:               2083236893,
		InitialSubsidy:      50_0000_0000,
		HalvingInterval:     2_103_840,
		MaxMoney:            42_000_000_0000_0000,
		MinFee:              1000,
		MaxBlockBytes:       4 * 1024 * 1024,
		CoinbaseMaturity:    100,
		MaxMinerTagBytes:    32,
		PayoutHash:          "0x0000000000000000000000000000000000000000",
		MinerTag:            "equiforge genesis 2025-01-01",
		CommunityFundHash:   "0x45717546756e6445717546756e6445717546756e",
		CommunityFundHeight: 0,
	}
}

// =============================================================================

func Test_Subsidy(t *testing.T) {
	t.Log("Given the need to validate the subsidy schedule.")
	{
		gen := testGenesis()

		if got := gen.Subsidy(0); got != 50_0000_0000 {
			t.Errorf("\t%s\tShould pay the full subsidy at genesis, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould pay the full subsidy at genesis.", success)
		}

		if got := gen.Subsidy(2_103_840 - 1); got != 50_0000_0000 {
			t.Errorf("\t%s\tShould pay the full subsidy on the last block before the halving, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould pay the full subsidy on the last block before the halving.", success)
		}

		if got := gen.Subsidy(2_103_840); got != 25_0000_0000 {
			t.Errorf("\t%s\tShould halve the subsidy at the halving height, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould halve the subsidy at the halving height.", success)
		}

		if got := gen.Subsidy(64 * 2_103_840); got != 0 {
			t.Errorf("\t%s\tShould pay nothing after the final halving, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould pay nothing after the final halving.", success)
		}
	}
}

func Test_CommunityFund(t *testing.T) {
	t.Log("Given the need to validate the community fund policy.")
	{
		gen := testGenesis()

		if gen.CommunitySplitActive(1_000_000) {
			t.Errorf("\t%s\tShould keep the split disabled while the activation height is zero.", failed)
		} else {
			t.Logf("\t%s\tShould keep the split disabled while the activation height is zero.", success)
		}

		gen.CommunityFundHeight = 1000
		if gen.CommunitySplitActive(999) {
			t.Errorf("\t%s\tShould keep the split inactive below the activation height.", failed)
		} else {
			t.Logf("\t%s\tShould keep the split inactive below the activation height.", success)
		}
		if !gen.CommunitySplitActive(1000) {
			t.Errorf("\t%s\tShould activate the split at the activation height.", failed)
		} else {
			t.Logf("\t%s\tShould activate the split at the activation height.", success)
		}

		if got := gen.CommunityCut(1000); got != 2_5000_0000 {
			t.Errorf("\t%s\tShould cut five percent of the subsidy, got %d.", failed, got)
		} else {
			t.Logf("\t%s\tShould cut five percent of the subsidy.", success)
		}

		if _, err := gen.CommunityHash(); err != nil {
			t.Errorf("\t%s\tShould decode the community fund hash: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould decode the community fund hash.", success)
		}
	}
}

func Test_GenesisBlock(t *testing.T) {
	t.Log("Given the need to derive the genesis block.")
	{
		gen := testGenesis()

		block, err := gen.Block()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the genesis block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct the genesis block.", success)

		again, err := gen.Block()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the genesis block twice: %v", failed, err)
		}
		if block.Hash() != again.Hash() {
			t.Errorf("\t%s\tShould derive the identical block every time.", failed)
		} else {
			t.Logf("\t%s\tShould derive the identical block every time.", success)
		}

		if len(block.Txs) != 1 || !block.Txs[0].IsCoinbase() {
			t.Errorf("\t%s\tShould carry exactly one coinbase transaction.", failed)
		} else {
			t.Logf("\t%s\tShould carry exactly one coinbase transaction.", success)
		}

		if block.Header.MerkleRoot != block.MerkleRoot() {
			t.Errorf("\t%s\tShould commit to the merkle root of its transactions.", failed)
		} else {
			t.Logf("\t%s\tShould commit to the merkle root of its transactions.", success)
		}

		if !block.Header.PrevBlock.IsZero() {
			t.Errorf("\t%s\tShould reference no parent.", failed)
		} else {
			t.Logf("\t%s\tShould reference no parent.", success)
		}

		if block.Header.Timestamp != 1735689600 {
			t.Errorf("\t%s\tShould carry the configured timestamp, got %d.", failed, block.Header.Timestamp)
		} else {
			t.Logf("\t%s\tShould carry the configured timestamp.", success)
		}
	}
}
