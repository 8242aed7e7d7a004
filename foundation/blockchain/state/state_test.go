package state_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/equihash"
	"github.com/equiforge/equiforge/foundation/blockchain/genesis"
	"github.com/equiforge/equiforge/foundation/blockchain/mempool/selector"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/equiforge/equiforge/foundation/blockchain/state"
	"github.com/equiforge/equiforge/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// The tests drive real proof of work at one leading zero bit so every
// block solves in a couple of attempts.
const testBits = 1

// testHarness bundles everything the chain scenarios need.
type testHarness struct {
	state   *state.State
	gen     genesis.Genesis
	genesis database.Block
	priv    ed25519.PrivateKey
	payout  signature.PubKeyHash
	hasher  *equihash.Hasher
}

func newHarness(t *testing.T, maturity uint32) *testHarness {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	payout := signature.HashPubKey(pub)

	gen := genesis.Genesis{
		Date:             time.Now().Add(-24 * time.Hour).UTC(),
		ChainID:          99,
		NetPrefix:        0x21,
		InitialBits:      testBits,
		Nonce:            7,
		InitialSubsidy:   50_0000_0000,
		HalvingInterval:  2_103_840,
		MaxMoney:         42_000_000_0000_0000,
		MinFee:           1000,
		MaxBlockBytes:    4 * 1024 * 1024,
		CoinbaseMaturity: maturity,
		MaxMinerTagBytes: 32,
		PayoutHash:       hexutil.Encode(payout[:]),
		MinerTag:         "state test",
	}

	st, err := state.New(state.Config{
		Genesis:        gen,
		Storage:        storage.NewMemory(),
		PayoutHash:     payout,
		SelectStrategy: selector.StrategyFeeRate,
	})
	if err != nil {
		t.Fatalf("construct state: %v", err)
	}
	t.Cleanup(func() { st.Shutdown() })

	genBlock, err := gen.Block()
	if err != nil {
		t.Fatalf("genesis block: %v", err)
	}

	return &testHarness{
		state:   st,
		gen:     gen,
		genesis: genBlock,
		priv:    priv,
		payout:  payout,
		hasher:  equihash.NewHasher(),
	}
}

// mine rolls the nonce until the header meets its own difficulty.
func (h *testHarness) mine(t *testing.T, block *database.Block) {
	t.Helper()
	for nonce := uint64(0); nonce < 1<<14; nonce++ {
		block.Header.Nonce = nonce
		if h.hasher.Verify(block.Header.Encode(), block.Header.Bits) {
			return
		}
	}
	t.Fatalf("no solution for bits %d", block.Header.Bits)
}

// childBlock crafts and mines a block extending the parent with fixed 90
// second spacing, so the difficulty controller holds steady at testBits.
func (h *testHarness) childBlock(t *testing.T, parent database.Block, height uint32, fees uint64, tag string, txs ...database.Tx) database.Block {
	t.Helper()

	coinbase := database.NewCoinbaseTx(height, []database.TxOutput{{
		Value:      h.gen.Subsidy(height) + fees,
		PubKeyHash: h.payout,
	}}, []byte(tag))

	block := database.Block{
		Header: database.BlockHeader{
			Version:   1,
			PrevBlock: parent.Hash(),
			Timestamp: uint32(h.gen.Date.Unix()) + 90*height,
			Bits:      testBits,
		},
		Txs: append([]database.Tx{coinbase}, txs...),
	}
	block.Header.MerkleRoot = block.MerkleRoot()
	h.mine(t, &block)
	return block
}

// spendTx builds and signs a single input payment back to the payout hash.
func (h *testHarness) spendTx(t *testing.T, prev database.OutPoint, value uint64) database.Tx {
	t.Helper()

	tx := database.Tx{
		Version: 1,
		Inputs:  []database.TxInput{{Prev: prev}},
		Outputs: []database.TxOutput{{Value: value, PubKeyHash: h.payout}},
	}
	if err := tx.Sign(h.priv); err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx
}

func (h *testHarness) genesisOutpoint() database.OutPoint {
	return database.OutPoint{TxID: h.genesis.Txs[0].TxID(), Vout: 0}
}

// =============================================================================

func Test_BootstrapAndMineOne(t *testing.T) {
	t.Log("Given a fresh store and one mined block.")
	{
		h := newHarness(t, 1)

		tip := h.state.RetrieveTip()
		if tip.Height != 0 || tip.Hash() != h.genesis.Hash() {
			t.Fatalf("\t%s\tShould bootstrap the genesis block as the tip.", failed)
		}
		t.Logf("\t%s\tShould bootstrap the genesis block as the tip.", success)

		balance, err := h.state.QueryBalance(h.payout)
		if err != nil || balance != h.gen.Subsidy(0) {
			t.Errorf("\t%s\tShould hold the genesis subsidy, got %d %v.", failed, balance, err)
		} else {
			t.Logf("\t%s\tShould hold the genesis subsidy.", success)
		}

		template, err := h.state.BuildTemplate(h.payout, []byte("miner"))
		if err != nil {
			t.Fatalf("\t%s\tShould build a template on an empty pool: %v", failed, err)
		}
		if len(template.Block.Txs) != 1 || template.Height != 1 {
			t.Fatalf("\t%s\tShould emit a coinbase only template at height 1.", failed)
		}
		t.Logf("\t%s\tShould emit a coinbase only template at height 1.", success)

		h.mine(t, &template.Block)
		status, err := h.state.ProcessSubmittedBlock(template.Block)
		if err != nil || status != state.Accepted {
			t.Fatalf("\t%s\tShould accept the mined block: %v %v", failed, status, err)
		}
		t.Logf("\t%s\tShould accept the mined block.", success)

		tip = h.state.RetrieveTip()
		if tip.Height != 1 || tip.Hash() != template.Block.Hash() {
			t.Errorf("\t%s\tShould advance the tip to height 1.", failed)
		} else {
			t.Logf("\t%s\tShould advance the tip to height 1.", success)
		}

		balance, _ = h.state.QueryBalance(h.payout)
		if balance != h.gen.Subsidy(0)+h.gen.Subsidy(1) {
			t.Errorf("\t%s\tShould credit the new subsidy, got %d.", failed, balance)
		} else {
			t.Logf("\t%s\tShould credit the new subsidy.", success)
		}

		if _, err := h.state.ProcessSubmittedBlock(template.Block); state.KindOf(err) != state.DuplicateBlock {
			t.Errorf("\t%s\tShould reject a resubmitted block as a duplicate, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a resubmitted block as a duplicate.", success)
		}
	}
}

func Test_WalletTransactionFlow(t *testing.T) {
	t.Log("Given a wallet payment moving through pool, template, and block.")
	{
		h := newHarness(t, 1)

		const fee = 1000
		tx := h.spendTx(t, h.genesisOutpoint(), h.gen.Subsidy(0)-fee)

		if err := h.state.UpsertWalletTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould pool a valid payment: %v", failed, err)
		}
		t.Logf("\t%s\tShould pool a valid payment.", success)

		if err := h.state.UpsertWalletTransaction(tx); state.KindOf(err) != state.DuplicateTx {
			t.Errorf("\t%s\tShould flag the same payment as a duplicate, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould flag the same payment as a duplicate.", success)
		}

		lowFee := h.spendTx(t, h.genesisOutpoint(), h.gen.Subsidy(0)-1)
		if err := h.state.UpsertWalletTransaction(lowFee); state.KindOf(err) != state.FeeTooLow {
			t.Errorf("\t%s\tShould reject a payment under the minimum fee, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a payment under the minimum fee.", success)
		}

		unknown := h.spendTx(t, database.OutPoint{TxID: signature.Hash{0xFF}, Vout: 0}, 5000)
		if err := h.state.UpsertWalletTransaction(unknown); state.KindOf(err) != state.UnknownInput {
			t.Errorf("\t%s\tShould reject a spend of an unknown outpoint, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a spend of an unknown outpoint.", success)
		}

		template, err := h.state.BuildTemplate(h.payout, nil)
		if err != nil {
			t.Fatalf("\t%s\tShould build a template: %v", failed, err)
		}
		if len(template.Block.Txs) != 2 || template.Fees != fee {
			t.Fatalf("\t%s\tShould include the pooled payment and its fee, got %d txs fees %d.",
				failed, len(template.Block.Txs), template.Fees)
		}
		t.Logf("\t%s\tShould include the pooled payment and its fee.", success)

		want := h.gen.Subsidy(template.Height) + fee
		if template.Block.Txs[0].TotalOutput() != want {
			t.Errorf("\t%s\tShould pay subsidy plus fees in the coinbase.", failed)
		} else {
			t.Logf("\t%s\tShould pay subsidy plus fees in the coinbase.", success)
		}

		h.mine(t, &template.Block)
		if status, err := h.state.ProcessSubmittedBlock(template.Block); err != nil || status != state.Accepted {
			t.Fatalf("\t%s\tShould accept the block carrying the payment: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the block carrying the payment.", success)

		if h.state.MempoolCount() != 0 {
			t.Errorf("\t%s\tShould drain the pool once the payment confirms.", failed)
		} else {
			t.Logf("\t%s\tShould drain the pool once the payment confirms.", success)
		}

		if _, exists, _ := h.state.QueryUtxo(h.genesisOutpoint()); exists {
			t.Errorf("\t%s\tShould remove the spent outpoint from the UTXO set.", failed)
		} else {
			t.Logf("\t%s\tShould remove the spent outpoint from the UTXO set.", success)
		}
	}
}

func Test_DoubleSpendInBlock(t *testing.T) {
	t.Log("Given one block carrying two spends of the same outpoint.")
	{
		h := newHarness(t, 1)

		const fee = 1000
		tx1 := h.spendTx(t, h.genesisOutpoint(), h.gen.Subsidy(0)-fee)
		tx2 := h.spendTx(t, h.genesisOutpoint(), h.gen.Subsidy(0)-2*fee)

		block := h.childBlock(t, h.genesis, 1, 3*fee, "ds", tx1, tx2)
		if _, err := h.state.ProcessSubmittedBlock(block); state.KindOf(err) != state.DoubleSpend {
			t.Fatalf("\t%s\tShould reject the block with DoubleSpend, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject the block with DoubleSpend.", success)

		if h.state.RetrieveTip().Height != 0 {
			t.Errorf("\t%s\tShould keep the tip unchanged.", failed)
		} else {
			t.Logf("\t%s\tShould keep the tip unchanged.", success)
		}
	}
}

func Test_CoinbaseMaturity(t *testing.T) {
	t.Log("Given a coinbase that needs depth three before spending.")
	{
		h := newHarness(t, 3)

		spend := h.spendTx(t, h.genesisOutpoint(), h.gen.Subsidy(0)-1000)
		if err := h.state.UpsertWalletTransaction(spend); state.KindOf(err) != state.ImmatureCoinbase {
			t.Fatalf("\t%s\tShould refuse an immature coinbase spend, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould refuse an immature coinbase spend.", success)

		b1 := h.childBlock(t, h.genesis, 1, 0, "m")
		if _, err := h.state.ProcessSubmittedBlock(b1); err != nil {
			t.Fatalf("\t%s\tShould accept block one: %v", failed, err)
		}

		// Depth at the next confirm height would be 2: still short.
		if err := h.state.UpsertWalletTransaction(spend); state.KindOf(err) != state.ImmatureCoinbase {
			t.Errorf("\t%s\tShould still refuse one block short of maturity, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould still refuse one block short of maturity.", success)
		}

		b2 := h.childBlock(t, b1, 2, 0, "m")
		if _, err := h.state.ProcessSubmittedBlock(b2); err != nil {
			t.Fatalf("\t%s\tShould accept block two: %v", failed, err)
		}

		if err := h.state.UpsertWalletTransaction(spend); err != nil {
			t.Errorf("\t%s\tShould accept the spend at full maturity: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould accept the spend at full maturity.", success)
		}
	}
}

func Test_Reorganization(t *testing.T) {
	t.Log("Given a fork that accumulates more work than the active chain.")
	{
		h := newHarness(t, 1)

		const fee = 1000
		payment := h.spendTx(t, h.genesisOutpoint(), h.gen.Subsidy(0)-fee)

		a1 := h.childBlock(t, h.genesis, 1, 0, "a")
		a2 := h.childBlock(t, a1, 2, fee, "a", payment)
		for _, block := range []database.Block{a1, a2} {
			if status, err := h.state.ProcessSubmittedBlock(block); err != nil || status != state.Accepted {
				t.Fatalf("\t%s\tShould accept the original chain: %v", failed, err)
			}
		}
		t.Logf("\t%s\tShould accept the original chain.", success)

		b1 := h.childBlock(t, h.genesis, 1, 0, "b")
		if status, _ := h.state.ProcessSubmittedBlock(b1); status != state.AcceptedAsSideChain {
			t.Fatalf("\t%s\tShould park the first fork block on a side chain, got %v.", failed, status)
		}
		t.Logf("\t%s\tShould park the first fork block on a side chain.", success)

		b2 := h.childBlock(t, b1, 2, 0, "b")
		if status, _ := h.state.ProcessSubmittedBlock(b2); status != state.AcceptedAsSideChain {
			t.Fatalf("\t%s\tShould keep an equal work fork on the side, got %v.", failed, status)
		}
		t.Logf("\t%s\tShould keep an equal work fork on the side.", success)

		b3 := h.childBlock(t, b2, 3, 0, "b")
		status, err := h.state.ProcessSubmittedBlock(b3)
		if err != nil || status != state.Accepted {
			t.Fatalf("\t%s\tShould reorganize to the heavier fork: %v %v", failed, status, err)
		}
		t.Logf("\t%s\tShould reorganize to the heavier fork.", success)

		tip := h.state.RetrieveTip()
		if tip.Height != 3 || tip.Hash() != b3.Hash() {
			t.Fatalf("\t%s\tShould move the tip to the fork head.", failed)
		}
		t.Logf("\t%s\tShould move the tip to the fork head.", success)

		got, err := h.state.QueryBlockByHeight(1)
		if err != nil || got.Hash() != b1.Hash() {
			t.Errorf("\t%s\tShould serve the fork block at height 1.", failed)
		} else {
			t.Logf("\t%s\tShould serve the fork block at height 1.", success)
		}

		a1Coinbase := database.OutPoint{TxID: a1.Txs[0].TxID(), Vout: 0}
		if _, exists, _ := h.state.QueryUtxo(a1Coinbase); exists {
			t.Errorf("\t%s\tShould drop the detached chain's coinbase outputs.", failed)
		} else {
			t.Logf("\t%s\tShould drop the detached chain's coinbase outputs.", success)
		}

		b1Coinbase := database.OutPoint{TxID: b1.Txs[0].TxID(), Vout: 0}
		if _, exists, _ := h.state.QueryUtxo(b1Coinbase); !exists {
			t.Errorf("\t%s\tShould hold the new chain's coinbase outputs.", failed)
		} else {
			t.Logf("\t%s\tShould hold the new chain's coinbase outputs.", success)
		}

		pool := h.state.RetrieveMempool()
		if len(pool) != 1 || pool[0].Tx.TxID() != payment.TxID() {
			t.Errorf("\t%s\tShould return the detached payment to the pool, got %d entries.", failed, len(pool))
		} else {
			t.Logf("\t%s\tShould return the detached payment to the pool.", success)
		}
	}
}

func Test_HeaderRejections(t *testing.T) {
	t.Log("Given blocks violating the header rules.")
	{
		h := newHarness(t, 1)

		orphan := h.childBlock(t, h.genesis, 1, 0, "o")
		orphan.Header.PrevBlock = signature.Hash{0xAB}
		h.mine(t, &orphan)
		if _, err := h.state.ProcessSubmittedBlock(orphan); state.KindOf(err) != state.MissingParent {
			t.Errorf("\t%s\tShould reject an unknown parent with MissingParent, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject an unknown parent with MissingParent.", success)
		}

		wrongBits := h.childBlock(t, h.genesis, 1, 0, "w")
		wrongBits.Header.Bits = testBits + 1
		h.mine(t, &wrongBits)
		if _, err := h.state.ProcessSubmittedBlock(wrongBits); state.KindOf(err) != state.DifficultyMismatch {
			t.Errorf("\t%s\tShould reject off schedule difficulty, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject off schedule difficulty.", success)
		}

		future := h.childBlock(t, h.genesis, 1, 0, "f")
		future.Header.Timestamp = uint32(time.Now().Add(3 * time.Hour).Unix())
		h.mine(t, &future)
		if _, err := h.state.ProcessSubmittedBlock(future); state.KindOf(err) != state.TimestampOutOfRange {
			t.Errorf("\t%s\tShould reject a far future timestamp, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a far future timestamp.", success)
		}

		stale := h.childBlock(t, h.genesis, 1, 0, "s")
		stale.Header.Timestamp = uint32(h.gen.Date.Unix())
		h.mine(t, &stale)
		if _, err := h.state.ProcessSubmittedBlock(stale); state.KindOf(err) != state.TimestampOutOfRange {
			t.Errorf("\t%s\tShould reject a timestamp at the median, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a timestamp at the median.", success)
		}

		badMerkle := h.childBlock(t, h.genesis, 1, 0, "bm")
		badMerkle.Header.MerkleRoot = signature.Hash{0x01}
		h.mine(t, &badMerkle)
		if _, err := h.state.ProcessSubmittedBlock(badMerkle); state.KindOf(err) != state.BadMerkleRoot {
			t.Errorf("\t%s\tShould reject a merkle mismatch, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject a merkle mismatch.", success)
		}

		greedy := h.childBlock(t, h.genesis, 1, 0, "g")
		greedy.Txs[0].Outputs[0].Value = h.gen.Subsidy(1) + 1
		greedy.Header.MerkleRoot = greedy.MerkleRoot()
		h.mine(t, &greedy)
		if _, err := h.state.ProcessSubmittedBlock(greedy); state.KindOf(err) != state.BadCoinbaseReward {
			t.Errorf("\t%s\tShould reject an inflated coinbase, got %v.", failed, err)
		} else {
			t.Logf("\t%s\tShould reject an inflated coinbase.", success)
		}
	}
}
