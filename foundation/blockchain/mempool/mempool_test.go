package mempool_test

import (
	"testing"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/mempool"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// spendTx constructs an unsigned transaction spending the given outpoints.
// Signatures don't matter to the pool; validation happens upstream.
func spendTx(value uint64, prevs ...database.OutPoint) database.Tx {
	tx := database.Tx{
		Version: 1,
		Outputs: []database.TxOutput{{Value: value}},
	}
	for _, prev := range prevs {
		tx.Inputs = append(tx.Inputs, database.TxInput{Prev: prev})
	}
	return tx
}

func outpoint(b byte, vout uint32) database.OutPoint {
	return database.OutPoint{TxID: signature.Hash{b}, Vout: vout}
}

// =============================================================================

func Test_UpsertAndConflicts(t *testing.T) {
	t.Log("Given the need to keep the pool conflict free.")
	{
		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a mempool: %v", failed, err)
		}

		txA := spendTx(100, outpoint(0x01, 0))
		if _, err := mp.Upsert(txA, 2000); err != nil {
			t.Fatalf("\t%s\tShould be able to add a transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to add a transaction.", success)

		if n, err := mp.Upsert(txA, 2000); err != nil || n != 1 {
			t.Errorf("\t%s\tShould treat a duplicate add as a no-op, got %d %v.", failed, n, err)
		} else {
			t.Logf("\t%s\tShould treat a duplicate add as a no-op.", success)
		}

		conflict := spendTx(50, outpoint(0x01, 0))
		if _, err := mp.Upsert(conflict, 9000); err == nil {
			t.Errorf("\t%s\tShould reject a transaction claiming a spent outpoint.", failed)
		} else {
			t.Logf("\t%s\tShould reject a transaction claiming a spent outpoint.", success)
		}

		coinbase := database.NewCoinbaseTx(1, []database.TxOutput{{Value: 1}}, nil)
		if _, err := mp.Upsert(coinbase, 0); err == nil {
			t.Errorf("\t%s\tShould reject a coinbase transaction.", failed)
		} else {
			t.Logf("\t%s\tShould reject a coinbase transaction.", success)
		}

		if mp.Count() != 1 {
			t.Errorf("\t%s\tShould hold exactly one transaction, got %d.", failed, mp.Count())
		} else {
			t.Logf("\t%s\tShould hold exactly one transaction.", success)
		}

		mp.Delete(txA.TxID())
		if _, err := mp.Upsert(conflict, 9000); err != nil {
			t.Errorf("\t%s\tShould release the claim once the entry is deleted: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould release the claim once the entry is deleted.", success)
		}
	}
}

func Test_RemoveConfirmed(t *testing.T) {
	t.Log("Given a block confirming and conflicting with pool entries.")
	{
		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a mempool: %v", failed, err)
		}

		confirmed := spendTx(100, outpoint(0x01, 0))
		rival := spendTx(75, outpoint(0x02, 0))
		survivor := spendTx(60, outpoint(0x03, 0))

		for _, tx := range []database.Tx{confirmed, rival, survivor} {
			if _, err := mp.Upsert(tx, 2000); err != nil {
				t.Fatalf("\t%s\tShould be able to seed the pool: %v", failed, err)
			}
		}

		// The block carries the confirmed transaction and another spend of
		// the rival's outpoint.
		blockTxs := []database.Tx{
			database.NewCoinbaseTx(5, []database.TxOutput{{Value: 1}}, nil),
			confirmed,
			spendTx(80, outpoint(0x02, 0)),
		}
		mp.RemoveConfirmed(blockTxs)

		if mp.Contains(confirmed.TxID()) {
			t.Errorf("\t%s\tShould drop the confirmed transaction.", failed)
		} else {
			t.Logf("\t%s\tShould drop the confirmed transaction.", success)
		}

		if mp.Contains(rival.TxID()) {
			t.Errorf("\t%s\tShould drop the entry whose input the block consumed.", failed)
		} else {
			t.Logf("\t%s\tShould drop the entry whose input the block consumed.", success)
		}

		if !mp.Contains(survivor.TxID()) {
			t.Errorf("\t%s\tShould keep the unrelated entry.", failed)
		} else {
			t.Logf("\t%s\tShould keep the unrelated entry.", success)
		}
	}
}

func Test_PickBest(t *testing.T) {
	t.Log("Given the need to select by descending fee per byte under a byte budget.")
	{
		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a mempool: %v", failed, err)
		}

		low := spendTx(100, outpoint(0x01, 0))
		mid := spendTx(100, outpoint(0x02, 0))
		high := spendTx(100, outpoint(0x03, 0))

		mp.Upsert(low, 1000)
		mp.Upsert(mid, 5000)
		mp.Upsert(high, 20000)

		picked := mp.PickBest(-1)
		if len(picked) != 3 {
			t.Fatalf("\t%s\tShould return everything with no budget, got %d.", failed, len(picked))
		}
		t.Logf("\t%s\tShould return everything with no budget.", success)

		if picked[0].Tx.TxID() != high.TxID() || picked[2].Tx.TxID() != low.TxID() {
			t.Errorf("\t%s\tShould order by descending fee rate.", failed)
		} else {
			t.Logf("\t%s\tShould order by descending fee rate.", success)
		}

		budget := picked[0].Size + picked[1].Size
		capped := mp.PickBest(budget)
		if len(capped) != 2 || capped[0].Tx.TxID() != high.TxID() {
			t.Errorf("\t%s\tShould stop at the byte budget, got %d records.", failed, len(capped))
		} else {
			t.Logf("\t%s\tShould stop at the byte budget.", success)
		}

		mp.Truncate()
		if mp.Count() != 0 {
			t.Errorf("\t%s\tShould be empty after truncate.", failed)
		} else {
			t.Logf("\t%s\tShould be empty after truncate.", success)
		}
	}
}

func Test_FIFOStrategy(t *testing.T) {
	t.Log("Given the need to select in arrival order.")
	{
		mp, err := mempool.NewWithStrategy("fifo")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a fifo mempool: %v", failed, err)
		}

		first := spendTx(100, outpoint(0x01, 0))
		second := spendTx(100, outpoint(0x02, 0))

		mp.Upsert(first, 1000)
		mp.Upsert(second, 50000)

		picked := mp.PickBest(-1)
		if len(picked) != 2 || picked[0].Tx.TxID() != first.TxID() {
			t.Errorf("\t%s\tShould keep arrival order regardless of fee.", failed)
		} else {
			t.Logf("\t%s\tShould keep arrival order regardless of fee.", success)
		}

		if _, err := mempool.NewWithStrategy("bogus"); err == nil {
			t.Errorf("\t%s\tShould reject an unknown strategy.", failed)
		} else {
			t.Logf("\t%s\tShould reject an unknown strategy.", success)
		}
	}
}
