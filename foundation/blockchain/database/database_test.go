package database_test

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func newKey(t *testing.T, seedByte byte) (ed25519.PrivateKey, signature.PubKeyHash) {
	t.Helper()

	seed := bytes.Repeat([]byte{seedByte}, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	pkh := signature.HashPubKey(priv.Public().(ed25519.PublicKey))
	return priv, pkh
}

func signedTx(t *testing.T, priv ed25519.PrivateKey, dest signature.PubKeyHash) database.Tx {
	t.Helper()

	tx := database.Tx{
		Version: 1,
		Inputs: []database.TxInput{{
			Prev: database.OutPoint{TxID: signature.Hash{0x01}, Vout: 0},
		}},
		Outputs: []database.TxOutput{{
			Value:      90_000,
			PubKeyHash: dest,
		}},
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("\t%s\tShould be able to sign transaction: %v", failed, err)
	}
	return tx
}

// =============================================================================

func Test_TransactionRoundTrip(t *testing.T) {
	t.Log("Given the need to round-trip the canonical transaction encoding.")
	{
		priv, pkh := newKey(t, 0x11)
		tx := signedTx(t, priv, pkh)

		data := tx.Encode()
		decoded, err := database.DecodeTx(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the encoding: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to decode the encoding.", success)

		if !bytes.Equal(decoded.Encode(), data) {
			t.Errorf("\t%s\tShould re-encode to identical bytes.", failed)
		} else {
			t.Logf("\t%s\tShould re-encode to identical bytes.", success)
		}

		if decoded.TxID() != tx.TxID() {
			t.Errorf("\t%s\tShould keep the same txid through the round trip.", failed)
		} else {
			t.Logf("\t%s\tShould keep the same txid through the round trip.", success)
		}

		if _, err := database.DecodeTx(append(data, 0x00)); err == nil {
			t.Errorf("\t%s\tShould reject trailing bytes.", failed)
		} else {
			t.Logf("\t%s\tShould reject trailing bytes.", success)
		}

		if _, err := database.DecodeTx(data[:len(data)-1]); err == nil {
			t.Errorf("\t%s\tShould reject a truncated encoding.", failed)
		} else {
			t.Logf("\t%s\tShould reject a truncated encoding.", success)
		}
	}
}

func Test_SigningDigest(t *testing.T) {
	t.Log("Given the need to validate the signing digest and signatures.")
	{
		priv, pkh := newKey(t, 0x22)
		tx := signedTx(t, priv, pkh)

		digest := tx.SigningDigest()

		for i, in := range tx.Inputs {
			if !signature.Verify(in.PubKey, digest, in.Signature) {
				t.Errorf("\t%s\tShould verify the signature on input %d.", failed, i)
			} else {
				t.Logf("\t%s\tShould verify the signature on input %d.", success, i)
			}
		}

		unsigned := tx
		unsigned.Inputs = append([]database.TxInput(nil), tx.Inputs...)
		unsigned.Inputs[0].Signature = nil
		if unsigned.SigningDigest() != digest {
			t.Errorf("\t%s\tShould compute the same digest with signatures cleared.", failed)
		} else {
			t.Logf("\t%s\tShould compute the same digest with signatures cleared.", success)
		}

		tampered := tx
		tampered.Outputs = append([]database.TxOutput(nil), tx.Outputs...)
		tampered.Outputs[0].Value++
		if tampered.SigningDigest() == digest {
			t.Errorf("\t%s\tShould change the digest when an output changes.", failed)
		} else {
			t.Logf("\t%s\tShould change the digest when an output changes.", success)
		}
	}
}

func Test_Coinbase(t *testing.T) {
	t.Log("Given the need to validate coinbase construction.")
	{
		_, pkh := newKey(t, 0x33)
		tag := []byte("rig7")

		tx := database.NewCoinbaseTx(42, []database.TxOutput{{Value: 50_0000_0000, PubKeyHash: pkh}}, tag)

		if !tx.IsCoinbase() {
			t.Fatalf("\t%s\tShould report the transaction as coinbase.", failed)
		}
		t.Logf("\t%s\tShould report the transaction as coinbase.", success)

		priv, _ := newKey(t, 0x44)
		regular := signedTx(t, priv, pkh)
		if regular.IsCoinbase() {
			t.Errorf("\t%s\tShould not report a regular transaction as coinbase.", failed)
		} else {
			t.Logf("\t%s\tShould not report a regular transaction as coinbase.", success)
		}

		payload := tx.Inputs[0].PubKey
		want := database.CoinbasePayload(42, 0, tag)
		if !bytes.Equal(payload, want) {
			t.Errorf("\t%s\tShould carry the height and miner tag in the payload.", failed)
		} else {
			t.Logf("\t%s\tShould carry the height and miner tag in the payload.", success)
		}

		rolled := database.CoinbasePayload(42, 7, tag)
		if bytes.Equal(payload, rolled) {
			t.Errorf("\t%s\tShould change the payload when the extranonce rolls.", failed)
		} else {
			t.Logf("\t%s\tShould change the payload when the extranonce rolls.", success)
		}
		if !bytes.Equal(payload[:database.CoinbaseExtraNonceOffset], rolled[:database.CoinbaseExtraNonceOffset]) {
			t.Errorf("\t%s\tShould keep the height prefix stable across extranonce rolls.", failed)
		} else {
			t.Logf("\t%s\tShould keep the height prefix stable across extranonce rolls.", success)
		}
	}
}

// =============================================================================

func Test_HeaderRoundTrip(t *testing.T) {
	t.Log("Given the need to round-trip the canonical header encoding.")
	{
		hdr := database.BlockHeader{
			Version:    1,
			PrevBlock:  signature.Hash{0xAA},
			MerkleRoot: signature.Hash{0xBB},
			Timestamp:  1735689600,
			Bits:       20,
			Nonce:      0xDEADBEEF,
		}

		data := hdr.Encode()
		if len(data) != database.HeaderSize {
			t.Fatalf("\t%s\tShould encode to %d bytes, got %d.", failed, database.HeaderSize, len(data))
		}
		t.Logf("\t%s\tShould encode to %d bytes.", success, database.HeaderSize)

		decoded, err := database.DecodeHeader(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the encoding: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to decode the encoding.", success)

		if decoded != hdr {
			t.Errorf("\t%s\tShould decode to an identical header.", failed)
		} else {
			t.Logf("\t%s\tShould decode to an identical header.", success)
		}

		if decoded.Hash() != hdr.Hash() {
			t.Errorf("\t%s\tShould keep the same hash through the round trip.", failed)
		} else {
			t.Logf("\t%s\tShould keep the same hash through the round trip.", success)
		}
	}
}

func Test_BlockRoundTrip(t *testing.T) {
	t.Log("Given the need to round-trip the canonical block encoding.")
	{
		_, pkh := newKey(t, 0x55)
		priv, dest := newKey(t, 0x66)

		block := database.Block{
			Header: database.BlockHeader{Version: 1, Timestamp: 1735689600, Bits: 4, Nonce: 99},
			Txs: []database.Tx{
				database.NewCoinbaseTx(1, []database.TxOutput{{Value: 50_0000_0000, PubKeyHash: pkh}}, nil),
				signedTx(t, priv, dest),
			},
		}
		block.Header.MerkleRoot = block.MerkleRoot()

		data := block.Encode()
		decoded, err := database.DecodeBlock(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the encoding: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to decode the encoding.", success)

		if !bytes.Equal(decoded.Encode(), data) {
			t.Errorf("\t%s\tShould re-encode to identical bytes.", failed)
		} else {
			t.Logf("\t%s\tShould re-encode to identical bytes.", success)
		}

		if decoded.MerkleRoot() != decoded.Header.MerkleRoot {
			t.Errorf("\t%s\tShould recompute the committed merkle root.", failed)
		} else {
			t.Logf("\t%s\tShould recompute the committed merkle root.", success)
		}
	}
}

func Test_MerkleRoot(t *testing.T) {
	t.Log("Given the need to validate the merkle reduction.")
	{
		_, pkh := newKey(t, 0x77)
		coinbase := func(height uint32) database.Tx {
			return database.NewCoinbaseTx(height, []database.TxOutput{{Value: 1, PubKeyHash: pkh}}, nil)
		}

		single := database.Block{Txs: []database.Tx{coinbase(1)}}
		if single.MerkleRoot() != single.Txs[0].TxID() {
			t.Errorf("\t%s\tShould use the lone txid as the root.", failed)
		} else {
			t.Logf("\t%s\tShould use the lone txid as the root.", success)
		}

		pair := database.Block{Txs: []database.Tx{coinbase(1), coinbase(2)}}
		want := signature.MerkleCombine(pair.Txs[0].TxID(), pair.Txs[1].TxID())
		if pair.MerkleRoot() != want {
			t.Errorf("\t%s\tShould combine a pair of txids.", failed)
		} else {
			t.Logf("\t%s\tShould combine a pair of txids.", success)
		}

		odd := database.Block{Txs: []database.Tx{coinbase(1), coinbase(2), coinbase(3)}}
		left := signature.MerkleCombine(odd.Txs[0].TxID(), odd.Txs[1].TxID())
		right := signature.MerkleCombine(odd.Txs[2].TxID(), odd.Txs[2].TxID())
		if odd.MerkleRoot() != signature.MerkleCombine(left, right) {
			t.Errorf("\t%s\tShould duplicate the last node on an odd level.", failed)
		} else {
			t.Logf("\t%s\tShould duplicate the last node on an odd level.", success)
		}

		if (database.Block{}).MerkleRoot() != signature.ZeroHash {
			t.Errorf("\t%s\tShould produce the zero hash for an empty block.", failed)
		} else {
			t.Logf("\t%s\tShould produce the zero hash for an empty block.", success)
		}
	}
}

// =============================================================================

type mapUtxos map[database.OutPoint]database.UtxoEntry

func (m mapUtxos) GetUtxo(op database.OutPoint) (database.UtxoEntry, bool, error) {
	entry, ok := m[op]
	return entry, ok, nil
}

func Test_UtxoView(t *testing.T) {
	t.Log("Given the need to validate the UTXO overlay semantics.")
	{
		_, pkh := newKey(t, 0x88)

		baseOp := database.OutPoint{TxID: signature.Hash{0x01}, Vout: 0}
		base := mapUtxos{
			baseOp: {Value: 1000, PubKeyHash: pkh, Height: 5},
		}

		view := database.NewUtxoView(base)

		entry, err := view.Spend(baseOp)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to spend a base entry: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to spend a base entry.", success)

		if entry.Value != 1000 {
			t.Errorf("\t%s\tShould return the prior entry on spend.", failed)
		} else {
			t.Logf("\t%s\tShould return the prior entry on spend.", success)
		}

		if _, err := view.Spend(baseOp); err == nil {
			t.Errorf("\t%s\tShould reject a double spend through the view.", failed)
		} else {
			t.Logf("\t%s\tShould reject a double spend through the view.", success)
		}

		newOp := database.OutPoint{TxID: signature.Hash{0x02}, Vout: 1}
		newEntry := database.UtxoEntry{Value: 900, PubKeyHash: pkh, Height: 6}
		if err := view.Add(newOp, newEntry); err != nil {
			t.Fatalf("\t%s\tShould be able to add a new entry: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to add a new entry.", success)

		if _, err := view.Spend(newOp); err != nil {
			t.Errorf("\t%s\tShould be able to spend an entry added in the view: %v", failed, err)
		} else {
			t.Logf("\t%s\tShould be able to spend an entry added in the view.", success)
		}

		if _, ok := base[baseOp]; !ok {
			t.Errorf("\t%s\tShould never mutate the base set.", failed)
		} else {
			t.Logf("\t%s\tShould never mutate the base set.", success)
		}

		delta := view.Delta()
		if len(delta.Ops) != 3 {
			t.Fatalf("\t%s\tShould record three ops in the delta, got %d.", failed, len(delta.Ops))
		}
		t.Logf("\t%s\tShould record three ops in the delta.", success)

		if !delta.Ops[0].Spend || delta.Ops[1].Spend || !delta.Ops[2].Spend {
			t.Errorf("\t%s\tShould record the ops in application order.", failed)
		} else {
			t.Logf("\t%s\tShould record the ops in application order.", success)
		}

		decoded, err := database.DecodeDelta(delta.Encode())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to round-trip the delta encoding: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to round-trip the delta encoding.", success)

		if len(decoded.Ops) != len(delta.Ops) || decoded.Ops[0] != delta.Ops[0] {
			t.Errorf("\t%s\tShould decode to identical ops.", failed)
		} else {
			t.Logf("\t%s\tShould decode to identical ops.", success)
		}
	}
}

func Test_UtxoEntryRoundTrip(t *testing.T) {
	t.Log("Given the need to round-trip the UTXO entry encoding.")
	{
		_, pkh := newKey(t, 0x99)

		entry := database.UtxoEntry{Value: 50_0000_0000, PubKeyHash: pkh, Height: 101, IsCoinbase: true}
		decoded, err := database.DecodeUtxoEntry(entry.Encode())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the encoding: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to decode the encoding.", success)

		if decoded != entry {
			t.Errorf("\t%s\tShould decode to an identical entry.", failed)
		} else {
			t.Logf("\t%s\tShould decode to an identical entry.", success)
		}
	}
}
