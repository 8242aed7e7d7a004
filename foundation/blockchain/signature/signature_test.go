package signature_test

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_DoubleSHA256(t *testing.T) {
	t.Log("Given the need to validate the tagged identity hash.")
	{
		data := []byte("the same payload")

		a := signature.DoubleSHA256(signature.TagTransaction, data)
		b := signature.DoubleSHA256(signature.TagHeader, data)
		if a == b {
			t.Errorf("\t%s\tShould separate hash domains by tag.", failed)
		} else {
			t.Logf("\t%s\tShould separate hash domains by tag.", success)
		}

		if signature.DoubleSHA256(signature.TagTransaction, data) != a {
			t.Errorf("\t%s\tShould be deterministic.", failed)
		} else {
			t.Logf("\t%s\tShould be deterministic.", success)
		}
	}
}

func Test_LeadingZeroBits(t *testing.T) {
	t.Log("Given the need to count leading zero bits most significant byte first.")
	{
		tt := []struct {
			name string
			hash signature.Hash
			want int
		}{
			{"all zeros", signature.Hash{}, 256},
			{"msb set", signature.Hash{0: 0x80}, 0},
			{"one byte", signature.Hash{0: 0x01}, 7},
			{"one zero byte", signature.Hash{1: 0xFF}, 8},
			{"twenty bits", signature.Hash{2: 0x08}, 20},
		}

		for _, tst := range tt {
			if got := signature.LeadingZeroBits(tst.hash); got != tst.want {
				t.Errorf("\t%s\tShould count %d bits for %s, got %d.", failed, tst.want, tst.name, got)
			} else {
				t.Logf("\t%s\tShould count %d bits for %s.", success, tst.want, tst.name)
			}
		}
	}
}

func Test_SignVerify(t *testing.T) {
	t.Log("Given the need to validate signatures over digests.")
	{
		priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x42}, ed25519.SeedSize))
		pub := priv.Public().(ed25519.PublicKey)

		digest := signature.DoubleSHA256(signature.TagSigning, []byte("spend"))
		sig := signature.Sign(digest, priv)

		if !signature.Verify(pub, digest, sig) {
			t.Errorf("\t%s\tShould verify a valid signature.", failed)
		} else {
			t.Logf("\t%s\tShould verify a valid signature.", success)
		}

		bad := append([]byte(nil), sig...)
		bad[0] ^= 0x01
		if signature.Verify(pub, digest, bad) {
			t.Errorf("\t%s\tShould reject a corrupted signature.", failed)
		} else {
			t.Logf("\t%s\tShould reject a corrupted signature.", success)
		}

		if signature.Verify(pub[:16], digest, sig) {
			t.Errorf("\t%s\tShould reject a short public key.", failed)
		} else {
			t.Logf("\t%s\tShould reject a short public key.", success)
		}

		if signature.Verify(pub, digest, sig[:32]) {
			t.Errorf("\t%s\tShould reject a short signature.", failed)
		} else {
			t.Logf("\t%s\tShould reject a short signature.", success)
		}
	}
}

func Test_Address(t *testing.T) {
	t.Log("Given the need to round-trip Base58Check addresses.")
	{
		priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x07}, ed25519.SeedSize))
		pkh := signature.HashPubKey(priv.Public().(ed25519.PublicKey))

		const mainnet = 33
		const testnet = 111

		addr := signature.EncodeAddress(mainnet, pkh)
		got, err := signature.DecodeAddress(mainnet, addr)
		if err != nil {
			t.Fatalf("\t%s\tShould decode a valid address: %v", failed, err)
		}
		t.Logf("\t%s\tShould decode a valid address.", success)

		if got != pkh {
			t.Errorf("\t%s\tShould recover the original pubkey hash.", failed)
		} else {
			t.Logf("\t%s\tShould recover the original pubkey hash.", success)
		}

		if _, err := signature.DecodeAddress(testnet, addr); err == nil {
			t.Errorf("\t%s\tShould reject an address from another network.", failed)
		} else {
			t.Logf("\t%s\tShould reject an address from another network.", success)
		}

		repl := "1"
		if addr[len(addr)-1] == '1' {
			repl = "2"
		}
		corrupt := addr[:len(addr)-1] + repl
		if _, err := signature.DecodeAddress(mainnet, corrupt); err == nil {
			t.Errorf("\t%s\tShould reject a corrupted checksum.", failed)
		} else {
			t.Logf("\t%s\tShould reject a corrupted checksum.", success)
		}

		if _, err := signature.DecodeAddress(mainnet, "tooshort"); err == nil {
			t.Errorf("\t%s\tShould reject a malformed address.", failed)
		} else {
			t.Logf("\t%s\tShould reject a malformed address.", success)
		}
	}
}
