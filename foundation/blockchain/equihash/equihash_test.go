package equihash_test

import (
	"bytes"
	"testing"

	"github.com/equiforge/equiforge/foundation/blockchain/equihash"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Determinism(t *testing.T) {
	t.Log("Given the need to validate the digest is a pure function of the header.")
	{
		header := bytes.Repeat([]byte{0xA5}, 82)

		a := equihash.NewHasher().Sum(header)
		b := equihash.NewHasher().Sum(header)
		if a != b {
			t.Errorf("\t%s\tShould produce identical digests across hashers.", failed)
		} else {
			t.Logf("\t%s\tShould produce identical digests across hashers.", success)
		}

		h := equihash.NewHasher()
		first := h.Sum(header)
		h.Sum(bytes.Repeat([]byte{0x5A}, 82))
		if h.Sum(header) != first {
			t.Errorf("\t%s\tShould carry no hidden state between evaluations.", failed)
		} else {
			t.Logf("\t%s\tShould carry no hidden state between evaluations.", success)
		}
	}
}

func Test_Avalanche(t *testing.T) {
	t.Log("Given the need to validate every header byte matters.")
	{
		header := bytes.Repeat([]byte{0x3C}, 82)
		h := equihash.NewHasher()
		base := h.Sum(header)

		for _, pos := range []int{0, 41, 81} {
			flipped := append([]byte(nil), header...)
			flipped[pos] ^= 0x01
			if h.Sum(flipped) == base {
				t.Errorf("\t%s\tShould change the digest when byte %d flips.", failed, pos)
			} else {
				t.Logf("\t%s\tShould change the digest when byte %d flips.", success, pos)
			}
		}
	}
}

func Test_Verify(t *testing.T) {
	t.Log("Given the need to validate the difficulty acceptance rule.")
	{
		h := equihash.NewHasher()

		header := make([]byte, 82)
		if !h.Verify(header, 0) {
			t.Errorf("\t%s\tShould accept any digest at zero difficulty.", failed)
		} else {
			t.Logf("\t%s\tShould accept any digest at zero difficulty.", success)
		}

		// Roll the trailing nonce bytes until a digest with at least two
		// leading zero bits appears; expected in a handful of attempts.
		const bits = 2
		solved := false
		for nonce := 0; nonce < 512; nonce++ {
			header[81] = byte(nonce)
			header[80] = byte(nonce >> 8)
			if h.Verify(header, bits) {
				solved = true
				break
			}
		}
		if !solved {
			t.Fatalf("\t%s\tShould find a %d bit solution inside the attempt budget.", failed, bits)
		}
		t.Logf("\t%s\tShould find a %d bit solution inside the attempt budget.", success, bits)

		digest := h.Sum(header)
		if signature.LeadingZeroBits(digest) < bits {
			t.Errorf("\t%s\tShould report a digest that meets the difficulty.", failed)
		} else {
			t.Logf("\t%s\tShould report a digest that meets the difficulty.", success)
		}

		if h.Verify(header, 241) {
			t.Errorf("\t%s\tShould reject an unreachable difficulty.", failed)
		} else {
			t.Logf("\t%s\tShould reject an unreachable difficulty.", success)
		}
	}
}
