// Package equihash implements EquiHash-X, the memory-hard proof-of-work
// function for the blockchain. One evaluation fills a 4 MiB scratchpad from
// the header seed (FILL), runs 64 rounds of data-dependent read/write mixing
// over it (MIX), and compresses the final state with double SHA-256
// (SQUEEZE). Miners and validators run the exact same function.
//
// The data-dependent read index forces every round to stall on a DRAM
// latency class access, and the write-back at a second data-dependent index
// keeps the scratchpad from being treated as read-only cacheable data.
// Alternating SHA-256 and Blake3 in the schedule denies a single-pipeline
// hardware implementation an easy win.
package equihash

import (
	"crypto/sha256"
	"encoding/binary"
	"math/bits"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"lukechampine.com/blake3"
)

const (
	// ScratchpadSize is the scratchpad size in bytes.
	ScratchpadSize = 4 * 1024 * 1024

	// chunkSize is the size of one scratchpad chunk in bytes.
	chunkSize = 64

	// numChunks is the number of chunks in the scratchpad.
	numChunks = ScratchpadSize / chunkSize

	// numRounds is the number of MIX rounds.
	numRounds = 64
)

// Hasher owns a single reusable 4 MiB scratchpad. A Hasher must not be
// shared between goroutines; each mining thread owns its own.
type Hasher struct {
	scratchpad []byte
}

// NewHasher constructs a Hasher with its scratchpad allocated once.
func NewHasher() *Hasher {
	return &Hasher{
		scratchpad: make([]byte, ScratchpadSize),
	}
}

// Sum computes the EquiHash-X digest of the canonical header encoding.
// The function is deterministic and has no hidden state: the scratchpad is
// fully rewritten by FILL on every call.
func (h *Hasher) Sum(headerBytes []byte) signature.Hash {

	// FILL: derive the seed from the header and expand it into the
	// scratchpad in 64 byte chunks, two Blake3 invocations per chunk.
	seed := blake3.Sum256(headerBytes)

	var in [36]byte
	copy(in[:32], seed[:])

	for i := 0; i < numChunks; i++ {
		binary.LittleEndian.PutUint32(in[32:], uint32(i))

		a := blake3.Sum256(in[:])
		off := i * chunkSize
		copy(h.scratchpad[off:off+32], a[:])

		copy(in[:32], a[:])
		b := blake3.Sum256(in[:])
		copy(h.scratchpad[off+32:off+64], b[:])

		copy(in[:32], seed[:])
	}

	// MIX: the running state is 8 u64 limbs seeded from the first chunk.
	var state [8]uint64
	for j := 0; j < 8; j++ {
		state[j] = binary.LittleEndian.Uint64(h.scratchpad[j*8:])
	}

	var stateBytes [64]byte

	for r := 0; r < numRounds; r++ {

		// Data-dependent read.
		readIdx := (state[0] + state[r%8]) % numChunks
		readOff := int(readIdx) * chunkSize

		for j := 0; j < 8; j++ {
			load := binary.LittleEndian.Uint64(h.scratchpad[readOff+j*8:])
			state[j] ^= load
			state[j] = bits.RotateLeft64(state[j], (r+j)%64) + state[(j+1)%8]
		}

		// Every 8th round the state is replaced by a SHA-256 expansion,
		// every 16th by a 64 byte Blake3 output. Both fire on round 0.
		if r%8 == 0 {
			putState(&stateBytes, &state)
			expandSHA256(&stateBytes)
			loadState(&state, &stateBytes)
		}
		if r%16 == 0 {
			putState(&stateBytes, &state)
			sum := blake3.Sum512(stateBytes[:])
			loadState(&state, &sum)
		}

		// Data-dependent write-back.
		writeIdx := (state[1] * state[3]) % numChunks
		writeOff := int(writeIdx) * chunkSize
		for j := 0; j < 8; j++ {
			binary.LittleEndian.PutUint64(h.scratchpad[writeOff+j*8:], state[j])
		}
	}

	// SQUEEZE.
	putState(&stateBytes, &state)
	first := sha256.Sum256(stateBytes[:])
	return sha256.Sum256(first[:])
}

// Verify computes the digest of the header encoding and reports whether it
// carries at least bits leading zero bits.
func (h *Hasher) Verify(headerBytes []byte, difficultyBits uint16) bool {
	digest := h.Sum(headerBytes)
	return signature.LeadingZeroBits(digest) >= int(difficultyBits)
}

// =============================================================================

// expandSHA256 replaces the 64 byte state with two SHA-256 invocations
// distinguished by a trailing domain byte.
func expandSHA256(stateBytes *[64]byte) {
	var in [65]byte
	copy(in[:64], stateBytes[:])

	in[64] = 0x00
	lo := sha256.Sum256(in[:])

	in[64] = 0x01
	hi := sha256.Sum256(in[:])

	copy(stateBytes[:32], lo[:])
	copy(stateBytes[32:], hi[:])
}

func putState(dst *[64]byte, state *[8]uint64) {
	for j := 0; j < 8; j++ {
		binary.LittleEndian.PutUint64(dst[j*8:], state[j])
	}
}

func loadState(state *[8]uint64, src *[64]byte) {
	for j := 0; j < 8; j++ {
		state[j] = binary.LittleEndian.Uint64(src[j*8:])
	}
}
