// Package signature provides the hashing and signing primitives used by
// the blockchain: domain-tagged double SHA-256 identity hashes, Ed25519
// transaction signatures, and Base58Check addresses.
package signature

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/ripemd160"
)

// Domain tags keep the different hash uses from colliding with each other.
const (
	TagTransaction = "equiforge/tx/v1"
	TagHeader      = "equiforge/header/v1"
	TagSigning     = "EQF_TXSIG_V1"
)

// HashSize is the size of all identity hashes in bytes.
const HashSize = 32

// AddressSize is the size of a public key hash in bytes.
const AddressSize = 20

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// PubKeySize is the size of an Ed25519 public key in bytes.
const PubKeySize = ed25519.PublicKeySize

// Hash represents a 32 byte identity hash. Hashes are compared big-endian,
// most significant byte first.
type Hash [HashSize]byte

// ZeroHash represents a hash of all zeros.
var ZeroHash Hash

// String implements the fmt.Stringer interface.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// ToHash converts a byte slice into a Hash.
func ToHash(data []byte) (Hash, error) {
	if len(data) != HashSize {
		return Hash{}, fmt.Errorf("invalid hash length %d", len(data))
	}
	var h Hash
	copy(h[:], data)
	return h, nil
}

// =============================================================================

// DoubleSHA256 returns the double SHA-256 of the tag concatenated with the
// data. Every identity hash in the system comes through this function.
func DoubleSHA256(tag string, data []byte) Hash {
	first := sha256.New()
	first.Write([]byte(tag))
	first.Write(data)
	return sha256.Sum256(first.Sum(nil))
}

// MerkleCombine reduces two child hashes to their parent hash using the
// standard untagged double SHA-256 pair reduction.
func MerkleCombine(left Hash, right Hash) Hash {
	first := sha256.New()
	first.Write(left[:])
	first.Write(right[:])
	return sha256.Sum256(first.Sum(nil))
}

// LeadingZeroBits counts the number of leading zero bits in the hash,
// most significant byte first.
func LeadingZeroBits(h Hash) int {
	count := 0
	for _, b := range h {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// =============================================================================

// PubKeyHash represents the 20 byte digest of an Ed25519 public key. It is
// the payload of an address and the locking value of every output.
type PubKeyHash [AddressSize]byte

// String implements the fmt.Stringer interface.
func (pkh PubKeyHash) String() string {
	return hexutil.Encode(pkh[:])
}

// ToPubKeyHash converts a byte slice into a PubKeyHash.
func ToPubKeyHash(data []byte) (PubKeyHash, error) {
	if len(data) != AddressSize {
		return PubKeyHash{}, fmt.Errorf("invalid pubkey hash length %d", len(data))
	}
	var pkh PubKeyHash
	copy(pkh[:], data)
	return pkh, nil
}

// HashPubKey digests an Ed25519 public key down to the 20 byte hash stored
// in outputs: RIPEMD160(SHA-256(pubkey)).
func HashPubKey(pubKey []byte) PubKeyHash {
	sha := sha256.Sum256(pubKey)
	rip := ripemd160.New()
	rip.Write(sha[:])

	var pkh PubKeyHash
	copy(pkh[:], rip.Sum(nil))
	return pkh
}

// =============================================================================

// Sign signs the 32 byte digest with an Ed25519 private key.
func Sign(digest Hash, privateKey ed25519.PrivateKey) []byte {
	return ed25519.Sign(privateKey, digest[:])
}

// Verify reports whether the 64 byte signature over the digest verifies
// against the 32 byte Ed25519 public key.
func Verify(pubKey []byte, digest Hash, sig []byte) bool {
	if len(pubKey) != PubKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), digest[:], sig)
}

// =============================================================================

// ErrBadAddress is returned when an address fails checksum or shape checks.
var ErrBadAddress = errors.New("malformed address")

// EncodeAddress produces the Base58Check address for a pubkey hash:
// network prefix byte, 20 byte hash, 4 byte double SHA-256 checksum.
func EncodeAddress(netPrefix byte, pkh PubKeyHash) string {
	payload := make([]byte, 0, 1+AddressSize+4)
	payload = append(payload, netPrefix)
	payload = append(payload, pkh[:]...)

	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	payload = append(payload, second[:4]...)

	return base58.Encode(payload)
}

// DecodeAddress validates the checksum and network prefix of a Base58Check
// address and returns its pubkey hash.
func DecodeAddress(netPrefix byte, addr string) (PubKeyHash, error) {
	payload := base58.Decode(addr)
	if len(payload) != 1+AddressSize+4 {
		return PubKeyHash{}, ErrBadAddress
	}
	if payload[0] != netPrefix {
		return PubKeyHash{}, fmt.Errorf("%w: wrong network prefix 0x%02x", ErrBadAddress, payload[0])
	}

	body := payload[:1+AddressSize]
	first := sha256.Sum256(body)
	second := sha256.Sum256(first[:])

	for i := 0; i < 4; i++ {
		if payload[1+AddressSize+i] != second[i] {
			return PubKeyHash{}, fmt.Errorf("%w: bad checksum", ErrBadAddress)
		}
	}

	return ToPubKeyHash(payload[1 : 1+AddressSize])
}
