package signature

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"os"
	"strings"
)

// SaveKeyFile writes the private key seed hex encoded to the named file.
func SaveKeyFile(path string, privateKey ed25519.PrivateKey) error {
	seed := privateKey.Seed()
	data := make([]byte, hex.EncodedLen(len(seed)))
	hex.Encode(data, seed)

	return os.WriteFile(path, data, 0600)
}

// LoadKeyFile reads a hex encoded ed25519 seed from the named file and
// reconstructs the private key.
func LoadKeyFile(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("malformed key file")
	}

	return ed25519.NewKeyFromSeed(seed), nil
}
