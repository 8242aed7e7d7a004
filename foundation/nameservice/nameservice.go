// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for wallet addresses.
package nameservice

import (
	"crypto/ed25519"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// NameService maintains a map of addresses for name lookup.
type NameService struct {
	addresses map[string]string
}

// New constructs a name service with addresses derived from the key files
// in the specified folder.
func New(root string, netPrefix byte) (*NameService, error) {
	ns := NameService{
		addresses: make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".key" {
			return nil
		}

		privateKey, err := signature.LoadKeyFile(fileName)
		if err != nil {
			return err
		}

		pubKey := privateKey.Public().(ed25519.PublicKey)
		address := signature.EncodeAddress(netPrefix, signature.HashPubKey(pubKey))
		ns.addresses[address] = strings.TrimSuffix(path.Base(fileName), ".key")

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified address.
func (ns *NameService) Lookup(address string) string {
	name, exists := ns.addresses[address]
	if !exists {
		return address
	}
	return name
}

// Copy returns a copy of the map of names and addresses.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.addresses))
	for address, name := range ns.addresses {
		cpy[address] = name
	}
	return cpy
}
