// Package commands contains the admin tool commands.
package commands

import (
	"fmt"
	"sort"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/equiforge/equiforge/foundation/blockchain/state"
)

// Balances prints the balance of every address with unspent outputs.
func Balances(st *state.State) error {
	balances, err := st.QueryBalances()
	if err != nil {
		return err
	}

	netPrefix := st.RetrieveGenesis().NetPrefix

	addresses := make([]string, 0, len(balances))
	amounts := make(map[string]uint64, len(balances))
	for pkh, amount := range balances {
		address := signature.EncodeAddress(netPrefix, pkh)
		addresses = append(addresses, address)
		amounts[address] = amount
	}
	sort.Strings(addresses)

	tip := st.RetrieveTip()
	fmt.Printf("Tip: %s  Height: %d\n\n", tip.Hash(), tip.Height)

	for _, address := range addresses {
		fmt.Printf("Address: %s  Balance: %d\n", address, amounts[address])
	}

	return nil
}
