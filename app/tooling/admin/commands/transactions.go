package commands

import (
	"fmt"
	"strconv"

	"github.com/ardanlabs/conf/v3"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/equiforge/equiforge/foundation/blockchain/state"
)

// Transactions prints the transactions in the requested height range.
// With no range the whole active chain is walked.
func Transactions(args conf.Args, st *state.State) error {
	from := uint64(0)
	to := uint64(st.RetrieveTip().Height)

	var err error
	if v := args.Num(1); v != "" {
		if from, err = strconv.ParseUint(v, 10, 32); err != nil {
			return fmt.Errorf("parsing from height: %w", err)
		}
	}
	if v := args.Num(2); v != "" {
		if to, err = strconv.ParseUint(v, 10, 32); err != nil {
			return fmt.Errorf("parsing to height: %w", err)
		}
	}

	netPrefix := st.RetrieveGenesis().NetPrefix

	blocks := st.QueryBlocksByHeight(uint32(from), uint32(to))
	for i, block := range blocks {
		fmt.Printf("Block: %s  Height: %d\n", block.Hash(), uint32(from)+uint32(i))

		for _, tx := range block.Txs {
			fmt.Printf("  Tx: %s  Coinbase: %v\n", tx.TxID(), tx.IsCoinbase())

			for _, out := range tx.Outputs {
				address := signature.EncodeAddress(netPrefix, out.PubKeyHash)
				fmt.Printf("    Out: %s  Value: %d\n", address, out.Value)
			}
		}
	}

	return nil
}
