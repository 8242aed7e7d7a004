package commands

import (
	"fmt"

	"github.com/equiforge/equiforge/foundation/blockchain/state"
)

// Info prints the chain tip summary.
func Info(st *state.State) error {
	tip := st.RetrieveTip()

	fmt.Printf("Tip:            %s\n", tip.Hash())
	fmt.Printf("Height:         %d\n", tip.Height)
	fmt.Printf("Bits:           %d\n", tip.Header.Bits)
	fmt.Printf("CumulativeWork: %s\n", tip.CumulativeWork.Hex())
	fmt.Printf("Timestamp:      %s\n", tip.Header.Time())

	utxoCount, err := st.QueryUtxoCount()
	if err != nil {
		return err
	}
	knownBlocks, err := st.QueryKnownBlockCount()
	if err != nil {
		return err
	}
	fmt.Printf("UTXOs:          %d\n", utxoCount)
	fmt.Printf("KnownBlocks:    %d\n", knownBlocks)

	return nil
}
