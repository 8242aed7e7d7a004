// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFeeRate = "feerate"
	StrategyFIFO    = "fifo"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFeeRate: feeRateSelect,
	StrategyFIFO:    fifoSelect,
}

// Record is one mempool transaction with its cached fee, canonical size,
// and arrival sequence number.
type Record struct {
	Tx   database.Tx
	Fee  uint64
	Size int
	Seq  uint64
}

// Func defines a function that takes the mempool records and selects a
// subset in an order based on the function's strategy whose summed
// canonical sizes stay within maxBytes; a record that does not fit is
// skipped and later, smaller records can still be taken. Receiving -1 for
// maxBytes must
// return all the records in the strategy's ordering.
type Func func(records []Record, maxBytes int) []Record

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// takeUnderBudget walks all of the already ordered records and takes each
// one that still fits the remaining byte budget, skipping those that do not.
func takeUnderBudget(records []Record, maxBytes int) []Record {
	if maxBytes == -1 {
		return records
	}

	var final []Record
	used := 0
	for _, rec := range records {
		if used+rec.Size > maxBytes {
			continue
		}
		final = append(final, rec)
		used += rec.Size
	}
	return final
}
