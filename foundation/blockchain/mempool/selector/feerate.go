package selector

import (
	"sort"
)

// feeRateSelect returns transactions in descending fee per byte order. The
// comparison cross multiplies so no floating point enters the selection.
var feeRateSelect = func(records []Record, maxBytes int) []Record {
	sorted := append([]Record(nil), records...)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Fee*uint64(sorted[j].Size) > sorted[j].Fee*uint64(sorted[i].Size)
	})

	return takeUnderBudget(sorted, maxBytes)
}
