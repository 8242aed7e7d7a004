package selector

import (
	"sort"
)

// fifoSelect returns transactions in arrival order.
var fifoSelect = func(records []Record, maxBytes int) []Record {
	sorted := append([]Record(nil), records...)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Seq < sorted[j].Seq
	})

	return takeUnderBudget(sorted, maxBytes)
}
