package selector

import (
	"sort"

	"github.com/tessercoin/tesser/foundation/blockchain/database"
)

// feeSelect returns the transactions paying the highest fees first. Which
// of the selected transactions actually fit together in a block is decided
// by the caller, who applies them against the unspent set in this order.
var feeSelect = func(records []Record, howMany int) []database.Tx {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Sort(byFee(sorted))

	if howMany == -1 || howMany > len(sorted) {
		howMany = len(sorted)
	}

	final := make([]database.Tx, 0, howMany)
	for _, record := range sorted[:howMany] {
		final = append(final, record.Tx)
	}

	return final
}
