// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"

	"github.com/tessercoin/tesser/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFee = "fee"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFee: feeSelect,
}

// Record pairs a pending transaction with the fee it pays. The fee is
// resolved against the unspent set when the transaction is admitted, so
// selection does not need to look outputs up again.
type Record struct {
	Tx  database.Tx
	Fee uint64
}

// Func defines a function that takes the pending transactions and selects
// howMany of them in an order based on the functions strategy. Receiving -1
// for howMany must return all the transactions in the strategies ordering.
type Func func(records []Record, howMany int) []database.Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// byFee provides sorting support by the record fee value.
type byFee []Record

// Len returns the number of records in the list.
func (bf byFee) Len() int {
	return len(bf)
}

// Less helps to sort the list by fee in descending order to pick the
// transactions that provide the best reward. Equal fees fall back to the
// transaction id so the ordering is deterministic.
func (bf byFee) Less(i, j int) bool {
	if bf[i].Fee != bf[j].Fee {
		return bf[i].Fee > bf[j].Fee
	}
	return bf[i].Tx.ID < bf[j].Tx.ID
}

// Swap moves records in the order of the fee value.
func (bf byFee) Swap(i, j int) {
	bf[i], bf[j] = bf[j], bf[i]
}
