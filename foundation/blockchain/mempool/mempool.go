// Package mempool maintains the pool of transactions waiting to be mined.
package mempool

import (
	"errors"
	"sync"

	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/mempool/selector"
)

// Mempool represents a cache of pending transactions keyed by their id.
type Mempool struct {
	pool     map[string]selector.Record
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default sort strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFee)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]selector.Record),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool along with the fee
// it was admitted with, reporting whether the transaction id was seen for
// the first time so callers can suppress duplicate relaying. Coinbase
// transactions are only ever constructed by the miner and are refused here.
func (mp *Mempool) Upsert(tx database.Tx, fee uint64) (bool, error) {
	if tx.IsCoinbase() {
		return false, errors.New("coinbase transactions cannot enter the mempool")
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	_, known := mp.pool[tx.ID]
	mp.pool[tx.ID] = selector.Record{Tx: tx, Fee: fee}

	return !known, nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.ID)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]selector.Record)
}

// Copy returns a list of the current transactions in the pool.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.Tx, 0, len(mp.pool))
	for _, record := range mp.pool {
		txs = append(txs, record.Tx)
	}

	return txs
}

// PickBest uses the configured sort strategy to return the next set of
// transactions for the next block. Passing -1 returns the full pool in the
// strategies ordering.
func (mp *Mempool) PickBest(howMany int) []database.Tx {
	mp.mu.RLock()
	records := make([]selector.Record, 0, len(mp.pool))
	for _, record := range mp.pool {
		records = append(records, record)
	}
	mp.mu.RUnlock()

	return mp.selectFn(records, howMany)
}
