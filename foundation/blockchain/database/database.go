// Package database maintains the blockchain: the ordered block sequence, the
// unspent output set derived from it, and the lower level support for keeping
// the chain on disk.
package database

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/tessercoin/tesser/foundation/blockchain/genesis"
)

// Storage interface represents the behavior required to be implemented by
// any package providing support for storing and reading the blockchain.
type Storage interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over the stored blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// Database manages the chain of blocks and the unspent output set. Mutation
// is serialized by the state package; the internal mutex protects concurrent
// readers against observing a partially applied mutation.
type Database struct {
	mu sync.RWMutex

	genesis      genesis.Genesis
	chain        []Block
	heightByHash map[string]uint64
	utxo         *UTXOIndex

	storage Storage
	unsaved []BlockData

	evHandler func(v string, args ...any)
}

// New constructs the database from the genesis values and replays any blocks
// found in storage through full validation. A block that fails to replay is
// fatal: the node must not proceed with unverifiable state.
func New(gen genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	genesisBlock, err := GenesisBlock(gen)
	if err != nil {
		return nil, err
	}

	db := Database{
		genesis:      gen,
		chain:        []Block{genesisBlock},
		heightByHash: map[string]uint64{genesisBlock.Hash(): 0},
		utxo:         NewUTXOIndex(),
		storage:      storage,
		evHandler:    evHandler,
	}

	// The fixed genesis coinbase is the initial spendable state.
	if err := db.utxo.ApplyTx(genesisBlock.Trans.Values()[0]); err != nil {
		return nil, err
	}

	// Read all the blocks from storage and replay them against the same
	// validation applied to blocks arriving live.
	iter := storage.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, fmt.Errorf("corrupt block storage: %w", err)
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return nil, fmt.Errorf("corrupt block storage: %w", err)
		}

		utxo, err := applyToScratch(db.utxo, block, db.latestBlock(), gen.MiningReward, evHandler)
		if err != nil {
			return nil, fmt.Errorf("stored block %d failed validation: %w", block.Header.Number, err)
		}

		db.chain = append(db.chain, block)
		db.heightByHash[block.Hash()] = block.Header.Number
		db.utxo = utxo
	}

	return &db, nil
}

// Close flushes any blocks not yet written and closes the block storage.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.flush(); err != nil {
		db.storage.Close()
		return err
	}

	return db.storage.Close()
}

// =============================================================================
// Mutations. The state package serializes callers of these.

// ApplyBlock validates the block against the current tip and the unspent
// set, then appends it and mutates the unspent set as one atomic step. No
// reader ever observes a partial application.
func (db *Database) ApplyBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	utxo, err := applyToScratch(db.utxo, block, db.latestBlock(), db.genesis.MiningReward, db.evHandler)
	if err != nil {
		return err
	}

	db.chain = append(db.chain, block)
	db.heightByHash[block.Hash()] = block.Header.Number
	db.utxo = utxo

	db.unsaved = append(db.unsaved, NewBlockData(block))
	if err := db.flush(); err != nil {
		// The block is applied; persistence is retried on the next write.
		db.evHandler("database: ApplyBlock: WARNING: persist blk[%d]: %s", block.Header.Number, err)
	}

	return nil
}

// ReplaceChain swaps the current chain for the candidate, which must be a
// full chain starting at the same genesis block. Every block is validated
// and the unspent set rebuilt on scratch state, so a failure anywhere leaves
// the database exactly as it was. The blocks removed from the old chain are
// returned so their transactions can be reconsidered for mining.
func (db *Database) ReplaceChain(candidate []Block) ([]Block, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(candidate) == 0 || candidate[0].Hash() != db.chain[0].Hash() {
		return nil, NewValidationError("candidate chain does not start at genesis")
	}

	// The selection metric is recomputed here so the decision and the swap
	// happen under the same lock ApplyBlock takes. A block that landed after
	// the caller compared work must not be replaced by a lighter candidate.
	if ChainWork(candidate).Cmp(ChainWork(db.chain)) <= 0 {
		return nil, NewValidationError("candidate chain does not carry more work")
	}

	// Rebuild the unspent set from genesis across the candidate.
	utxo := NewUTXOIndex()
	if err := utxo.ApplyTx(db.chain[0].Trans.Values()[0]); err != nil {
		return nil, err
	}

	heightByHash := map[string]uint64{db.chain[0].Hash(): 0}

	for i := 1; i < len(candidate); i++ {
		// Difficulty is a network wide constant; a declared difficulty is
		// checked against the genesis value, never against what the
		// candidate's own parent claims.
		if candidate[i].Header.Difficulty != db.genesis.Difficulty {
			return nil, NewValidationError("block %d difficulty does not match the network, got %d, exp %d", candidate[i].Header.Number, candidate[i].Header.Difficulty, db.genesis.Difficulty)
		}

		next, err := applyToScratch(utxo, candidate[i], candidate[i-1], db.genesis.MiningReward, db.evHandler)
		if err != nil {
			return nil, err
		}
		utxo = next
		heightByHash[candidate[i].Hash()] = candidate[i].Header.Number
	}

	// Collect the blocks of the old chain that the candidate abandons.
	var removed []Block
	for _, block := range db.chain[1:] {
		if _, exists := heightByHash[block.Hash()]; !exists {
			removed = append(removed, block)
		}
	}

	db.chain = candidate
	db.heightByHash = heightByHash
	db.utxo = utxo

	// Rewrite storage to match the adopted chain. Failures are recoverable:
	// the remaining blocks stay queued for the next flush.
	if err := db.storage.Reset(); err != nil {
		db.evHandler("database: ReplaceChain: WARNING: reset storage: %s", err)
	}
	db.unsaved = db.unsaved[:0]
	for _, block := range db.chain[1:] {
		db.unsaved = append(db.unsaved, NewBlockData(block))
	}
	if err := db.flush(); err != nil {
		db.evHandler("database: ReplaceChain: WARNING: persist chain: %s", err)
	}

	return removed, nil
}

// =============================================================================
// Read only queries. These observe a consistent snapshot.

// LatestBlock returns the current tip of the chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock()
}

// Height returns the block number of the current tip.
func (db *Database) Height() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock().Header.Number
}

// BlockByNumber returns the block at the specified height.
func (db *Database) BlockByNumber(num uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if num >= uint64(len(db.chain)) {
		return Block{}, fmt.Errorf("block %d not found", num)
	}

	return db.chain[num], nil
}

// BlockByHash returns the block with the specified header hash.
func (db *Database) BlockByHash(hash string) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	num, exists := db.heightByHash[hash]
	if !exists {
		return Block{}, fmt.Errorf("block %s not found", hash)
	}

	return db.chain[num], nil
}

// HeightByHash reports whether a block with the specified hash is part of
// the canonical chain and at which height.
func (db *Database) HeightByHash(hash string) (uint64, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	num, exists := db.heightByHash[hash]
	return num, exists
}

// Blocks returns a copy of the canonical chain in order.
func (db *Database) Blocks() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	chain := make([]Block, len(db.chain))
	copy(chain, db.chain)
	return chain
}

// CumulativeWork returns the total proof of work from genesis to the tip.
func (db *Database) CumulativeWork() *big.Int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return ChainWork(db.chain)
}

// Balance sums the unspent value locked to the specified address.
func (db *Database) Balance(address string) uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxo.Balance(address)
}

// UnspentByAddress returns the unspent outputs locked to the specified
// address.
func (db *Database) UnspentByAddress(address string) []UTXO {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxo.UnspentByAddress(address)
}

// CopyUTXO returns an independent snapshot of the unspent set for callers
// that validate transactions outside the mutation path.
func (db *Database) CopyUTXO() *UTXOIndex {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxo.Clone()
}

// =============================================================================

// latestBlock must be called with the mutex held.
func (db *Database) latestBlock() Block {
	return db.chain[len(db.chain)-1]
}

// flush writes queued blocks to storage. On failure the remaining blocks
// stay queued and are retried on the next flush. Must be called with the
// mutex held.
func (db *Database) flush() error {
	for len(db.unsaved) > 0 {
		if err := db.storage.Write(db.unsaved[0]); err != nil {
			return err
		}
		db.unsaved = db.unsaved[1:]
	}

	return nil
}

// applyToScratch validates the block against the previous block and the
// unspent set, applying its transactions sequentially to a clone so an
// invalid transaction anywhere leaves the original set untouched. The
// coinbase must mint exactly the subsidy plus the fees of the block.
func applyToScratch(utxo *UTXOIndex, block Block, prevBlock Block, miningReward uint64, evHandler func(v string, args ...any)) (*UTXOIndex, error) {
	if err := block.ValidateBlock(prevBlock, evHandler); err != nil {
		return nil, err
	}

	scratch := utxo.Clone()
	trans := block.Trans.Values()

	// The coinbase enters the set first so subsequent transactions of the
	// same block see it, per the sequential application rule.
	if err := scratch.ApplyTx(trans[0]); err != nil {
		return nil, err
	}

	var fees uint64
	for _, tx := range trans[1:] {
		if err := VerifyTx(tx, scratch); err != nil {
			return nil, err
		}

		fee, err := tx.Fee(scratch)
		if err != nil {
			return nil, err
		}
		fees += fee

		if err := scratch.ApplyTx(tx); err != nil {
			return nil, err
		}
	}

	if want := miningReward + fees; block.Trans.Values()[0].Outputs[0].Value != want {
		return nil, NewValidationError("coinbase value is not subsidy plus fees, got %d, exp %d", trans[0].Outputs[0].Value, want)
	}

	return scratch, nil
}
