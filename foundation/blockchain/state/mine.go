package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tessercoin/tesser/foundation/blockchain/database"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are no eligible transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: assemble candidate transactions")

	// Pick the best transactions that fit together against the current
	// unspent set and construct the coinbase from the fees they pay.
	trans, err := s.assembleCandidate()
	if err != nil {
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	// Attempt to create a new block by solving the POW puzzle. This can be
	// cancelled.
	block, err := database.POW(ctx, database.POWArgs{
		Difficulty: s.genesis.Difficulty,
		PrevBlock:  s.db.LatestBlock(),
		Trans:      trans,
		EvHandler:  s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	// Validate the block and then update the blockchain database.
	if err := s.validateUpdateDatabase(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// =============================================================================

// assembleCandidate walks the mempool in fee order and keeps every
// transaction that still validates against the unspent set with the
// previously kept transactions applied. Conflicting spends of the same
// output drop out here instead of invalidating the block.
func (s *State) assembleCandidate() ([]database.Tx, error) {
	scratch := s.db.CopyUTXO()

	var picked []database.Tx
	var fees uint64

	for _, tx := range s.mempool.PickBest(-1) {
		if len(picked) >= int(s.genesis.TransPerBlock) {
			break
		}

		if err := database.VerifyTx(tx, scratch); err != nil {
			s.evHandler("state: assembleCandidate: tx[%s] skipped: %s", tx, err)
			continue
		}

		fee, err := tx.Fee(scratch)
		if err != nil {
			s.evHandler("state: assembleCandidate: tx[%s] skipped: %s", tx, err)
			continue
		}

		if err := scratch.ApplyTx(tx); err != nil {
			s.evHandler("state: assembleCandidate: tx[%s] skipped: %s", tx, err)
			continue
		}

		picked = append(picked, tx)
		fees += fee
	}

	if len(picked) == 0 {
		return nil, ErrNoTransactions
	}

	coinbase := database.NewCoinbaseTx(s.beneficiaryID, s.genesis.MiningReward+fees)

	return append([]database.Tx{coinbase}, picked...), nil
}

// validateUpdateDatabase takes the block and validates it against the
// consensus rules. If the block passes, the chain and the unspent set are
// updated as one step and the block's transactions leave the mempool.
func (s *State) validateUpdateDatabase(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: validateUpdateDatabase: apply block")

	if err := s.db.ApplyBlock(block); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: remove from mempool")

	for _, tx := range block.Trans.Values() {
		if tx.IsCoinbase() {
			continue
		}
		s.mempool.Delete(tx)
	}

	// Send an event about this new block.
	s.blockEvent(block)

	return nil
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.Trans.Values())
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"trans":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTransJSON))
}
