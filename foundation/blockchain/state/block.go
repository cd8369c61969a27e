package state

import (
	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/peer"
)

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain.
func (s *State) ProcessProposedBlock(block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.Header.PrevBlockHash, block.Hash(), len(block.Trans.Values()))
	defer s.evHandler("state: ProcessProposedBlock: completed: newBlk[%s]", block.Hash())

	// Validate the block and then update the blockchain database.
	if err := s.validateUpdateDatabase(block); err != nil {
		return err
	}

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from the
	// function until done is called. That allows this function to complete
	// its state changes before a new mining operation takes place.
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
		done()
	}()

	return nil
}

// ProcessRemoteBlock handles a block proposal that arrived from a peer. When
// the proposal fails validation because this node is missing blocks, the
// missing range is pulled from the peer that sent it and the proposal is
// reconsidered before being given up on.
func (s *State) ProcessRemoteBlock(origin peer.Peer, block database.Block) error {
	err := s.ProcessProposedBlock(block)
	if err == nil || !database.IsValidationError(err) || origin.Host == "" {
		return err
	}

	s.evHandler("state: ProcessRemoteBlock: blk[%s] does not extend the local tip: syncing with peer[%s]", block.Hash(), origin)

	if serr := s.NetRequestPeerBlocks(origin); serr != nil {
		return err
	}

	// The catch up may already have carried the proposed block.
	if _, exists := s.db.HeightByHash(block.Hash()); exists {
		return nil
	}

	return s.ProcessProposedBlock(block)
}

// ProcessChainReplacement evaluates a full chain received from a peer
// against the chain this node holds. The peer chain is adopted only when it
// carries strictly more accumulated proof of work; an equal amount retains
// the current chain. Adoption is all or nothing and the transactions of
// abandoned blocks return to the mempool for mining.
func (s *State) ProcessChainReplacement(blockDatas []database.BlockData) error {
	s.evHandler("state: ProcessChainReplacement: started: blocks[%d]", len(blockDatas))
	defer s.evHandler("state: ProcessChainReplacement: completed")

	candidate := make([]database.Block, 0, len(blockDatas))
	for _, blockData := range blockDatas {
		block, err := database.ToBlock(blockData)
		if err != nil {
			return err
		}
		candidate = append(candidate, block)
	}

	// Cheap rejection before the miner is disturbed. The database repeats
	// this comparison under the same lock that guards block application, so
	// a block landing between here and the swap cannot be out-raced by a
	// lighter candidate.
	candidateWork := database.ChainWork(candidate)
	currentWork := s.db.CumulativeWork()

	if candidateWork.Cmp(currentWork) <= 0 {
		s.evHandler("state: ProcessChainReplacement: retained: candidate work[%v] current work[%v]", candidateWork, currentWork)
		return database.NewValidationError("candidate chain does not carry more work")
	}

	// Stop mining while the chain is being swapped. A block mined against
	// the old tip must not land after the swap.
	s.turnMiningOff()
	defer s.turnMiningOn()

	done := s.Worker.SignalCancelMining()
	defer done()

	removed, err := s.db.ReplaceChain(candidate)
	if err != nil {
		return err
	}

	s.evHandler("state: ProcessChainReplacement: adopted: work[%v] removed blocks[%d]", candidateWork, len(removed))

	// The transactions of the abandoned blocks go back through admission so
	// only those still spendable under the adopted chain re-enter the pool.
	for _, block := range removed {
		for _, tx := range block.Trans.Values() {
			if tx.IsCoinbase() {
				continue
			}
			if _, err := s.admitTransaction(tx); err != nil {
				s.evHandler("state: ProcessChainReplacement: tx[%s] not restored: %s", tx, err)
			}
		}
	}

	s.Worker.SignalStartMining()

	return nil
}
