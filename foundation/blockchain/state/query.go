package state

import (
	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/signature"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// QueryBalance sums the unspent value locked to the specified address.
func (s *State) QueryBalance(address string) uint64 {
	return s.db.Balance(address)
}

// QueryUnspentOutputs returns the unspent outputs locked to the specified
// address.
func (s *State) QueryUnspentOutputs(address string) []database.UTXO {
	return s.db.UnspentByAddress(address)
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryMempool returns a copy of the mempool contents.
func (s *State) QueryMempool() []database.Tx {
	return s.mempool.Copy()
}

// QueryBlocksByNumber returns the set of blocks based on block numbers,
// both bounds inclusive.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	if from == QueryLatest {
		from = s.db.Height()
		to = from
	}
	if to == QueryLatest {
		to = s.db.Height()
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.db.BlockByNumber(i)
		if err != nil {
			s.evHandler("state: QueryBlocksByNumber: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}

// QueryBlockByHash returns the block with the specified header hash.
func (s *State) QueryBlockByHash(hash string) (database.Block, error) {
	return s.db.BlockByHash(hash)
}

// QueryBlocksByAddress returns the blocks holding a transaction that pays to
// or spends from the specified address. An empty address returns all blocks.
func (s *State) QueryBlocksByAddress(address string) []database.Block {
	var out []database.Block

	for _, block := range s.db.Blocks() {
		if address == "" {
			out = append(out, block)
			continue
		}

	txs:
		for _, tx := range block.Trans.Values() {
			for _, txOut := range tx.Outputs {
				if txOut.PubKeyHash == address {
					out = append(out, block)
					break txs
				}
			}
			for _, txIn := range tx.Inputs {
				if signature.AddressFromPublicKeyString(txIn.PubKey) == address {
					out = append(out, block)
					break txs
				}
			}
		}
	}

	return out
}
