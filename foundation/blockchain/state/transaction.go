package state

import (
	"github.com/tessercoin/tesser/foundation/blockchain/database"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion.
func (s *State) SubmitWalletTransaction(tx database.Tx) error {
	added, err := s.admitTransaction(tx)
	if err != nil {
		return err
	}

	if added {
		s.Worker.SignalShareTx(tx)
	}
	s.Worker.SignalStartMining()

	return nil
}

// UpsertNodeTransaction accepts a transaction from a node for inclusion. A
// transaction seen for the first time is relayed onward so gossip reaches
// peers the origin node does not know; a transaction already pooled is not
// shared again, which stops relay loops.
func (s *State) UpsertNodeTransaction(tx database.Tx) error {
	added, err := s.admitTransaction(tx)
	if err != nil {
		return err
	}

	if added {
		s.Worker.SignalShareTx(tx)
	}
	s.Worker.SignalStartMining()

	return nil
}

// =============================================================================

// admitTransaction validates the transaction against the current unspent
// set and places it in the mempool with the fee it pays, reporting whether
// the transaction was new to the pool. Transactions that conflict over the
// same output can coexist in the pool; block assembly resolves the conflict
// by applying them in fee order.
func (s *State) admitTransaction(tx database.Tx) (bool, error) {
	utxo := s.db.CopyUTXO()

	if err := database.VerifyTx(tx, utxo); err != nil {
		return false, err
	}

	fee, err := tx.Fee(utxo)
	if err != nil {
		return false, err
	}

	added, err := s.mempool.Upsert(tx, fee)
	if err != nil {
		return false, err
	}

	s.evHandler("state: admitTransaction: tx[%s] fee[%d] new[%v] poolSize[%d]", tx, fee, added, s.mempool.Count())

	return added, nil
}
