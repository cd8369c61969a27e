package database

import "sort"

// OutPoint identifies a single output of a single transaction.
type OutPoint struct {
	TxID        string `json:"tx_id"`
	OutputIndex uint32 `json:"output_index"`
}

// UTXO pairs an outpoint with the output it identifies, for callers that
// need to enumerate spendable value.
type UTXO struct {
	OutPoint OutPoint `json:"out_point"`
	Output   TxOutput `json:"output"`
}

// UTXOIndex is the mutable mapping of currently spendable value. An entry
// exists if and only if the output was produced by a transaction in the
// canonical chain and has not since been consumed by one.
type UTXOIndex struct {
	entries map[OutPoint]TxOutput
}

// NewUTXOIndex constructs an empty unspent set.
func NewUTXOIndex() *UTXOIndex {
	return &UTXOIndex{
		entries: make(map[OutPoint]TxOutput),
	}
}

// Clone makes an independent copy of the unspent set. Reorganizations build
// the replacement set on a clone so failures never corrupt the original.
func (ui *UTXOIndex) Clone() *UTXOIndex {
	entries := make(map[OutPoint]TxOutput, len(ui.entries))
	for op, out := range ui.entries {
		entries[op] = out
	}

	return &UTXOIndex{entries: entries}
}

// Add inserts a single unspent output. Callers that receive unspent outputs
// over the network use this to rebuild a local set for coin selection.
func (ui *UTXOIndex) Add(op OutPoint, out TxOutput) {
	ui.entries[op] = out
}

// Count returns the number of unspent outputs.
func (ui *UTXOIndex) Count() int {
	return len(ui.entries)
}

// Resolve returns the output the specified outpoint references, if it is
// still unspent.
func (ui *UTXOIndex) Resolve(op OutPoint) (TxOutput, bool) {
	out, exists := ui.entries[op]
	return out, exists
}

// ApplyTx consumes the transaction's inputs and inserts its outputs as one
// step. The transaction must already be validated; a missing input here is a
// double spend.
func (ui *UTXOIndex) ApplyTx(tx Tx) error {
	for _, in := range tx.Inputs {
		op := in.OutPoint()
		if _, exists := ui.entries[op]; !exists {
			return NewValidationError("double spend of output %s:%d", op.TxID, op.OutputIndex)
		}
	}

	for _, in := range tx.Inputs {
		delete(ui.entries, in.OutPoint())
	}

	for i, out := range tx.Outputs {
		ui.entries[OutPoint{TxID: tx.ID, OutputIndex: uint32(i)}] = out
	}

	return nil
}

// Balance sums the value of all unspent outputs locked to the specified
// address.
func (ui *UTXOIndex) Balance(address string) uint64 {
	var balance uint64
	for _, out := range ui.entries {
		if out.PubKeyHash == address {
			balance += out.Value
		}
	}

	return balance
}

// UnspentByAddress returns the unspent outputs locked to the specified
// address, ordered by outpoint for deterministic selection.
func (ui *UTXOIndex) UnspentByAddress(address string) []UTXO {
	var utxos []UTXO
	for op, out := range ui.entries {
		if out.PubKeyHash == address {
			utxos = append(utxos, UTXO{OutPoint: op, Output: out})
		}
	}

	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].OutPoint.TxID != utxos[j].OutPoint.TxID {
			return utxos[i].OutPoint.TxID < utxos[j].OutPoint.TxID
		}
		return utxos[i].OutPoint.OutputIndex < utxos[j].OutPoint.OutputIndex
	})

	return utxos
}
