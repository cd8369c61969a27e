package public

import (
	"github.com/tessercoin/tesser/foundation/blockchain/database"
)

type balance struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Address     string `json:"address"`
	Balance     uint64 `json:"balance"`
}

type unspentOutput struct {
	TxID        string `json:"tx_id"`
	OutputIndex uint32 `json:"output_index"`
	Value       uint64 `json:"value"`
	PubKeyHash  string `json:"pub_key_hash"`
}

type input struct {
	TxID        string `json:"tx_id"`
	OutputIndex uint32 `json:"output_index"`
	PubKey      string `json:"pub_key"`
	Sig         string `json:"sig"`
}

type output struct {
	Value      uint64 `json:"value"`
	PubKeyHash string `json:"pub_key_hash"`
}

type tx struct {
	ID       string   `json:"id"`
	Coinbase bool     `json:"coinbase"`
	Inputs   []input  `json:"inputs"`
	Outputs  []output `json:"outputs"`
}

func newTx(tran database.Tx) tx {
	inputs := make([]input, len(tran.Inputs))
	for i, in := range tran.Inputs {
		inputs[i] = input{
			TxID:        in.TxID,
			OutputIndex: in.OutputIndex,
			PubKey:      in.PubKey,
			Sig:         in.Sig,
		}
	}

	outputs := make([]output, len(tran.Outputs))
	for i, out := range tran.Outputs {
		outputs[i] = output{
			Value:      out.Value,
			PubKeyHash: out.PubKeyHash,
		}
	}

	return tx{
		ID:       tran.ID,
		Coinbase: tran.IsCoinbase(),
		Inputs:   inputs,
		Outputs:  outputs,
	}
}

type block struct {
	Hash          string `json:"hash"`
	PrevBlockHash string `json:"prev_block_hash"`
	Number        uint64 `json:"number"`
	TimeStamp     uint64 `json:"timestamp"`
	Nonce         uint64 `json:"nonce"`
	Difficulty    uint16 `json:"difficulty"`
	TransRoot     string `json:"trans_root"`
	Transactions  []tx   `json:"transactions"`
}

func newBlock(blk database.Block) block {
	txs := blk.Trans.Values()

	trans := make([]tx, len(txs))
	for i, tran := range txs {
		trans[i] = newTx(tran)
	}

	return block{
		Hash:          blk.Hash(),
		PrevBlockHash: blk.Header.PrevBlockHash,
		Number:        blk.Header.Number,
		TimeStamp:     blk.Header.TimeStamp,
		Nonce:         blk.Header.Nonce,
		Difficulty:    blk.Header.Difficulty,
		TransRoot:     blk.Header.TransRoot,
		Transactions:  trans,
	}
}
