package wallet_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/wallet"
)

// fund places outputs of the specified values under the wallet's address.
func fund(w *wallet.Wallet, values ...uint64) *database.UTXOIndex {
	utxo := database.NewUTXOIndex()
	for i, value := range values {
		coinbase := database.NewCoinbaseTx(w.Address(), value)
		op := database.OutPoint{TxID: coinbase.ID, OutputIndex: uint32(i)}
		utxo.Add(op, database.TxOutput{Value: value, PubKeyHash: w.Address()})
	}

	return utxo
}

func Test_CreateTransaction(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Should be able to generate a wallet: %v", err)
	}

	const toAddr = "beef1deadbeef2deadbeef3deadbeef4deadbeef"

	utxo := fund(w, 40, 40)

	tx, err := w.CreateTransaction(toAddr, 50, 10, utxo)
	if err != nil {
		t.Fatalf("Should be able to create the transaction: %v", err)
	}

	// 40 + 40 gathered against 50 + 10 needed leaves 20 change.
	if len(tx.Inputs) != 2 {
		t.Fatalf("Should gather two outputs, got %d.", len(tx.Inputs))
	}
	if len(tx.Outputs) != 2 {
		t.Fatalf("Should have a payment and a change output, got %d.", len(tx.Outputs))
	}
	if tx.Outputs[0].Value != 50 || tx.Outputs[0].PubKeyHash != toAddr {
		t.Fatal("Should pay the requested value to the requested address.")
	}
	if tx.Outputs[1].Value != 20 || tx.Outputs[1].PubKeyHash != w.Address() {
		t.Fatal("Should return the surplus to the wallet's own address.")
	}

	// The transaction must carry valid unlock proofs for the spent outputs.
	if err := database.VerifyTx(tx, utxo); err != nil {
		t.Fatalf("Should produce a verifiable transaction: %v", err)
	}

	fee, err := tx.Fee(utxo)
	if err != nil {
		t.Fatalf("Should be able to compute the fee: %v", err)
	}
	if fee != 10 {
		t.Fatalf("Should pay exactly the requested fee: got %d, exp %d.", fee, 10)
	}
}

func Test_NoChangeOutput(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Should be able to generate a wallet: %v", err)
	}

	utxo := fund(w, 60)

	tx, err := w.CreateTransaction("someone", 50, 10, utxo)
	if err != nil {
		t.Fatalf("Should be able to create the transaction: %v", err)
	}

	if len(tx.Outputs) != 1 {
		t.Fatalf("Should not add a zero value change output, got %d outputs.", len(tx.Outputs))
	}
}

func Test_InsufficientFunds(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Should be able to generate a wallet: %v", err)
	}

	utxo := fund(w, 40)

	_, err = w.CreateTransaction("someone", 50, 10, utxo)
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("Should fail with the insufficient funds error: %v", err)
	}
}

func Test_SaveLoad(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Should be able to generate a wallet: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.ecdsa")
	if err := w.SaveToFile(path); err != nil {
		t.Fatalf("Should be able to save the key: %v", err)
	}

	loaded, err := wallet.LoadFromFile(path)
	if err != nil {
		t.Fatalf("Should be able to load the key back: %v", err)
	}

	if loaded.Address() != w.Address() {
		t.Fatalf("Should derive the same address: got %s, exp %s.", loaded.Address(), w.Address())
	}
}
