package database

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/tessercoin/tesser/foundation/blockchain/signature"
)

// TxInput references an output produced by a prior transaction and carries
// the unlock proof for it.
type TxInput struct {
	TxID        string `json:"tx_id"`        // Transaction that produced the referenced output.
	OutputIndex uint32 `json:"output_index"` // Index of the output inside that transaction.
	PubKey      string `json:"pub_key"`      // Public key whose hash must match the output's lock.
	Sig         string `json:"sig"`          // Signature over the transaction digest.
}

// OutPoint identifies the output the input references.
func (in TxInput) OutPoint() OutPoint {
	return OutPoint{TxID: in.TxID, OutputIndex: in.OutputIndex}
}

// TxOutput represents an amount locked to the hash of a public key.
type TxOutput struct {
	Value      uint64 `json:"value"`
	PubKeyHash string `json:"pub_key_hash"`
}

// Tx is the transactional unit moving value between addresses. The ID is the
// hash of the transaction with the unlock proofs blanked, so identity is
// stable once the inputs are chosen and signatures can be attached after.
type Tx struct {
	ID      string     `json:"id"`
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
}

// NewTx constructs a transaction from the specified inputs and outputs and
// computes its identity.
func NewTx(inputs []TxInput, outputs []TxOutput) Tx {
	tx := Tx{
		Inputs:  inputs,
		Outputs: outputs,
	}
	tx.ID = signature.Hash(tx.canonical())

	return tx
}

// NewCoinbaseTx constructs the reward minting transaction for a block. The
// value is the fixed subsidy plus the fees collected from the block.
func NewCoinbaseTx(beneficiaryID string, value uint64) Tx {
	return NewTx(nil, []TxOutput{{Value: value, PubKeyHash: beneficiaryID}})
}

// IsCoinbase reports whether the transaction mints value rather than
// spending prior outputs.
func (tx Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 0 && len(tx.Outputs) == 1
}

// Sign attaches the unlock proof to every input using the specified private
// key. The digest being signed excludes the proofs themselves.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	sig, err := signature.Sign(tx.canonical(), privateKey)
	if err != nil {
		return Tx{}, err
	}

	pubKey := signature.PublicKeyString(&privateKey.PublicKey)

	signed := tx
	signed.Inputs = make([]TxInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		in.PubKey = pubKey
		in.Sig = sig
		signed.Inputs[i] = in
	}

	return signed, nil
}

// ValidateStructure checks the transaction is well formed: a coinbase has no
// inputs and exactly one output, anything else has at least one input and
// one output and doesn't reference the same output twice.
func (tx Tx) ValidateStructure() error {
	if tx.ID != signature.Hash(tx.canonical()) {
		return NewValidationError("transaction id does not match contents")
	}

	if tx.IsCoinbase() {
		return nil
	}

	if len(tx.Inputs) == 0 {
		return NewValidationError("transaction has no inputs")
	}
	if len(tx.Outputs) == 0 {
		return NewValidationError("transaction has no outputs")
	}

	seen := make(map[OutPoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		op := in.OutPoint()
		if _, exists := seen[op]; exists {
			return NewValidationError("duplicate reference to output %s:%d", op.TxID, op.OutputIndex)
		}
		seen[op] = struct{}{}
	}

	return nil
}

// Fee returns the implicit fee: the excess of resolved input value over
// output value. The inputs must all resolve in the specified unspent set.
func (tx Tx) Fee(utxo *UTXOIndex) (uint64, error) {
	var inValue uint64
	for _, in := range tx.Inputs {
		out, exists := utxo.Resolve(in.OutPoint())
		if !exists {
			return 0, fmt.Errorf("input %s:%d: %w", in.TxID, in.OutputIndex, ErrUnknownOutput)
		}
		inValue += out.Value
	}

	var outValue uint64
	for _, out := range tx.Outputs {
		outValue += out.Value
	}

	if inValue < outValue {
		return 0, NewValidationError("insufficient input value, in %d, out %d", inValue, outValue)
	}

	return inValue - outValue, nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%.16s: in[%d] out[%d]", tx.ID, len(tx.Inputs), len(tx.Outputs))
}

// canonical returns a copy of the transaction with the identity and unlock
// proofs blanked. Both the ID and the signing digest are computed over this
// form.
func (tx Tx) canonical() Tx {
	c := tx
	c.ID = ""
	c.Inputs = make([]TxInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		in.PubKey = ""
		in.Sig = ""
		c.Inputs[i] = in
	}

	return c
}

// =============================================================================
// Merkle tree support.

// Hash implements the merkle Hashable interface for providing a hash of a
// transaction.
func (tx Tx) Hash() ([]byte, error) {
	return hex.DecodeString(signature.Hash(tx.canonical())[2:])
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions.
func (tx Tx) Equals(otherTx Tx) bool {
	return tx.ID == otherTx.ID
}

// =============================================================================

// VerifyTx checks every input of the transaction against the specified
// unspent set: the referenced output must exist, the supplied public key
// must hash to the output's lock and the signature must validate over the
// transaction digest.
func VerifyTx(tx Tx, utxo *UTXOIndex) error {
	if err := tx.ValidateStructure(); err != nil {
		return err
	}

	if tx.IsCoinbase() {
		return nil
	}

	digestValue := tx.canonical()

	for _, in := range tx.Inputs {
		out, exists := utxo.Resolve(in.OutPoint())
		if !exists {
			return fmt.Errorf("input %s:%d: %w", in.TxID, in.OutputIndex, ErrUnknownOutput)
		}

		if signature.AddressFromPublicKeyString(in.PubKey) != out.PubKeyHash {
			return fmt.Errorf("input %s:%d: public key does not match lock: %w", in.TxID, in.OutputIndex, ErrInvalidSignature)
		}

		if err := signature.Verify(digestValue, in.PubKey, in.Sig); err != nil {
			return fmt.Errorf("input %s:%d: %w", in.TxID, in.OutputIndex, ErrInvalidSignature)
		}
	}

	// The fee computation also checks sum(inputs) >= sum(outputs).
	if _, err := tx.Fee(utxo); err != nil {
		return err
	}

	return nil
}
