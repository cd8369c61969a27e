// Package wallet provides key management and the construction of signed
// transactions spending the keys unspent outputs.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/signature"
)

// ErrInsufficientFunds is returned when the wallets unspent outputs do not
// cover the requested amount plus the fee.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Wallet represents a single key pair and the address derived from it.
type Wallet struct {
	privateKey *ecdsa.PrivateKey
}

// Generate creates a wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	return &Wallet{privateKey: privateKey}, nil
}

// LoadFromFile reads the private key stored at the specified path.
func LoadFromFile(path string) (*Wallet, error) {
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Wallet{privateKey: privateKey}, nil
}

// SaveToFile writes the private key to the specified path. The file is
// created with owner only permissions.
func (w *Wallet) SaveToFile(path string) error {
	return crypto.SaveECDSA(path, w.privateKey)
}

// PrivateKey returns the underlying key for signing.
func (w *Wallet) PrivateKey() *ecdsa.PrivateKey {
	return w.privateKey
}

// Address returns the address the wallets outputs are locked to.
func (w *Wallet) Address() string {
	return signature.AddressFromPublicKey(&w.privateKey.PublicKey)
}

// CreateTransaction builds and signs a transaction sending value to the
// specified address, paying the specified fee. Unspent outputs are
// accumulated until they cover value plus fee, and any surplus is returned
// to the wallets own address as a change output.
func (w *Wallet) CreateTransaction(to string, value uint64, fee uint64, utxo *database.UTXOIndex) (database.Tx, error) {
	unspent := utxo.UnspentByAddress(w.Address())

	needed := value + fee

	var inputs []database.TxInput
	var gathered uint64
	for _, u := range unspent {
		inputs = append(inputs, database.TxInput{
			TxID:        u.OutPoint.TxID,
			OutputIndex: u.OutPoint.OutputIndex,
		})
		gathered += u.Output.Value
		if gathered >= needed {
			break
		}
	}

	if gathered < needed {
		return database.Tx{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, gathered, needed)
	}

	outputs := []database.TxOutput{
		{Value: value, PubKeyHash: to},
	}
	if change := gathered - needed; change > 0 {
		outputs = append(outputs, database.TxOutput{Value: change, PubKeyHash: w.Address()})
	}

	tx := database.NewTx(inputs, outputs)
	signedTx, err := tx.Sign(w.privateKey)
	if err != nil {
		return database.Tx{}, err
	}

	return signedTx, nil
}
