// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// tesserStamp makes it clear that a signature comes from the Tesser
// blockchain. Ethereum and Bitcoin do this as well, but differently.
var tesserStamp = []byte("\x19Tesser Signed Message:\n32")

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign uses the specified private key to sign the value. The signature is
// returned in the 65 byte [R|S|V] format, hex encoded.
func Sign(value any, privateKey *ecdsa.PrivateKey) (string, error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return "", err
	}

	// Check the signature validates against the public key it came from.
	pub := crypto.FromECDSAPub(&privateKey.PublicKey)
	if !crypto.VerifySignature(pub, data, sig[:crypto.RecoveryIDOffset]) {
		return "", errors.New("invalid signature produced")
	}

	return hexutil.Encode(sig), nil
}

// Verify checks the specified signature was produced over the value by the
// owner of the specified public key.
func Verify(value any, publicKey string, sig string) error {

	// Prepare the data the signature was produced over.
	data, err := stamp(value)
	if err != nil {
		return err
	}

	sigBytes, err := hexutil.Decode(sig)
	if err != nil {
		return errors.New("invalid signature encoding")
	}
	if len(sigBytes) != crypto.SignatureLength {
		return errors.New("invalid signature length")
	}

	pubBytes, err := hexutil.Decode(publicKey)
	if err != nil {
		return errors.New("invalid public key encoding")
	}

	if !crypto.VerifySignature(pubBytes, data, sigBytes[:crypto.RecoveryIDOffset]) {
		return errors.New("signature does not validate")
	}

	return nil
}

// PublicKeyString encodes a public key for use as an unlock proof.
func PublicKeyString(publicKey *ecdsa.PublicKey) string {
	return hexutil.Encode(crypto.FromECDSAPub(publicKey))
}

// AddressFromPublicKey derives the address for the specified public key:
// the RIPEMD160 hash of the SHA256 hash of the key, hex encoded.
func AddressFromPublicKey(publicKey *ecdsa.PublicKey) string {
	return AddressFromPublicKeyString(PublicKeyString(publicKey))
}

// AddressFromPublicKeyString derives the address for a public key already in
// its hex encoded unlock proof form.
func AddressFromPublicKeyString(publicKey string) string {
	pubBytes, err := hexutil.Decode(publicKey)
	if err != nil {
		return ""
	}

	sha := sha256.Sum256(pubBytes)

	rip := ripemd160.New()
	rip.Write(sha[:])

	return hex.EncodeToString(rip.Sum(nil))
}

// stamp returns a hash of 32 bytes that represents this value with the
// Tesser stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Hash the value into a 32 byte array. This will provide a data length
	// consistency with all values being signed.
	txHash := crypto.Keccak256(v)

	// Hash the stamp and the value hash together in a final 32 byte array
	// that represents the data. The stamp keeps signatures produced by this
	// blockchain unique to this blockchain.
	data := crypto.Keccak256(tesserStamp, txHash)

	return data, nil
}
