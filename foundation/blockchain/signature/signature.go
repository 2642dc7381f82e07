// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// pohID is an arbitrary number for signing messages. This will make it
// clear that the signature comes from the PoH chain.
// Ethereum and Bitcoin do this as well, but they use the value of 27.
const pohID = 29

// Length is the number of bytes of a serialized [R|S|V] signature.
const Length = crypto.SignatureLength

// ErrInvalidSignature is returned when signature values don't conform to
// our standards or don't match the data.
var ErrInvalidSignature = errors.New("invalid signature")

// =============================================================================

// Sign uses the specified private key to sign the message.
func Sign(msg []byte, privateKey *ecdsa.PrivateKey) (v, r, s *big.Int, err error) {
	data := stamp(msg)

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, nil, nil, err
	}

	// Extract the public key from the data and the signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, nil, nil, err
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return nil, nil, nil, ErrInvalidSignature
	}

	// Convert the 65 byte signature into the [R|S|V] format.
	v, r, s = toSignatureValues(sig)

	return v, r, s, nil
}

// VerifySignature verifies the signature conforms to our standards.
func VerifySignature(v, r, s *big.Int) error {
	if v == nil || r == nil || s == nil {
		return ErrInvalidSignature
	}

	// Check the recovery id is either 0 or 1.
	uintV := v.Uint64() - pohID
	if uintV != 0 && uintV != 1 {
		return errors.New("invalid recovery id")
	}

	// Check the signature values are valid.
	if !crypto.ValidateSignatureValues(byte(uintV), r, s, false) {
		return errors.New("invalid signature values")
	}

	return nil
}

// FromAddress extracts the address for the account that signed the message.
func FromAddress(msg []byte, v, r, s *big.Int) (string, error) {
	if err := VerifySignature(v, r, s); err != nil {
		return "", err
	}

	// NOTE: If the same exact message for the given signature is not provided
	// we will get the wrong from address. There is no way to check this on
	// the node since we don't have a copy of the public key used. The public
	// key is being extracted from the message and signature.

	data := stamp(msg)

	// Convert the [R|S|V] format into the original 65 bytes.
	sig := ToSignatureBytes(v, r, s)

	// Capture the public key associated with this data and signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", err
	}

	// Extract the account address from the public key.
	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// SignatureString returns the signature as a string.
func SignatureString(v, r, s *big.Int) string {
	return hexutil.Encode(ToSignatureBytesWithPohID(v, r, s))
}

// ToVRSFromBytes converts a 65 byte signature that still carries the
// recovery id offset into its R, S and V parts.
func ToVRSFromBytes(sig []byte) (v, r, s *big.Int, err error) {
	if len(sig) != Length {
		return nil, nil, nil, ErrInvalidSignature
	}

	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes([]byte{sig[64]})

	return v, r, s, nil
}

// ToVRSFromHexSignature converts a hex representation of the signature into
// its R, S and V parts.
func ToVRSFromHexSignature(sigStr string) (v, r, s *big.Int, err error) {
	sig, err := hexutil.Decode(sigStr)
	if err != nil {
		return nil, nil, nil, err
	}

	return ToVRSFromBytes(sig)
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this message with
// the PoH stamp embedded into the final hash.
func stamp(msg []byte) []byte {

	// Hash the message into a 32 byte array. This will provide
	// a data length consistency with all data.
	msgHash := crypto.Keccak256(msg)

	// This stamp is used so signatures we produce when signing data
	// are always unique to the PoH chain.
	stamp := []byte("\x19PoH Signed Message:\n32")

	return crypto.Keccak256(stamp, msgHash)
}

// toSignatureValues converts the signature into the r, s, v values.
func toSignatureValues(sig []byte) (v, r, s *big.Int) {
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes([]byte{sig[64] + pohID})

	return v, r, s
}

// ToSignatureBytes converts the r, s, v values into a slice of bytes
// with the removal of the pohID.
func ToSignatureBytes(v, r, s *big.Int) []byte {
	sig := make([]byte, Length)

	// FillBytes left pads, which keeps short r and s values aligned.
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])

	sig[64] = byte(v.Uint64() - pohID)

	return sig
}

// ToSignatureBytesWithPohID converts the r, s, v values into a slice of bytes
// keeping the PoH id.
func ToSignatureBytesWithPohID(v, r, s *big.Int) []byte {
	sig := ToSignatureBytes(v, r, s)
	sig[64] = byte(v.Uint64())

	return sig
}
