package database

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// addressLength is the number of bytes in an account address.
const addressLength = common.AddressLength

// Account represents information stored in a bank for an individual account.
// Every write produces a new version, the previous value is never mutated.
type Account struct {
	ID      AccountID `json:"id"`
	Balance uint64    `json:"balance"`
	Owner   AccountID `json:"owner"`
	Data    []byte    `json:"data,omitempty"`
	Version uint64    `json:"version"`
}

// NewAccount constructs a new account value for use. An account owns itself
// until it is assigned.
func NewAccount(accountID AccountID, balance uint64) Account {
	return Account{
		ID:      accountID,
		Balance: balance,
		Owner:   accountID,
	}
}

// Clone returns a deep copy so the data blob is never shared between versions.
func (a Account) Clone() Account {
	if a.Data != nil {
		data := make([]byte, len(a.Data))
		copy(data, a.Data)
		a.Data = data
	}

	return a
}

// Encode returns the exact binary form of the account used when hashing
// bank state.
func (a Account) Encode() []byte {
	var e encoder
	e.accountState(a)
	return e.buf
}

// =============================================================================

// AccountID represents an account id that is used to sign transactions and is
// associated with transactions on the blockchain.
type AccountID string

// ToAccountID converts a hex-encoded string to an account and validates the
// hex-encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	a := AccountID(hex)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	// Normalize to the checksum format so map keys are stable.
	return AccountID(common.HexToAddress(hex).Hex()), nil
}

// PublicKeyToAccountID converts the public key to an account value.
func PublicKeyToAccountID(pk ecdsa.PublicKey) AccountID {
	return AccountID(crypto.PubkeyToAddress(pk).String())
}

// IsAccountID verifies whether the underlying data represents a valid
// hex-encoded account.
func (a AccountID) IsAccountID() bool {
	if has0xPrefix(a) {
		a = a[2:]
	}

	return len(a) == 2*addressLength && isHex(a)
}

// bytes returns the 20 byte address form of the account.
func (a AccountID) bytes() [addressLength]byte {
	return common.HexToAddress(string(a))
}

// normalize returns the account id in checksum format.
func (a AccountID) normalize() AccountID {
	b := a.bytes()
	return accountIDFromBytes(b[:])
}

// accountIDFromBytes converts a 20 byte address into an account id.
func accountIDFromBytes(b []byte) AccountID {
	return AccountID(common.BytesToAddress(b).Hex())
}

// =============================================================================

// has0xPrefix validates the account starts with a 0x.
func has0xPrefix(a AccountID) bool {
	return len(a) >= 2 && a[0] == '0' && (a[1] == 'x' || a[1] == 'X')
}

// isHex validates whether each byte is valid hexadecimal string.
func isHex(a AccountID) bool {
	if len(a)%2 != 0 {
		return false
	}

	for _, c := range []byte(a) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

// isHexCharacter returns bool of c being a valid hexadecimal.
func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
