package database

import (
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// HashLength is the number of bytes in a hash.
const HashLength = sha256.Size

// Hash represents the 32 byte sha256 digest used across the chain.
type Hash [HashLength]byte

// ZeroHash represents a hash code of zeros.
var ZeroHash Hash

// ToHash converts a hex-encoded string into a hash.
func ToHash(hex string) (Hash, error) {
	b, err := hexutil.Decode(hex)
	if err != nil {
		return Hash{}, err
	}

	if len(b) != HashLength {
		return Hash{}, fmt.Errorf("invalid hash length, got %d, exp %d", len(b), HashLength)
	}

	var h Hash
	copy(h[:], b)

	return h, nil
}

// HashData returns the sha256 digest over the concatenation of data.
func HashData(data ...[]byte) Hash {
	sh := sha256.New()
	for _, d := range data {
		sh.Write(d)
	}

	var h Hash
	sh.Sum(h[:0])

	return h
}

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String implements the fmt.Stringer interface.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *Hash) UnmarshalText(text []byte) error {
	v, err := ToHash(string(text))
	if err != nil {
		return err
	}

	*h = v
	return nil
}
