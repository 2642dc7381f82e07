package database

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ardanlabs/pohchain/foundation/blockchain/signature"
)

// Vote is a validator's statement that it replayed a slot and found it valid.
// Hash is the last entry hash of the slot being voted for.
type Vote struct {
	Voter     AccountID `json:"voter" validate:"required"`
	Slot      uint64    `json:"slot"`
	Hash      Hash      `json:"hash"`
	Timestamp uint64    `json:"timestamp"`
}

// NewVote constructs a vote for a slot.
func NewVote(voter AccountID, slot uint64, hash Hash, timestamp uint64) Vote {
	return Vote{
		Voter:     voter,
		Slot:      slot,
		Hash:      hash,
		Timestamp: timestamp,
	}
}

// SigningBytes returns the exact bytes covered by the signature.
func (v Vote) SigningBytes() []byte {
	var e encoder
	e.vote(v)
	return e.buf
}

// Sign uses the specified private key to sign the vote.
func (v Vote) Sign(privateKey *ecdsa.PrivateKey) (SignedVote, error) {
	sv, sr, ss, err := signature.Sign(v.SigningBytes(), privateKey)
	if err != nil {
		return SignedVote{}, err
	}

	v.Voter = v.Voter.normalize()

	return SignedVote{Vote: v, V: sv, R: sr, S: ss}, nil
}

// SignedVote is a vote with the voter's signature.
type SignedVote struct {
	Vote
	V *big.Int `json:"v" validate:"required"`
	R *big.Int `json:"r" validate:"required"`
	S *big.Int `json:"s" validate:"required"`
}

// FromAccount extracts the account id that signed the vote.
func (v SignedVote) FromAccount() (AccountID, error) {
	address, err := signature.FromAddress(v.SigningBytes(), v.V, v.R, v.S)
	return AccountID(address), err
}

// Encode returns the exact binary form of the signed vote.
func (v SignedVote) Encode() []byte {
	var e encoder
	e.vote(v.Vote)
	e.signature(v.V, v.R, v.S)
	return e.buf
}

// DecodeVote parses the binary form of a signed vote.
func DecodeVote(data []byte) (SignedVote, error) {
	d := decoder{buf: data}
	v := d.vote()
	sv, sr, ss := d.signature()
	if err := d.finish(); err != nil {
		return SignedVote{}, err
	}
	return SignedVote{Vote: v, V: sv, R: sr, S: ss}, nil
}
