// Package validator maintains the set of staked validators that vote on
// slots and take turns leading them.
package validator

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
)

// Set of errors returned when building a validator set.
var (
	ErrEmptySet           = errors.New("empty validator set")
	ErrDuplicateValidator = errors.New("duplicate validator")
	ErrInvalidStake       = errors.New("invalid stake")
)

// Validator is an account with stake that can lead slots and vote.
type Validator struct {
	Account database.AccountID `json:"account"`
	Stake   uint64             `json:"stake"`
}

// Set is an immutable set of validators ordered by account.
type Set struct {
	validators []Validator
	byAccount  map[database.AccountID]uint64
	total      uint64
}

// NewSet constructs a validator set. Every validator needs a positive stake.
func NewSet(validators []Validator) (*Set, error) {
	if len(validators) == 0 {
		return nil, ErrEmptySet
	}

	set := Set{
		validators: make([]Validator, 0, len(validators)),
		byAccount:  make(map[database.AccountID]uint64, len(validators)),
	}

	for _, v := range validators {
		id, err := database.ToAccountID(string(v.Account))
		if err != nil {
			return nil, fmt.Errorf("validator %q: %w", v.Account, err)
		}

		if v.Stake == 0 {
			return nil, fmt.Errorf("%w: %s has no stake", ErrInvalidStake, id)
		}

		if _, exists := set.byAccount[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateValidator, id)
		}

		if set.total > math.MaxUint64-v.Stake {
			return nil, fmt.Errorf("%w: total stake overflow", ErrInvalidStake)
		}

		set.byAccount[id] = v.Stake
		set.validators = append(set.validators, Validator{Account: id, Stake: v.Stake})
		set.total += v.Stake
	}

	sort.Slice(set.validators, func(i, j int) bool {
		return set.validators[i].Account < set.validators[j].Account
	})

	return &set, nil
}

// Len returns the number of validators.
func (s *Set) Len() int {
	return len(s.validators)
}

// Total returns the sum of every validator's stake.
func (s *Set) Total() uint64 {
	return s.total
}

// Contains reports whether the account is a validator.
func (s *Set) Contains(id database.AccountID) bool {
	_, exists := s.byAccount[id]
	return exists
}

// Stake returns the stake of the account, zero for non validators.
func (s *Set) Stake(id database.AccountID) uint64 {
	return s.byAccount[id]
}

// Sorted returns a copy of the validators ordered by account.
func (s *Set) Sorted() []Validator {
	return append([]Validator(nil), s.validators...)
}

// Quorum returns the smallest stake strictly greater than num/den of the
// total stake.
func (s *Set) Quorum(num uint64, den uint64) uint64 {
	if den == 0 {
		return s.total
	}

	q := new(big.Int).SetUint64(s.total)
	q.Mul(q, new(big.Int).SetUint64(num))
	q.Div(q, new(big.Int).SetUint64(den))
	q.Add(q, big.NewInt(1))

	if !q.IsUint64() || q.Uint64() > s.total {
		return s.total
	}

	return q.Uint64()
}
