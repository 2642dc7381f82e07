// Package leader assigns a leader to every slot. Every node computes the same
// assignment from the validator set and a seed hash, so no coordination is
// needed.
package leader

import (
	"encoding/binary"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/validator"
)

// EpochOf returns the epoch a slot belongs to.
func EpochOf(slot uint64, slotsPerEpoch uint64) uint64 {
	if slotsPerEpoch == 0 {
		return 0
	}
	return slot / slotsPerEpoch
}

// EpochStart returns the first slot of the epoch.
func EpochStart(epoch uint64, slotsPerEpoch uint64) uint64 {
	return epoch * slotsPerEpoch
}

// =============================================================================

// Schedule is the leader assignment for one epoch.
type Schedule struct {
	seed          database.Hash
	epoch         uint64
	slotsPerEpoch uint64
	validators    []validator.Validator
	total         uint64
}

// NewSchedule constructs the schedule for an epoch.
func NewSchedule(set *validator.Set, seed database.Hash, epoch uint64, slotsPerEpoch uint64) *Schedule {
	return &Schedule{
		seed:          seed,
		epoch:         epoch,
		slotsPerEpoch: slotsPerEpoch,
		validators:    set.Sorted(),
		total:         set.Total(),
	}
}

// Epoch returns the epoch the schedule covers.
func (s *Schedule) Epoch() uint64 {
	return s.epoch
}

// Seed returns the hash the schedule was derived from.
func (s *Schedule) Seed() database.Hash {
	return s.seed
}

// Covers reports whether the slot belongs to the schedule's epoch.
func (s *Schedule) Covers(slot uint64) bool {
	return EpochOf(slot, s.slotsPerEpoch) == s.epoch
}

// Leader returns the validator that leads the slot. The pick is weighted by
// stake: a value derived from the seed, epoch and slot, modulo the total
// stake, lands in one validator's range of the sorted list.
func (s *Schedule) Leader(slot uint64) database.AccountID {
	data := make([]byte, 0, 16)
	data = binary.LittleEndian.AppendUint64(data, s.epoch)
	data = binary.LittleEndian.AppendUint64(data, slot)

	h := database.HashData(s.seed[:], data)
	pick := binary.LittleEndian.Uint64(h[:8]) % s.total

	for _, v := range s.validators {
		if pick < v.Stake {
			return v.Account
		}
		pick -= v.Stake
	}

	return s.validators[len(s.validators)-1].Account
}

// Leaders returns the leader of every slot in the epoch in slot order.
func (s *Schedule) Leaders() []database.AccountID {
	start := EpochStart(s.epoch, s.slotsPerEpoch)

	out := make([]database.AccountID, s.slotsPerEpoch)
	for i := range out {
		out[i] = s.Leader(start + uint64(i))
	}

	return out
}
