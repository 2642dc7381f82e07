// Package genesis maintains access to the genesis file. The genesis file
// holds the starting balances, the validator stakes and the consensus
// constants every node must agree on.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/validator"
)

// Set of defaults applied to zero values in the genesis file.
const (
	DefaultTickDuration     = 10 * time.Millisecond
	DefaultHashesPerTick    = 1000
	DefaultTicksPerSlot     = 40
	DefaultSlotsPerEpoch    = 432
	DefaultMaxTxPerEntry    = 64
	DefaultFinalityDepth    = 32
	DefaultSupermajorityNum = 2
	DefaultSupermajorityDen = 3
	DefaultMaxRecentAge     = 150
)

// Genesis represents the genesis file.
type Genesis struct {
	Date             time.Time             `json:"date"`
	ChainID          uint16                `json:"chain_id"`          // The chain id represents an unique id for this running instance.
	TickDuration     time.Duration         `json:"tick_duration"`     // Wall clock time between ticks.
	HashesPerTick    uint64                `json:"hashes_per_tick"`   // Sequential hashes performed per tick.
	TicksPerSlot     uint64                `json:"ticks_per_slot"`    // Time budget of a slot in ticks.
	SlotsPerEpoch    uint64                `json:"slots_per_epoch"`   // Slots covered by one leader schedule.
	MaxTxPerEntry    uint16                `json:"max_tx_per_entry"`  // The maximum number of transactions in one entry.
	FinalityDepth    uint64                `json:"finality_depth"`    // Confirmed descendants required before a slot is finalized.
	SupermajorityNum uint64                `json:"supermajority_num"` // Stake strictly above num/den confirms a slot.
	SupermajorityDen uint64                `json:"supermajority_den"` // Denominator of the supermajority fraction.
	MaxRecentAge     uint64                `json:"max_recent_age"`    // Slots a transaction's recent hash stays valid for.
	Balances         map[string]uint64     `json:"balances"`          // Starting balances.
	Validators       []validator.Validator `json:"validators"`        // Validator stakes.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	genesis.applyDefaults()

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis values are usable.
func (g Genesis) Validate() error {
	if g.SupermajorityDen == 0 || g.SupermajorityNum >= g.SupermajorityDen {
		return fmt.Errorf("invalid supermajority %d/%d", g.SupermajorityNum, g.SupermajorityDen)
	}

	if len(g.Validators) == 0 {
		return errors.New("no validators")
	}

	for account := range g.Balances {
		if !database.AccountID(account).IsAccountID() {
			return fmt.Errorf("invalid balance account %q", account)
		}
	}

	return nil
}

// Hash returns the hash of the genesis file contents. It seeds the first
// leader schedules and starts the PoH chain.
func (g Genesis) Hash() database.Hash {
	data, _ := json.Marshal(g)
	return database.HashData(data)
}

// AccountBalances returns the starting balances keyed by normalized account.
func (g Genesis) AccountBalances() map[database.AccountID]uint64 {
	out := make(map[database.AccountID]uint64, len(g.Balances))
	for account, balance := range g.Balances {
		id, err := database.ToAccountID(account)
		if err != nil {
			continue
		}
		out[id] += balance
	}
	return out
}

// ValidatorSet builds the validator set from the stakes.
func (g Genesis) ValidatorSet() (*validator.Set, error) {
	return validator.NewSet(g.Validators)
}

// SlotDuration returns the wall clock budget of a slot.
func (g Genesis) SlotDuration() time.Duration {
	return g.TickDuration * time.Duration(g.TicksPerSlot)
}

func (g *Genesis) applyDefaults() {
	if g.TickDuration == 0 {
		g.TickDuration = DefaultTickDuration
	}
	if g.HashesPerTick == 0 {
		g.HashesPerTick = DefaultHashesPerTick
	}
	if g.TicksPerSlot == 0 {
		g.TicksPerSlot = DefaultTicksPerSlot
	}
	if g.SlotsPerEpoch == 0 {
		g.SlotsPerEpoch = DefaultSlotsPerEpoch
	}
	if g.MaxTxPerEntry == 0 {
		g.MaxTxPerEntry = DefaultMaxTxPerEntry
	}
	if g.FinalityDepth == 0 {
		g.FinalityDepth = DefaultFinalityDepth
	}
	if g.SupermajorityNum == 0 && g.SupermajorityDen == 0 {
		g.SupermajorityNum = DefaultSupermajorityNum
		g.SupermajorityDen = DefaultSupermajorityDen
	}
	if g.MaxRecentAge == 0 {
		g.MaxRecentAge = DefaultMaxRecentAge
	}
}

// WithDefaults returns a copy with every zero constant replaced by its
// default.
func (g Genesis) WithDefaults() Genesis {
	g.applyDefaults()
	return g
}
