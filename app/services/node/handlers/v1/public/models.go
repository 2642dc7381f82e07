package public

import (
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/executor"
	"github.com/ardanlabs/pohchain/foundation/blockchain/forktree"
	"github.com/google/uuid"
)

type account struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name,omitempty"`
	Balance uint64             `json:"balance"`
	Owner   database.AccountID `json:"owner"`
	Data    []byte             `json:"data,omitempty"`
	Version uint64             `json:"version"`
}

type accountInfo struct {
	Slot     uint64    `json:"slot"`
	Accounts []account `json:"accounts"`
}

type tx struct {
	ID           uuid.UUID              `json:"id"`
	FromAccount  database.AccountID     `json:"from"`
	FromName     string                 `json:"from_name,omitempty"`
	RecentHash   database.Hash          `json:"recent_hash"`
	Reads        []database.AccountID   `json:"reads"`
	Writes       []database.AccountID   `json:"writes"`
	Instructions []database.Instruction `json:"instructions"`
	Sig          string                 `json:"sig"`
}

type entry struct {
	NumHashes    uint64        `json:"num_hashes"`
	Hash         database.Hash `json:"hash"`
	Transactions []tx          `json:"transactions,omitempty"`
}

type slot struct {
	Index      uint64             `json:"index"`
	Parent     uint64             `json:"parent"`
	Leader     database.AccountID `json:"leader"`
	LeaderName string             `json:"leader_name,omitempty"`
	Status     forktree.Status    `json:"status"`
	LastHash   database.Hash      `json:"last_hash"`
	Entries    []entry            `json:"entries"`
}

type recent struct {
	Slot uint64        `json:"slot"`
	Hash database.Hash `json:"hash"`
}

type leaders struct {
	Epoch   uint64               `json:"epoch"`
	Seed    database.Hash        `json:"seed"`
	Leaders []database.AccountID `json:"leaders"`
}

type txResult struct {
	executor.Result
	SlotStatus forktree.Status `json:"slot_status"`
}
