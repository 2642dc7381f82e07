// Package executor applies transactions to a bank. Transactions in a group
// hold non-conflicting locks, so the executor runs them in parallel with no
// coordination beyond a bounded worker count.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ardanlabs/pohchain/foundation/blockchain/bank"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Set of reasons a transaction can fail execution.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrUndeclaredAccount  = errors.New("account not declared")
	ErrUnauthorized       = errors.New("signer does not own account")
	ErrInvalidSignature   = errors.New("invalid signature")
)

// Status is the outcome of executing a transaction.
type Status uint8

// Set of execution outcomes.
const (
	Applied Status = iota + 1
	Failed
)

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of one transaction. Deltas hold the new versions of
// the accounts written when the transaction applied.
type Result struct {
	TxID   uuid.UUID          `json:"tx_id"`
	Slot   uint64             `json:"slot"`
	Status Status             `json:"status"`
	Deltas []database.Account `json:"deltas,omitempty"`
	Logs   []string           `json:"logs,omitempty"`
	Reason string             `json:"reason,omitempty"`
	Err    error              `json:"-"`
}

// =============================================================================

// Executor runs transactions against a bank with a bounded number of workers.
type Executor struct {
	workers int
}

// New constructs an executor using up to workers goroutines.
func New(workers int) *Executor {
	if workers < 1 {
		workers = 1
	}

	return &Executor{
		workers: workers,
	}
}

// Workers returns the number of goroutines used per call to Execute.
func (e *Executor) Workers() int {
	return e.workers
}

// Execute applies the transactions concurrently and returns one result per
// transaction in input order. The caller must hold locks for every
// transaction so their footprints don't conflict.
func (e *Executor) Execute(ctx context.Context, b *bank.Bank, txs []database.SignedTx) ([]Result, error) {
	results := make([]Result, len(txs))

	var g errgroup.Group
	g.SetLimit(e.workers)

	for i, tx := range txs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = Apply(b, tx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// =============================================================================

// Apply executes one transaction. The instructions run against a private copy
// of the declared accounts, and the copies are stored only when every
// instruction succeeds. The outcome depends only on the bank state and the
// transaction.
func Apply(b *bank.Bank, tx database.SignedTx) Result {
	fail := func(err error) Result {
		return Result{
			TxID:   tx.ID,
			Slot:   b.Slot(),
			Status: Failed,
			Reason: err.Error(),
			Err:    err,
		}
	}

	signer, err := tx.FromAccount()
	if err != nil {
		return fail(fmt.Errorf("%w: %s", ErrInvalidSignature, err))
	}

	work, err := load(b, tx.Tx)
	if err != nil {
		return fail(err)
	}

	if _, exists := work.writes[signer]; !exists {
		return fail(fmt.Errorf("%w: signer %s is not a declared writer", ErrUnauthorized, signer))
	}

	var logs []string
	for i, ins := range tx.Instructions {
		log, err := work.apply(signer, ins)
		if err != nil {
			return fail(fmt.Errorf("instruction %d: %w", i, err))
		}
		logs = append(logs, log)
	}

	deltas := work.changed()
	if err := b.Store(deltas...); err != nil {
		return fail(err)
	}

	result := Result{
		TxID:   tx.ID,
		Slot:   b.Slot(),
		Status: Applied,
		Deltas: deltas,
		Logs:   logs,
	}

	return result
}

// =============================================================================

// workspace is the private copy of the accounts a transaction declared.
type workspace struct {
	order  []database.AccountID
	writes map[database.AccountID]*database.Account
	dirty  map[database.AccountID]bool
}

// load copies the declared write accounts out of the bank. An account that
// does not exist yet starts empty and owned by itself. Read accounts only
// need to exist for the lock footprint so they are not copied.
func load(b *bank.Bank, tx database.Tx) (*workspace, error) {
	w := workspace{
		writes: make(map[database.AccountID]*database.Account, len(tx.Writes)),
		dirty:  make(map[database.AccountID]bool),
	}

	for _, id := range tx.Writes {
		account, err := b.Account(id)
		switch {
		case errors.Is(err, bank.ErrNotFound):
			account = database.NewAccount(id, 0)
		case err != nil:
			return nil, err
		}

		w.order = append(w.order, id)
		w.writes[id] = &account
	}

	return &w, nil
}

// owned returns the writable account after checking the signer owns it.
func (w *workspace) owned(signer database.AccountID, id database.AccountID) (*database.Account, error) {
	account, exists := w.writes[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUndeclaredAccount, id)
	}

	if account.Owner != signer {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, id)
	}

	return account, nil
}

func (w *workspace) apply(signer database.AccountID, ins database.Instruction) (string, error) {
	switch ins.Op {
	case database.OpTransfer:
		from, err := w.owned(signer, ins.From)
		if err != nil {
			return "", err
		}

		to, exists := w.writes[ins.To]
		if !exists {
			return "", fmt.Errorf("%w: %s", ErrUndeclaredAccount, ins.To)
		}

		if ins.From == ins.To || ins.Amount == 0 {
			return "", fmt.Errorf("%w: transfer of %d to self or of nothing", ErrInvalidInstruction, ins.Amount)
		}

		if from.Balance < ins.Amount {
			return "", fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, ins.From, from.Balance, ins.Amount)
		}

		if to.Balance > math.MaxUint64-ins.Amount {
			return "", fmt.Errorf("%w: balance overflow for %s", ErrInvalidInstruction, ins.To)
		}

		from.Balance -= ins.Amount
		to.Balance += ins.Amount
		w.dirty[ins.From] = true
		w.dirty[ins.To] = true

		return fmt.Sprintf("transfer %d from %s to %s", ins.Amount, ins.From, ins.To), nil

	case database.OpSetData:
		account, err := w.owned(signer, ins.From)
		if err != nil {
			return "", err
		}

		if len(ins.Data) > database.MaxDataSize {
			return "", fmt.Errorf("%w: data size %d", ErrInvalidInstruction, len(ins.Data))
		}

		account.Data = append([]byte(nil), ins.Data...)
		w.dirty[ins.From] = true

		return fmt.Sprintf("set %d bytes of data on %s", len(ins.Data), ins.From), nil

	case database.OpAssign:
		account, err := w.owned(signer, ins.From)
		if err != nil {
			return "", err
		}

		if !ins.To.IsAccountID() {
			return "", fmt.Errorf("%w: invalid owner %q", ErrInvalidInstruction, ins.To)
		}

		account.Owner = ins.To
		w.dirty[ins.From] = true

		return fmt.Sprintf("assign %s to %s", ins.From, ins.To), nil
	}

	return "", fmt.Errorf("%w: unknown op %d", ErrInvalidInstruction, ins.Op)
}

// changed returns the modified accounts with their version bumped, in
// declaration order.
func (w *workspace) changed() []database.Account {
	var out []database.Account
	for _, id := range w.order {
		if w.dirty[id] {
			account := *w.writes[id]
			account.Version++
			out = append(out, account)
		}
	}
	return out
}
