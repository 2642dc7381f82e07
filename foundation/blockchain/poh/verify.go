package poh

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"golang.org/x/sync/errgroup"
)

// Set of errors returned by entry verification.
var (
	ErrInvalidEntry = errors.New("invalid entry")
	ErrHashMismatch = errors.New("hash mismatch")
)

// VerifyError identifies the entry that failed verification.
type VerifyError struct {
	Index int
	Err   error
}

// Error implements the error interface.
func (ve *VerifyError) Error() string {
	return fmt.Sprintf("entry %d: %s", ve.Index, ve.Err)
}

// Unwrap allows errors.Is to match the underlying sentinel.
func (ve *VerifyError) Unwrap() error {
	return ve.Err
}

// =============================================================================

// VerifyEntry recomputes a single entry from the prior hash. The work is
// num_hashes sequential hashes.
func VerifyEntry(prev database.Hash, entry database.Entry) error {
	if entry.NumHashes == 0 {
		return fmt.Errorf("%w: num_hashes is zero", ErrInvalidEntry)
	}

	hash := prev
	for range entry.NumHashes - 1 {
		hash = sha256.Sum256(hash[:])
	}

	switch {
	case entry.IsTick():
		hash = sha256.Sum256(hash[:])

	default:
		digest, err := BatchDigest(entry.Transactions)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidEntry, err)
		}
		hash = database.HashData(hash[:], digest[:])
	}

	if hash != entry.Hash {
		return fmt.Errorf("%w: got %s, exp %s", ErrHashMismatch, hash, entry.Hash)
	}

	return nil
}

// Verify checks the entries form a chain starting at the specified hash.
func Verify(start database.Hash, entries []database.Entry) error {
	prev := start
	for i, entry := range entries {
		if err := VerifyEntry(prev, entry); err != nil {
			return &VerifyError{Index: i, Err: err}
		}
		prev = entry.Hash
	}

	return nil
}

// VerifyParallel performs the same checks as Verify using up to workers
// goroutines. Each entry only depends on the claimed hash of the entry before
// it, so entries are checked independently. The lowest failing index is
// reported.
func VerifyParallel(ctx context.Context, start database.Hash, entries []database.Entry, workers int) error {
	if workers < 1 {
		workers = 1
	}

	errs := make([]error, len(entries))

	var g errgroup.Group
	g.SetLimit(workers)

	for i := range entries {
		prev := start
		if i > 0 {
			prev = entries[i-1].Hash
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			errs[i] = VerifyEntry(prev, entries[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i, err := range errs {
		if err != nil {
			return &VerifyError{Index: i, Err: err}
		}
	}

	return nil
}
