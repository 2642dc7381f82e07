package v1

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/forktree"
	"github.com/ardanlabs/pohchain/foundation/blockchain/poh"
	"github.com/ardanlabs/pohchain/foundation/blockchain/state"
)

// NewStateError wraps an error returned by the state package with the HTTP
// status a client should see for it. Errors the state package doesn't
// define are left alone so they surface as internal errors.
func NewStateError(err error) error {
	switch {
	case errors.Is(err, poh.ErrInvalidEntry):
		return NewRequestError(err, http.StatusBadRequest)

	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, forktree.ErrUnknownSlot):
		return NewRequestError(err, http.StatusNotFound)

	case errors.Is(err, state.ErrDuplicateID),
		errors.Is(err, forktree.ErrDuplicateSlot):
		return NewRequestError(err, http.StatusConflict)

	case errors.Is(err, state.ErrUnavailable),
		errors.Is(err, forktree.ErrFinalized),
		errors.Is(err, forktree.ErrStaleVote):
		return NewRequestError(err, http.StatusGone)

	case errors.Is(err, state.ErrInvalidSignature),
		errors.Is(err, state.ErrStaleReference),
		errors.Is(err, state.ErrInvalidTransaction),
		errors.Is(err, state.ErrWrongLeader),
		errors.Is(err, state.ErrSlotMissed),
		errors.Is(err, state.ErrNotFrozen),
		errors.Is(err, poh.ErrHashMismatch),
		errors.Is(err, forktree.ErrSlotDead),
		errors.Is(err, forktree.ErrSlotNotClosed),
		errors.Is(err, forktree.ErrUnknownVoter),
		errors.Is(err, forktree.ErrInvalidVoteSignature),
		errors.Is(err, forktree.ErrVoteHashMismatch):
		return NewRequestError(err, http.StatusBadRequest)
	}

	return err
}
