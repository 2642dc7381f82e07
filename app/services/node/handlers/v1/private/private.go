// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ardanlabs/pohchain/business/sys/validate"
	v1 "github.com/ardanlabs/pohchain/business/web/v1"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/forktree"
	"github.com/ardanlabs/pohchain/foundation/blockchain/peer"
	"github.com/ardanlabs/pohchain/foundation/blockchain/state"
	"github.com/ardanlabs/pohchain/foundation/nameservice"
	"github.com/ardanlabs/pohchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log         *zap.SugaredLogger
	State       *state.State
	NS          *nameservice.NameService
	CurrentSlot func() uint64
}

// SubmitNodeTransaction adds a transaction shared by a peer to the pending
// queue.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a signed transaction.
	var tx database.SignedTx
	if err := web.Decode(r, &tx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(tx); err != nil {
		return err
	}

	// Ask the state package to add this transaction to the queue and perform
	// any other business logic.
	h.Log.Infow("add tran", "traceid", v.TraceID, "tx", tx.ID, "recent", tx.RecentHash)
	if err := h.State.SubmitNodeTransaction(tx); err != nil {
		return v1.NewStateError(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// ProposeSlot takes a slot closed by its leader, replays it and if that
// passes, votes on it. The slot arrives in its binary form or as JSON.
func (h Handlers) ProposeSlot(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var slot database.Slot

	switch r.Header.Get("Content-Type") {
	case "application/octet-stream":
		data, err := web.ReadAll(r)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}

		if slot, err = database.DecodeSlot(data); err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}

	default:
		if err := web.Decode(r, &slot); err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
	}

	// Ask the state package to verify and replay the proposed slot. A slot
	// failing verification is marked dead and never voted on.
	if err := h.State.ReplaySlot(ctx, slot); err != nil {
		if errors.Is(err, forktree.ErrDuplicateSlot) {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}
		return v1.NewStateError(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitVote records a vote shared by a validator.
func (h Handlers) SubmitVote(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var vote database.SignedVote
	if err := web.Decode(r, &vote); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(vote); err != nil {
		return err
	}

	if err := h.State.AddVote(vote); err != nil {
		return v1.NewStateError(err)
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// SubmitPeer is called by a node so they can be added to the known peer list.
func (h Handlers) SubmitPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if pr.Host == "" {
		return v1.NewRequestError(errors.New("host required"), http.StatusBadRequest)
	}

	if !h.State.AddKnownPeer(pr) {
		h.Log.Infow("adding peer", "traceid", v.TraceID, "host", pr.Host)
	}

	return web.Respond(ctx, w, nil, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var current uint64
	if h.CurrentSlot != nil {
		current = h.CurrentSlot()
	}

	return web.Respond(ctx, w, h.State.RetrieveStatus(current), http.StatusOK)
}

// ClosedSlots returns the slots held in memory from the specified index so a
// peer can catch up.
func (h Handlers) ClosedSlots(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := strconv.ParseUint(web.Param(r, "from"), 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	slots := h.State.QueryClosedSlots(from)
	if len(slots) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, slots, http.StatusOK)
}

// FinalizedSlots returns the finalized slots in the specified range.
func (h Handlers) FinalizedSlots(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := strconv.ParseUint(web.Param(r, "from"), 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	toStr := web.Param(r, "to")
	to := uint64(state.QueryLatestFinalized)
	if toStr != "latest" {
		if to, err = strconv.ParseUint(toStr, 10, 64); err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
	}

	if from > to {
		return v1.NewRequestError(errors.New("from greater than to"), http.StatusBadRequest)
	}

	slots, err := h.State.QueryFinalized(from, to)
	if err != nil {
		return err
	}

	if len(slots) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, slots, http.StatusOK)
}

// Mempool returns the set of pending transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.QueryMempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}
