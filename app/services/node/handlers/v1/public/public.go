// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/pohchain/business/sys/validate"
	v1 "github.com/ardanlabs/pohchain/business/web/v1"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/state"
	"github.com/ardanlabs/pohchain/foundation/events"
	"github.com/ardanlabs/pohchain/foundation/nameservice"
	"github.com/ardanlabs/pohchain/foundation/web"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds a new user transaction to the pending queue.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if err := validate.Check(signedTx); err != nil {
		return err
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", signedTx.ID, "recent", signedTx.RecentHash, "writes", signedTx.Writes)
	if err := h.State.SubmitTransaction(signedTx); err != nil {
		return v1.NewStateError(err)
	}

	resp := struct {
		Status string    `json:"status"`
		ID     uuid.UUID `json:"id"`
	}{
		Status: "transaction accepted",
		ID:     signedTx.ID,
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// RecentHash returns the hash new transactions should reference.
func (h Handlers) RecentHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := recent{
		Slot: h.State.RetrieveBestTip(),
		Hash: h.State.RecentHash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Accounts returns the accounts known by name, or the specified account, as
// seen by a frozen slot. The slot defaults to the latest finalized one.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	at := uint64(state.QueryLatestFinalized)
	if s := r.URL.Query().Get("slot"); s != "" && s != "latest" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		at = n
	}

	var ids []database.AccountID
	switch param := web.Param(r, "account"); param {
	case "":
		for _, name := range h.NS.Names() {
			id, err := h.NS.Resolve(name)
			if err == nil {
				ids = append(ids, id)
			}
		}

	default:
		id, err := h.NS.Resolve(param)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		ids = append(ids, id)
	}

	if at == state.QueryLatestFinalized {
		at, _ = h.State.RetrieveRoot()
	}

	info := accountInfo{
		Slot:     at,
		Accounts: make([]account, 0, len(ids)),
	}

	for _, id := range ids {
		acct, err := h.State.QueryAccount(id, at)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) && len(ids) > 1 {
				continue
			}
			return v1.NewStateError(err)
		}

		info.Accounts = append(info.Accounts, account{
			Account: acct.ID,
			Name:    h.NS.Lookup(acct.ID),
			Balance: acct.Balance,
			Owner:   acct.Owner,
			Data:    acct.Data,
			Version: acct.Version,
		})
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// Slot returns a closed or finalized slot with its entries.
func (h Handlers) Slot(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := strconv.ParseUint(web.Param(r, "slot"), 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	dbSlot, err := h.State.QuerySlot(index)
	if err != nil {
		return v1.NewStateError(err)
	}

	status, err := h.State.QuerySlotStatus(index)
	if err != nil {
		return v1.NewStateError(err)
	}

	s := slot{
		Index:      dbSlot.Index,
		Parent:     dbSlot.Parent,
		Leader:     dbSlot.Leader,
		LeaderName: h.NS.Lookup(dbSlot.Leader),
		Status:     status,
		LastHash:   dbSlot.LastHash(),
		Entries:    make([]entry, len(dbSlot.Entries)),
	}

	for i, e := range dbSlot.Entries {
		s.Entries[i] = entry{
			NumHashes:    e.NumHashes,
			Hash:         e.Hash,
			Transactions: h.toTxs(e.Transactions),
		}
	}

	return web.Respond(ctx, w, s, http.StatusOK)
}

// SlotStatus returns the status of a slot.
func (h Handlers) SlotStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	index, err := strconv.ParseUint(web.Param(r, "slot"), 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	status, err := h.State.QuerySlotStatus(index)
	if err != nil {
		return v1.NewStateError(err)
	}

	resp := struct {
		Slot   uint64 `json:"slot"`
		Status string `json:"status"`
	}{
		Slot:   index,
		Status: status.String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Leaders returns the leader schedule of an epoch.
func (h Handlers) Leaders(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	epoch, err := strconv.ParseUint(web.Param(r, "epoch"), 10, 64)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	sch := h.State.LeaderSchedule(epoch)

	resp := leaders{
		Epoch:   sch.Epoch(),
		Seed:    sch.Seed(),
		Leaders: sch.Leaders(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Votes returns the latest vote of every validator.
func (h Handlers) Votes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveVotes(), http.StatusOK)
}

// Results returns the execution result of a transaction.
func (h Handlers) Results(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := uuid.Parse(web.Param(r, "id"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	result, err := h.State.QueryResults(id)
	if err != nil {
		return v1.NewStateError(err)
	}

	resp := txResult{Result: result}
	if status, err := h.State.QuerySlotStatus(result.Slot); err == nil {
		resp.SlotStatus = status
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of pending transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var filter database.AccountID
	if param := web.Param(r, "account"); param != "" {
		id, err := h.NS.Resolve(param)
		if err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
		filter = id
	}

	var pending []database.SignedTx
	for _, tran := range h.State.QueryMempool() {
		if filter != "" && !touches(tran, filter) {
			continue
		}
		pending = append(pending, tran)
	}

	return web.Respond(ctx, w, h.toTxs(pending), http.StatusOK)
}

// =============================================================================

func (h Handlers) toTxs(txs []database.SignedTx) []tx {
	out := make([]tx, len(txs))
	for i, tran := range txs {
		from, _ := tran.FromAccount()

		out[i] = tx{
			ID:           tran.ID,
			FromAccount:  from,
			FromName:     h.NS.Lookup(from),
			RecentHash:   tran.RecentHash,
			Reads:        tran.Reads,
			Writes:       tran.Writes,
			Instructions: tran.Instructions,
			Sig:          tran.SignatureString(),
		}
	}
	return out
}

// touches reports whether the transaction reads or writes the account.
func touches(tran database.SignedTx, id database.AccountID) bool {
	for _, set := range [][]database.AccountID{tran.Reads, tran.Writes} {
		for _, a := range set {
			if a == id {
				return true
			}
		}
	}
	return false
}
