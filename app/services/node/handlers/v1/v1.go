// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/pohchain/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/pohchain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/pohchain/foundation/blockchain/state"
	"github.com/ardanlabs/pohchain/foundation/events"
	"github.com/ardanlabs/pohchain/foundation/nameservice"
	"github.com/ardanlabs/pohchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log         *zap.SugaredLogger
	State       *state.State
	NS          *nameservice.NameService
	Evts        *events.Events
	CurrentSlot func() uint64
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/accounts/list", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/list/:account", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/slots/recent", pbl.RecentHash)
	app.Handle(http.MethodGet, version, "/slots/list/:slot", pbl.Slot)
	app.Handle(http.MethodGet, version, "/slots/status/:slot", pbl.SlotStatus)
	app.Handle(http.MethodGet, version, "/leaders/:epoch", pbl.Leaders)
	app.Handle(http.MethodGet, version, "/votes/list", pbl.Votes)
	app.Handle(http.MethodGet, version, "/tx/results/:id", pbl.Results)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list/:account", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitWalletTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:         cfg.Log,
		State:       cfg.State,
		NS:          cfg.NS,
		CurrentSlot: cfg.CurrentSlot,
	}

	app.Handle(http.MethodPost, version, "/node/peers", prv.SubmitPeer)
	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/slots/list/:from", prv.ClosedSlots)
	app.Handle(http.MethodGet, version, "/node/slots/finalized/:from/:to", prv.FinalizedSlots)
	app.Handle(http.MethodPost, version, "/node/slots/propose", prv.ProposeSlot)
	app.Handle(http.MethodPost, version, "/node/votes/submit", prv.SubmitVote)
	app.Handle(http.MethodPost, version, "/node/tx/submit", prv.SubmitNodeTransaction)
	app.Handle(http.MethodGet, version, "/node/tx/list", prv.Mempool)
}
