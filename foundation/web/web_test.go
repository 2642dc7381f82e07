package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/pohchain/foundation/web"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_App(t *testing.T) {
	t.Log("Given the need to route requests through middleware to handlers.")
	{
		shutdown := make(chan os.Signal, 1)

		var order []string
		mw := func(name string) web.Middleware {
			return func(handler web.Handler) web.Handler {
				return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
					order = append(order, name)
					return handler(ctx, w, r)
				}
			}
		}

		app := web.NewApp(shutdown, mw("app"))

		app.Handle(http.MethodGet, "v1", "/echo/:name", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			v, err := web.GetValues(ctx)
			if err != nil || v.TraceID == "" {
				return web.NewShutdownError("web value missing from context")
			}
			return web.Respond(ctx, w, map[string]string{"name": web.Param(r, "name")}, http.StatusOK)
		}, mw("route"))

		app.Handle(http.MethodGet, "v1", "/broken", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return web.NewShutdownError("integrity issue")
		})

		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/echo/pavel", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("\t%s\tShould receive a 200, got %d.", failed, w.Code)
		}

		var resp map[string]string
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp["name"] != "pavel" {
			t.Fatalf("\t%s\tShould get the route parameter back: %v %v", failed, resp, err)
		}
		t.Logf("\t%s\tShould get the route parameter back.", success)

		if len(order) != 2 || order[0] != "app" || order[1] != "route" {
			t.Fatalf("\t%s\tShould run app middleware before route middleware, got %v.", failed, order)
		}
		t.Logf("\t%s\tShould run app middleware before route middleware.", success)

		app.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/broken", nil))
		select {
		case <-shutdown:
			t.Logf("\t%s\tShould signal a shutdown on an integrity error.", success)
		default:
			t.Fatalf("\t%s\tShould signal a shutdown on an integrity error.", failed)
		}
	}
}
