package handlers_test

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ardanlabs/pohchain/app/services/node/handlers"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/pohchain/foundation/blockchain/peer"
	"github.com/ardanlabs/pohchain/foundation/blockchain/state"
	"github.com/ardanlabs/pohchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/pohchain/foundation/blockchain/validator"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_PrivateRoutes(t *testing.T) {
	t.Log("Given the need to accept slots from the leader over the private API.")
	{
		leaderKey, followerKey := newKey(t), newKey(t)

		gen := genesis.Genesis{
			Date:          time.Now(),
			ChainID:       1,
			TickDuration:  10 * time.Millisecond,
			HashesPerTick: 10,
			TicksPerSlot:  4,
			SlotsPerEpoch: 16,
			FinalityDepth: 1,
			Validators: []validator.Validator{
				{Account: database.PublicKeyToAccountID(leaderKey.PublicKey), Stake: 100},
			},
		}

		ldr := newState(t, leaderKey, gen)
		flw := newState(t, followerKey, gen)

		if err := ldr.StartSlot(1); err != nil {
			t.Fatalf("\t%s\tShould be able to start slot 1: %s", failed, err)
		}
		slot, err := ldr.EndSlot(1)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to close slot 1: %s", failed, err)
		}

		mux := handlers.PrivateMux(handlers.MuxConfig{
			Shutdown:    make(chan os.Signal, 1),
			Log:         zap.NewNop().Sugar(),
			State:       flw,
			CurrentSlot: func() uint64 { return 1 },
		})

		propose := func(body []byte, contentType string) int {
			r := httptest.NewRequest(http.MethodPost, "/v1/node/slots/propose", bytes.NewReader(body))
			r.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)
			return w.Code
		}

		forged, err := slot.Sign(followerKey)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the slot: %s", failed, err)
		}
		if code := propose(forged.Encode(), "application/octet-stream"); code != http.StatusBadRequest {
			t.Fatalf("\t%s\tShould reject a slot not signed by its leader, got %d.", failed, code)
		}
		t.Logf("\t%s\tShould reject a slot not signed by its leader.", success)

		if code := propose(slot.Encode(), "application/octet-stream"); code != http.StatusOK {
			t.Fatalf("\t%s\tShould accept the binary slot, got %d.", failed, code)
		}
		t.Logf("\t%s\tShould accept the binary slot.", success)

		if code := propose(slot.Encode(), "application/octet-stream"); code != http.StatusNoContent {
			t.Fatalf("\t%s\tShould ignore a slot already known, got %d.", failed, code)
		}
		t.Logf("\t%s\tShould ignore a slot already known.", success)

		if code := propose([]byte{1, 2, 3}, "application/octet-stream"); code != http.StatusBadRequest {
			t.Fatalf("\t%s\tShould reject a malformed slot, got %d.", failed, code)
		}
		t.Logf("\t%s\tShould reject a malformed slot.", success)

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/node/status", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("\t%s\tShould get the node status, got %d.", failed, w.Code)
		}

		var status peer.Status
		if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
			t.Fatalf("\t%s\tShould be able to decode the status: %s", failed, err)
		}
		if status.BestTip != 1 || status.CurrentSlot != 1 {
			t.Fatalf("\t%s\tShould see slot 1 as the best tip: %+v", failed, status)
		}
		t.Logf("\t%s\tShould see slot 1 as the best tip.", success)

		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/node/slots/list/1", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("\t%s\tShould list the closed slots, got %d.", failed, w.Code)
		}

		var slots []database.Slot
		if err := json.NewDecoder(w.Body).Decode(&slots); err != nil {
			t.Fatalf("\t%s\tShould be able to decode the slots: %s", failed, err)
		}
		if len(slots) != 1 || slots[0].LastHash() != slot.LastHash() {
			t.Fatalf("\t%s\tShould get back the replayed slot: %d", failed, len(slots))
		}
		t.Logf("\t%s\tShould get back the replayed slot.", success)
	}
}

func Test_PublicRoutes(t *testing.T) {
	t.Log("Given the need to query a node over the public API.")
	{
		nodeKey := newKey(t)

		gen := genesis.Genesis{
			Date:          time.Now(),
			ChainID:       1,
			TickDuration:  10 * time.Millisecond,
			HashesPerTick: 10,
			TicksPerSlot:  4,
			SlotsPerEpoch: 16,
			FinalityDepth: 1,
			Validators: []validator.Validator{
				{Account: database.PublicKeyToAccountID(nodeKey.PublicKey), Stake: 100},
			},
		}

		st := newState(t, nodeKey, gen)

		mux := handlers.PublicMux(handlers.MuxConfig{
			Shutdown: make(chan os.Signal, 1),
			Log:      zap.NewNop().Sugar(),
			State:    st,
		})

		table := []struct {
			method string
			url    string
			body   string
			code   int
		}{
			{http.MethodGet, "/v1/slots/recent", "", http.StatusOK},
			{http.MethodGet, "/v1/slots/status/0", "", http.StatusOK},
			{http.MethodGet, "/v1/slots/status/5", "", http.StatusNotFound},
			{http.MethodGet, "/v1/slots/status/abc", "", http.StatusBadRequest},
			{http.MethodGet, "/v1/leaders/0", "", http.StatusOK},
			{http.MethodGet, "/v1/tx/results/not-an-id", "", http.StatusBadRequest},
			{http.MethodPost, "/v1/tx/submit", "{", http.StatusBadRequest},
		}

		for testID, tt := range table {
			f := func(t *testing.T) {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(tt.method, tt.url, bytes.NewReader([]byte(tt.body))))

				if w.Code != tt.code {
					t.Fatalf("\t%s\tTest %d:\tShould receive %d from %s, got %d.", failed, testID, tt.code, tt.url, w.Code)
				}
				t.Logf("\t%s\tTest %d:\tShould receive %d from %s.", success, testID, tt.code, tt.url)
			}

			t.Run(tt.url, f)
		}
	}
}

// =============================================================================

func newKey(t *testing.T) *ecdsa.PrivateKey {
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a key: %s", failed, err)
	}
	return k
}

func newState(t *testing.T, k *ecdsa.PrivateKey, gen genesis.Genesis) *state.State {
	st, err := state.New(state.Config{
		PrivateKey: k,
		Host:       "localhost:9080",
		Genesis:    gen,
		Storage:    memory.New(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %s", failed, err)
	}
	t.Cleanup(func() { st.Shutdown() })

	return st
}
