package events_test

import (
	"testing"

	"github.com/ardanlabs/pohchain/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Events(t *testing.T) {
	evts := events.New()

	a := evts.Acquire("a")
	b := evts.Acquire("b")

	if err := evts.SendJSON(map[string]int{"slot": 4}); err != nil {
		t.Fatalf("\t%s\tShould be able to send a value: %s", failed, err)
	}

	for _, ch := range []chan string{a, b} {
		if msg := <-ch; msg != `{"slot":4}` {
			t.Fatalf("\t%s\tShould receive the message, got %q.", failed, msg)
		}
	}
	t.Logf("\t%s\tShould deliver to every receiver.", success)

	if err := evts.Release("a"); err != nil || evts.Count() != 1 {
		t.Fatalf("\t%s\tShould release a receiver: %v", failed, err)
	}
	if err := evts.Release("a"); err == nil {
		t.Fatalf("\t%s\tShould fail to release an unknown receiver.", failed)
	}

	evts.Shutdown()
	if _, open := <-b; open || evts.Count() != 0 {
		t.Fatalf("\t%s\tShould close every channel on shutdown.", failed)
	}
	t.Logf("\t%s\tShould release and shut down receivers.", success)
}
