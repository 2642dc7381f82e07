package worker_test

import (
	"testing"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/worker"
)

func Test_Clock(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	c := worker.NewClock(start, 400*time.Millisecond)

	tt := []struct {
		name string
		at   time.Time
		slot uint64
	}{
		{"before", start.Add(-time.Second), 0},
		{"first", start, 1},
		{"inside", start.Add(399 * time.Millisecond), 1},
		{"second", start.Add(400 * time.Millisecond), 2},
		{"later", start.Add(10 * time.Second), 26},
	}

	t.Log("Given the need to map wall clock time to slots.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				if got := c.Slot(tst.at); got != tst.slot {
					t.Fatalf("\t%s\tTest %d:\tShould get slot %d, got %d.", failed, testID, tst.slot, got)
				}
				t.Logf("\t%s\tTest %d:\tShould get slot %d.", success, testID, tst.slot)

				if tst.slot > 0 && c.Slot(c.Start(tst.slot)) != tst.slot {
					t.Fatalf("\t%s\tTest %d:\tShould start slot %d inside itself.", failed, testID, tst.slot)
				}
			}
			t.Run(tst.name, f)
		}
	}
}
