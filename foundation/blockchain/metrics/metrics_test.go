package metrics_test

import (
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Registry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Ticks.Add(3)
	m.SlotStatus.WithLabelValues("confirmed").Inc()

	if got := testutil.ToFloat64(m.Ticks); got != 3 {
		t.Fatalf("\t%s\tShould count ticks, got %v.", failed, got)
	}
	if got := testutil.ToFloat64(m.SlotStatus.WithLabelValues("confirmed")); got != 1 {
		t.Fatalf("\t%s\tShould count status changes, got %v.", failed, got)
	}

	families, err := reg.Gather()
	if err != nil || len(families) == 0 {
		t.Fatalf("\t%s\tShould gather the registered metrics: %v", failed, err)
	}
	t.Logf("\t%s\tShould record and export metrics.", success)

	// A second set of metrics without a registry must not panic.
	metrics.New(nil).TxApplied.Inc()
}
