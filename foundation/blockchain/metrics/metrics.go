// Package metrics provides the prometheus metrics recorded by the node while
// producing and replaying slots.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pohchain"

// Metrics holds all prometheus metrics for the node.
type Metrics struct {

	// PoH metrics
	Ticks   prometheus.Counter
	Entries *prometheus.CounterVec

	// Transaction metrics
	TxSubmitted  *prometheus.CounterVec
	TxApplied    prometheus.Counter
	TxFailed     prometheus.Counter
	TxDeferred   prometheus.Counter
	BatchGroups  prometheus.Histogram
	MempoolSize  prometheus.Gauge
	ExecDuration prometheus.Histogram

	// Consensus metrics
	SlotStatus     *prometheus.CounterVec
	ReplayDuration prometheus.Histogram
	FinalizedSlot  prometheus.Gauge
}

// New registers the node metrics with the specified registerer. A nil
// registerer produces working metrics that are not exported.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poh_ticks_total",
			Help:      "Total number of PoH ticks produced",
		}),
		Entries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poh_entries_total",
			Help:      "Total number of entries recorded by kind",
		}, []string{"kind"}),

		TxSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_submitted_total",
			Help:      "Total number of submitted transactions by outcome",
		}, []string{"outcome"}),
		TxApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_applied_total",
			Help:      "Total number of transactions applied",
		}),
		TxFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_failed_total",
			Help:      "Total number of transactions recorded as failed",
		}),
		TxDeferred: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_deferred_total",
			Help:      "Total number of transactions deferred on lock conflicts",
		}),
		BatchGroups: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_group_size",
			Help:      "Number of transactions per conflict free group",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		MempoolSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_size",
			Help:      "Current number of pending transactions",
		}),
		ExecDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_execution_seconds",
			Help:      "Time spent executing one group",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),

		SlotStatus: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_status_total",
			Help:      "Total number of slot status transitions by status",
		}, []string{"status"}),
		ReplayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_replay_seconds",
			Help:      "Time spent verifying and replaying a slot",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}),
		FinalizedSlot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "finalized_slot",
			Help:      "Index of the latest finalized slot",
		}),
	}
}
