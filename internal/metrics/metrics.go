package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the wallet ledger instrumentation.
type Metrics struct {
	OperationsTotal          *prometheus.CounterVec
	OperationDuration        *prometheus.HistogramVec
	ReconciliationDriftTotal prometheus.Counter
}

// New registers the ledger metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletd",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Total ledger operations partitioned by operation and result.",
			},
			[]string{"op", "result"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "walletd",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Duration of ledger operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		ReconciliationDriftTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "walletd",
				Subsystem: "ledger",
				Name:      "reconciliation_drift_total",
				Help:      "Number of reconciliation runs that found and corrected drift.",
			},
		),
	}
}

// Time observes the elapsed time on obs when the returned func runs.
func Time(obs prometheus.Observer) func() {
	start := time.Now()
	return func() {
		obs.Observe(time.Since(start).Seconds())
	}
}
