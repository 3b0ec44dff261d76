package sync

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "ou_category_sync"

var (
	runsTotalCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "runs_total",
			Help:      "Number of synchronization runs started.",
		},
	)

	runsFailedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "runs_failed_total",
			Help:      "Number of synchronization runs that failed resolving the root or its top-level OUs.",
		},
	)

	ousReconciledCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "ous_reconciled_total",
			Help:      "Number of top-level OUs handed to the reconciler.",
		},
	)

	runDurationHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of synchronization runs, successful or failed.",
			Buckets:   []float64{1.0, 10.0, 60.0, 300.0},
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotalCounter)
	prometheus.MustRegister(runsFailedCounter)
	prometheus.MustRegister(ousReconciledCounter)
	prometheus.MustRegister(runDurationHistogram)
}
