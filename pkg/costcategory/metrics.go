package costcategory

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "ou_category_sync"

var (
	createdCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "cost_categories_created_total",
			Help:      "Number of cost category definitions created.",
		},
	)

	updatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "cost_categories_updated_total",
			Help:      "Number of cost category definitions updated in place.",
		},
	)

	reconcileFailedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "cost_category_reconcile_failures_total",
			Help:      "Number of per-OU reconciliations abandoned due to store errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(createdCounter)
	prometheus.MustRegister(updatedCounter)
	prometheus.MustRegister(reconcileFailedCounter)
}
