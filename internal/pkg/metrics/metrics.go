package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timesale_admissions_total",
			Help: "Purchase attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	OptimisticRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timesale_optimistic_retries_total",
			Help: "Version-conflict retries performed by the optimistic strategy.",
		},
	)
	PurchaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timesale_purchase_duration_seconds",
			Help:    "Wall time of the full purchase sequence in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
)

func init() {
	prometheus.MustRegister(Admissions, OptimisticRetries, PurchaseDuration)
}
