package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertrelay_deliveries_total",
			Help: "Envelopes processed by the notifier workers, by backend and result.",
		},
		[]string{"backend", "result"},
	)
	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertrelay_delivery_duration_seconds",
			Help:    "Time spent in a single envelope delivery, including retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend"},
	)
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alertrelay_queue_depth",
			Help: "Envelopes waiting in a notifier queue.",
		},
		[]string{"backend"},
	)
	discardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertrelay_discarded_total",
			Help: "Envelopes discarded because the shutdown drain deadline expired.",
		},
		[]string{"backend"},
	)
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertrelay_retries_total",
			Help: "Retries scheduled after a transient send fault.",
		},
		[]string{"policy"},
	)
)
