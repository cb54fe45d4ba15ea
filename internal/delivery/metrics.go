package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes.
const (
	outcomeSent             = "sent"
	outcomeRetried          = "retried"
	outcomeRetiredInvalid   = "retired_invalid_address"
	outcomeRetiredPermanent = "retired_permanent"
	outcomeRetiredExhausted = "retired_exhausted"
)

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_delivery_tasks_total",
			Help: "Claimed delivery tasks by outcome.",
		},
		[]string{"outcome"},
	)
	enqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsletter_delivery_enqueued_total",
			Help: "Delivery tasks enqueued by accepted publish commands.",
		},
	)
	sendSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsletter_delivery_send_seconds",
			Help:    "Mail transport latency per attempt.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal, enqueuedTotal, sendSeconds)
}

// ObserveEnqueued records n newly enqueued tasks.
func ObserveEnqueued(n int64) {
	if n > 0 {
		enqueuedTotal.Add(float64(n))
	}
}
