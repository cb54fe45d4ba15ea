package idempotency

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeStarted  = "started"
	outcomeReplayed = "replayed"
	outcomeInFlight = "in_flight"
)

var outcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "newsletter_idempotency_outcomes_total",
		Help: "BeginOrReplay results by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(outcomes)
}
