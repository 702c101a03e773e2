package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seatrelay",
			Name:      "decisions_total",
			Help:      "Count of auto-accept decisions by outcome.",
		},
		[]string{"outcome"},
	)

	relayPublish = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seatrelay",
			Name:      "relay_publish_total",
			Help:      "Count of per-relay envelope publishes by result.",
		},
		[]string{"result"},
	)

	responsesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seatrelay",
			Name:      "responses_sent_total",
			Help:      "Count of reservation responses sent by status.",
		},
		[]string{"status"},
	)

	billingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seatrelay",
			Name:      "billing_failures_total",
			Help:      "Count of failed billing notifications.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(decisions, relayPublish, responsesSent, billingFailures)
	})
}

func IncDecision(outcome string) {
	decisions.WithLabelValues(outcome).Inc()
}

func IncRelayPublish(result string) {
	relayPublish.WithLabelValues(result).Inc()
}

func IncResponseSent(status string) {
	responsesSent.WithLabelValues(status).Inc()
}

func IncBillingFailure() {
	billingFailures.Inc()
}
