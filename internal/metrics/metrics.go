package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carma"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Identity verification sessions by result.",
		},
		[]string{"result"},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout sessions by result.",
		},
		[]string{"result"},
	)

	pollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finality_polls_total",
			Help:      "Transaction status queries by reported status.",
		},
		[]string{"status"},
	)

	eventDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_deliveries_total",
			Help:      "Event deliveries by sink and result.",
		},
		[]string{"sink", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, verifications, checkouts, pollAttempts, eventDeliveries)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncVerification(result string) {
	verifications.WithLabelValues(result).Inc()
}

func IncCheckout(result string) {
	checkouts.WithLabelValues(result).Inc()
}

// IncPoll counts one status query. status is "error" when the query failed.
func IncPoll(status string) {
	pollAttempts.WithLabelValues(status).Inc()
}

func IncDelivery(sink, result string) {
	eventDeliveries.WithLabelValues(sink, result).Inc()
}
