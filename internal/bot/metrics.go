package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the desk bot's Prometheus collectors.
type Metrics struct {
	CommandsProcessed    *prometheus.CounterVec
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
	PickupsConfirmed     *prometheus.CounterVec
}

// NewMetrics registers the bot collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CommandsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carma_desk_bot_commands_total",
			Help: "Desk bot commands by name.",
		}, []string{"command"}),

		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "carma_desk_bot_errors_total",
			Help: "Panics recovered while handling updates.",
		}),

		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carma_desk_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),

		PickupsConfirmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "carma_desk_bot_pickups_total",
			Help: "Pickups confirmed from the bot by method.",
		}, []string{"method"}),
	}
}
