package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeResolved labels recovery attempts that ended with a resolved incident.
	OutcomeResolved = "resolved"
	// OutcomeExhausted labels attempts where every strategy failed.
	OutcomeExhausted = "exhausted"
	// OutcomeRejected labels attempts refused by the lifecycle guard.
	OutcomeRejected = "rejected"
	// OutcomeNoStrategy labels attempts for categories without a mapping.
	OutcomeNoStrategy = "no_strategy"
	// OutcomeError labels attempts aborted by a store failure.
	OutcomeError = "error"
)

var (
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "metric_samples_total",
			Help:      "Total metric samples evaluated, partitioned by health.",
		},
		[]string{"healthy"},
	)

	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "incidents_total",
			Help:      "Total incidents created, partitioned by severity.",
		},
		[]string{"severity"},
	)

	recoveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardian",
			Name:      "recovery_attempts_total",
			Help:      "Total recovery attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	recoveryActionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "guardian",
			Name:      "recovery_action_seconds",
			Help:      "Single remediation action latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"action", "status"},
	)
)

// Register attaches guardian collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		samplesTotal,
		incidentsTotal,
		recoveryAttemptsTotal,
		recoveryActionSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSample counts an evaluated metric sample.
func ObserveSample(healthy bool) {
	label := "true"
	if !healthy {
		label = "false"
	}
	samplesTotal.WithLabelValues(label).Inc()
}

// ObserveIncident counts a created incident.
func ObserveIncident(severity string) {
	incidentsTotal.WithLabelValues(severity).Inc()
}

// ObserveAttempt counts a finished recovery attempt.
func ObserveAttempt(outcome string) {
	recoveryAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAction records the latency and status of one remediation action.
func ObserveAction(action, status string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	recoveryActionSeconds.WithLabelValues(action, status).Observe(duration.Seconds())
}
