package incidents

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guardianstack/guardian-engine/internal/metrics"
	"github.com/guardianstack/guardian-engine/internal/models"
	"github.com/guardianstack/guardian-engine/internal/store"
)

// DefaultThresholds is the built-in per-metric threshold table. Metrics
// absent from the table have an effectively infinite threshold and never
// trigger incidents.
var DefaultThresholds = map[string]float64{
	"cpu":           80,
	"memory":        85,
	"disk":          90,
	"response_time": 5000,
	"error_rate":    5,
}

// Evaluator decides whether an incoming metric sample constitutes an
// incident. Every evaluated sample is persisted; a breach additionally opens
// a new incident through the lifecycle (repeated breaches open new incidents,
// never update existing ones).
type Evaluator struct {
	thresholds map[string]float64
	samples    store.MetricStore
	lifecycle  *Lifecycle
	logger     *slog.Logger
}

// NewEvaluator constructs an Evaluator. A nil thresholds map selects
// DefaultThresholds. The table is treated as immutable after construction.
func NewEvaluator(thresholds map[string]float64, samples store.MetricStore, lifecycle *Lifecycle, logger *slog.Logger) *Evaluator {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		thresholds: thresholds,
		samples:    samples,
		lifecycle:  lifecycle,
		logger:     logger,
	}
}

// CheckMetric records the sample and returns the created incident when value
// exceeds the metric's threshold, nil otherwise. A store write failure aborts
// the call; there are no retries here.
func (e *Evaluator) CheckMetric(ctx context.Context, service, metric string, value float64) (*models.Incident, error) {
	threshold, known := e.thresholds[metric]
	healthy := !known || value <= threshold

	sample := models.MetricSample{
		ID:        uuid.NewString(),
		Service:   service,
		Metric:    metric,
		Value:     value,
		Timestamp: time.Now().UTC(),
		Healthy:   healthy,
	}
	if err := e.samples.AppendSample(ctx, sample); err != nil {
		return nil, storeFailure("evaluator.check_metric", err)
	}
	metrics.ObserveSample(healthy)

	if healthy {
		return nil, nil
	}

	inc, err := e.lifecycle.Create(ctx, service, metric, value, threshold)
	if err != nil {
		return nil, err
	}
	metrics.ObserveIncident(string(inc.Severity))

	e.logger.Info("incident created",
		slog.String("incident_id", inc.ID),
		slog.String("service", service),
		slog.String("metric", metric),
		slog.Float64("value", value),
		slog.Float64("threshold", threshold),
		slog.String("severity", string(inc.Severity)),
	)
	return &inc, nil
}

// Threshold exposes the configured threshold for a metric name.
func (e *Evaluator) Threshold(metric string) (float64, bool) {
	threshold, ok := e.thresholds[metric]
	return threshold, ok
}
