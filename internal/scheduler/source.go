package scheduler

import (
	"context"
	"math/rand"
)

// MetricSource produces the current value of a metric for a service. The
// monitor treats it as a capability: production deployments plug in real
// probes (node exporters, APM queries), local and demo setups use the
// simulated source below.
type MetricSource interface {
	Sample(ctx context.Context, service, metric string) (float64, error)
}

type valueRange struct {
	low, high float64
}

// simulatedRanges mirrors what the demo probes report: utilisation metrics
// hover below their thresholds most of the time but occasionally spike over,
// response times span healthy to pathological.
var simulatedRanges = map[string]valueRange{
	"cpu":           {10, 99},
	"memory":        {20, 99},
	"disk":          {30, 99},
	"response_time": {100, 6000},
	"error_rate":    {0, 12},
}

// SimulatedSource returns random values within per-metric ranges. It exists
// so the monitor loop can be exercised end to end without any infrastructure.
type SimulatedSource struct {
	// randFloat is swappable so tests can force values.
	randFloat func() float64
}

// NewSimulatedSource constructs a source backed by math/rand.
func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{randFloat: rand.Float64}
}

// Sample draws a value from the metric's range. Unknown metrics draw from
// [0, 100).
func (s *SimulatedSource) Sample(_ context.Context, _, metric string) (float64, error) {
	r, ok := simulatedRanges[metric]
	if !ok {
		r = valueRange{0, 100}
	}
	return r.low + s.randFloat()*(r.high-r.low), nil
}
