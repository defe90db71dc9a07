package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guardianstack/guardian-engine/internal/incidents"
	"github.com/guardianstack/guardian-engine/internal/recovery"
)

// Target names a service and the metrics to sample for it on every sweep.
type Target struct {
	Service string   `yaml:"service"`
	Metrics []string `yaml:"metrics"`
}

// Monitor periodically samples every configured target, runs each sample
// through the evaluator, and fires background recovery for incidents the
// sweep creates. One sweep evaluates all targets in parallel; sweeps never
// overlap because Run waits for the previous sweep before ticking again.
type Monitor struct {
	source    MetricSource
	evaluator *incidents.Evaluator
	runner    *recovery.Runner
	targets   []Target
	interval  time.Duration
	logger    *slog.Logger
}

// NewMonitor constructs a Monitor. interval below one second is raised to the
// 60s default.
func NewMonitor(source MetricSource, evaluator *incidents.Evaluator, runner *recovery.Runner, targets []Target, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval < time.Second {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		source:    source,
		evaluator: evaluator,
		runner:    runner,
		targets:   targets,
		interval:  interval,
		logger:    logger,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		slog.Int("targets", len(m.targets)),
		slog.Duration("interval", m.interval),
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep samples and evaluates every target metric. Sampling or store errors
// for one metric are logged and do not abort the rest of the sweep.
func (m *Monitor) sweep(ctx context.Context) {
	start := time.Now()
	var created, checked int

	total := 0
	for _, target := range m.targets {
		total += len(target.Metrics)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	results := make(chan string, total)
	for _, target := range m.targets {
		for _, metric := range target.Metrics {
			service, metric := target.Service, metric
			checked++
			g.Go(func() error {
				value, err := m.source.Sample(gctx, service, metric)
				if err != nil {
					m.logger.Warn("metric sampling failed",
						slog.String("service", service),
						slog.String("metric", metric),
						slog.Any("error", err),
					)
					return nil
				}

				inc, err := m.evaluator.CheckMetric(gctx, service, metric, value)
				if err != nil {
					m.logger.Error("metric evaluation failed",
						slog.String("service", service),
						slog.String("metric", metric),
						slog.Any("error", err),
					)
					return nil
				}
				if inc != nil {
					results <- inc.ID
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	close(results)

	for id := range results {
		m.runner.Trigger(ctx, id)
		created++
	}

	m.logger.Info("sweep complete",
		slog.Int("metrics_checked", checked),
		slog.Int("incidents_created", created),
		slog.Duration("took", time.Since(start)),
	)
}
