package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// ActionExecutor performs (or simulates) a single remediation action against
// a service. A nil return means the action succeeded; any error counts as a
// failed attempt and the orchestrator moves on to the next strategy.
// Implementations must honour ctx cancellation: the orchestrator bounds every
// invocation with a timeout.
type ActionExecutor interface {
	Execute(ctx context.Context, action, service string) error
}

// SimulatedExecutor is the in-tree placeholder backend: it sleeps briefly and
// succeeds with a configurable probability. Production deployments swap in a
// real infrastructure client behind the same interface.
type SimulatedExecutor struct {
	successRate float64
	delay       time.Duration
	logger      *slog.Logger

	// randFloat is swappable so tests can force outcomes.
	randFloat func() float64
}

// NewSimulatedExecutor constructs a simulated backend. successRate outside
// (0, 1] falls back to 0.8, matching observed behaviour of typical first-line
// remediations.
func NewSimulatedExecutor(successRate float64, delay time.Duration, logger *slog.Logger) *SimulatedExecutor {
	if successRate <= 0 || successRate > 1 {
		successRate = 0.8
	}
	if delay < 0 {
		delay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulatedExecutor{
		successRate: successRate,
		delay:       delay,
		logger:      logger,
		randFloat:   rand.Float64,
	}
}

// Execute simulates the action, respecting context cancellation during the
// simulated work.
func (e *SimulatedExecutor) Execute(ctx context.Context, action, service string) error {
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if e.randFloat() < e.successRate {
		e.logger.Debug("simulated action succeeded",
			slog.String("action", action), slog.String("service", service))
		return nil
	}

	e.logger.Debug("simulated action failed",
		slog.String("action", action), slog.String("service", service))
	return fmt.Errorf("failed to execute %s", action)
}
