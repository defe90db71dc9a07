package recovery

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/guardianstack/guardian-engine/internal/models"
)

// Handle tracks one background recovery task. Callers that fire-and-forget
// can still observe completion through Wait.
type Handle struct {
	done   chan struct{}
	result models.RecoveryResult
	err    error
}

// Wait blocks until the task finishes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) (models.RecoveryResult, error) {
	select {
	case <-ctx.Done():
		return models.RecoveryResult{}, ctx.Err()
	case <-h.done:
		return h.result, h.err
	}
}

// Runner launches recovery attempts as independent background tasks, bounded
// by a weighted semaphore so a burst of simultaneous incidents cannot
// overwhelm the executor. Tasks for different incidents run in parallel;
// per-incident exclusivity is enforced by the lifecycle guard, not here.
type Runner struct {
	orchestrator *Orchestrator
	sem          *semaphore.Weighted
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// NewRunner constructs a Runner allowing up to maxConcurrent recovery tasks;
// values below one select 8.
func NewRunner(orchestrator *Orchestrator, maxConcurrent int64, logger *slog.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		orchestrator: orchestrator,
		sem:          semaphore.NewWeighted(maxConcurrent),
		logger:       logger,
	}
}

// Trigger schedules a recovery attempt for the incident and returns
// immediately. The task waits for a semaphore slot before starting, which is
// the backpressure point when many incidents open at once.
func (r *Runner) Trigger(ctx context.Context, incidentID string) *Handle {
	handle := &Handle{done: make(chan struct{})}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(handle.done)

		if err := r.sem.Acquire(ctx, 1); err != nil {
			handle.err = err
			return
		}
		defer r.sem.Release(1)

		handle.result, handle.err = r.orchestrator.AttemptRecovery(ctx, incidentID)
		if handle.err != nil {
			r.logger.Warn("background recovery did not complete",
				slog.String("incident_id", incidentID),
				slog.Any("error", handle.err),
			)
			return
		}
		r.logger.Info("background recovery finished",
			slog.String("incident_id", incidentID),
			slog.Bool("recovered", handle.result.Recovered),
			slog.String("outcome", string(handle.result.Outcome)),
		)
	}()

	return handle
}

// Shutdown waits for in-flight tasks to drain or ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-drained:
		return nil
	}
}
