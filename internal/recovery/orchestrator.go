package recovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/guardianstack/guardian-engine/internal/incidents"
	"github.com/guardianstack/guardian-engine/internal/metrics"
	"github.com/guardianstack/guardian-engine/internal/models"
	"github.com/guardianstack/guardian-engine/internal/utils"
)

// ActionRecorder is the slice of the store the orchestrator needs: reading
// the incident under recovery and owning recovery action rows. The
// orchestrator is the only writer of action records.
type ActionRecorder interface {
	GetIncident(ctx context.Context, id string) (models.Incident, error)
	CreateAction(ctx context.Context, action models.RecoveryAction) error
	CompleteAction(ctx context.Context, id string, status models.ActionStatus, errMsg string) error
}

// Orchestrator walks an incident's strategy plan: it takes the lifecycle
// guard, tries each catalog strategy in priority order through the executor,
// records every attempt, and settles the incident as resolved or reopened.
type Orchestrator struct {
	store         ActionRecorder
	lifecycle     *incidents.Lifecycle
	catalog       *Catalog
	executor      ActionExecutor
	actionTimeout time.Duration
	logger        *slog.Logger
	latencies     *utils.LatencyTracker
	now           func() time.Time
}

// NewOrchestrator constructs the recovery driver. actionTimeout bounds every
// executor invocation; zero selects 30s.
func NewOrchestrator(recorder ActionRecorder, lifecycle *incidents.Lifecycle, catalog *Catalog, executor ActionExecutor, actionTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if actionTimeout <= 0 {
		actionTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:         recorder,
		lifecycle:     lifecycle,
		catalog:       catalog,
		executor:      executor,
		actionTimeout: actionTimeout,
		logger:        logger,
		latencies:     utils.NewLatencyTracker(1024),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// AttemptRecovery runs one full recovery pass over an incident.
//
// Guard semantics: a terminal incident yields ErrAlreadyResolved with zero
// side effects; losing the open->investigating compare-and-set yields
// ErrAlreadyInProgress with zero writes. A category without strategies
// reopens the incident and yields ErrNoStrategy. Individual action failures
// never surface: the orchestrator simply advances to the next strategy. Store
// failures abort immediately and leave the incident investigating; the caller
// reconciles via the manual update path.
func (o *Orchestrator) AttemptRecovery(ctx context.Context, incidentID string) (models.RecoveryResult, error) {
	start := o.now()

	inc, err := o.store.GetIncident(ctx, incidentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.RecoveryResult{}, err
		}
		return abortAttempt(storeFailure("recovery.attempt", err))
	}
	if inc.Status.Terminal() {
		metrics.ObserveAttempt(metrics.OutcomeRejected)
		return models.RecoveryResult{}, models.ErrAlreadyResolved
	}

	inc, err = o.lifecycle.BeginRecovery(ctx, incidentID)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			metrics.ObserveAttempt(metrics.OutcomeRejected)
			return models.RecoveryResult{}, err
		}
		return abortAttempt(err)
	}

	category := inc.Category
	if category == "" {
		category = models.InferCategory(inc.ErrorMessage + " " + inc.Description)
	}

	plan := o.catalog.Strategies(category)
	if len(plan) == 0 {
		// No mapping: hand the incident back instead of stranding it in
		// investigating.
		if _, err := o.lifecycle.MarkRecoveryExhausted(ctx, incidentID); err != nil {
			return abortAttempt(err)
		}
		metrics.ObserveAttempt(metrics.OutcomeNoStrategy)
		o.logger.Warn("no recovery strategy for incident",
			slog.String("incident_id", incidentID),
			slog.String("category", string(category)),
		)
		return models.RecoveryResult{}, models.ErrNoStrategy
	}

	for i, strategy := range plan {
		ok, err := o.runStrategy(ctx, inc, strategy)
		if err != nil {
			return abortAttempt(err)
		}
		if !ok {
			continue
		}

		if _, err := o.lifecycle.MarkResolved(ctx, incidentID, strategy.Action); err != nil {
			return abortAttempt(err)
		}
		o.observeAttempt(metrics.OutcomeResolved, start)
		o.logger.Info("incident auto-recovered",
			slog.String("incident_id", incidentID),
			slog.String("service", inc.Service),
			slog.String("action", strategy.Action),
			slog.Int("attempts", i+1),
		)
		return models.RecoveryResult{
			IncidentID: incidentID,
			Recovered:  true,
			Action:     strategy.Action,
			Service:    inc.Service,
			Attempts:   i + 1,
			Outcome:    models.OutcomeResolved,
		}, nil
	}

	if _, err := o.lifecycle.MarkRecoveryExhausted(ctx, incidentID); err != nil {
		return abortAttempt(err)
	}
	o.observeAttempt(metrics.OutcomeExhausted, start)
	o.logger.Warn("recovery exhausted, incident reopened",
		slog.String("incident_id", incidentID),
		slog.String("service", inc.Service),
		slog.Int("attempts", len(plan)),
	)
	return models.RecoveryResult{
		IncidentID: incidentID,
		Recovered:  false,
		Service:    inc.Service,
		Attempts:   len(plan),
		Outcome:    models.OutcomeExhausted,
	}, nil
}

// runStrategy records and executes one remediation action. The boolean
// reports action success; the error is reserved for store failures.
func (o *Orchestrator) runStrategy(ctx context.Context, inc models.Incident, strategy Strategy) (bool, error) {
	action := models.RecoveryAction{
		ID:         uuid.NewString(),
		IncidentID: inc.ID,
		ActionType: strategy.Action,
		Details:    "Executing " + strategy.Action + " for " + inc.Service,
		Status:     models.ActionPending,
		ExecutedAt: o.now(),
	}
	if err := o.store.CreateAction(ctx, action); err != nil {
		return false, storeFailure("recovery.run_strategy", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, o.actionTimeout)
	started := o.now()
	execErr := o.executor.Execute(execCtx, strategy.Action, inc.Service)
	cancel()
	elapsed := o.now().Sub(started)

	status := models.ActionSuccess
	errMsg := ""
	if execErr != nil {
		// Timeouts and executor errors are equivalent: the action failed
		// and the next strategy gets its turn.
		status = models.ActionFailed
		errMsg = execErr.Error()
		o.logger.Debug("recovery action failed",
			slog.String("incident_id", inc.ID),
			slog.String("action", strategy.Action),
			slog.Any("error", execErr),
		)
	}
	if err := o.store.CompleteAction(ctx, action.ID, status, errMsg); err != nil {
		return false, storeFailure("recovery.run_strategy", err)
	}
	metrics.ObserveAction(strategy.Action, string(status), elapsed)

	return execErr == nil, nil
}

func (o *Orchestrator) observeAttempt(outcome string, start time.Time) {
	metrics.ObserveAttempt(outcome)
	o.latencies.Observe(o.now().Sub(start))
	if count := o.latencies.Count(); count >= 20 && count%20 == 0 {
		o.logger.Info("recovery latency",
			slog.Duration("p95", o.latencies.Percentile(95)),
			slog.Int("samples", count),
		)
	}
}

// abortAttempt passes the error through, counting store-failure aborts under
// the error outcome. Lifecycle conflicts raced in by other writers are not
// store failures and stay uncounted here.
func abortAttempt(err error) (models.RecoveryResult, error) {
	if errors.Is(err, models.ErrStore) {
		metrics.ObserveAttempt(metrics.OutcomeError)
	}
	return models.RecoveryResult{}, err
}

func storeFailure(op string, err error) error {
	return utils.NewAppError(op, "store failure", errors.Join(models.ErrStore, err))
}
