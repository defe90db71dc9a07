package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guardianstack/guardian-engine/internal/models"
	"github.com/guardianstack/guardian-engine/internal/notify"
	"github.com/guardianstack/guardian-engine/internal/store"
	"github.com/guardianstack/guardian-engine/internal/utils"
)

// Lifecycle owns incident state transitions. Every status change in the
// system flows through it: automated recovery via the compare-and-set guard,
// administrative overrides via ManualUpdate. It is the only emitter of
// transition events.
type Lifecycle struct {
	store    store.IncidentStore
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	// events feeds the single dispatcher goroutine. One consumer keeps
	// delivery in transition order.
	events chan notify.Event
}

// NewLifecycle constructs a Lifecycle over the given incident store.
func NewLifecycle(incidentStore store.IncidentStore, notifier notify.Notifier, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Lifecycle{
		store:    incidentStore,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if notifier != nil {
		l.events = make(chan notify.Event, 64)
		go l.dispatchLoop()
	}
	return l
}

// Create opens a new incident for a threshold breach. Severity is classified
// once here and never changes afterwards; the metric category is stored
// explicitly so recovery never has to re-derive it from free text.
func (l *Lifecycle) Create(ctx context.Context, service, metric string, value, threshold float64) (models.Incident, error) {
	now := l.now()
	inc := models.Incident{
		ID:           uuid.NewString(),
		Title:        fmt.Sprintf("%s - High %s", service, strings.ToUpper(metric)),
		Description:  fmt.Sprintf("%s usage at %.2f%% (threshold: %g%%)", metric, value, threshold),
		Severity:     ClassifySeverity(value, threshold),
		Status:       models.StatusOpen,
		Service:      service,
		Category:     models.CategoryForMetric(metric),
		DetectedAt:   now,
		ErrorMessage: fmt.Sprintf("%s exceeded threshold", metric),
		MetricValue:  value,
		Threshold:    threshold,
	}

	if err := l.store.CreateIncident(ctx, inc); err != nil {
		return models.Incident{}, storeFailure("lifecycle.create", err)
	}

	l.emit(inc, "", models.StatusOpen, "")
	return inc, nil
}

// BeginRecovery moves an incident from open to investigating. The move is an
// atomic compare-and-set on the status column: when two recovery attempts
// race, exactly one succeeds and the loser observes ErrAlreadyInProgress (or
// ErrAlreadyResolved when the incident meanwhile reached a terminal state).
func (l *Lifecycle) BeginRecovery(ctx context.Context, id string) (models.Incident, error) {
	inc, err := l.store.TransitionIncident(ctx, id, models.StatusOpen, models.StatusInvestigating, store.IncidentPatch{})
	if err != nil {
		return models.Incident{}, mapTransitionError("lifecycle.begin_recovery", err)
	}

	l.emit(inc, models.StatusOpen, models.StatusInvestigating, "")
	return inc, nil
}

// MarkResolved records a successful remediation: status resolved, resolution
// timestamp set, auto-recovered flag raised, winning action remembered.
// Legal only from investigating.
func (l *Lifecycle) MarkResolved(ctx context.Context, id, actionName string) (models.Incident, error) {
	resolvedAt := l.now()
	auto := true
	inc, err := l.store.TransitionIncident(ctx, id, models.StatusInvestigating, models.StatusResolved, store.IncidentPatch{
		ResolvedAt:     &resolvedAt,
		AutoRecovered:  &auto,
		RecoveryAction: &actionName,
	})
	if err != nil {
		return models.Incident{}, mapTransitionError("lifecycle.mark_resolved", err)
	}

	l.emit(inc, models.StatusInvestigating, models.StatusResolved, actionName)
	return inc, nil
}

// MarkRecoveryExhausted reopens an incident whose recovery attempt ran out of
// strategies. The resolution timestamp and auto-recovered flag are left
// untouched. Legal only from investigating.
func (l *Lifecycle) MarkRecoveryExhausted(ctx context.Context, id string) (models.Incident, error) {
	inc, err := l.store.TransitionIncident(ctx, id, models.StatusInvestigating, models.StatusOpen, store.IncidentPatch{})
	if err != nil {
		return models.Incident{}, mapTransitionError("lifecycle.mark_exhausted", err)
	}

	l.emit(inc, models.StatusInvestigating, models.StatusOpen, "")
	return inc, nil
}

// ManualUpdate is the administrative override path: it accepts any known
// status without transition-legality checks. Moving into a terminal status
// stamps the resolution time; supplying a recovery action raises the
// auto-recovered flag (matching the external update contract).
func (l *Lifecycle) ManualUpdate(ctx context.Context, id string, status models.IncidentStatus, recoveryAction string) (models.Incident, error) {
	if !status.Valid() {
		return models.Incident{}, fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, status)
	}

	previous, err := l.store.GetIncident(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Incident{}, err
		}
		return models.Incident{}, storeFailure("lifecycle.manual_update", err)
	}

	patch := store.IncidentPatch{Status: &status}
	if recoveryAction != "" {
		auto := true
		patch.RecoveryAction = &recoveryAction
		patch.AutoRecovered = &auto
	}
	if status.Terminal() {
		resolvedAt := l.now()
		patch.ResolvedAt = &resolvedAt
	}

	inc, err := l.store.UpdateIncident(ctx, id, patch)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Incident{}, err
		}
		return models.Incident{}, storeFailure("lifecycle.manual_update", err)
	}

	l.emit(inc, previous.Status, status, recoveryAction)
	return inc, nil
}

// emit queues a transition event for ordered asynchronous dispatch. A full
// queue drops the event rather than blocking a transition; notification is
// best-effort and never rolls anything back.
func (l *Lifecycle) emit(inc models.Incident, from, to models.IncidentStatus, action string) {
	if l.events == nil {
		return
	}

	event := notify.Event{
		IncidentID:     inc.ID,
		Service:        inc.Service,
		PreviousStatus: from,
		NewStatus:      to,
		Severity:       inc.Severity,
		RecoveryAction: action,
		OccurredAt:     l.now(),
	}

	select {
	case l.events <- event:
	default:
		l.logger.Warn("event queue full, dropping transition event",
			slog.String("incident_id", event.IncidentID),
			slog.String("to", string(event.NewStatus)),
		)
	}
}

// dispatchLoop delivers queued events one at a time, so consumers observe
// each incident's transitions in the order they happened.
func (l *Lifecycle) dispatchLoop() {
	for event := range l.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.notifier.Dispatch(ctx, event); err != nil {
			l.logger.Warn("notification dispatch failed",
				slog.String("incident_id", event.IncidentID),
				slog.Any("error", err),
			)
		}
		cancel()
	}
}

// mapTransitionError translates store-level CAS outcomes into the domain
// taxonomy.
func mapTransitionError(op string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return err
	}

	var conflict *store.StatusConflictError
	if errors.As(err, &conflict) {
		switch {
		case conflict.Current.Terminal():
			return models.ErrAlreadyResolved
		case conflict.Current == models.StatusInvestigating:
			return models.ErrAlreadyInProgress
		default:
			return fmt.Errorf("%w: incident is %s", models.ErrInvalidTransition, conflict.Current)
		}
	}

	return storeFailure(op, err)
}

func storeFailure(op string, err error) error {
	return utils.NewAppError(op, "store failure", errors.Join(models.ErrStore, err))
}
