package store

import (
	"context"
	"fmt"
	"time"

	"github.com/guardianstack/guardian-engine/internal/models"
)

// ListIncidentsFilter narrows incident listings. An empty Statuses slice
// matches every status. Limit <= 0 applies the store default of 50.
type ListIncidentsFilter struct {
	Statuses []models.IncidentStatus
	Limit    int
}

// IncidentPatch describes a partial incident update. Nil fields are left
// untouched.
type IncidentPatch struct {
	Status         *models.IncidentStatus
	ResolvedAt     *time.Time
	AutoRecovered  *bool
	RecoveryAction *string
}

// MetricStore persists metric samples. Samples are append-only; writes for a
// given (service, metric) pair happen in temporal order.
type MetricStore interface {
	AppendSample(ctx context.Context, sample models.MetricSample) error
	ListSamples(ctx context.Context, service, metric string, limit int) ([]models.MetricSample, error)
}

// IncidentStore owns incident rows.
type IncidentStore interface {
	CreateIncident(ctx context.Context, inc models.Incident) error
	GetIncident(ctx context.Context, id string) (models.Incident, error)
	// ListIncidents returns incidents ordered by detection time descending.
	ListIncidents(ctx context.Context, filter ListIncidentsFilter) ([]models.Incident, error)
	// TransitionIncident is an atomic compare-and-set: the status change and
	// patch apply only while the stored status equals from. On mismatch it
	// returns a *StatusConflictError carrying the observed status: this is
	// the serialization point keeping concurrent recovery attempts apart.
	TransitionIncident(ctx context.Context, id string, from, to models.IncidentStatus, patch IncidentPatch) (models.Incident, error)
	// UpdateIncident applies patch without transition checks. Administrative
	// override path only.
	UpdateIncident(ctx context.Context, id string, patch IncidentPatch) (models.Incident, error)
	IncidentStats(ctx context.Context) (models.IncidentStats, error)
}

// ActionStore owns recovery action rows. Records are created pending,
// completed once, and never mutated afterwards.
type ActionStore interface {
	CreateAction(ctx context.Context, action models.RecoveryAction) error
	CompleteAction(ctx context.Context, id string, status models.ActionStatus, errMsg string) error
	// ListActions returns actions in attempt order (oldest first). An empty
	// incidentID returns the full history.
	ListActions(ctx context.Context, incidentID string) ([]models.RecoveryAction, error)
	RecoveryStats(ctx context.Context) (models.RecoveryStats, error)
}

// Store is the combined persistence surface consumed by the engine.
type Store interface {
	MetricStore
	IncidentStore
	ActionStore

	Ping(ctx context.Context) error
	Close() error
}

// StatusConflictError reports a failed compare-and-set transition together
// with the status observed at the time of the attempt.
type StatusConflictError struct {
	ID      string
	Current models.IncidentStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("incident %s status conflict: currently %s", e.ID, e.Current)
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func matchesStatus(status models.IncidentStatus, wanted []models.IncidentStatus) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if status == w {
			return true
		}
	}
	return false
}
