package store

import (
	"context"
	"math"
	"sync"

	"github.com/guardianstack/guardian-engine/internal/models"
)

// MemoryStore is an in-process Store implementation. It is the default
// backend for tests and single-node deployments; all operations are
// individually atomic under one mutex.
type MemoryStore struct {
	mu sync.RWMutex

	samples []models.MetricSample

	incidents     map[string]models.Incident
	incidentOrder []string // creation order, oldest first

	actions     []models.RecoveryAction
	actionIndex map[string]int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents:   make(map[string]models.Incident),
		actionIndex: make(map[string]int),
	}
}

// AppendSample records a metric sample.
func (s *MemoryStore) AppendSample(_ context.Context, sample models.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

// ListSamples returns samples for (service, metric) in temporal order,
// truncated to the most recent limit entries.
func (s *MemoryStore) ListSamples(_ context.Context, service, metric string, limit int) ([]models.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.MetricSample, 0)
	for _, sample := range s.samples {
		if service != "" && sample.Service != service {
			continue
		}
		if metric != "" && sample.Metric != metric {
			continue
		}
		matched = append(matched, sample)
	}

	limit = normalizeLimit(limit)
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// CreateIncident stores a new incident row.
func (s *MemoryStore) CreateIncident(_ context.Context, inc models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[inc.ID] = inc
	s.incidentOrder = append(s.incidentOrder, inc.ID)
	return nil
}

// GetIncident fetches an incident by id.
func (s *MemoryStore) GetIncident(_ context.Context, id string) (models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, models.ErrNotFound
	}
	return inc, nil
}

// ListIncidents returns incidents newest first, filtered and limited.
func (s *MemoryStore) ListIncidents(_ context.Context, filter ListIncidentsFilter) ([]models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := normalizeLimit(filter.Limit)
	result := make([]models.Incident, 0, limit)
	for i := len(s.incidentOrder) - 1; i >= 0 && len(result) < limit; i-- {
		inc := s.incidents[s.incidentOrder[i]]
		if !matchesStatus(inc.Status, filter.Statuses) {
			continue
		}
		result = append(result, inc)
	}
	return result, nil
}

// TransitionIncident implements the compare-and-set lifecycle move.
func (s *MemoryStore) TransitionIncident(_ context.Context, id string, from, to models.IncidentStatus, patch IncidentPatch) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, models.ErrNotFound
	}
	if inc.Status != from {
		return models.Incident{}, &StatusConflictError{ID: id, Current: inc.Status}
	}

	inc.Status = to
	applyPatch(&inc, patch)
	s.incidents[id] = inc
	return inc, nil
}

// UpdateIncident applies patch unconditionally.
func (s *MemoryStore) UpdateIncident(_ context.Context, id string, patch IncidentPatch) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, models.ErrNotFound
	}
	applyPatch(&inc, patch)
	s.incidents[id] = inc
	return inc, nil
}

// IncidentStats counts incidents by lifecycle state.
func (s *MemoryStore) IncidentStats(_ context.Context) (models.IncidentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.IncidentStats{Total: len(s.incidents)}
	for _, inc := range s.incidents {
		switch inc.Status {
		case models.StatusOpen:
			stats.Open++
		case models.StatusResolved:
			stats.Resolved++
		}
		if inc.AutoRecovered {
			stats.AutoRecovered++
		}
	}
	return stats, nil
}

// CreateAction stores a new recovery action row.
func (s *MemoryStore) CreateAction(_ context.Context, action models.RecoveryAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionIndex[action.ID] = len(s.actions)
	s.actions = append(s.actions, action)
	return nil
}

// CompleteAction finalises a pending action exactly once.
func (s *MemoryStore) CompleteAction(_ context.Context, id string, status models.ActionStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.actionIndex[id]
	if !ok {
		return models.ErrNotFound
	}
	s.actions[idx].Status = status
	s.actions[idx].ErrorMessage = errMsg
	return nil
}

// ListActions returns actions in attempt order, optionally scoped to one incident.
func (s *MemoryStore) ListActions(_ context.Context, incidentID string) ([]models.RecoveryAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.RecoveryAction, 0, len(s.actions))
	for _, action := range s.actions {
		if incidentID != "" && action.IncidentID != incidentID {
			continue
		}
		result = append(result, action)
	}
	return result, nil
}

// RecoveryStats aggregates action counters.
func (s *MemoryStore) RecoveryStats(_ context.Context) (models.RecoveryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.RecoveryStats{TotalActions: len(s.actions)}
	for _, action := range s.actions {
		switch action.Status {
		case models.ActionSuccess:
			stats.Successful++
		case models.ActionFailed:
			stats.Failed++
		}
	}
	if stats.TotalActions > 0 {
		rate := float64(stats.Successful) / float64(stats.TotalActions) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

// Ping always succeeds for the in-memory backend.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func applyPatch(inc *models.Incident, patch IncidentPatch) {
	if patch.Status != nil {
		inc.Status = *patch.Status
	}
	if patch.ResolvedAt != nil {
		inc.ResolvedAt = patch.ResolvedAt
	}
	if patch.AutoRecovered != nil {
		inc.AutoRecovered = *patch.AutoRecovered
	}
	if patch.RecoveryAction != nil {
		inc.RecoveryAction = *patch.RecoveryAction
	}
}
