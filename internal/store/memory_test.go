package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianstack/guardian-engine/internal/models"
)

func openIncident(id, service string) models.Incident {
	return models.Incident{
		ID:         id,
		Title:      service + " - High CPU",
		Severity:   models.SeverityHigh,
		Status:     models.StatusOpen,
		Service:    service,
		Category:   models.CategoryCPU,
		DetectedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreIncidentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateIncident(ctx, openIncident("inc-1", "web-api")))

	inc, err := s.GetIncident(ctx, "inc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, inc.Status)

	_, err = s.GetIncident(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStoreTransitionCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIncident(ctx, openIncident("inc-1", "web-api")))

	inc, err := s.TransitionIncident(ctx, "inc-1", models.StatusOpen, models.StatusInvestigating, IncidentPatch{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInvestigating, inc.Status)

	// Second CAS from open must lose and report the observed status.
	_, err = s.TransitionIncident(ctx, "inc-1", models.StatusOpen, models.StatusInvestigating, IncidentPatch{})
	var conflict *StatusConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.StatusInvestigating, conflict.Current)

	_, err = s.TransitionIncident(ctx, "missing", models.StatusOpen, models.StatusInvestigating, IncidentPatch{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStoreTransitionConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIncident(ctx, openIncident("inc-1", "web-api")))

	const racers = 16
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		go func() {
			_, err := s.TransitionIncident(ctx, "inc-1", models.StatusOpen, models.StatusInvestigating, IncidentPatch{})
			wins <- err == nil
		}()
	}

	won := 0
	for i := 0; i < racers; i++ {
		if <-wins {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one racer may take open -> investigating")
}

func TestMemoryStoreTransitionAppliesPatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIncident(ctx, openIncident("inc-1", "web-api")))
	_, err := s.TransitionIncident(ctx, "inc-1", models.StatusOpen, models.StatusInvestigating, IncidentPatch{})
	require.NoError(t, err)

	resolvedAt := time.Now().UTC()
	auto := true
	action := "restart_service"
	inc, err := s.TransitionIncident(ctx, "inc-1", models.StatusInvestigating, models.StatusResolved, IncidentPatch{
		ResolvedAt:     &resolvedAt,
		AutoRecovered:  &auto,
		RecoveryAction: &action,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, inc.Status)
	require.NotNil(t, inc.ResolvedAt)
	assert.Equal(t, resolvedAt, *inc.ResolvedAt)
	assert.True(t, inc.AutoRecovered)
	assert.Equal(t, "restart_service", inc.RecoveryAction)
}

func TestMemoryStoreListIncidents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIncident(ctx, openIncident("inc-1", "web-api")))
	require.NoError(t, s.CreateIncident(ctx, openIncident("inc-2", "database")))
	_, err := s.TransitionIncident(ctx, "inc-2", models.StatusOpen, models.StatusInvestigating, IncidentPatch{})
	require.NoError(t, err)

	all, err := s.ListIncidents(ctx, ListIncidentsFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "inc-2", all[0].ID, "newest first")

	active, err := s.ListIncidents(ctx, ListIncidentsFilter{Statuses: []models.IncidentStatus{models.StatusOpen, models.StatusInvestigating}})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	onlyOpen, err := s.ListIncidents(ctx, ListIncidentsFilter{Statuses: []models.IncidentStatus{models.StatusOpen}})
	require.NoError(t, err)
	require.Len(t, onlyOpen, 1)
	assert.Equal(t, "inc-1", onlyOpen[0].ID)

	limited, err := s.ListIncidents(ctx, ListIncidentsFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateIncident(ctx, openIncident("inc-1", "web-api")))
	require.NoError(t, s.CreateIncident(ctx, openIncident("inc-2", "database")))

	_, err := s.TransitionIncident(ctx, "inc-2", models.StatusOpen, models.StatusInvestigating, IncidentPatch{})
	require.NoError(t, err)
	auto := true
	_, err = s.TransitionIncident(ctx, "inc-2", models.StatusInvestigating, models.StatusResolved, IncidentPatch{AutoRecovered: &auto})
	require.NoError(t, err)

	stats, err := s.IncidentStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentStats{Total: 2, Open: 1, Resolved: 1, AutoRecovered: 1}, stats)
}

func TestMemoryStoreRecoveryStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	stats, err := s.RecoveryStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.SuccessRate, "no actions means zero success rate")

	require.NoError(t, s.CreateIncident(ctx, openIncident("inc-1", "web-api")))
	for i := 0; i < 10; i++ {
		action := models.RecoveryAction{
			ID:         string(rune('a' + i)),
			IncidentID: "inc-1",
			ActionType: "restart_service",
			Status:     models.ActionPending,
			ExecutedAt: time.Now().UTC(),
		}
		require.NoError(t, s.CreateAction(ctx, action))
		status := models.ActionSuccess
		if i >= 8 {
			status = models.ActionFailed
		}
		require.NoError(t, s.CompleteAction(ctx, action.ID, status, ""))
	}

	stats, err = s.RecoveryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalActions)
	assert.Equal(t, 8, stats.Successful)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 80.0, stats.SuccessRate)
}

func TestMemoryStoreListActionsOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, id := range []string{"act-1", "act-2", "act-3"} {
		require.NoError(t, s.CreateAction(ctx, models.RecoveryAction{ID: id, IncidentID: "inc-1", ExecutedAt: time.Now().UTC()}))
	}
	require.NoError(t, s.CreateAction(ctx, models.RecoveryAction{ID: "act-other", IncidentID: "inc-2", ExecutedAt: time.Now().UTC()}))

	actions, err := s.ListActions(ctx, "inc-1")
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, "act-1", actions[0].ID, "attempt order preserved")

	all, err := s.ListActions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestMemoryStoreSamples(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendSample(ctx, models.MetricSample{
			ID:        string(rune('a' + i)),
			Service:   "web-api",
			Metric:    "cpu",
			Value:     float64(50 + i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Healthy:   true,
		}))
	}

	samples, err := s.ListSamples(ctx, "web-api", "cpu", 3)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 52.0, samples[0].Value, "truncated to most recent, temporal order kept")
	assert.True(t, samples[0].Timestamp.Before(samples[2].Timestamp))
}
