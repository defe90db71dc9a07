package recovery

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guardianstack/guardian-engine/internal/incidents"
	"github.com/guardianstack/guardian-engine/internal/models"
	"github.com/guardianstack/guardian-engine/internal/store"
)

// countingExecutor tracks how many actions run at once.
type countingExecutor struct {
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (e *countingExecutor) Execute(ctx context.Context, action, service string) error {
	current := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		observed := e.peak.Load()
		if current <= observed || e.peak.CompareAndSwap(observed, current) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return nil
}

func TestRunnerTriggerDeliversResult(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	lc := incidents.NewLifecycle(s, nil, nil)
	exec := &countingExecutor{}
	runner := NewRunner(NewOrchestrator(s, lc, DefaultCatalog(), exec, time.Second, nil), 4, nil)

	inc, err := lc.Create(ctx, "web-api", "cpu", 95, 80)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	handle := runner.Trigger(ctx, inc.ID)
	result, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !result.Recovered || result.IncidentID != inc.ID {
		t.Fatalf("unexpected result: %+v", result)
	}

	got, _ := s.GetIncident(ctx, inc.ID)
	if got.Status != models.StatusResolved {
		t.Fatalf("expected resolved incident, got %s", got.Status)
	}
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	lc := incidents.NewLifecycle(s, nil, nil)
	exec := &countingExecutor{}
	runner := NewRunner(NewOrchestrator(s, lc, DefaultCatalog(), exec, time.Second, nil), 2, nil)

	handles := make([]*Handle, 0, 6)
	for i := 0; i < 6; i++ {
		inc, err := lc.Create(ctx, "web-api", "cpu", 95, 80)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		handles = append(handles, runner.Trigger(ctx, inc.ID))
	}
	for _, h := range handles {
		if _, err := h.Wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}

	if peak := exec.peak.Load(); peak > 2 {
		t.Fatalf("semaphore breached: %d attempts in flight", peak)
	}
}

func TestRunnerWaitRespectsContext(t *testing.T) {
	s := store.NewMemoryStore()
	lc := incidents.NewLifecycle(s, nil, nil)
	exec := &countingExecutor{}
	runner := NewRunner(NewOrchestrator(s, lc, DefaultCatalog(), exec, time.Second, nil), 1, nil)

	inc, err := lc.Create(context.Background(), "web-api", "cpu", 95, 80)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	handle := runner.Trigger(context.Background(), inc.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := handle.Wait(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The task itself still runs to completion.
	if _, err := handle.Wait(context.Background()); err != nil {
		t.Fatalf("second wait: %v", err)
	}
}

func TestRunnerShutdownDrains(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	lc := incidents.NewLifecycle(s, nil, nil)
	exec := &countingExecutor{}
	runner := NewRunner(NewOrchestrator(s, lc, DefaultCatalog(), exec, time.Second, nil), 2, nil)

	for i := 0; i < 4; i++ {
		inc, err := lc.Create(ctx, "web-api", "cpu", 95, 80)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		runner.Trigger(ctx, inc.ID)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	open, err := s.ListIncidents(ctx, store.ListIncidentsFilter{Statuses: []models.IncidentStatus{models.StatusOpen, models.StatusInvestigating}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected all incidents settled after drain, %d still active", len(open))
	}
}
