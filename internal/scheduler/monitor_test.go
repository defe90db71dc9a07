package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/guardianstack/guardian-engine/internal/incidents"
	"github.com/guardianstack/guardian-engine/internal/models"
	"github.com/guardianstack/guardian-engine/internal/recovery"
	"github.com/guardianstack/guardian-engine/internal/store"
)

// fixedSource returns scripted values per service/metric pair.
type fixedSource struct {
	mu     sync.Mutex
	values map[string]float64
}

func (s *fixedSource) Sample(_ context.Context, service, metric string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[service+"/"+metric], nil
}

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, string, string) error { return nil }

func newMonitorFixture(values map[string]float64, targets []Target) (*Monitor, *store.MemoryStore, *recovery.Runner) {
	s := store.NewMemoryStore()
	lc := incidents.NewLifecycle(s, nil, nil)
	eval := incidents.NewEvaluator(nil, s, lc, nil)
	runner := recovery.NewRunner(recovery.NewOrchestrator(s, lc, recovery.DefaultCatalog(), noopExecutor{}, time.Second, nil), 4, nil)
	mon := NewMonitor(&fixedSource{values: values}, eval, runner, targets, time.Hour, nil)
	return mon, s, runner
}

func TestSweepCreatesIncidentsAndTriggersRecovery(t *testing.T) {
	ctx := context.Background()
	mon, s, runner := newMonitorFixture(map[string]float64{
		"web-api/cpu":       95, // breach
		"web-api/memory":    50, // healthy
		"database/disk":     95, // breach
		"cache-server/disk": 40, // healthy
	}, []Target{
		{Service: "web-api", Metrics: []string{"cpu", "memory"}},
		{Service: "database", Metrics: []string{"disk"}},
		{Service: "cache-server", Metrics: []string{"disk"}},
	})

	mon.sweep(ctx)
	if err := runner.Shutdown(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	all, err := s.ListIncidents(ctx, store.ListIncidentsFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(all))
	}
	for _, inc := range all {
		if inc.Status != models.StatusResolved {
			t.Fatalf("background recovery must settle the incident, got %s for %s", inc.Status, inc.Service)
		}
	}

	samples, err := s.ListSamples(ctx, "web-api", "memory", 10)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 1 || !samples[0].Healthy {
		t.Fatalf("healthy sweep samples must still be recorded: %+v", samples)
	}
}

func TestSweepRecordsHealthySamplesOnly(t *testing.T) {
	ctx := context.Background()
	mon, s, runner := newMonitorFixture(map[string]float64{
		"web-api/cpu": 40,
	}, []Target{{Service: "web-api", Metrics: []string{"cpu"}}})

	mon.sweep(ctx)
	if err := runner.Shutdown(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	all, err := s.ListIncidents(ctx, store.ListIncidentsFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("healthy sweep must not open incidents, got %d", len(all))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	mon, _, _ := newMonitorFixture(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on cancellation")
	}
}

func TestSimulatedSourceRanges(t *testing.T) {
	src := NewSimulatedSource()

	src.randFloat = func() float64 { return 0 }
	if v, _ := src.Sample(context.Background(), "web-api", "response_time"); v != 100 {
		t.Fatalf("low edge = %g, want 100", v)
	}

	src.randFloat = func() float64 { return 0.5 }
	if v, _ := src.Sample(context.Background(), "web-api", "cpu"); v < 10 || v >= 99 {
		t.Fatalf("cpu draw out of range: %g", v)
	}

	if v, _ := src.Sample(context.Background(), "web-api", "custom_metric"); v < 0 || v >= 100 {
		t.Fatalf("unknown metric must draw from [0, 100): %g", v)
	}
}
