package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/guardianstack/guardian-engine/internal/models"
)

func TestDefaultCatalogPriorityOrder(t *testing.T) {
	catalog := DefaultCatalog()

	cases := []struct {
		category models.MetricCategory
		want     []string
	}{
		{models.CategoryCPU, []string{"restart_service", "scale_horizontally", "optimize_resources"}},
		{models.CategoryMemory, []string{"clear_cache", "restart_service", "scale_vertically"}},
		{models.CategoryDisk, []string{"cleanup_logs", "archive_data", "expand_storage"}},
		{models.CategoryResponseTime, []string{"restart_service", "scale_horizontally", "enable_caching"}},
		{models.CategoryErrorRate, []string{"rollback_deployment", "restart_service", "enable_circuit_breaker"}},
	}

	for _, tc := range cases {
		plan := catalog.Strategies(tc.category)
		if len(plan) != len(tc.want) {
			t.Fatalf("%s: expected %d strategies, got %d", tc.category, len(tc.want), len(plan))
		}
		for i, strategy := range plan {
			if strategy.Action != tc.want[i] {
				t.Fatalf("%s: strategy %d = %s, want %s", tc.category, i, strategy.Action, tc.want[i])
			}
		}
	}

	if plan := catalog.Strategies("network"); plan != nil {
		t.Fatalf("unmapped category must have no plan, got %v", plan)
	}
}

func TestLoadCatalogOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	pack := `strategies:
  cpu:
    - action: drain_node
      priority: 2
    - action: restart_service
      priority: 1
  network:
    - action: reset_links
      priority: 1
`
	if err := os.WriteFile(path, []byte(pack), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	cpu := catalog.Strategies(models.CategoryCPU)
	if len(cpu) != 2 || cpu[0].Action != "restart_service" || cpu[1].Action != "drain_node" {
		t.Fatalf("overlay not applied in priority order: %v", cpu)
	}

	// Untouched categories keep their defaults.
	memory := catalog.Strategies(models.CategoryMemory)
	if len(memory) != 3 || memory[0].Action != "clear_cache" {
		t.Fatalf("default memory plan lost: %v", memory)
	}

	network := catalog.Strategies("network")
	if len(network) != 1 || network[0].Action != "reset_links" {
		t.Fatalf("new category not loaded: %v", network)
	}
}

func TestLoadCatalogMissingFileFallsBack(t *testing.T) {
	catalog, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if plan := catalog.Strategies(models.CategoryCPU); len(plan) != 3 {
		t.Fatalf("expected default plan, got %v", plan)
	}
}

func TestLoadCatalogRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("strategies: ["), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected parse error")
	}
}
