package recovery

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/guardianstack/guardian-engine/internal/models"
)

// Strategy is one candidate remediation action. Lower priority is tried first.
type Strategy struct {
	Action   string `yaml:"action"`
	Priority int    `yaml:"priority"`
}

// Catalog maps metric categories onto their ordered remediation strategies.
// It is immutable after construction; strategy packs are loaded once at boot.
type Catalog struct {
	entries map[models.MetricCategory][]Strategy
}

// catalogFile is the YAML root of an on-disk strategy pack.
type catalogFile struct {
	Strategies map[string][]Strategy `yaml:"strategies"`
}

// DefaultCatalog returns the built-in strategy table.
func DefaultCatalog() *Catalog {
	return &Catalog{entries: map[models.MetricCategory][]Strategy{
		models.CategoryCPU: {
			{Action: "restart_service", Priority: 1},
			{Action: "scale_horizontally", Priority: 2},
			{Action: "optimize_resources", Priority: 3},
		},
		models.CategoryMemory: {
			{Action: "clear_cache", Priority: 1},
			{Action: "restart_service", Priority: 2},
			{Action: "scale_vertically", Priority: 3},
		},
		models.CategoryDisk: {
			{Action: "cleanup_logs", Priority: 1},
			{Action: "archive_data", Priority: 2},
			{Action: "expand_storage", Priority: 3},
		},
		models.CategoryResponseTime: {
			{Action: "restart_service", Priority: 1},
			{Action: "scale_horizontally", Priority: 2},
			{Action: "enable_caching", Priority: 3},
		},
		models.CategoryErrorRate: {
			{Action: "rollback_deployment", Priority: 1},
			{Action: "restart_service", Priority: 2},
			{Action: "enable_circuit_breaker", Priority: 3},
		},
	}}
}

// LoadCatalog reads a strategy pack from path, overlaying the built-in table
// category by category. Empty path or a missing file falls back to the
// defaults, mirroring how optional rule packs load elsewhere in the stack.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return catalog, nil
		}
		return nil, fmt.Errorf("read strategy pack: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategy pack: %w", err)
	}

	for name, strategies := range file.Strategies {
		if len(strategies) == 0 {
			continue
		}
		catalog.entries[models.MetricCategory(name)] = strategies
	}
	return catalog, nil
}

// Strategies returns the plan for a category in priority order (ascending),
// or nil when the category has no mapping.
func (c *Catalog) Strategies(category models.MetricCategory) []Strategy {
	strategies, ok := c.entries[category]
	if !ok {
		return nil
	}

	plan := append([]Strategy(nil), strategies...)
	sort.SliceStable(plan, func(i, j int) bool { return plan[i].Priority < plan[j].Priority })
	return plan
}
