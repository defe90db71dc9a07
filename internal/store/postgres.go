package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	_ "github.com/lib/pq"

	"github.com/guardianstack/guardian-engine/internal/models"
)

// PostgresStore persists the three engine relations (metric_samples,
// incidents, recovery_actions) in Postgres. The compare-and-set transition is
// a conditional UPDATE, so the guard holds across replicas sharing one
// database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against dsn, verifies
// connectivity, and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS metric_samples (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			service_name TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			metric_value DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			is_healthy BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			service_name TEXT NOT NULL,
			metric_category TEXT NOT NULL DEFAULT '',
			detected_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ,
			auto_recovered BOOLEAN NOT NULL DEFAULT FALSE,
			recovery_action TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			metric_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			threshold_value DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS recovery_actions (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			incident_id TEXT NOT NULL REFERENCES incidents(id),
			action_type TEXT NOT NULL,
			action_details TEXT NOT NULL,
			status TEXT NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_incident ON recovery_actions(incident_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// AppendSample records a metric sample.
func (s *PostgresStore) AppendSample(ctx context.Context, sample models.MetricSample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metric_samples (id, service_name, metric_name, metric_value, recorded_at, is_healthy)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sample.ID, sample.Service, sample.Metric, sample.Value, sample.Timestamp, sample.Healthy)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// ListSamples returns samples in temporal order, truncated to the most recent
// limit entries.
func (s *PostgresStore) ListSamples(ctx context.Context, service, metric string, limit int) ([]models.MetricSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, service_name, metric_name, metric_value, recorded_at, is_healthy
		 FROM (
			SELECT * FROM metric_samples
			WHERE ($1 = '' OR service_name = $1) AND ($2 = '' OR metric_name = $2)
			ORDER BY seq DESC LIMIT $3
		 ) recent ORDER BY seq ASC`,
		service, metric, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	samples := make([]models.MetricSample, 0)
	for rows.Next() {
		var sample models.MetricSample
		if err := rows.Scan(&sample.ID, &sample.Service, &sample.Metric, &sample.Value, &sample.Timestamp, &sample.Healthy); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

const incidentColumns = `id, title, description, severity, status, service_name, metric_category,
	detected_at, resolved_at, auto_recovered, recovery_action, error_message, metric_value, threshold_value`

// CreateIncident stores a new incident row.
func (s *PostgresStore) CreateIncident(ctx context.Context, inc models.Incident) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (`+incidentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		inc.ID, inc.Title, inc.Description, string(inc.Severity), string(inc.Status), inc.Service,
		string(inc.Category), inc.DetectedAt, inc.ResolvedAt, inc.AutoRecovered, inc.RecoveryAction,
		inc.ErrorMessage, inc.MetricValue, inc.Threshold)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// GetIncident fetches an incident by id.
func (s *PostgresStore) GetIncident(ctx context.Context, id string) (models.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	return scanIncident(row)
}

// ListIncidents returns incidents newest first, filtered and limited.
func (s *PostgresStore) ListIncidents(ctx context.Context, filter ListIncidentsFilter) ([]models.Incident, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	args := []interface{}{}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += fmt.Sprintf(` ORDER BY seq DESC LIMIT $%d`, len(args)+1)
	args = append(args, normalizeLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]models.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// TransitionIncident performs the conditional status update. A zero-row
// update means the guard lost the race: the current status is re-read and
// reported via StatusConflictError.
func (s *PostgresStore) TransitionIncident(ctx context.Context, id string, from, to models.IncidentStatus, patch IncidentPatch) (models.Incident, error) {
	set, args := patchClauses(patch, 3)
	query := `UPDATE incidents SET status = $1` + set + ` WHERE id = $2 AND status = $` + fmt.Sprint(len(args)+3) +
		` RETURNING ` + incidentColumns
	allArgs := append([]interface{}{string(to), id}, args...)
	allArgs = append(allArgs, string(from))

	inc, err := scanIncident(s.db.QueryRowContext(ctx, query, allArgs...))
	if err == nil {
		return inc, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.Incident{}, err
	}

	// No row matched: distinguish a missing incident from a lost race.
	var current string
	switch err := s.db.QueryRowContext(ctx, `SELECT status FROM incidents WHERE id = $1`, id).Scan(&current); {
	case errors.Is(err, sql.ErrNoRows):
		return models.Incident{}, models.ErrNotFound
	case err != nil:
		return models.Incident{}, fmt.Errorf("read incident status: %w", err)
	}
	return models.Incident{}, &StatusConflictError{ID: id, Current: models.IncidentStatus(current)}
}

// UpdateIncident applies patch unconditionally.
func (s *PostgresStore) UpdateIncident(ctx context.Context, id string, patch IncidentPatch) (models.Incident, error) {
	set, args := patchClauses(patch, 2)
	if set == "" {
		return s.GetIncident(ctx, id)
	}
	query := `UPDATE incidents SET ` + strings.TrimPrefix(set, ", ") + ` WHERE id = $1 RETURNING ` + incidentColumns
	allArgs := append([]interface{}{id}, args...)
	return scanIncident(s.db.QueryRowContext(ctx, query, allArgs...))
}

// IncidentStats counts incidents by lifecycle state.
func (s *PostgresStore) IncidentStats(ctx context.Context) (models.IncidentStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'open'),
		        COUNT(*) FILTER (WHERE status = 'resolved'),
		        COUNT(*) FILTER (WHERE auto_recovered)
		 FROM incidents`)
	var stats models.IncidentStats
	if err := row.Scan(&stats.Total, &stats.Open, &stats.Resolved, &stats.AutoRecovered); err != nil {
		return models.IncidentStats{}, fmt.Errorf("incident stats: %w", err)
	}
	return stats, nil
}

// CreateAction stores a new recovery action row.
func (s *PostgresStore) CreateAction(ctx context.Context, action models.RecoveryAction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recovery_actions (id, incident_id, action_type, action_details, status, executed_at, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		action.ID, action.IncidentID, action.ActionType, action.Details, string(action.Status),
		action.ExecutedAt, action.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// CompleteAction finalises a pending action.
func (s *PostgresStore) CompleteAction(ctx context.Context, id string, status models.ActionStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recovery_actions SET status = $1, error_message = $2 WHERE id = $3`,
		string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("complete action: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListActions returns actions in attempt order, optionally scoped to one incident.
func (s *PostgresStore) ListActions(ctx context.Context, incidentID string) ([]models.RecoveryAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, incident_id, action_type, action_details, status, executed_at, error_message
		 FROM recovery_actions
		 WHERE ($1 = '' OR incident_id = $1)
		 ORDER BY seq ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	actions := make([]models.RecoveryAction, 0)
	for rows.Next() {
		var action models.RecoveryAction
		var status string
		if err := rows.Scan(&action.ID, &action.IncidentID, &action.ActionType, &action.Details, &status, &action.ExecutedAt, &action.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		action.Status = models.ActionStatus(status)
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// RecoveryStats aggregates action counters.
func (s *PostgresStore) RecoveryStats(ctx context.Context) (models.RecoveryStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'success'),
		        COUNT(*) FILTER (WHERE status = 'failed')
		 FROM recovery_actions`)
	var stats models.RecoveryStats
	if err := row.Scan(&stats.TotalActions, &stats.Successful, &stats.Failed); err != nil {
		return models.RecoveryStats{}, fmt.Errorf("recovery stats: %w", err)
	}
	if stats.TotalActions > 0 {
		rate := float64(stats.Successful) / float64(stats.TotalActions) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (models.Incident, error) {
	var inc models.Incident
	var severity, status, category string
	var resolvedAt sql.NullTime
	err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &severity, &status, &inc.Service, &category,
		&inc.DetectedAt, &resolvedAt, &inc.AutoRecovered, &inc.RecoveryAction, &inc.ErrorMessage,
		&inc.MetricValue, &inc.Threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Incident{}, models.ErrNotFound
	}
	if err != nil {
		return models.Incident{}, fmt.Errorf("scan incident: %w", err)
	}
	inc.Severity = models.Severity(severity)
	inc.Status = models.IncidentStatus(status)
	inc.Category = models.MetricCategory(category)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		inc.ResolvedAt = &t
	}
	return inc, nil
}

// patchClauses renders patch fields as SQL SET fragments starting at
// placeholder $start.
func patchClauses(patch IncidentPatch, start int) (string, []interface{}) {
	var set strings.Builder
	args := []interface{}{}
	next := func() int { return start + len(args) }

	if patch.Status != nil {
		fmt.Fprintf(&set, ", status = $%d", next())
		args = append(args, string(*patch.Status))
	}
	if patch.ResolvedAt != nil {
		fmt.Fprintf(&set, ", resolved_at = $%d", next())
		args = append(args, *patch.ResolvedAt)
	}
	if patch.AutoRecovered != nil {
		fmt.Fprintf(&set, ", auto_recovered = $%d", next())
		args = append(args, *patch.AutoRecovered)
	}
	if patch.RecoveryAction != nil {
		fmt.Fprintf(&set, ", recovery_action = $%d", next())
		args = append(args, *patch.RecoveryAction)
	}
	return set.String(), args
}
