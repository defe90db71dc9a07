// Package notify carries incident lifecycle transitions to outbound
// consumers. Dispatch is best-effort: a failed or slow notifier must never
// affect incident state, so callers fire events asynchronously and only log
// errors.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/guardianstack/guardian-engine/internal/models"
)

// Event describes a single lifecycle transition.
type Event struct {
	IncidentID     string                `json:"incident_id"`
	Service        string                `json:"service_name"`
	PreviousStatus models.IncidentStatus `json:"previous_status"`
	NewStatus      models.IncidentStatus `json:"new_status"`
	Severity       models.Severity       `json:"severity,omitempty"`
	RecoveryAction string                `json:"recovery_action,omitempty"`
	OccurredAt     time.Time             `json:"occurred_at"`
}

// Notifier consumes lifecycle events.
type Notifier interface {
	Dispatch(ctx context.Context, event Event) error
}

// LogNotifier writes events to the structured log. Default backend when no
// webhook is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Dispatch logs the transition.
func (n *LogNotifier) Dispatch(_ context.Context, event Event) error {
	n.logger.Info("incident transition",
		slog.String("incident_id", event.IncidentID),
		slog.String("service", event.Service),
		slog.String("from", string(event.PreviousStatus)),
		slog.String("to", string(event.NewStatus)),
		slog.String("recovery_action", event.RecoveryAction),
	)
	return nil
}
