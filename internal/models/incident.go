package models

import "time"

// Severity captures how far a metric sample exceeded its threshold.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IncidentStatus enumerates the incident lifecycle states.
type IncidentStatus string

const (
	StatusOpen          IncidentStatus = "open"
	StatusInvestigating IncidentStatus = "investigating"
	StatusResolved      IncidentStatus = "resolved"
	StatusClosed        IncidentStatus = "closed"
)

// Terminal reports whether automated recovery must not touch the incident anymore.
func (s IncidentStatus) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Valid reports whether the status is one of the known lifecycle states.
func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// MetricCategory identifies the class of metric an incident originated from.
// The zero value means the category is unknown.
type MetricCategory string

const (
	CategoryCPU          MetricCategory = "cpu"
	CategoryMemory       MetricCategory = "memory"
	CategoryDisk         MetricCategory = "disk"
	CategoryResponseTime MetricCategory = "response_time"
	CategoryErrorRate    MetricCategory = "error_rate"
)

// KnownCategories lists metric categories in their canonical scan order.
// Free-text category inference relies on this ordering being stable.
var KnownCategories = []MetricCategory{
	CategoryCPU,
	CategoryMemory,
	CategoryDisk,
	CategoryResponseTime,
	CategoryErrorRate,
}

// MetricSample is a single health-metric observation. Samples are append-only
// and never mutated once written.
type MetricSample struct {
	ID        string    `json:"id"`
	Service   string    `json:"service_name"`
	Metric    string    `json:"metric_name"`
	Value     float64   `json:"metric_value"`
	Timestamp time.Time `json:"timestamp"`
	Healthy   bool      `json:"is_healthy"`
}

// Incident tracks a threshold breach from detection to resolution.
// Severity is fixed at creation; status moves through the lifecycle guard only.
type Incident struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Severity       Severity       `json:"severity"`
	Status         IncidentStatus `json:"status"`
	Service        string         `json:"service_name"`
	Category       MetricCategory `json:"metric_category,omitempty"`
	DetectedAt     time.Time      `json:"detected_at"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	AutoRecovered  bool           `json:"auto_recovered"`
	RecoveryAction string         `json:"recovery_action,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	MetricValue    float64        `json:"metric_value"`
	Threshold      float64        `json:"threshold_value"`
}

// ActionStatus enumerates the states of a recovery action record.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
)

// RecoveryAction records a single remediation attempt against an incident.
// A record is created pending, completed exactly once, and never mutated
// afterwards; retries create new records.
type RecoveryAction struct {
	ID           string       `json:"id"`
	IncidentID   string       `json:"incident_id"`
	ActionType   string       `json:"action_type"`
	Details      string       `json:"action_details"`
	Status       ActionStatus `json:"status"`
	ExecutedAt   time.Time    `json:"executed_at"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// RecoveryOutcome summarises how an AttemptRecovery run ended.
type RecoveryOutcome string

const (
	OutcomeResolved  RecoveryOutcome = "resolved"
	OutcomeExhausted RecoveryOutcome = "exhausted"
)

// RecoveryResult is the caller-facing summary of a recovery attempt.
type RecoveryResult struct {
	IncidentID string          `json:"incident_id"`
	Recovered  bool            `json:"recovered"`
	Action     string          `json:"action_type,omitempty"`
	Service    string          `json:"service_name,omitempty"`
	Attempts   int             `json:"attempts"`
	Outcome    RecoveryOutcome `json:"outcome"`
}

// IncidentStats aggregates incident counters for reporting.
type IncidentStats struct {
	Total         int `json:"total"`
	Open          int `json:"open"`
	Resolved      int `json:"resolved"`
	AutoRecovered int `json:"auto_recovered"`
}

// RecoveryStats aggregates recovery action counters. SuccessRate is a
// percentage rounded to two decimals, zero when no actions exist.
type RecoveryStats struct {
	TotalActions int     `json:"total_actions"`
	Successful   int     `json:"successful"`
	Failed       int     `json:"failed"`
	SuccessRate  float64 `json:"success_rate"`
}
