package incidents

import "github.com/guardianstack/guardian-engine/internal/models"

// ClassifySeverity maps how far a value exceeds its threshold onto a severity
// tier. Bands are open on the lower bound (strict >): excess above 50% is
// critical, above 25% high, above 10% medium, anything else low.
//
// A zero threshold is undefined behaviour; callers must not classify metrics
// without a real threshold.
func ClassifySeverity(value, threshold float64) models.Severity {
	excess := (value - threshold) / threshold

	switch {
	case excess > 0.50:
		return models.SeverityCritical
	case excess > 0.25:
		return models.SeverityHigh
	case excess > 0.10:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
