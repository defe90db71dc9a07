package incidents

import (
	"testing"

	"github.com/guardianstack/guardian-engine/internal/models"
)

func TestClassifySeverity(t *testing.T) {
	cases := []struct {
		name      string
		value     float64
		threshold float64
		want      models.Severity
	}{
		{"critical above 50 percent excess", 180, 100, models.SeverityCritical},
		{"high at 30 percent excess", 130, 100, models.SeverityHigh},
		{"medium at 15 percent excess", 115, 100, models.SeverityMedium},
		{"low at 5 percent excess", 105, 100, models.SeverityLow},
		{"critical boundary is exclusive", 150, 100, models.SeverityHigh},
		{"high boundary is exclusive", 125, 100, models.SeverityMedium},
		{"medium boundary is exclusive", 110, 100, models.SeverityLow},
		{"exactly at threshold", 100, 100, models.SeverityLow},
		{"cpu table values", 130, 80, models.SeverityCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySeverity(tc.value, tc.threshold); got != tc.want {
				t.Fatalf("ClassifySeverity(%v, %v) = %s, want %s", tc.value, tc.threshold, got, tc.want)
			}
		})
	}
}
