package models

import "testing"

func TestCategoryForMetric(t *testing.T) {
	if got := CategoryForMetric("cpu"); got != CategoryCPU {
		t.Fatalf("cpu = %q", got)
	}
	if got := CategoryForMetric("response_time"); got != CategoryResponseTime {
		t.Fatalf("response_time = %q", got)
	}
	if got := CategoryForMetric("goroutines"); got != "" {
		t.Fatalf("unknown metric must map to empty category, got %q", got)
	}
}

func TestInferCategory(t *testing.T) {
	cases := []struct {
		text string
		want MetricCategory
	}{
		{"memory exceeded threshold", CategoryMemory},
		{"CPU exceeded threshold", CategoryCPU},
		{"disk usage at 95.00% (threshold: 90%)", CategoryDisk},
		{"response_time exceeded threshold", CategoryResponseTime},
		{"error_rate jumped after deploy", CategoryErrorRate},
		{"mysterious failure", ""},
		// cpu wins over memory when both appear, per scan order.
		{"memory pressure caused cpu spikes", CategoryCPU},
	}
	for _, tc := range cases {
		if got := InferCategory(tc.text); got != tc.want {
			t.Errorf("InferCategory(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
