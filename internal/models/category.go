package models

import "strings"

// CategoryForMetric maps a metric name onto its category, or "" when the
// metric is unknown.
func CategoryForMetric(metric string) MetricCategory {
	for _, category := range KnownCategories {
		if string(category) == metric {
			return category
		}
	}
	return ""
}

// InferCategory scans free text for the first known category name, in the
// canonical KnownCategories order. Fallback for incidents that were created
// without an explicit category; the stored category is always preferred.
func InferCategory(text string) MetricCategory {
	lowered := strings.ToLower(text)
	for _, category := range KnownCategories {
		if strings.Contains(lowered, string(category)) {
			return category
		}
	}
	return ""
}
