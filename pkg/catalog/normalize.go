package catalog

import "strings"

// NormalizeID canonicalizes a model identifier for catalog matching:
// lowercased, trimmed, the implicit ":latest" tag dropped, and trailing
// date stamps removed so dated snapshots match their base model.
func NormalizeID(model string) string {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if normalized == "" {
		return normalized
	}

	normalized = strings.TrimSuffix(normalized, ":latest")

	// Trailing -YYYYMMDD stamp (8 consecutive digits)
	if idx := strings.LastIndex(normalized, "-"); idx != -1 {
		suffix := normalized[idx+1:]
		if len(suffix) == 8 && isDigits(suffix) {
			normalized = normalized[:idx]
		}
	}

	// Trailing -YYYY-MM-DD stamp
	normalized = stripDateSuffix(normalized)

	return normalized
}

// stripDateSuffix removes a trailing -YYYY-MM-DD date suffix from a model id.
func stripDateSuffix(model string) string {
	// Minimum length: base + "-YYYY-MM-DD" = at least 11 chars for the suffix
	if len(model) < 12 {
		return model
	}

	suffix := model[len(model)-11:]
	if suffix[0] != '-' {
		return model
	}

	date := suffix[1:] // "YYYY-MM-DD"
	if len(date) == 10 && isDigits(date[0:4]) && date[4] == '-' && isDigits(date[5:7]) && date[7] == '-' && isDigits(date[8:10]) {
		return model[:len(model)-11]
	}

	return model
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
