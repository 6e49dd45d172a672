package catalog

import "sort"

// MergeModels unions model lists by normalized id. Lists are applied in
// order: later lists win field-by-field where they carry data, and
// capabilities accumulate across sources. The result is sorted by id.
func MergeModels(lists ...[]Model) []Model {
	merged := make(map[string]Model)

	for _, list := range lists {
		for _, m := range list {
			key := NormalizeID(m.ID)
			if key == "" {
				continue
			}

			base, ok := merged[key]
			if !ok {
				merged[key] = m
				continue
			}

			merged[key] = overlayModel(base, m)
		}
	}

	models := make([]Model, 0, len(merged))
	for _, m := range merged {
		models = append(models, m)
	}

	sortModels(models)

	return models
}

// overlayModel lays overlay's populated fields over base. Capabilities are
// unioned rather than replaced.
func overlayModel(base, overlay Model) Model {
	out := base

	if overlay.ID != "" {
		out.ID = overlay.ID
	}
	if overlay.Name != "" {
		out.Name = overlay.Name
	}
	if overlay.Backend != "" {
		out.Backend = overlay.Backend
	}
	if overlay.ContextLength > 0 {
		out.ContextLength = overlay.ContextLength
	}
	if overlay.Family != "" {
		out.Family = overlay.Family
	}
	if overlay.ParameterSize != "" {
		out.ParameterSize = overlay.ParameterSize
	}
	if overlay.OwnedBy != "" {
		out.OwnedBy = overlay.OwnedBy
	}
	out.Capabilities = unionCapabilities(base.Capabilities, overlay.Capabilities)

	return out
}

func unionCapabilities(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, caps := range [][]string{a, b} {
		for _, c := range caps {
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}

	sort.Strings(out)

	return out
}
