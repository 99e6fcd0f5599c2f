// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"fmt"
	"slices"
	"strings"
)

var (
	mandatoryKeys     = []string{"request", "readout", "prediction_tasks", "sequences"}
	mandatoryTaskKeys = []string{"name", "type", "cell_type", "species"}
)

// fieldRule describes a single-string field: it must not be a list, must be
// a string and, when Allowed or Prefixes is set, must match one of them.
type fieldRule struct {
	Name     string
	Optional bool
	Allowed  []string
	Prefixes []string
	// Unknown builds the message for a string outside Allowed and Prefixes.
	Unknown func(value string, allowed []string) string
}

var (
	requestRule = fieldRule{
		Name:    "request",
		Allowed: []string{"predict", "help"},
		Unknown: func(string, []string) string {
			return "request is not recognized. Please choose from: 'predict','help'"
		},
	}

	readoutRule = fieldRule{
		Name:    "readout",
		Allowed: []string{"point"},
		Unknown: func(_ string, allowed []string) string {
			return "readout requested is not recognized. Please choose from " + quoteList(allowed)
		},
	}

	// taskRules are checked field by field across all tasks, in this order.
	taskRules = []fieldRule{
		{Name: "name"},
		{
			Name:     "type",
			Allowed:  []string{"accessibility"},
			Prefixes: []string{"binding_"},
			Unknown: func(value string, allowed []string) string {
				return fmt.Sprintf("prediction type %s is not recognized for this predictor. Please choose from %s", value, quoteList(allowed))
			},
		},
		{Name: "cell_type"},
		{Name: "species"},
		{
			Name:     "scale",
			Optional: true,
			Allowed:  []string{"linear", "log"},
			Unknown: func(string, []string) string {
				return "scale requested is not recognized. Please choose from ['log', 'linear']"
			},
		},
	}

	flankRules = []fieldRule{
		{Name: "upstream_seq", Optional: true},
		{Name: "downstream_seq", Optional: true},
	}
)

// check returns the messages for value. Absent optional fields pass; absent
// mandatory fields are reported by the structural gate instead.
func (r fieldRule) check(value any, present bool) []string {
	if !present {
		return nil
	}
	switch v := value.(type) {
	case []any:
		return []string{fmt.Sprintf("'%s' should only have 1 value", r.Name)}
	case string:
		if r.accepts(v) {
			return nil
		}
		return []string{r.Unknown(v, r.Allowed)}
	default:
		return []string{fmt.Sprintf("'%s' value should be a string", r.Name)}
	}
}

func (r fieldRule) accepts(v string) bool {
	if len(r.Allowed) == 0 && len(r.Prefixes) == 0 {
		return true
	}
	if slices.Contains(r.Allowed, v) {
		return true
	}
	for _, p := range r.Prefixes {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}

// quoteList renders names as ['a', 'b'].
func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// missingKeys returns the sorted keys of want absent from obj.
func missingKeys(obj map[string]any, want []string) []string {
	var missing []string
	for _, k := range want {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	slices.Sort(missing)
	return missing
}
