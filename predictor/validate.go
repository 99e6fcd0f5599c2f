// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"slices"
	"strings"
)

// DefaultSpecies is the only species the predictor serves unless configured
// otherwise.
const DefaultSpecies = "mus_musculus"

// Validator runs the two validation gates over a decoded request.
type Validator struct {
	// Species is compared case-insensitively against every task.
	Species string
}

// CheckStructure is the first gate. It checks that the request has the
// shape later stages rely on and returns a non-nil report otherwise.
func (v *Validator) CheckStructure(doc document) *ErrorReport {
	report := NewErrorReport(ClassBadRequest)

	if missing := missingKeys(doc, mandatoryKeys); len(missing) > 0 {
		report.Add("The following keys are missing from the json: " + strings.Join(missing, " "))
	}
	if value, ok := doc["request"]; ok {
		report.Add(requestRule.check(value, true)...)
	}

	if value, ok := doc["prediction_tasks"]; ok {
		list, isList := value.([]any)
		if !isList {
			report.Add("'prediction_tasks' should be a list of objects")
		}
		for i, item := range list {
			task, isObj := item.(map[string]any)
			if !isObj {
				report.Addf("prediction_task #%d should be an object", i)
				continue
			}
			if missing := missingKeys(task, mandatoryTaskKeys); len(missing) > 0 {
				report.Addf("The following keys are missing from prediction_task: %s %s", taskLabel(task, i), quoteList(missing))
			}
		}
	}

	if value, ok := doc["sequences"]; ok {
		if _, isObj := value.(map[string]any); !isObj {
			report.Add("'sequences' should be an object")
		}
	}

	if report.Empty() {
		return nil
	}
	return report
}

// CheckSemantics is the second gate. It must only run on documents that
// passed CheckStructure. Every problem found is reported together.
func (v *Validator) CheckSemantics(doc document) (*Request, *ErrorReport) {
	report := NewErrorReport(ClassBadRequest)

	value, ok := doc["readout"]
	report.Add(readoutRule.check(value, ok)...)

	tasks := doc.tasks()
	for _, rule := range taskRules {
		for _, task := range tasks {
			value, ok := task[rule.Name]
			report.Add(rule.check(value, ok)...)
		}
	}

	seqs := doc["sequences"].(map[string]any)
	for _, id := range sortedKeys(seqs) {
		if _, isStr := seqs[id].(string); !isStr {
			report.Addf("value of '%s' in sequences should be a string", id)
		}
	}

	if value, ok := doc["prediction_ranges"]; ok {
		v.checkRanges(report, value, seqs)
	}

	for _, rule := range flankRules {
		value, ok := doc[rule.Name]
		report.Add(rule.check(value, ok)...)
	}

	for i, task := range tasks {
		species, _ := task["species"].(string)
		if !strings.EqualFold(species, v.Species) {
			report.Addf("This predictor only supports species: %s. Received '%v' for task '%s'.",
				v.Species, task["species"], taskLabel(task, i))
			break
		}
	}

	if !report.Empty() {
		return nil, report
	}
	return buildRequest(doc), nil
}

func (v *Validator) checkRanges(report *ErrorReport, value any, seqs map[string]any) {
	ranges, ok := value.(map[string]any)
	if !ok {
		report.Add("'prediction_ranges' should be an object")
		return
	}
	if !slices.Equal(sortedKeys(ranges), sortedKeys(seqs)) {
		report.Add("sequence ids in prediction_ranges do not match those in sequences")
	}
	for _, id := range sortedKeys(ranges) {
		bounds, isList := ranges[id].([]any)
		if !isList {
			report.Add("values for prediction_ranges should be lists")
			continue
		}
		if len(bounds) > 2 {
			report.Addf("length array in %s is greater than 2", id)
		}
		for _, b := range bounds {
			if _, isInt := asInt(b); !isInt {
				report.Addf("value in %s key is not an integer", id)
			}
		}
	}
}

// Validate runs both gates and reports which one rejected the request.
func (v *Validator) Validate(doc document) (*Request, Outcome, *ErrorReport) {
	if report := v.CheckStructure(doc); report != nil {
		return nil, OutcomeStructural, report
	}
	req, report := v.CheckSemantics(doc)
	if report != nil {
		return nil, OutcomeSemantic, report
	}
	return req, OutcomeSuccess, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
