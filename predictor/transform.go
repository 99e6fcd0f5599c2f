// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"unicode/utf8"
)

// DefaultRequiredLength is the flanked sequence length the model accepts.
const DefaultRequiredLength = 2114

// Transformer prepares validated sequences for the model: flanking, length
// check, then range trimming. Lengths and positions count characters, not
// bytes.
type Transformer struct {
	RequiredLength int
}

// Apply returns the prepared sequences, or a prediction_request_failed
// report listing every length and range problem. The request is not
// modified.
func (t Transformer) Apply(req *Request) (map[string]string, *ErrorReport) {
	report := NewErrorReport(ClassRequestFailed)
	ids := sortedKeys(req.Sequences)

	prepared := make(map[string]string, len(req.Sequences))
	for _, id := range ids {
		prepared[id] = req.UpstreamSeq + req.Sequences[id] + req.DownstreamSeq
	}

	for _, id := range ids {
		if utf8.RuneCountInString(prepared[id]) != t.RequiredLength {
			report.Addf("length of a sequence in %s is not equal to %d", id, t.RequiredLength)
		}
	}

	for _, id := range sortedKeys(req.PredictionRanges) {
		bounds := req.PredictionRanges[id]
		if len(bounds) == 0 {
			continue
		}
		seq, ok := prepared[id]
		if !ok {
			continue
		}
		if len(bounds) != 2 {
			report.Addf("Prediction range for '%s' must be [start, end]", id)
			continue
		}
		start, end := bounds[0], bounds[1]
		if start < 0 || end < start {
			report.Addf("Prediction range for '%s' is invalid: start %d, end %d", id, start, end)
			continue
		}
		if end >= utf8.RuneCountInString(seq) {
			report.Addf("Prediction range for '%s' exceeds the sequence length!", id)
			continue
		}
		prepared[id] = substring(seq, start, end+1)
	}

	if !report.Empty() {
		return nil, report
	}
	return prepared, nil
}

// substring returns the characters in [start, end).
func substring(s string, start, end int) string {
	if len(s) == utf8.RuneCountInString(s) {
		return s[start:end]
	}
	runes := []rune(s)
	return string(runes[start:end])
}
