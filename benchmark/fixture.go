// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package benchmark builds synthetic prediction workloads.
package benchmark

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Query-farm/predictor/model"
	"github.com/Query-farm/predictor/predictor"
)

// Workload sizes a synthetic request.
type Workload struct {
	Tasks     int
	Sequences int
	// Length is the flanked sequence length; it doubles as the server's
	// required length.
	Length int
	// Flank, when positive, moves that many bases of every sequence into the
	// upstream and downstream flanks.
	Flank int
	// Ranges adds a prediction range covering the middle half of each
	// sequence.
	Ranges bool
}

// CellTypes returns n generated category names.
func CellTypes(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("cell_type_%03d", i)
	}
	return names
}

// Request builds a request document for w whose tasks cycle through
// cellTypes.
func Request(w Workload, cellTypes []string) map[string]any {
	tasks := make([]any, w.Tasks)
	for i := range tasks {
		tasks[i] = map[string]any{
			"name":      fmt.Sprintf("task_%d", i),
			"type":      "accessibility",
			"cell_type": cellTypes[i%len(cellTypes)],
			"species":   predictor.DefaultSpecies,
		}
	}
	body := w.Length - 2*w.Flank
	seqs := make(map[string]any, w.Sequences)
	ranges := make(map[string]any, w.Sequences)
	for i := 0; i < w.Sequences; i++ {
		id := fmt.Sprintf("seq_%d", i)
		seqs[id] = sequence(body, i)
		ranges[id] = []int{w.Length / 4, 3 * w.Length / 4}
	}
	req := map[string]any{
		"request":          "predict",
		"readout":          "point",
		"prediction_tasks": tasks,
		"sequences":        seqs,
	}
	if w.Flank > 0 {
		req["upstream_seq"] = sequence(w.Flank, 1)
		req["downstream_seq"] = sequence(w.Flank, 2)
	}
	if w.Ranges {
		req["prediction_ranges"] = ranges
	}
	return req
}

// Payload is Request encoded as JSON.
func Payload(w Workload, cellTypes []string) ([]byte, error) {
	return json.Marshal(Request(w, cellTypes))
}

// NewServer returns a server that scores with [model.HashScorer] over
// cellTypes and requires sequences of length.
func NewServer(cellTypes []string, length int) (*predictor.Server, error) {
	ix, err := model.NewIndex(cellTypes)
	if err != nil {
		return nil, err
	}
	return predictor.NewServer(predictor.Options{
		RequiredLength: length,
		Help:           []byte(`{"model":"benchmark"}`),
		Index:          ix,
		Scorer:         model.HashScorer{Categories: ix.Len()},
	})
}

// sequence returns n bases; seed rotates the pattern so sequences differ.
func sequence(n, seed int) string {
	const acgt = "ACGT"
	b := make([]byte, n)
	for i := range b {
		b[i] = acgt[(i*(seed+1)+seed)%len(acgt)]
	}
	return string(b)
}
