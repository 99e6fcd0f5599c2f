// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// Request is a prediction request that passed both validation gates.
type Request struct {
	Request         string            `json:"request"`
	Readout         string            `json:"readout"`
	PredictionTasks []PredictionTask  `json:"prediction_tasks"`
	Sequences       map[string]string `json:"sequences"`

	// PredictionRanges maps sequence ids to inclusive [start, end] trims.
	// An empty range leaves the sequence whole.
	PredictionRanges map[string][]int `json:"prediction_ranges,omitempty"`
	UpstreamSeq      string           `json:"upstream_seq,omitempty"`
	DownstreamSeq    string           `json:"downstream_seq,omitempty"`
}

// PredictionTask is one requested output.
type PredictionTask struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	CellType string `json:"cell_type"`
	Species  string `json:"species"`
	Scale    string `json:"scale,omitempty"`
}

// document is a request payload decoded without a schema. Numbers are kept
// as json.Number so integers can be told apart from floats.
type document map[string]any

var errNotObject = errors.New("request must be a JSON object")

func decodeDocument(payload []byte) (document, error) {
	if !utf8.Valid(payload) {
		return nil, errors.New("request is not valid UTF-8")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the top-level value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return document(obj), nil
}

// isHelp reports whether the payload asks for the help document.
func (d document) isHelp() bool {
	req, ok := d["request"].(string)
	return ok && req == "help"
}

func (d document) tasks() []map[string]any {
	list, _ := d["prediction_tasks"].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if task, ok := item.(map[string]any); ok {
			out = append(out, task)
		}
	}
	return out
}

// taskLabel names a task in messages: its name, or its position when the
// name is missing or not a string.
func taskLabel(task map[string]any, i int) string {
	if name, ok := task["name"].(string); ok {
		return name
	}
	return fmt.Sprintf("#%d", i)
}

// buildRequest converts a document that passed both gates.
func buildRequest(d document) *Request {
	req := &Request{}
	req.Request, _ = d["request"].(string)
	req.Readout, _ = d["readout"].(string)
	req.UpstreamSeq, _ = d["upstream_seq"].(string)
	req.DownstreamSeq, _ = d["downstream_seq"].(string)

	for _, task := range d.tasks() {
		t := PredictionTask{}
		t.Name, _ = task["name"].(string)
		t.Type, _ = task["type"].(string)
		t.CellType, _ = task["cell_type"].(string)
		t.Species, _ = task["species"].(string)
		t.Scale, _ = task["scale"].(string)
		req.PredictionTasks = append(req.PredictionTasks, t)
	}

	seqs, _ := d["sequences"].(map[string]any)
	req.Sequences = make(map[string]string, len(seqs))
	for id, v := range seqs {
		req.Sequences[id], _ = v.(string)
	}

	if ranges, ok := d["prediction_ranges"].(map[string]any); ok {
		req.PredictionRanges = make(map[string][]int, len(ranges))
		for id, v := range ranges {
			bounds, _ := v.([]any)
			r := make([]int, 0, len(bounds))
			for _, b := range bounds {
				n, _ := asInt(b)
				r = append(r, n)
			}
			req.PredictionRanges[id] = r
		}
	}
	return req
}

// asInt accepts JSON integers only; 1.0 and 1e3 are not integers.
func asInt(v any) (int, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	n, err := num.Int64()
	if err != nil {
		return 0, false
	}
	return int(n), true
}
