// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"github.com/Query-farm/predictor/model"
)

// TaskResult is the output of one prediction task. The actual fields repeat
// the requested ones; no remapping is performed.
type TaskResult struct {
	Name              string `json:"name"`
	TypeRequested     string `json:"type_requested"`
	TypeActual        string `json:"type_actual"`
	CellTypeRequested string `json:"cell_type_requested"`
	CellTypeActual    string `json:"cell_type_actual"`
	SpeciesRequested  string `json:"species_requested"`
	SpeciesActual     string `json:"species_actual"`
	// Predictions maps sequence ids to a float (point) or a list of floats
	// (track).
	Predictions map[string]model.Score `json:"predictions"`
}

// Response is a successful prediction reply.
type Response struct {
	Request         string       `json:"request"`
	PredictionTasks []TaskResult `json:"prediction_tasks"`
}

// Assemble builds the reply in task order from the dispatch output.
func Assemble(req *Request, d *Dispatch) *Response {
	resp := &Response{
		Request:         req.Request,
		PredictionTasks: make([]TaskResult, 0, len(req.PredictionTasks)),
	}
	for i, task := range req.PredictionTasks {
		col := d.Columns[i]
		preds := make(map[string]model.Score, len(d.Scores))
		for id, row := range d.Scores {
			if _, asked := req.Sequences[id]; !asked {
				continue
			}
			preds[id] = row[col]
		}
		resp.PredictionTasks = append(resp.PredictionTasks, TaskResult{
			Name:              task.Name,
			TypeRequested:     task.Type,
			TypeActual:        task.Type,
			CellTypeRequested: task.CellType,
			CellTypeActual:    task.CellType,
			SpeciesRequested:  task.Species,
			SpeciesActual:     task.Species,
			Predictions:       preds,
		})
	}
	return resp
}
