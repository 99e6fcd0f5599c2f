// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"context"
	"errors"

	"github.com/Query-farm/predictor/model"
)

// Dispatcher scores prepared sequences once per request and resolves each
// task's cell type to a column of the model output.
type Dispatcher struct {
	Scorer model.Scorer
	Index  *model.Index
}

// Dispatch is the model output of one request.
type Dispatch struct {
	Scores map[string][]model.Score
	// Columns[i] is the output column of task i.
	Columns []int
}

// Dispatch calls the scorer with the whole batch. Any unknown cell type, a
// scorer failure or incomplete output fails the request as a whole.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []PredictionTask, sequences map[string]string) (*Dispatch, *ErrorReport) {
	report := NewErrorReport(ClassRequestFailed)

	scores, scoreErr := d.Scorer.Score(ctx, sequences)

	columns := make([]int, len(tasks))
	for i, task := range tasks {
		pos, ok := d.Index.Lookup(task.CellType)
		if !ok {
			report.Addf("Cell type '%s' not recognized.", task.CellType)
			continue
		}
		columns[i] = pos
	}
	if scoreErr != nil {
		report.Add(scorerMessage(scoreErr))
	}
	if !report.Empty() {
		return nil, report
	}

	for _, id := range sortedKeys(sequences) {
		row, ok := scores[id]
		if !ok {
			report.Addf("model returned no predictions for '%s'", id)
			continue
		}
		for i, col := range columns {
			if col >= len(row) {
				report.Addf("model returned %d outputs for '%s', cell type '%s' needs output %d",
					len(row), id, tasks[i].CellType, col)
				break
			}
		}
	}
	if !report.Empty() {
		return nil, report
	}
	return &Dispatch{Scores: scores, Columns: columns}, nil
}

// scorerMessage is the failure text reported to the evaluator.
func scorerMessage(err error) string {
	var we *model.WorkerError
	if errors.As(err, &we) {
		return we.Message
	}
	return err.Error()
}
