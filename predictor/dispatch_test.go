// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/predictor/model"
)

func TestDispatchResolvesColumns(t *testing.T) {
	scorer := &fixedScorer{}
	d := &Dispatcher{Scorer: scorer, Index: testIndex(t)}
	tasks := []PredictionTask{{Name: "a", CellType: "Microglia"}, {Name: "b", CellType: "Neuron"}}

	out, report := d.Dispatch(context.Background(), tasks, map[string]string{"s1": "AC", "s2": "GT"})
	require.Nil(t, report)
	assert.Equal(t, []int{2, 0}, out.Columns)
	assert.Len(t, out.Scores, 2)
	assert.EqualValues(t, 1, scorer.calls.Load(), "one scorer call per request")
}

func TestDispatchUnknownCellTypes(t *testing.T) {
	scorer := &fixedScorer{}
	d := &Dispatcher{Scorer: scorer, Index: testIndex(t)}
	tasks := []PredictionTask{{CellType: "Oligodendrocyte"}, {CellType: "Neuron"}, {CellType: "OPC"}}

	out, report := d.Dispatch(context.Background(), tasks, map[string]string{"s1": "AC"})
	assert.Nil(t, out)
	require.NotNil(t, report)
	assert.Equal(t, ClassRequestFailed, report.Class)
	assert.Equal(t, []string{
		"Cell type 'Oligodendrocyte' not recognized.",
		"Cell type 'OPC' not recognized.",
	}, report.Messages)
	assert.EqualValues(t, 1, scorer.calls.Load())
}

func TestDispatchScorerFailure(t *testing.T) {
	scorer := &fixedScorer{err: errors.New("CUDA out of memory")}
	d := &Dispatcher{Scorer: scorer, Index: testIndex(t)}
	tasks := []PredictionTask{{CellType: "Glia"}}

	_, report := d.Dispatch(context.Background(), tasks, map[string]string{"s1": "AC"})
	require.NotNil(t, report)
	assert.Equal(t, []string{"Cell type 'Glia' not recognized.", "CUDA out of memory"}, report.Messages)
}

func TestDispatchWorkerFailureMessage(t *testing.T) {
	scorer := &fixedScorer{err: &model.WorkerError{Type: "ScoreError", Message: "weights missing"}}
	d := &Dispatcher{Scorer: scorer, Index: testIndex(t)}

	_, report := d.Dispatch(context.Background(), []PredictionTask{{CellType: "Neuron"}}, map[string]string{"s": "A"})
	require.NotNil(t, report)
	assert.Equal(t, []string{"weights missing"}, report.Messages)
}

func TestDispatchIncompleteOutput(t *testing.T) {
	short := model.ScorerFunc(func(ctx context.Context, seqs map[string]string) (map[string][]model.Score, error) {
		return map[string][]model.Score{"s1": {model.Point(1)}}, nil
	})
	d := &Dispatcher{Scorer: short, Index: testIndex(t)}
	tasks := []PredictionTask{{CellType: "Astrocyte"}}

	_, report := d.Dispatch(context.Background(), tasks, map[string]string{"s1": "A", "s2": "C"})
	require.NotNil(t, report)
	assert.Equal(t, []string{
		"model returned 1 outputs for 's1', cell type 'Astrocyte' needs output 1",
		"model returned no predictions for 's2'",
	}, report.Messages)
}

func TestAssemble(t *testing.T) {
	req := &Request{
		Request: "predict",
		PredictionTasks: []PredictionTask{
			{Name: "t1", Type: "accessibility", CellType: "Astrocyte", Species: "mus_musculus"},
			{Name: "t2", Type: "binding_CTCF", CellType: "Neuron", Species: "Mus_musculus"},
		},
		Sequences: map[string]string{"s1": "A", "s2": "C"},
	}
	d := &Dispatch{
		Scores: map[string][]model.Score{
			"s1": {model.Point(0.1), model.Point(0.2)},
			"s2": {model.Track([]float64{1, 2}), model.Track([]float64{3, 4})},
		},
		Columns: []int{1, 0},
	}

	resp := Assemble(req, d)
	assert.Equal(t, "predict", resp.Request)
	require.Len(t, resp.PredictionTasks, 2)

	first := resp.PredictionTasks[0]
	assert.Equal(t, "t1", first.Name)
	assert.Equal(t, "accessibility", first.TypeRequested)
	assert.Equal(t, first.TypeRequested, first.TypeActual)
	assert.Equal(t, "Astrocyte", first.CellTypeActual)
	assert.Equal(t, 0.2, first.Predictions["s1"].Value())
	assert.Equal(t, []float64{3, 4}, first.Predictions["s2"].Values())

	second := resp.PredictionTasks[1]
	assert.Equal(t, "Mus_musculus", second.SpeciesRequested)
	assert.Equal(t, "Mus_musculus", second.SpeciesActual)
	assert.Equal(t, 0.1, second.Predictions["s1"].Value())
}
