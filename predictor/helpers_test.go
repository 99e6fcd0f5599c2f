// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/predictor/model"
)

const testHelp = `{"model": "test-model",
  "species": ["mus_musculus"],
  "readouts": ["point"]}`

var testCategories = []string{"Neuron", "Astrocyte", "Microglia"}

// seqOf returns a sequence of n bases.
func seqOf(n int) string {
	return strings.Repeat("ACGT", n/4+1)[:n]
}

// fixedScorer returns score i+0.5*k for category k of the i-th sorted id
// and counts its calls.
type fixedScorer struct {
	calls atomic.Int32
	seen  map[string]string
	err   error
}

func (f *fixedScorer) Score(ctx context.Context, seqs map[string]string) (map[string][]model.Score, error) {
	f.calls.Add(1)
	f.seen = seqs
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]model.Score, len(seqs))
	for i, id := range sortedKeys(seqs) {
		row := make([]model.Score, len(testCategories))
		for k := range row {
			row[k] = model.Point(float64(i) + 0.5*float64(k))
		}
		out[id] = row
	}
	return out, nil
}

func testIndex(t *testing.T) *model.Index {
	t.Helper()
	ix, err := model.NewIndex(testCategories)
	require.NoError(t, err)
	return ix
}

func newTestServer(t *testing.T, scorer model.Scorer) *Server {
	t.Helper()
	s, err := NewServer(Options{
		Help:   []byte(testHelp),
		Index:  testIndex(t),
		Scorer: scorer,
	})
	require.NoError(t, err)
	return s
}

// validRequest returns a request document that passes every stage.
func validRequest() map[string]any {
	return map[string]any{
		"request": "predict",
		"readout": "point",
		"prediction_tasks": []any{
			map[string]any{"name": "t1", "type": "accessibility", "cell_type": "Astrocyte", "species": "mus_musculus"},
		},
		"sequences": map[string]any{
			"seq1": seqOf(DefaultRequiredLength),
			"seq2": seqOf(DefaultRequiredLength),
		},
	}
}

// mustDoc round-trips v through JSON the way a payload would arrive.
func mustDoc(t *testing.T, v any) document {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	doc, err := decodeDocument(data)
	require.NoError(t, err)
	return doc
}
