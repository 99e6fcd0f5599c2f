// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"net"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/predictor/model"
	"github.com/Query-farm/predictor/predictor"
)

const help = `{"model": "hash", "readouts": ["point"]}`

func newEnv(t *testing.T) *Env {
	t.Helper()
	ix, err := model.NewIndex([]string{"Neuron", "Astrocyte"})
	require.NoError(t, err)
	s, err := predictor.NewServer(predictor.Options{
		RequiredLength: 64,
		Help:           []byte(help),
		Index:          ix,
		Scorer:         model.HashScorer{Categories: ix.Len()},
	})
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	go func() {
		_ = s.ServeConn(context.Background(), serverConn)
		serverConn.Close()
	}()
	c := predictor.NewClient(clientConn)
	t.Cleanup(func() { c.Close() })
	return &Env{
		Client:         c,
		CellType:       "Astrocyte",
		Species:        predictor.DefaultSpecies,
		RequiredLength: 64,
		Help:           []byte(help),
	}
}

func TestAllCasesPass(t *testing.T) {
	results := Run(context.Background(), newEnv(t), nil)
	require.Len(t, results, len(Cases()))
	for _, r := range results {
		assert.NoError(t, r.Err, r.Name)
	}
}

func TestRunFilter(t *testing.T) {
	results := Run(context.Background(), newEnv(t), regexp.MustCompile(`^trim_`))
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"trim_inclusive", "trim_empty_range", "trim_beyond_sequence"}, names)
}

func TestCasesDetectWrongHelp(t *testing.T) {
	env := newEnv(t)
	env.Help = []byte(`{"model": "other"}`)
	err := helpIsVerbatim(context.Background(), env)
	assert.Error(t, err)
}

func TestCasesDetectUnknownCellType(t *testing.T) {
	env := newEnv(t)
	env.CellType = "Microglia"
	err := pointPredictionIsNumber(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cell type 'Microglia' not recognized.")
}
