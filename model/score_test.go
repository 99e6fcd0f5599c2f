// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Score{"p": Point(0.25), "t": Track([]float64{1, 2.5})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":0.25,"t":[1,2.5]}`, string(data))

	var back map[string]Score
	require.NoError(t, json.Unmarshal(data, &back))
	assert.False(t, back["p"].IsTrack())
	assert.Equal(t, 0.25, back["p"].Value())
	assert.Equal(t, []float64{1, 2.5}, back["t"].Values())
}

func TestTrackCopiesInput(t *testing.T) {
	in := []float64{1, 2}
	s := Track(in)
	in[0] = 9
	assert.Equal(t, []float64{1, 2}, s.Values())
	assert.Nil(t, Point(1).Values())
}

func TestEmptyTrackMarshalsAsArray(t *testing.T) {
	data, err := json.Marshal(Track(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
