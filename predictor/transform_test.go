// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformFlanksEverySequence(t *testing.T) {
	req := &Request{
		Sequences:     map[string]string{"a": "GGGG", "b": "TT"},
		UpstreamSeq:   "AC",
		DownstreamSeq: "C",
	}
	out, report := Transformer{RequiredLength: 7}.Apply(req)
	require.NotNil(t, report)
	assert.Nil(t, out)
	// b is 2+2+1 = 5 long
	assert.Equal(t, []string{"length of a sequence in b is not equal to 7"}, report.Messages)

	req.Sequences["b"] = "TTTT"
	out, report = Transformer{RequiredLength: 7}.Apply(req)
	require.Nil(t, report)
	assert.Equal(t, map[string]string{"a": "ACGGGGC", "b": "ACTTTTC"}, out)
	assert.Equal(t, "GGGG", req.Sequences["a"], "request is left untouched")
}

func TestTransformLengthErrorsSorted(t *testing.T) {
	req := &Request{Sequences: map[string]string{"z": "A", "m": "AC", "a": "ACGT"}}
	_, report := Transformer{RequiredLength: 4}.Apply(req)
	require.NotNil(t, report)
	assert.Equal(t, ClassRequestFailed, report.Class)
	assert.Equal(t, []string{
		"length of a sequence in m is not equal to 4",
		"length of a sequence in z is not equal to 4",
	}, report.Messages)
}

func TestTransformTrimInclusive(t *testing.T) {
	req := &Request{
		Sequences:        map[string]string{"a": "0123456789", "b": "abcdefghij"},
		PredictionRanges: map[string][]int{"a": {2, 5}, "b": {}},
	}
	out, report := Transformer{RequiredLength: 10}.Apply(req)
	require.Nil(t, report)
	assert.Equal(t, "2345", out["a"])
	assert.Equal(t, "abcdefghij", out["b"])
}

func TestTransformTrimAfterFlanking(t *testing.T) {
	req := &Request{
		Sequences:        map[string]string{"a": "CCCC"},
		PredictionRanges: map[string][]int{"a": {0, 2}},
		UpstreamSeq:      "TT",
	}
	out, report := Transformer{RequiredLength: 6}.Apply(req)
	require.Nil(t, report)
	assert.Equal(t, "TTC", out["a"])
}

func TestTransformRangeBeyondSequence(t *testing.T) {
	req := &Request{
		Sequences:        map[string]string{"a": "0123456789", "b": "0123456789"},
		PredictionRanges: map[string][]int{"a": {0, 10}, "b": {0, 9}},
	}
	out, report := Transformer{RequiredLength: 10}.Apply(req)
	require.NotNil(t, report)
	assert.Nil(t, out)
	assert.Equal(t, []string{"Prediction range for 'a' exceeds the sequence length!"}, report.Messages)
}

func TestTransformLengthAndRangeErrorsCombined(t *testing.T) {
	req := &Request{
		Sequences:        map[string]string{"a": "0123"},
		PredictionRanges: map[string][]int{"a": {1, 4}},
	}
	_, report := Transformer{RequiredLength: 10}.Apply(req)
	require.NotNil(t, report)
	assert.Equal(t, []string{
		"length of a sequence in a is not equal to 10",
		"Prediction range for 'a' exceeds the sequence length!",
	}, report.Messages)
}

func TestTransformInvalidRanges(t *testing.T) {
	req := &Request{
		Sequences:        map[string]string{"a": "0123", "b": "0123", "c": "0123"},
		PredictionRanges: map[string][]int{"a": {1}, "b": {-1, 2}, "c": {3, 1}},
	}
	_, report := Transformer{RequiredLength: 4}.Apply(req)
	require.NotNil(t, report)
	assert.Equal(t, []string{
		"Prediction range for 'a' must be [start, end]",
		"Prediction range for 'b' is invalid: start -1, end 2",
		"Prediction range for 'c' is invalid: start 3, end 1",
	}, report.Messages)
}

func TestTransformCountsCharacters(t *testing.T) {
	req := &Request{
		Sequences:        map[string]string{"a": "ÅCGT"},
		PredictionRanges: map[string][]int{"a": {0, 1}},
	}
	out, report := Transformer{RequiredLength: 4}.Apply(req)
	require.Nil(t, report)
	assert.Equal(t, "ÅC", out["a"])
}
