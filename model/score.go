// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"bytes"
	"context"

	"github.com/goccy/go-json"
)

// Score is one category's output for one sequence. It holds either a single
// point value or an ordered track of per-position (or per-bin) values.
type Score struct {
	value   float64
	track   []float64
	isTrack bool
}

// Point returns a scalar score.
func Point(v float64) Score {
	return Score{value: v}
}

// Track returns a per-position score. The slice is copied.
func Track(values []float64) Score {
	t := make([]float64, len(values))
	copy(t, values)
	return Score{track: t, isTrack: true}
}

// IsTrack reports whether the score is an ordered track rather than a point.
func (s Score) IsTrack() bool {
	return s.isTrack
}

// Value returns the point value. It is zero for tracks.
func (s Score) Value() float64 {
	return s.value
}

// Values returns a copy of the track values, or nil for point scores.
func (s Score) Values() []float64 {
	if !s.isTrack {
		return nil
	}
	out := make([]float64, len(s.track))
	copy(out, s.track)
	return out
}

// MarshalJSON encodes a point as a JSON number and a track as a JSON array.
func (s Score) MarshalJSON() ([]byte, error) {
	if s.isTrack {
		if s.track == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.track)
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON accepts either a JSON number or an array of numbers.
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var track []float64
		if err := json.Unmarshal(data, &track); err != nil {
			return err
		}
		*s = Score{track: track, isTrack: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Score{value: v}
	return nil
}

// Scorer is the external scoring model. Score is called once per request
// with the complete batch of prepared sequences and returns, for every
// sequence id, the scores of all output categories in index order.
type Scorer interface {
	Score(ctx context.Context, sequences map[string]string) (map[string][]Score, error)
}

// ScorerFunc adapts an ordinary function to the [Scorer] interface.
type ScorerFunc func(ctx context.Context, sequences map[string]string) (map[string][]Score, error)

// Score calls f(ctx, sequences).
func (f ScorerFunc) Score(ctx context.Context, sequences map[string]string) (map[string][]Score, error) {
	return f(ctx, sequences)
}
