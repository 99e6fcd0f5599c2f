// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// HashScorer produces deterministic pseudo-scores in [0, 1) derived from a
// sha256 of each sequence. It stands in for a real model in local runs and
// conformance checks: the same sequence always gets the same scores.
type HashScorer struct {
	// Categories is the width of every score vector.
	Categories int
	// TrackWidth, when positive, makes every category a track of that many
	// values instead of a point.
	TrackWidth int
}

var errNoCategories = errors.New("model: hash scorer needs at least one category")

// Score implements [Scorer].
func (h HashScorer) Score(ctx context.Context, sequences map[string]string) (map[string][]Score, error) {
	if h.Categories <= 0 {
		return nil, errNoCategories
	}
	out := make(map[string][]Score, len(sequences))
	for id, seq := range sequences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum := sha256.Sum256([]byte(seq))
		base := binary.LittleEndian.Uint64(sum[:8])
		scores := make([]Score, h.Categories)
		for i := range scores {
			catHash := base + uint64(i*7919)
			if h.TrackWidth <= 0 {
				scores[i] = Point(unitInterval(catHash))
				continue
			}
			track := make([]float64, h.TrackWidth)
			for j := range track {
				track[j] = unitInterval(catHash + uint64(j*104729))
			}
			scores[i] = Score{track: track, isTrack: true}
		}
		out[id] = scores
	}
	return out, nil
}

func unitInterval(v uint64) float64 {
	return float64(v>>11) / float64(1<<53)
}
