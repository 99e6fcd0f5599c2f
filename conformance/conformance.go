// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/Query-farm/predictor/predictor"
)

// Env describes the predictor under test.
type Env struct {
	Client *predictor.Client
	// CellType must be a cell type the predictor knows.
	CellType       string
	Species        string
	RequiredLength int
	// Help, when set, is the exact help document the predictor should send.
	Help []byte
}

// Case is one named check.
type Case struct {
	Name string
	Run  func(ctx context.Context, env *Env) error
}

// Result is the outcome of one case.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Run executes the cases whose names match filter (all when filter is nil)
// in order on the same connection.
func Run(ctx context.Context, env *Env, filter *regexp.Regexp) []Result {
	var results []Result
	for _, c := range Cases() {
		if filter != nil && !filter.MatchString(c.Name) {
			continue
		}
		start := time.Now()
		err := c.Run(ctx, env)
		results = append(results, Result{Name: c.Name, Err: err, Duration: time.Since(start)})
	}
	return results
}

// request builds a valid single-task request over the given sequences.
func (env *Env) request(seqs map[string]string) map[string]any {
	sequences := make(map[string]any, len(seqs))
	for id, s := range seqs {
		sequences[id] = s
	}
	return map[string]any{
		"request": "predict",
		"readout": "point",
		"prediction_tasks": []any{map[string]any{
			"name":      "conformance",
			"type":      "accessibility",
			"cell_type": env.CellType,
			"species":   env.Species,
		}},
		"sequences": sequences,
	}
}

// bases returns an n-long ACGT repeat.
func bases(n int) string {
	const acgt = "ACGT"
	b := make([]byte, n)
	for i := range b {
		b[i] = acgt[i%len(acgt)]
	}
	return string(b)
}

func (env *Env) predict(ctx context.Context, req any) (*predictor.Result, error) {
	result, err := env.Client.Predict(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}
	return result, nil
}

// expectErrors checks that result carries exactly want under class and
// nothing else.
func expectErrors(result *predictor.Result, class predictor.ErrorClass, want ...string) error {
	if !result.Failed() {
		return fmt.Errorf("expected %s, got success: %s", class, result.Raw)
	}
	if len(result.Errors) != 1 {
		return fmt.Errorf("expected only %s, got %s", class, result.Raw)
	}
	got, ok := result.Errors[class]
	if !ok {
		return fmt.Errorf("expected %s, got %s", class, result.Raw)
	}
	if !slices.Equal(got, want) {
		return fmt.Errorf("%s: got %q, want %q", class, got, want)
	}
	return nil
}

func expectSuccess(result *predictor.Result) error {
	if result.Failed() {
		return fmt.Errorf("expected success, got %s", result.Raw)
	}
	return nil
}
