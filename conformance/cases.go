// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Query-farm/predictor/predictor"
)

// Cases returns every conformance case in run order.
func Cases() []Case {
	return []Case{
		{"help_is_verbatim", helpIsVerbatim},
		{"invalid_json_keeps_session", invalidJSONKeepsSession},
		{"missing_keys_all", missingKeysAll},
		{"missing_keys_subset", missingKeysSubset},
		{"flanked_length_is_sum", flankedLengthIsSum},
		{"trim_inclusive", trimInclusive},
		{"trim_empty_range", trimEmptyRange},
		{"trim_beyond_sequence", trimBeyondSequence},
		{"range_keys_extra", rangeKeysExtra},
		{"range_keys_missing", rangeKeysMissing},
		{"unknown_cell_type_fails_request", unknownCellTypeFailsRequest},
		{"point_prediction_is_number", pointPredictionIsNumber},
	}
}

func helpIsVerbatim(ctx context.Context, env *Env) error {
	got, err := env.Client.Help(ctx)
	if err != nil {
		return err
	}
	if !json.Valid(got) {
		return fmt.Errorf("help is not JSON: %q", got)
	}
	if env.Help != nil && !bytes.Equal(got, env.Help) {
		return fmt.Errorf("help differs from the document: got %d bytes, want %d", len(got), len(env.Help))
	}
	return nil
}

func invalidJSONKeepsSession(ctx context.Context, env *Env) error {
	raw, err := env.Client.Exchange(ctx, []byte(`{"request": "predict",`))
	if err != nil {
		return fmt.Errorf("exchange: %w", err)
	}
	if !bytes.Contains(raw, []byte(string(predictor.ClassBadRequest))) {
		return fmt.Errorf("expected %s, got %s", predictor.ClassBadRequest, raw)
	}
	result, err := env.predict(ctx, env.request(map[string]string{"s": bases(env.RequiredLength)}))
	if err != nil {
		return err
	}
	return expectSuccess(result)
}

func missingKeysAll(ctx context.Context, env *Env) error {
	result, err := env.predict(ctx, map[string]any{"upstream_seq": "A"})
	if err != nil {
		return err
	}
	return expectErrors(result, predictor.ClassBadRequest,
		"The following keys are missing from the json: prediction_tasks readout request sequences")
}

func missingKeysSubset(ctx context.Context, env *Env) error {
	req := env.request(map[string]string{"s": bases(env.RequiredLength)})
	delete(req, "sequences")
	delete(req, "readout")
	result, err := env.predict(ctx, req)
	if err != nil {
		return err
	}
	return expectErrors(result, predictor.ClassBadRequest,
		"The following keys are missing from the json: readout sequences")
}

func flankedLengthIsSum(ctx context.Context, env *Env) error {
	req := env.request(map[string]string{"s": bases(env.RequiredLength - 3)})
	req["upstream_seq"] = "AC"
	req["downstream_seq"] = "G"
	result, err := env.predict(ctx, req)
	if err != nil {
		return err
	}
	if err := expectSuccess(result); err != nil {
		return err
	}

	delete(req, "downstream_seq")
	result, err = env.predict(ctx, req)
	if err != nil {
		return err
	}
	return expectErrors(result, predictor.ClassRequestFailed,
		fmt.Sprintf("length of a sequence in s is not equal to %d", env.RequiredLength))
}

func trimInclusive(ctx context.Context, env *Env) error {
	req := env.request(map[string]string{"s": bases(env.RequiredLength)})
	req["prediction_ranges"] = map[string]any{"s": []int{0, env.RequiredLength - 1}}
	result, err := env.predict(ctx, req)
	if err != nil {
		return err
	}
	return expectSuccess(result)
}

func trimEmptyRange(ctx context.Context, env *Env) error {
	req := env.request(map[string]string{"s": bases(env.RequiredLength)})
	req["prediction_ranges"] = map[string]any{"s": []int{}}
	result, err := env.predict(ctx, req)
	if err != nil {
		return err
	}
	return expectSuccess(result)
}

func trimBeyondSequence(ctx context.Context, env *Env) error {
	req := env.request(map[string]string{"s": bases(env.RequiredLength)})
	req["prediction_ranges"] = map[string]any{"s": []int{0, env.RequiredLength}}
	result, err := env.predict(ctx, req)
	if err != nil {
		return err
	}
	return expectErrors(result, predictor.ClassRequestFailed,
		"Prediction range for 's' exceeds the sequence length!")
}

const rangeMismatch = "sequence ids in prediction_ranges do not match those in sequences"

func rangeKeysExtra(ctx context.Context, env *Env) error {
	req := env.request(map[string]string{"s": bases(env.RequiredLength)})
	req["prediction_ranges"] = map[string]any{"s": []int{}, "t": []int{}}
	result, err := env.predict(ctx, req)
	if err != nil {
		return err
	}
	return expectErrors(result, predictor.ClassBadRequest, rangeMismatch)
}

func rangeKeysMissing(ctx context.Context, env *Env) error {
	seq := bases(env.RequiredLength)
	req := env.request(map[string]string{"s": seq, "t": seq})
	req["prediction_ranges"] = map[string]any{"s": []int{}}
	result, err := env.predict(ctx, req)
	if err != nil {
		return err
	}
	return expectErrors(result, predictor.ClassBadRequest, rangeMismatch)
}

func unknownCellTypeFailsRequest(ctx context.Context, env *Env) error {
	req := env.request(map[string]string{"s": bases(env.RequiredLength)})
	tasks := req["prediction_tasks"].([]any)
	req["prediction_tasks"] = append(tasks, map[string]any{
		"name": "unknown", "type": "accessibility", "cell_type": "no such cell", "species": env.Species,
	})
	result, err := env.predict(ctx, req)
	if err != nil {
		return err
	}
	if bytes.Contains(result.Raw, []byte(`"prediction_tasks"`)) {
		return fmt.Errorf("reply carries task results: %s", result.Raw)
	}
	return expectErrors(result, predictor.ClassRequestFailed, "Cell type 'no such cell' not recognized.")
}

func pointPredictionIsNumber(ctx context.Context, env *Env) error {
	result, err := env.predict(ctx, env.request(map[string]string{"s": bases(env.RequiredLength)}))
	if err != nil {
		return err
	}
	if err := expectSuccess(result); err != nil {
		return err
	}
	var raw struct {
		PredictionTasks []struct {
			CellTypeActual string         `json:"cell_type_actual"`
			Predictions    map[string]any `json:"predictions"`
		} `json:"prediction_tasks"`
	}
	if err := json.Unmarshal(result.Raw, &raw); err != nil {
		return err
	}
	if len(raw.PredictionTasks) != 1 {
		return fmt.Errorf("got %d task results, want 1", len(raw.PredictionTasks))
	}
	task := raw.PredictionTasks[0]
	if task.CellTypeActual != env.CellType {
		return fmt.Errorf("cell_type_actual %q, want %q", task.CellTypeActual, env.CellType)
	}
	if _, ok := task.Predictions["s"].(float64); !ok {
		return fmt.Errorf("prediction for s is %T, want a number", task.Predictions["s"])
	}
	return nil
}
