// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ErrorClass is the top-level key of an error reply.
type ErrorClass string

const (
	// ClassBadRequest reports requests rejected by validation.
	ClassBadRequest ErrorClass = "bad_prediction_request"
	// ClassRequestFailed reports valid requests that could not be scored.
	ClassRequestFailed ErrorClass = "prediction_request_failed"
)

// ErrorReport collects human-readable messages under one error class. A
// report with at least one message fails the request.
type ErrorReport struct {
	Class    ErrorClass
	Messages []string
}

func NewErrorReport(class ErrorClass) *ErrorReport {
	return &ErrorReport{Class: class}
}

// Add appends messages in order.
func (r *ErrorReport) Add(msgs ...string) {
	r.Messages = append(r.Messages, msgs...)
}

func (r *ErrorReport) Addf(format string, args ...any) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
}

// Empty reports whether no message was recorded. A nil report is empty.
func (r *ErrorReport) Empty() bool {
	return r == nil || len(r.Messages) == 0
}

// MarshalJSON encodes the report as {"<class>": ["msg", ...]}.
func (r *ErrorReport) MarshalJSON() ([]byte, error) {
	msgs := r.Messages
	if msgs == nil {
		msgs = []string{}
	}
	return json.Marshal(map[ErrorClass][]string{r.Class: msgs})
}

func (r *ErrorReport) Error() string {
	return fmt.Sprintf("%s: %s", r.Class, strings.Join(r.Messages, "; "))
}

// Outcome classifies how a request left the pipeline.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeHelp
	// OutcomeStructural is a gate 1 rejection.
	OutcomeStructural
	// OutcomeSemantic is a gate 2 rejection.
	OutcomeSemantic
	// OutcomeModelInput is a sequence transformation failure.
	OutcomeModelInput
	// OutcomeDispatch is a cell type or scoring failure.
	OutcomeDispatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeHelp:
		return "help"
	case OutcomeStructural:
		return "structural_error"
	case OutcomeSemantic:
		return "semantic_error"
	case OutcomeModelInput:
		return "model_input_error"
	case OutcomeDispatch:
		return "dispatch_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Failed reports whether the outcome is an error reply.
func (o Outcome) Failed() bool {
	return o >= OutcomeStructural
}

// Reply is the result of handling one request payload. Payload is the exact
// bytes to send back.
type Reply struct {
	Outcome Outcome
	Payload []byte
	// Report is set for failed outcomes.
	Report *ErrorReport
}
