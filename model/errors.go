// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"errors"
	"fmt"
)

// ErrWorker is a sentinel for use with errors.Is to check whether any error
// in a chain is a *WorkerError.
var ErrWorker = &WorkerError{}

// ErrWorkerClosed is returned by a [WorkerScorer] after Close.
var ErrWorkerClosed = errors.New("model: worker closed")

// WorkerError is a failure reported by the scoring worker. The connection to
// the worker stays usable after one.
type WorkerError struct {
	Type      string // e.g. "ScoreError", "ProtocolError"
	Message   string
	RequestID string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is supports errors.Is by matching any *WorkerError target.
func (e *WorkerError) Is(target error) bool {
	_, ok := target.(*WorkerError)
	return ok
}

// errorType names err for the error batch metadata.
func errorType(err error) string {
	var we *WorkerError
	if errors.As(err, &we) && we.Type != "" {
		return we.Type
	}
	return "ScoreError"
}
