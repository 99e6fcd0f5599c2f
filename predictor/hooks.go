// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import "context"

// Transport names for RequestInfo.Transport.
const (
	TransportTCP  = "tcp"
	TransportHTTP = "http"
)

// RequestHook provides observability callpoints around request handling.
// Implementations must be safe for concurrent use (HTTP transport is
// concurrent).
type RequestHook interface {
	OnRequestStart(ctx context.Context, info RequestInfo) (context.Context, HookToken)
	OnRequestEnd(ctx context.Context, token HookToken, info RequestInfo, stats *RequestStatistics, outcome Outcome, err error)
}

// HookToken is an opaque value returned by OnRequestStart and passed back to
// OnRequestEnd. Only meaningful to the RequestHook that created it.
type HookToken interface{}

// RequestInfo describes one request payload.
type RequestInfo struct {
	RequestID  string
	Transport  string
	RemoteAddr string
	// TransportMetadata holds transport-level metadata such as HTTP headers
	// (traceparent, user_agent).
	TransportMetadata map[string]string
}

// RequestStatistics holds per-request counters.
type RequestStatistics struct {
	Tasks       int64
	Sequences   int64
	InputBytes  int64
	OutputBytes int64
}
