// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package model

// Custom metadata keys carried on Arrow IPC record batches between the
// predictor and a scoring worker.
const (
	MetaMethod         = "predictor.method"
	MetaRequestVersion = "predictor.request_version"
	MetaRequestID      = "predictor.request_id"
	MetaLogLevel       = "predictor.log_level"
	MetaLogMessage     = "predictor.log_message"
	MetaErrorType      = "predictor.error_type"
	MetaWorkerID       = "predictor.worker_id"

	ProtocolVersion = "1"

	// MethodScore is the only method a scoring worker serves.
	MethodScore = "score"
)
