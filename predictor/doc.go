// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package predictor implements the Predictor service: a TCP server that
// accepts scoring requests from evaluators, validates and normalizes them,
// forwards the prepared sequences to a [model.Scorer] and replies with
// per-task predictions.
//
// # Wire format
//
// Every message in both directions is one frame: a 4-byte big-endian
// unsigned length followed by that many bytes of UTF-8 JSON. See
// [ReadFrame] and [WriteFrame].
//
// # Pipeline
//
// Each request frame passes through these stages in order:
//
//   - structural gate ([Validator.CheckStructure]): mandatory keys, the
//     request kind, the shape of prediction_tasks and sequences
//   - semantic gate ([Validator.CheckSemantics]): field values, ranges,
//     flanks and the supported species
//   - [Transformer]: flanking, the fixed length check and inclusive range
//     trimming
//   - [Dispatcher]: one scorer call for the whole batch and cell type
//     resolution against the category index
//   - [Assemble]: the per-task response
//
// Rejections at either gate are reported under "bad_prediction_request";
// transformer and dispatcher failures under "prediction_request_failed".
// No partial results are returned. A request of kind "help" skips the
// pipeline and gets the help document verbatim.
//
// # Sessions
//
// [Server.Serve] handles one evaluator connection at a time and serves its
// requests strictly in order. Error replies keep the connection open; only
// transport failures close it. [NewHTTPHandler] exposes the same pipeline
// over HTTP and [Client] is the evaluator side.
package predictor
