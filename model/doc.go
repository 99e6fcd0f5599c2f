// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package model defines the contract between the predictor and the external
// scoring model, and the collaborators loaded alongside it.
//
// # Scoring
//
// A [Scorer] receives one batch of prepared sequences (id to sequence) and
// returns, for every id, one [Score] per output category. A score is either a
// single point value or an ordered per-position track.
//
// The model itself is not part of this module. [WorkerScorer] talks to it as
// an external worker process (spawned with [SpawnWorker]) or socket peer
// (reached with [DialWorker]) using Apache Arrow IPC streams:
//
//	request:  schema + 1 batch (id, sequence) + EOS
//	response: schema + [log batches] + (result batch | exception batch) + EOS
//
// Request batches carry custom metadata naming the method
// ([MetaMethod] = "score"), the protocol version and a request id. Result
// batches carry an "id" string column and a "scores" column whose type is
// list<float64> for point output or list<list<float64>> for track output.
// [WorkerServer] implements the worker side so a Go scorer can be served the
// same way; [HashScorer] is a deterministic stand-in used for local runs.
//
// # Category index
//
// An [Index] maps category names to positions in the per-sequence score
// vector. It is loaded once with [LoadIndex] and is read-only afterwards.
package model
