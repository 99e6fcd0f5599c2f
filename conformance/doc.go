// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package conformance checks a running predictor against the evaluator
// protocol: exact error texts, flanking and trimming arithmetic, the
// all-or-nothing dispatch rule, verbatim help replies and numeric point
// predictions. Cases are black-box; they only use a [predictor.Client].
//
// The only entry points intended for external use are [Cases] and [Run].
package conformance
