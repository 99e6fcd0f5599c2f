// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var (
	requestSchema = arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "sequence", Type: arrow.BinaryTypes.String},
	}, nil)

	pointResultSchema = arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "scores", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
	}, nil)

	trackResultSchema = arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "scores", Type: arrow.ListOf(arrow.ListOf(arrow.PrimitiveTypes.Float64))},
	}, nil)
)

var errMixedScores = errors.New("model: result mixes point and track scores")

// scoreRequest is a decoded score call on the worker side.
type scoreRequest struct {
	Method    string
	Version   string
	RequestID string
	Sequences map[string]string
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeScoreRequest writes one IPC stream holding a single batch with one
// row per sequence, ordered by id.
func writeScoreRequest(w io.Writer, requestID string, sequences map[string]string) error {
	mem := memory.NewGoAllocator()
	ids := array.NewStringBuilder(mem)
	defer ids.Release()
	seqs := array.NewStringBuilder(mem)
	defer seqs.Release()

	for _, id := range sortedKeys(sequences) {
		ids.Append(id)
		seqs.Append(sequences[id])
	}
	idArr := ids.NewArray()
	defer idArr.Release()
	seqArr := seqs.NewArray()
	defer seqArr.Release()

	meta := arrow.NewMetadata(
		[]string{MetaMethod, MetaRequestVersion, MetaRequestID},
		[]string{MethodScore, ProtocolVersion, requestID},
	)
	batch := array.NewRecordBatchWithMetadata(requestSchema, []arrow.Array{idArr, seqArr}, int64(len(sequences)), meta)
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(requestSchema))
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return fmt.Errorf("writing score request: %w", err)
	}
	return writer.Close()
}

// readScoreRequest reads one complete IPC stream. Protocol violations are
// returned as *WorkerError after the stream has been drained, so the caller
// can answer and keep serving; anything else is a transport error.
func readScoreRequest(r io.Reader) (*scoreRequest, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading request IPC stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("reading request batch: %w", err)
		}
		return nil, io.EOF
	}

	batch := reader.RecordBatch()
	var meta arrow.Metadata
	if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
		meta = rb.Metadata()
	}
	req := &scoreRequest{}
	req.Method, _ = meta.GetValue(MetaMethod)
	req.Version, _ = meta.GetValue(MetaRequestVersion)
	req.RequestID, _ = meta.GetValue(MetaRequestID)
	sequences, decodeErr := decodeSequences(batch)

	for reader.Next() {
		// drain to end of stream
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("draining request stream: %w", err)
	}

	switch {
	case req.Method == "":
		return nil, &WorkerError{Type: "ProtocolError", Message: "missing '" + MetaMethod + "' in request metadata", RequestID: req.RequestID}
	case req.Method != MethodScore:
		return nil, &WorkerError{Type: "AttributeError", Message: fmt.Sprintf("unknown method %q, available methods: [%s]", req.Method, MethodScore), RequestID: req.RequestID}
	case req.Version != ProtocolVersion:
		return nil, &WorkerError{Type: "VersionError", Message: fmt.Sprintf("unsupported request version %q, expected %q", req.Version, ProtocolVersion), RequestID: req.RequestID}
	case decodeErr != nil:
		return nil, &WorkerError{Type: "ProtocolError", Message: decodeErr.Error(), RequestID: req.RequestID}
	}
	req.Sequences = sequences
	return req, nil
}

func decodeSequences(batch arrow.RecordBatch) (map[string]string, error) {
	if batch.NumCols() != 2 {
		return nil, fmt.Errorf("expected 2 request columns, got %d", batch.NumCols())
	}
	ids, ok := batch.Column(0).(*array.String)
	if !ok {
		return nil, fmt.Errorf("request column 'id' has type %s", batch.Column(0).DataType())
	}
	seqs, ok := batch.Column(1).(*array.String)
	if !ok {
		return nil, fmt.Errorf("request column 'sequence' has type %s", batch.Column(1).DataType())
	}
	out := make(map[string]string, ids.Len())
	for i := 0; i < ids.Len(); i++ {
		id := ids.Value(i)
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("duplicate sequence id %q", id)
		}
		out[id] = seqs.Value(i)
	}
	return out, nil
}

// buildResultBatch encodes scores as one row per sequence id. Point scores
// become list<float64>, track scores list<list<float64>>.
func buildResultBatch(scores map[string][]Score, meta arrow.Metadata) (arrow.RecordBatch, error) {
	var points, tracks bool
	for _, row := range scores {
		for _, s := range row {
			if s.IsTrack() {
				tracks = true
			} else {
				points = true
			}
		}
	}
	if points && tracks {
		return nil, errMixedScores
	}

	mem := memory.NewGoAllocator()
	ids := array.NewStringBuilder(mem)
	defer ids.Release()

	schema := pointResultSchema
	if tracks {
		schema = trackResultSchema
	}
	lb := array.NewListBuilder(mem, schema.Field(1).Type.(*arrow.ListType).Elem())
	defer lb.Release()

	for _, id := range sortedKeys(scores) {
		ids.Append(id)
		lb.Append(true)
		if !tracks {
			vb := lb.ValueBuilder().(*array.Float64Builder)
			for _, s := range scores[id] {
				vb.Append(s.Value())
			}
			continue
		}
		inner := lb.ValueBuilder().(*array.ListBuilder)
		for _, s := range scores[id] {
			inner.Append(true)
			inner.ValueBuilder().(*array.Float64Builder).AppendValues(s.track, nil)
		}
	}

	idArr := ids.NewArray()
	defer idArr.Release()
	scoreArr := lb.NewArray()
	defer scoreArr.Release()
	return array.NewRecordBatchWithMetadata(schema, []arrow.Array{idArr, scoreArr}, int64(len(scores)), meta), nil
}

func responseMetadata(keys, vals []string, requestID, workerID string) arrow.Metadata {
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}
	if workerID != "" {
		keys = append(keys, MetaWorkerID)
		vals = append(vals, workerID)
	}
	return arrow.NewMetadata(keys, vals)
}

// emptyBatch creates a zero-row batch with the given schema and metadata.
func emptyBatch(schema *arrow.Schema, meta arrow.Metadata) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		b := array.NewBuilder(mem, f.Type)
		cols[i] = b.NewArray()
		b.Release()
	}
	batch := array.NewRecordBatchWithMetadata(schema, cols, 0, meta)
	for _, c := range cols {
		c.Release()
	}
	return batch
}

func writeLogBatches(w *ipc.Writer, schema *arrow.Schema, logs []LogMessage, requestID, workerID string) error {
	for _, msg := range logs {
		meta := responseMetadata(
			[]string{MetaLogLevel, MetaLogMessage},
			[]string{string(msg.Level), msg.Message},
			requestID, workerID)
		batch := emptyBatch(schema, meta)
		err := w.Write(batch)
		batch.Release()
		if err != nil {
			return fmt.Errorf("writing log batch: %w", err)
		}
	}
	return nil
}

// writeScoreResult writes log batches followed by the result batch. A result
// that cannot be encoded is returned before anything is written.
func writeScoreResult(w io.Writer, logs []LogMessage, scores map[string][]Score, requestID, workerID string) error {
	batch, err := buildResultBatch(scores, responseMetadata(nil, nil, requestID, workerID))
	if err != nil {
		return err
	}
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(batch.Schema()))
	if err := writeLogBatches(writer, batch.Schema(), logs, requestID, workerID); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return fmt.Errorf("writing result batch: %w", err)
	}
	return writer.Close()
}

// writeScoreError writes log batches followed by a zero-row EXCEPTION batch.
func writeScoreError(w io.Writer, logs []LogMessage, scoreErr error, requestID, workerID string) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(pointResultSchema))
	if err := writeLogBatches(writer, pointResultSchema, logs, requestID, workerID); err != nil {
		writer.Close()
		return err
	}
	msg := scoreErr.Error()
	var we *WorkerError
	if errors.As(scoreErr, &we) {
		msg = we.Message
	}
	meta := responseMetadata(
		[]string{MetaLogLevel, MetaLogMessage, MetaErrorType},
		[]string{string(LogException), msg, errorType(scoreErr)},
		requestID, workerID)
	batch := emptyBatch(pointResultSchema, meta)
	defer batch.Release()
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return fmt.Errorf("writing error batch: %w", err)
	}
	return writer.Close()
}

// readScoreResponse reads one response stream. Log batches are passed to
// onLog in order. A worker-reported failure is returned as *WorkerError once
// the stream is fully drained; any other error leaves the stream unusable.
func readScoreResponse(r io.Reader, requestID string, onLog func(LogMessage)) (map[string][]Score, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading response IPC stream: %w", err)
	}
	defer reader.Release()

	var (
		scores    map[string][]Score
		workerErr *WorkerError
		decodeErr error
	)
	for reader.Next() {
		batch := reader.RecordBatch()
		var meta arrow.Metadata
		if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
			meta = rb.Metadata()
		}
		if id, ok := meta.GetValue(MetaRequestID); ok && requestID != "" && id != requestID {
			decodeErr = fmt.Errorf("response for request %q, expected %q", id, requestID)
			continue
		}
		if level, ok := meta.GetValue(MetaLogLevel); ok {
			msg, _ := meta.GetValue(MetaLogMessage)
			if LogLevel(level) == LogException {
				typ, _ := meta.GetValue(MetaErrorType)
				workerErr = &WorkerError{Type: typ, Message: msg, RequestID: requestID}
				continue
			}
			if onLog != nil {
				onLog(LogMessage{Level: LogLevel(level), Message: msg})
			}
			continue
		}
		if scores != nil {
			decodeErr = errors.New("response carries more than one result batch")
			continue
		}
		scores, err = decodeScores(batch)
		if err != nil {
			decodeErr = err
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading response batch: %w", err)
	}
	switch {
	case decodeErr != nil:
		return nil, fmt.Errorf("decoding score response: %w", decodeErr)
	case workerErr != nil:
		return nil, workerErr
	case scores == nil:
		return nil, errors.New("decoding score response: no result batch")
	}
	return scores, nil
}

func decodeScores(batch arrow.RecordBatch) (map[string][]Score, error) {
	if batch.NumCols() != 2 {
		return nil, fmt.Errorf("expected 2 result columns, got %d", batch.NumCols())
	}
	ids, ok := batch.Column(0).(*array.String)
	if !ok {
		return nil, fmt.Errorf("result column 'id' has type %s", batch.Column(0).DataType())
	}
	lists, ok := batch.Column(1).(*array.List)
	if !ok {
		return nil, fmt.Errorf("result column 'scores' has type %s", batch.Column(1).DataType())
	}

	out := make(map[string][]Score, ids.Len())
	switch values := lists.ListValues().(type) {
	case *array.Float64:
		for i := 0; i < ids.Len(); i++ {
			start, end := lists.ValueOffsets(i)
			row := make([]Score, 0, end-start)
			for j := start; j < end; j++ {
				row = append(row, Point(values.Value(int(j))))
			}
			out[ids.Value(i)] = row
		}
	case *array.List:
		inner, ok := values.ListValues().(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("track values have type %s", values.ListValues().DataType())
		}
		raw := inner.Float64Values()
		for i := 0; i < ids.Len(); i++ {
			start, end := lists.ValueOffsets(i)
			row := make([]Score, 0, end-start)
			for j := start; j < end; j++ {
				ts, te := values.ValueOffsets(int(j))
				row = append(row, Track(raw[ts:te]))
			}
			out[ids.Value(i)] = row
		}
	default:
		return nil, fmt.Errorf("score values have type %s", lists.ListValues().DataType())
	}
	return out, nil
}
