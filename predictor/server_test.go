// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"bytes"
	"context"
	"math"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/predictor/model"
)

// pipeClient serves s on one end of a net.Pipe and returns a client on the
// other. The returned channel yields ServeConn's result.
func pipeClient(t *testing.T, s *Server) (*Client, <-chan error) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.ServeConn(context.Background(), serverConn)
		serverConn.Close()
	}()
	c := NewClient(clientConn)
	t.Cleanup(func() { c.Close() })
	return c, done
}

func TestHandleHelpVerbatim(t *testing.T) {
	s := newTestServer(t, &fixedScorer{})

	reply := s.Handle(context.Background(), []byte(`{"request": "help"}`), RequestInfo{})
	assert.Equal(t, OutcomeHelp, reply.Outcome)
	assert.Equal(t, []byte(testHelp), reply.Payload)

	// help needs no other keys
	reply = s.Handle(context.Background(), []byte(`{"request":"help","readout":["x"]}`), RequestInfo{})
	assert.Equal(t, OutcomeHelp, reply.Outcome)
}

func TestHelpIsFramedUnchanged(t *testing.T) {
	s := newTestServer(t, &fixedScorer{})
	c, _ := pipeClient(t, s)

	got, err := c.Help(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testHelp, string(got))
}

func TestEndToEndPointPrediction(t *testing.T) {
	scorer := &fixedScorer{}
	s := newTestServer(t, scorer)
	c, _ := pipeClient(t, s)

	result, err := c.Predict(context.Background(), validRequest())
	require.NoError(t, err)
	require.False(t, result.Failed(), string(result.Raw))

	require.Len(t, result.Response.PredictionTasks, 1)
	task := result.Response.PredictionTasks[0]
	assert.Equal(t, "t1", task.Name)
	assert.Equal(t, "Astrocyte", task.CellTypeActual)
	assert.False(t, task.Predictions["seq1"].IsTrack())
	assert.Equal(t, 0.5, task.Predictions["seq1"].Value())
	assert.Equal(t, 1.5, task.Predictions["seq2"].Value())

	var raw struct {
		PredictionTasks []struct {
			Predictions map[string]any `json:"predictions"`
		} `json:"prediction_tasks"`
	}
	require.NoError(t, json.Unmarshal(result.Raw, &raw))
	assert.IsType(t, float64(0), raw.PredictionTasks[0].Predictions["seq1"])
}

func TestSessionSurvivesErrorReplies(t *testing.T) {
	s := newTestServer(t, &fixedScorer{})
	c, done := pipeClient(t, s)
	ctx := context.Background()

	raw, err := c.Exchange(ctx, []byte(`not json`))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bad_prediction_request":["request is not valid JSON`)

	result, err := c.Predict(ctx, map[string]any{"request": "predict"})
	require.NoError(t, err)
	assert.Equal(t, []string{"The following keys are missing from the json: prediction_tasks readout sequences"},
		result.Errors[ClassBadRequest])

	short := requestWith(func(r map[string]any) { r["sequences"] = map[string]any{"s": "ACGT"} })
	result, err = c.Predict(ctx, short)
	require.NoError(t, err)
	assert.Equal(t, []string{"length of a sequence in s is not equal to 2114"}, result.Errors[ClassRequestFailed])

	result, err = c.Predict(ctx, validRequest())
	require.NoError(t, err)
	assert.False(t, result.Failed())

	require.NoError(t, c.Close())
	assert.NoError(t, <-done, "clean close between frames is not an error")
}

func TestUnknownCellTypeFailsWholeRequest(t *testing.T) {
	s := newTestServer(t, &fixedScorer{})
	req := requestWith(func(r map[string]any) {
		r["prediction_tasks"] = append(r["prediction_tasks"].([]any), map[string]any{
			"name": "t2", "type": "accessibility", "cell_type": "Glia", "species": "mus_musculus",
		})
	})
	data, err := json.Marshal(req)
	require.NoError(t, err)

	reply := s.Handle(context.Background(), data, RequestInfo{})
	assert.Equal(t, OutcomeDispatch, reply.Outcome)
	assert.JSONEq(t, `{"prediction_request_failed":["Cell type 'Glia' not recognized."]}`, string(reply.Payload))
}

func TestIncompleteFrameEndsSession(t *testing.T) {
	s := newTestServer(t, &fixedScorer{})

	var in bytes.Buffer
	require.NoError(t, WriteFrame(&in, []byte(`{"request":"help"}`)))
	in.Write([]byte{0, 0, 1, 0, '{'})

	var out bytes.Buffer
	err := s.ServeStream(context.Background(), &in, &out, RequestInfo{})
	assert.ErrorIs(t, err, ErrIncompleteFrame)

	reply, err := ReadFrame(&out, DefaultFrameLimits())
	require.NoError(t, err)
	assert.Equal(t, testHelp, string(reply))
	assert.Zero(t, out.Len(), "nothing is sent for the broken frame")
}

func TestReadTimeout(t *testing.T) {
	s := newTestServer(t, &fixedScorer{})
	s.SetReadTimeout(30 * time.Millisecond)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	err := s.ServeConn(context.Background(), serverConn)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestUnencodableScoresFailRequest(t *testing.T) {
	nan := model.ScorerFunc(func(ctx context.Context, seqs map[string]string) (map[string][]model.Score, error) {
		out := map[string][]model.Score{}
		for id := range seqs {
			out[id] = []model.Score{model.Point(0), model.Point(math.NaN()), model.Point(0)}
		}
		return out, nil
	})
	s := newTestServer(t, nan)
	data, err := json.Marshal(validRequest())
	require.NoError(t, err)

	reply := s.Handle(context.Background(), data, RequestInfo{})
	assert.Equal(t, OutcomeDispatch, reply.Outcome)
	require.NotNil(t, reply.Report)
	assert.Contains(t, reply.Report.Messages[0], "predictions could not be encoded")
}

func TestServeSequentialSessions(t *testing.T) {
	s := newTestServer(t, &fixedScorer{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	for i := 0; i < 2; i++ {
		c, err := Dial(ctx, ln.Addr().String())
		require.NoError(t, err)
		result, err := c.Predict(ctx, validRequest())
		require.NoError(t, err)
		assert.False(t, result.Failed())
		require.NoError(t, c.Close())
	}
	assert.True(t, s.Serving())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.False(t, s.Serving())
}

func TestServeClosesActiveSessionOnCancel(t *testing.T) {
	s := newTestServer(t, &fixedScorer{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Help(context.Background())
	require.NoError(t, err)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return with an idle session open")
	}
}

type recordingHook struct {
	mu       sync.Mutex
	outcomes []Outcome
	stats    []RequestStatistics
	errs     []error
}

func (h *recordingHook) OnRequestStart(ctx context.Context, info RequestInfo) (context.Context, HookToken) {
	return ctx, info.RequestID
}

func (h *recordingHook) OnRequestEnd(ctx context.Context, token HookToken, info RequestInfo, stats *RequestStatistics, outcome Outcome, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes = append(h.outcomes, outcome)
	h.stats = append(h.stats, *stats)
	h.errs = append(h.errs, err)
}

func TestRequestHook(t *testing.T) {
	s := newTestServer(t, &fixedScorer{})
	hook := &recordingHook{}
	s.SetRequestHook(hook)

	data, err := json.Marshal(validRequest())
	require.NoError(t, err)
	s.Handle(context.Background(), data, RequestInfo{Transport: TransportTCP})
	s.Handle(context.Background(), []byte(`{}`), RequestInfo{Transport: TransportTCP})

	require.Len(t, hook.outcomes, 2)
	assert.Equal(t, []Outcome{OutcomeSuccess, OutcomeStructural}, hook.outcomes)
	assert.EqualValues(t, 2, hook.stats[0].Sequences)
	assert.EqualValues(t, 1, hook.stats[0].Tasks)
	assert.EqualValues(t, len(data), hook.stats[0].InputBytes)
	assert.NoError(t, hook.errs[0])
	assert.Error(t, hook.errs[1])
}

func TestNewServerChecksOptions(t *testing.T) {
	ix := testIndex(t)

	_, err := NewServer(Options{Help: []byte(testHelp), Index: ix})
	assert.Error(t, err, "scorer required")

	_, err = NewServer(Options{Help: []byte(`{"unterminated"`), Index: ix, Scorer: &fixedScorer{}})
	assert.Error(t, err)

	_, err = NewServer(Options{Help: []byte(testHelp), Scorer: &fixedScorer{}})
	assert.Error(t, err, "index required")

	s, err := NewServer(Options{Help: []byte(testHelp), Index: ix, Scorer: &fixedScorer{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultSpecies, s.validator.Species)
	assert.Equal(t, DefaultRequiredLength, s.transformer.RequiredLength)
}

func TestLoadHelp(t *testing.T) {
	dir := t.TempDir()
	good := dir + "/help.json"
	require.NoError(t, os.WriteFile(good, []byte(testHelp), 0o600))
	data, err := LoadHelp(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, testHelp, string(data))

	bad := dir + "/bad.json"
	require.NoError(t, os.WriteFile(bad, []byte("model: x"), 0o600))
	_, err = LoadHelp(context.Background(), bad)
	assert.Error(t, err)
}
