// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// WorkerServer serves a [Scorer] over the Arrow IPC worker protocol, one
// score call at a time.
type WorkerServer struct {
	scorer   Scorer
	workerID string
	logger   *slog.Logger
}

// NewWorkerServer creates a worker server for scorer.
func NewWorkerServer(scorer Scorer) *WorkerServer {
	return &WorkerServer{scorer: scorer, logger: slog.Default()}
}

// SetWorkerID sets an identifier included in response metadata.
func (s *WorkerServer) SetWorkerID(id string) {
	s.workerID = id
}

// SetLogger replaces the logger used for serve loop errors.
func (s *WorkerServer) SetLogger(l *slog.Logger) {
	s.logger = l
}

// ServeWorker serves scorer on r and w until r reaches EOF.
func ServeWorker(ctx context.Context, scorer Scorer, r io.Reader, w io.Writer) error {
	return NewWorkerServer(scorer).Serve(ctx, r, w)
}

// RunStdio serves on stdin and stdout. A warning goes to stderr when either
// is a terminal.
func (s *WorkerServer) RunStdio(ctx context.Context) error {
	signal.Ignore(syscall.SIGPIPE)

	if isTerminal(os.Stdin) || isTerminal(os.Stdout) {
		fmt.Fprintln(os.Stderr,
			"WARNING: This process speaks Arrow IPC on stdin/stdout and is "+
				"meant to be launched by the predictor, not run interactively.")
	}
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Serve runs the serve loop. It returns nil when the peer closes the stream
// and the transport error otherwise.
func (s *WorkerServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.serveOne(ctx, r, bw)
		if err == nil {
			err = bw.Flush()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if !isTransportClosed(err) {
				s.logger.Error("worker serve loop error", "err", err)
			}
			return err
		}
	}
}

// serveOne handles one score call. Scoring failures are written back to the
// caller and do not end the loop.
func (s *WorkerServer) serveOne(ctx context.Context, r io.Reader, w io.Writer) error {
	req, err := readScoreRequest(r)
	if err != nil {
		var we *WorkerError
		if errors.As(err, &we) {
			return writeScoreError(w, nil, we, we.RequestID, s.workerID)
		}
		return err
	}

	callCtx, logs := withLogCollector(ctx)
	scores, scoreErr := s.score(callCtx, req.Sequences)
	if scoreErr != nil {
		s.logger.Debug("score failed", "request_id", req.RequestID, "err", scoreErr)
		return writeScoreError(w, logs.drain(), scoreErr, req.RequestID, s.workerID)
	}

	err = writeScoreResult(w, logs.drain(), scores, req.RequestID, s.workerID)
	if errors.Is(err, errMixedScores) {
		return writeScoreError(w, nil, &WorkerError{Type: "ProtocolError", Message: err.Error()}, req.RequestID, s.workerID)
	}
	return err
}

func (s *WorkerServer) score(ctx context.Context, sequences map[string]string) (scores map[string][]Score, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			s.logger.Error("scorer panic", "err", rv)
			err = &WorkerError{Type: "PanicError", Message: fmt.Sprint(rv)}
		}
	}()
	return s.scorer.Score(ctx, sequences)
}

// isTransportClosed returns true for errors that indicate the peer went away.
func isTransportClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "use of closed")
}
