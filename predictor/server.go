// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Query-farm/predictor/internal/assets"
	"github.com/Query-farm/predictor/model"
)

// Options are the immutable collaborators of a Server, loaded before it
// starts accepting.
type Options struct {
	// Species defaults to DefaultSpecies.
	Species string
	// RequiredLength defaults to DefaultRequiredLength.
	RequiredLength int
	// Help is served verbatim for help requests. It must be valid JSON.
	Help   []byte
	Index  *model.Index
	Scorer model.Scorer
}

// Server answers framed prediction requests.
type Server struct {
	validator   Validator
	transformer Transformer
	dispatcher  Dispatcher
	help        []byte

	limits      FrameLimits
	readTimeout time.Duration
	hook        RequestHook
	logger      *slog.Logger
	serviceName string

	serving atomic.Bool
	mu      sync.Mutex
	active  net.Conn
}

// NewServer checks opts and builds a server.
func NewServer(opts Options) (*Server, error) {
	if opts.Species == "" {
		opts.Species = DefaultSpecies
	}
	if opts.RequiredLength == 0 {
		opts.RequiredLength = DefaultRequiredLength
	}
	switch {
	case opts.RequiredLength < 0:
		return nil, fmt.Errorf("predictor: required length %d is negative", opts.RequiredLength)
	case opts.Scorer == nil:
		return nil, errors.New("predictor: no scorer")
	case opts.Index == nil:
		return nil, errors.New("predictor: no category index")
	case !json.Valid(opts.Help):
		return nil, errors.New("predictor: help document is not valid JSON")
	}
	return &Server{
		validator:   Validator{Species: opts.Species},
		transformer: Transformer{RequiredLength: opts.RequiredLength},
		dispatcher:  Dispatcher{Scorer: opts.Scorer, Index: opts.Index},
		help:        opts.Help,
		limits:      DefaultFrameLimits(),
		logger:      slog.Default(),
		serviceName: "predictor",
	}, nil
}

// LoadHelp reads the help document from a local path or gs:// URL and checks
// that it is JSON. The bytes are kept as read.
func LoadHelp(ctx context.Context, path string) ([]byte, error) {
	data, err := assets.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("predictor: help document %s is not valid JSON", path)
	}
	return data, nil
}

// SetFrameLimits replaces the frame read limits.
func (s *Server) SetFrameLimits(limits FrameLimits) {
	s.limits = limits
}

// SetReadTimeout bounds how long a connection may stay idle between reads.
// Zero disables the bound.
func (s *Server) SetReadTimeout(d time.Duration) {
	s.readTimeout = d
}

// SetRequestHook registers a hook that is called around each request.
func (s *Server) SetRequestHook(hook RequestHook) {
	s.hook = hook
}

func (s *Server) SetLogger(l *slog.Logger) {
	s.logger = l
}

// SetServiceName sets a logical service name used by observability hooks.
func (s *Server) SetServiceName(name string) {
	s.serviceName = name
}

// ServiceName returns the logical service name.
func (s *Server) ServiceName() string {
	return s.serviceName
}

// Help returns the help document.
func (s *Server) Help() []byte {
	return s.help
}

// Species returns the species the server accepts.
func (s *Server) Species() string {
	return s.validator.Species
}

// RequiredLength returns the length every flanked sequence must have.
func (s *Server) RequiredLength() int {
	return s.transformer.RequiredLength
}

// Categories returns the cell types in output order.
func (s *Server) Categories() []string {
	return s.dispatcher.Index.Names()
}

// Serving reports whether Serve is accepting connections.
func (s *Server) Serving() bool {
	return s.serving.Load()
}

// Serve accepts evaluators on ln one at a time and serves each to completion
// before accepting the next. It closes ln and returns nil once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		s.closeActive()
	})
	defer stop()

	s.serving.Store(true)
	defer s.serving.Store(false)
	s.logger.Info("waiting for evaluators", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accepting evaluator", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		s.setActive(conn)
		if err := s.ServeConn(ctx, conn); err != nil {
			if isTransportClosed(err) {
				s.logger.Debug("evaluator connection closed", "remote", conn.RemoteAddr().String(), "err", err)
			} else {
				s.logger.Warn("evaluator connection aborted", "remote", conn.RemoteAddr().String(), "err", err)
			}
		}
		conn.Close()
		s.setActive(nil)
	}
}

func (s *Server) setActive(conn net.Conn) {
	s.mu.Lock()
	s.active = conn
	s.mu.Unlock()
}

func (s *Server) closeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.Close()
	}
}

// ServeConn serves one evaluator connection until it closes. A clean close
// between frames returns nil. The caller closes conn.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) error {
	var r io.Reader = conn
	if s.readTimeout > 0 {
		r = &idleReader{conn: conn, timeout: s.readTimeout}
	}
	info := RequestInfo{Transport: TransportTCP}
	if addr := conn.RemoteAddr(); addr != nil {
		info.RemoteAddr = addr.String()
	}
	return s.ServeStream(ctx, r, conn, info)
}

// ServeStream runs the request loop over any byte stream.
func (s *Server) ServeStream(ctx context.Context, r io.Reader, w io.Writer, info RequestInfo) error {
	logger := s.logger.With("remote", info.RemoteAddr)
	logger.Info("evaluator connected")
	for {
		payload, err := ReadFrame(r, s.limits)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				logger.Info("evaluator disconnected")
				return nil
			}
			return err
		}

		reqInfo := info
		reqInfo.RequestID = uuid.NewString()
		reply := s.Handle(ctx, payload, reqInfo)
		if err := WriteFrame(w, reply.Payload); err != nil {
			return err
		}
	}
}

// idleReader sets a fresh read deadline before every read.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}

// Handle runs one request payload through the pipeline and returns the
// reply to send. It never fails: every problem becomes an error reply.
func (s *Server) Handle(ctx context.Context, payload []byte, info RequestInfo) Reply {
	if info.RequestID == "" {
		info.RequestID = uuid.NewString()
	}

	var (
		token      HookToken
		hookActive bool
	)
	if s.hook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					s.logger.Error("request hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, token = s.hook.OnRequestStart(ctx, info)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	stats := &RequestStatistics{InputBytes: int64(len(payload))}
	start := time.Now()
	reply := s.handle(ctx, payload, stats)
	stats.OutputBytes = int64(len(reply.Payload))

	attrs := []any{
		"request_id", info.RequestID,
		"transport", info.Transport,
		"outcome", reply.Outcome.String(),
		"duration", time.Since(start),
	}
	if reply.Report != nil {
		attrs = append(attrs, "errors", len(reply.Report.Messages))
		s.logger.Info("request rejected", attrs...)
	} else {
		s.logger.Info("request served", attrs...)
	}

	if hookActive {
		var err error
		if reply.Report != nil {
			err = reply.Report
		}
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					s.logger.Error("request hook end panic", "err", rv)
				}
			}()
			s.hook.OnRequestEnd(ctx, token, info, stats, reply.Outcome, err)
		}()
	}
	return reply
}

func (s *Server) handle(ctx context.Context, payload []byte, stats *RequestStatistics) Reply {
	doc, err := decodeDocument(payload)
	if err != nil {
		report := NewErrorReport(ClassBadRequest)
		report.Addf("request is not valid JSON: %v", err)
		return errorReply(OutcomeStructural, report)
	}
	if doc.isHelp() {
		return Reply{Outcome: OutcomeHelp, Payload: s.help}
	}

	req, outcome, report := s.validator.Validate(doc)
	if report != nil {
		return errorReply(outcome, report)
	}
	stats.Tasks = int64(len(req.PredictionTasks))
	stats.Sequences = int64(len(req.Sequences))

	prepared, report := s.transformer.Apply(req)
	if report != nil {
		return errorReply(OutcomeModelInput, report)
	}

	dispatch, report := s.dispatcher.Dispatch(ctx, req.PredictionTasks, prepared)
	if report != nil {
		return errorReply(OutcomeDispatch, report)
	}

	out, err := json.Marshal(Assemble(req, dispatch))
	if err != nil {
		report := NewErrorReport(ClassRequestFailed)
		report.Addf("predictions could not be encoded: %v", err)
		return errorReply(OutcomeDispatch, report)
	}
	return Reply{Outcome: OutcomeSuccess, Payload: out}
}

func errorReply(outcome Outcome, report *ErrorReport) Reply {
	payload, err := json.Marshal(report)
	if err != nil {
		payload = []byte(`{"` + string(report.Class) + `":[]}`)
	}
	return Reply{Outcome: outcome, Payload: payload, Report: report}
}

// isTransportClosed returns true for errors that indicate the peer went away.
func isTransportClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset")
}
