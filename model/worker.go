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
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnectFunc opens a fresh byte stream to a scoring worker.
type ConnectFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// WorkerScorer is a [Scorer] backed by an external worker speaking the Arrow
// IPC worker protocol. Calls are serialized. The connection is opened lazily
// and reopened on the next call after a transport failure.
type WorkerScorer struct {
	connect ConnectFunc
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	closed bool
}

// WorkerOption configures a [WorkerScorer].
type WorkerOption func(*WorkerScorer)

// WithCallTimeout bounds each score call. Zero means no bound beyond the
// caller's context.
func WithCallTimeout(d time.Duration) WorkerOption {
	return func(w *WorkerScorer) { w.timeout = d }
}

// WithWorkerLogger sets the logger that receives relayed worker logs.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *WorkerScorer) { w.logger = l }
}

// NewWorkerScorer creates a worker-backed scorer using connect to reach the
// worker.
func NewWorkerScorer(connect ConnectFunc, opts ...WorkerOption) *WorkerScorer {
	w := &WorkerScorer{connect: connect, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// DialWorker returns a scorer that reaches the worker over a "tcp" or "unix"
// socket.
func DialWorker(network, address string, opts ...WorkerOption) *WorkerScorer {
	return NewWorkerScorer(func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, fmt.Errorf("model: dialing worker %s %s: %w", network, address, err)
		}
		return conn, nil
	}, opts...)
}

// SpawnWorker returns a scorer that starts command as a child process and
// talks to it on its stdin and stdout. The child's stderr is passed through.
func SpawnWorker(command string, args []string, opts ...WorkerOption) *WorkerScorer {
	return NewWorkerScorer(func(ctx context.Context) (io.ReadWriteCloser, error) {
		cmd := exec.Command(command, args...)
		cmd.Stderr = os.Stderr
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("model: worker stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("model: worker stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("model: starting worker %s: %w", command, err)
		}
		return &processConn{cmd: cmd, stdin: stdin, stdout: stdout}, nil
	}, opts...)
}

// processConn joins a child's stdout and stdin into one stream.
type processConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	once   sync.Once
	err    error
}

func (p *processConn) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *processConn) Write(b []byte) (int, error) { return p.stdin.Write(b) }

// Close closes stdin so the worker sees EOF, then waits for it to exit,
// killing it if it lingers.
func (p *processConn) Close() error {
	p.once.Do(func() {
		p.stdin.Close()
		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()
		select {
		case p.err = <-done:
		case <-time.After(2 * time.Second):
			_ = p.cmd.Process.Kill()
			p.err = <-done
		}
	})
	return p.err
}

// Connect opens the worker connection now instead of on the first call.
func (w *WorkerScorer) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.ensureConn(ctx)
	return err
}

func (w *WorkerScorer) ensureConn(ctx context.Context) (io.ReadWriteCloser, error) {
	if w.closed {
		return nil, ErrWorkerClosed
	}
	if w.conn != nil {
		return w.conn, nil
	}
	conn, err := w.connect(ctx)
	if err != nil {
		return nil, err
	}
	w.conn = conn
	return conn, nil
}

func (w *WorkerScorer) dropConn() {
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.logger.Debug("closing worker connection", "err", err)
		}
		w.conn = nil
	}
}

// Close shuts down the worker connection. Later calls fail with
// [ErrWorkerClosed].
func (w *WorkerScorer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.dropConn()
	return nil
}

type scoreOutcome struct {
	scores map[string][]Score
	err    error
}

// Score implements [Scorer]. Failures reported by the worker are returned as
// *WorkerError and keep the connection; any other failure drops it.
func (w *WorkerScorer) Score(ctx context.Context, sequences map[string]string) (map[string][]Score, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	conn, err := w.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	done := make(chan scoreOutcome, 1)
	go func() {
		scores, err := w.exchange(ctx, conn, requestID, sequences)
		done <- scoreOutcome{scores: scores, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && !errors.Is(out.err, ErrWorker) {
			w.dropConn()
			return nil, fmt.Errorf("model: score call %s: %w", requestID, out.err)
		}
		return out.scores, out.err
	case <-ctx.Done():
		w.dropConn()
		<-done
		return nil, fmt.Errorf("model: score call %s: %w", requestID, ctx.Err())
	}
}

func (w *WorkerScorer) exchange(ctx context.Context, conn io.ReadWriter, requestID string, sequences map[string]string) (map[string][]Score, error) {
	bw := bufio.NewWriter(conn)
	if err := writeScoreRequest(bw, requestID, sequences); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("sending score request: %w", err)
	}
	return readScoreResponse(conn, requestID, func(msg LogMessage) {
		w.logger.Log(ctx, msg.Level.slogLevel(), "worker log",
			"request_id", requestID, "message", msg.Message)
	})
}
