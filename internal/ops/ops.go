// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package ops serves the predictor's HTTP side: health probes, metrics, a
// landing page and the HTTP prediction transport.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/Query-farm/predictor/predictor"
)

// compressMinSize is the smallest response body worth compressing.
const compressMinSize = 1024

type Options struct {
	Server *predictor.Server
	// Prefix mounts the prediction routes, e.g. "/v1".
	Prefix string
	// Metrics serves /metrics when non-nil.
	Metrics     http.Handler
	Compression bool
}

// NewHandler builds the ops mux.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Server == nil {
		return nil, errors.New("ops: no predictor server")
	}
	api := predictor.NewHTTPHandler(opts.Server, opts.Prefix)
	landing := buildLandingHTML(opts.Server, api.Prefix(), opts.Metrics != nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !opts.Server.Serving() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not serving\n"))
			return
		}
		_, _ = w.Write([]byte("ready\n"))
	})
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	mux.Handle(api.Prefix()+"/", api)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeHTML(w, http.StatusOK, landing)
	})

	if !opts.Compression {
		return mux, nil
	}
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(compressMinSize))
	if err != nil {
		return nil, fmt.Errorf("ops: compression: %w", err)
	}
	return wrap(mux), nil
}

// ListenAndServe serves h on addr until ctx is done, then shuts down with a
// five second grace period.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ops: listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, h)
}

// Serve is ListenAndServe on an existing listener.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("ops server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops: shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
