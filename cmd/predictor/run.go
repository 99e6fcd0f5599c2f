// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Query-farm/predictor/internal/config"
	"github.com/Query-farm/predictor/internal/logging"
	"github.com/Query-farm/predictor/internal/ops"
	"github.com/Query-farm/predictor/internal/telemetry"
	"github.com/Query-farm/predictor/model"
	"github.com/Query-farm/predictor/predictor"
	predotel "github.com/Query-farm/predictor/predictor/otel"
)

// app is a fully loaded predictor process.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	server *predictor.Server
	index  *model.Index
	worker *model.WorkerScorer
}

// build loads every asset and the scorer. Any failure here is fatal.
func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	index, err := model.LoadIndex(ctx, cfg.Predictor.CategoryIndexPath)
	if err != nil {
		return nil, err
	}
	help, err := predictor.LoadHelp(ctx, cfg.Predictor.HelpPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, index: index}
	var scorer model.Scorer
	opts := []model.WorkerOption{
		model.WithCallTimeout(cfg.Model.CallTimeout),
		model.WithWorkerLogger(logger.With("component", "worker")),
	}
	switch {
	case cfg.Model.Command != "":
		a.worker = model.SpawnWorker(cfg.Model.Command, cfg.Model.Args, opts...)
		scorer = a.worker
	case cfg.Model.Address != "":
		network := cfg.Model.Network
		if network == "" {
			network = "unix"
		}
		a.worker = model.DialWorker(network, cfg.Model.Address, opts...)
		scorer = a.worker
	default:
		logger.Warn("no scoring worker configured, using hash scorer")
		scorer = model.HashScorer{Categories: index.Len()}
	}
	if a.worker != nil {
		if err := a.worker.Connect(ctx); err != nil {
			return nil, err
		}
	}

	server, err := predictor.NewServer(predictor.Options{
		Species:        cfg.Predictor.Species,
		RequiredLength: cfg.Predictor.RequiredLength,
		Help:           help,
		Index:          index,
		Scorer:         scorer,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	server.SetFrameLimits(predictor.FrameLimits{
		BufferSize:      cfg.Server.BufferSize,
		MaxPayloadBytes: cfg.Server.MaxFrameBytes,
	})
	server.SetReadTimeout(cfg.Server.ReadTimeout)
	server.SetServiceName(cfg.Telemetry.ServiceName)
	server.SetLogger(logger)
	a.server = server
	return a, nil
}

func (a *app) close() {
	if a.worker != nil {
		if err := a.worker.Close(); err != nil {
			a.logger.Warn("closing scoring worker", "err", err)
		}
	}
}

func runCheck(ctx context.Context, cfg config.Config, out io.Writer) error {
	logger, err := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	scorer := "hash"
	if a.worker != nil {
		scorer = "worker"
	}
	fmt.Fprintf(out, "ok: %d cell types, species %s, sequence length %d, %s scorer\n",
		a.index.Len(), cfg.Predictor.Species, cfg.Predictor.RequiredLength, scorer)
	return nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger, err := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	predotel.InstrumentServer(a.server, predotel.DefaultConfig())

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("predictor: listen %s: %w", cfg.Server.Listen, err)
	}
	logger.Info("predictor listening",
		"addr", ln.Addr().String(),
		"cell_types", a.index.Len(),
		"species", cfg.Predictor.Species)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Serve(gctx, ln) })
	if cfg.Ops.Listen != "" {
		h, err := ops.NewHandler(ops.Options{
			Server:      a.server,
			Prefix:      cfg.Ops.HTTPPrefix,
			Metrics:     tel.MetricsHandler(),
			Compression: cfg.Ops.Compression,
		})
		if err != nil {
			ln.Close()
			return err
		}
		g.Go(func() error { return ops.ListenAndServe(gctx, cfg.Ops.Listen, h) })
	}
	err = g.Wait()
	logger.Info("predictor stopped", "err", err)
	return err
}
