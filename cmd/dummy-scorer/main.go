// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Command dummy-scorer is a scoring worker that returns deterministic hash
// scores. It speaks the worker protocol on stdin/stdout, or on a unix socket
// with --unix.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Query-farm/predictor/internal/logging"
	"github.com/Query-farm/predictor/model"
)

func main() {
	var (
		unixPath   string
		indexPath  string
		categories int
		trackWidth int
	)
	cmd := &cobra.Command{
		Use:           "dummy-scorer",
		Short:         "Serve deterministic hash scores to a predictor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol, so logs always go to stderr
			logger, err := logging.Setup(logging.Config{Level: "info", Format: "text"})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if indexPath != "" {
				ix, err := model.LoadIndex(ctx, indexPath)
				if err != nil {
					return err
				}
				categories = ix.Len()
			}
			server := model.NewWorkerServer(model.HashScorer{Categories: categories, TrackWidth: trackWidth})
			server.SetWorkerID(fmt.Sprintf("dummy-scorer-%d", os.Getpid()))
			server.SetLogger(logger)

			if unixPath == "" {
				// the predictor ends a stdio worker by closing stdin
				return server.RunStdio(ctx)
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveUnix(ctx, server, unixPath)
		},
	}
	f := cmd.Flags()
	f.StringVar(&unixPath, "unix", "", "listen on this unix socket instead of stdio")
	f.StringVar(&indexPath, "index", "", "category index; sets --categories to its length")
	f.IntVar(&categories, "categories", 1, "number of cell types scored per sequence")
	f.IntVar(&trackWidth, "track-width", 0, "score tracks of this width instead of points")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dummy-scorer: %v\n", err)
		os.Exit(1)
	}
}

// serveUnix accepts predictors one at a time until ctx is done.
func serveUnix(ctx context.Context, server *model.WorkerServer, path string) error {
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on unix socket: %w", err)
	}
	defer os.Remove(path)
	fmt.Printf("UNIX:%s\n", path)
	os.Stdout.Sync()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := server.Serve(ctx, conn, conn); err != nil {
			slog.Warn("worker connection ended", "err", err)
		}
		conn.Close()
	}
}
