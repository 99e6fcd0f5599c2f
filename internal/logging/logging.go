// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process slog.Logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables that override the configured level and format.
const (
	EnvLevel  = "PREDICTOR_LOG_LEVEL"
	EnvFormat = "PREDICTOR_LOG_FORMAT"
)

// Config selects the minimum level (debug, info, warn, error) and the
// output format (text, json).
type Config struct {
	Level  string
	Format string
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging: unknown level %q", name)
}

// New builds a logger writing to w. Environment overrides win over cfg.
func New(w io.Writer, cfg Config) (*slog.Logger, error) {
	if v := os.Getenv(EnvLevel); v != "" {
		cfg.Level = v
	}
	if v := os.Getenv(EnvFormat); v != "" {
		cfg.Format = v
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	return slog.New(h), nil
}

// Setup builds a stderr logger and installs it as the slog default.
func Setup(cfg Config) (*slog.Logger, error) {
	logger, err := New(os.Stderr, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
