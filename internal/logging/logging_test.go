// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestNewJSONFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Config{Level: "warn", Format: "json"})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "request_id", "r-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "r-1", line["request_id"])
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	t.Setenv(EnvFormat, "text")

	var buf bytes.Buffer
	logger, err := New(&buf, Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Config{Format: "xml"})
	assert.Error(t, err)
}
