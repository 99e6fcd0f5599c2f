// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/predictor/internal/config"
	"github.com/Query-farm/predictor/predictor"
)

func writeAssets(t *testing.T) (help, index string) {
	t.Helper()
	dir := t.TempDir()
	help = filepath.Join(dir, "help.json")
	index = filepath.Join(dir, "cell_types.tsv")
	require.NoError(t, os.WriteFile(help, []byte(`{"model":"hash"}`), 0o600))
	require.NoError(t, os.WriteFile(index, []byte("Neuron\t0\nAstrocyte\t1\n"), 0o600))
	return help, index
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	help, index := writeAssets(t)
	out, err := execute(t, "check", "--help-path", help, "--index-path", index, "--required-length", "500")
	require.NoError(t, err)
	assert.Equal(t, "ok: 2 cell types, species mus_musculus, sequence length 500, hash scorer\n", out)
}

func TestCheckCommandReadsConfigFile(t *testing.T) {
	help, index := writeAssets(t)
	cfgFile := filepath.Join(t.TempDir(), "predictor.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(strings.Join([]string{
		"[predictor]",
		`species = "homo_sapiens"`,
		`help_path = "` + help + `"`,
		`category_index_path = "` + index + `"`,
	}, "\n")), 0o600))

	out, err := execute(t, "check", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, "species homo_sapiens")
}

func TestCheckCommandFailsOnMissingIndex(t *testing.T) {
	help, _ := writeAssets(t)
	_, err := execute(t, "check", "--help-path", help, "--index-path", filepath.Join(t.TempDir(), "none.tsv"))
	assert.Error(t, err)
}

func TestFlagsAreValidated(t *testing.T) {
	help, index := writeAssets(t)
	_, err := execute(t, "check", "--help-path", help, "--index-path", index, "--log-level", "loud")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBuildServesHashScores(t *testing.T) {
	help, index := writeAssets(t)
	cfg := config.Default()
	cfg.Predictor.HelpPath = help
	cfg.Predictor.CategoryIndexPath = index
	cfg.Predictor.RequiredLength = 8

	a, err := build(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer a.close()
	assert.Nil(t, a.worker)

	reply := a.server.Handle(context.Background(), []byte(`{
		"request": "predict", "readout": "point",
		"prediction_tasks": [{"name": "t", "type": "accessibility", "cell_type": "Astrocyte", "species": "mus_musculus"}],
		"sequences": {"s": "ACGTACGT"}
	}`), predictor.RequestInfo{})
	assert.Equal(t, predictor.OutcomeSuccess, reply.Outcome, string(reply.Payload))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
