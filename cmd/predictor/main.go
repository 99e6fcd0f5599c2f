// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Command predictor serves cell-type sequence predictions to evaluators.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Query-farm/predictor/internal/config"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "predictor",
		Short:         "Serve sequence predictions over framed TCP and HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Load the model assets and accept evaluators until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	check := &cobra.Command{
		Use:   "check",
		Short: "Load the config, help document, category index and worker, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	for _, c := range []*cobra.Command{serve, check} {
		f := c.Flags()
		f.String("listen", "", "evaluator listen address (host:port)")
		f.String("ops-listen", "", "ops HTTP listen address; empty disables it")
		f.String("species", "", "species accepted in prediction tasks")
		f.Int("required-length", 0, "length every flanked sequence must have")
		f.String("help-path", "", "help document path or gs:// URL")
		f.String("index-path", "", "category index path or gs:// URL")
		f.String("worker-command", "", "scoring worker executable")
		f.StringSlice("worker-arg", nil, "scoring worker argument (repeatable)")
		f.String("log-level", "", "debug, info, warn or error")
	}
	root.AddCommand(serve, check)
	return root
}

// loadConfig reads the config file and applies flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Server.Listen, _ = f.GetString("listen")
	}
	if f.Changed("ops-listen") {
		cfg.Ops.Listen, _ = f.GetString("ops-listen")
	}
	if f.Changed("species") {
		cfg.Predictor.Species, _ = f.GetString("species")
	}
	if f.Changed("required-length") {
		cfg.Predictor.RequiredLength, _ = f.GetInt("required-length")
	}
	if f.Changed("help-path") {
		cfg.Predictor.HelpPath, _ = f.GetString("help-path")
	}
	if f.Changed("index-path") {
		cfg.Predictor.CategoryIndexPath, _ = f.GetString("index-path")
	}
	if f.Changed("worker-command") {
		cfg.Model.Command, _ = f.GetString("worker-command")
		cfg.Model.Network, cfg.Model.Address = "", ""
	}
	if f.Changed("worker-arg") {
		cfg.Model.Args, _ = f.GetStringSlice("worker-arg")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "predictor: %v\n", err)
		os.Exit(1)
	}
}
