// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Command predictor-conformance runs the conformance cases against a
// predictor listening on a TCP address.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/Query-farm/predictor/conformance"
	"github.com/Query-farm/predictor/internal/assets"
	"github.com/Query-farm/predictor/predictor"
)

var errFailed = errors.New("conformance cases failed")

func main() {
	var (
		addr           string
		cellType       string
		species        string
		requiredLength int
		helpPath       string
		run            string
		timeout        time.Duration
	)
	cmd := &cobra.Command{
		Use:           "predictor-conformance",
		Short:         "Check a running predictor against the evaluator protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var filter *regexp.Regexp
			if run != "" {
				var err error
				if filter, err = regexp.Compile(run); err != nil {
					return fmt.Errorf("--run: %w", err)
				}
			}
			env := &conformance.Env{CellType: cellType, Species: species, RequiredLength: requiredLength}
			if helpPath != "" {
				help, err := assets.ReadFile(ctx, helpPath)
				if err != nil {
					return err
				}
				env.Help = help
			}
			client, err := predictor.Dial(ctx, addr)
			if err != nil {
				return err
			}
			defer client.Close()
			env.Client = client

			failed := 0
			out := cmd.OutOrStdout()
			for _, r := range conformance.Run(ctx, env, filter) {
				if r.Err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %-36s %v\n", r.Name, r.Err)
					continue
				}
				fmt.Fprintf(out, "ok   %-36s %s\n", r.Name, r.Duration.Round(time.Microsecond))
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d", errFailed, failed)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:5000", "predictor address")
	f.StringVar(&cellType, "cell-type", "", "a cell type the predictor knows")
	f.StringVar(&species, "species", predictor.DefaultSpecies, "species the predictor accepts")
	f.IntVar(&requiredLength, "required-length", predictor.DefaultRequiredLength, "sequence length the predictor requires")
	f.StringVar(&helpPath, "help", "", "expected help document; compared byte for byte")
	f.StringVar(&run, "run", "", "only run cases matching this regexp")
	f.DurationVar(&timeout, "timeout", time.Minute, "overall deadline")
	_ = cmd.MarkFlagRequired("cell-type")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "predictor-conformance: %v\n", err)
		os.Exit(1)
	}
}
