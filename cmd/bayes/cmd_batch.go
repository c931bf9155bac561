// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianBayes/services/inference/network"
	"github.com/AleutianAI/AleutianBayes/services/inference/server"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newBatchCmd(a *app) *cobra.Command {
	var (
		concurrency int
		failFast    bool
		noCache     bool
	)
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Answer a file of queries in parallel",
		Long: `Answer every query in a YAML or JSON file.

The file is either a list of queries or a mapping with a "queries" list.
Each query has the fields of the HTTP API: id, query, evidence, order,
heuristic, normalize, exclude and decision. Use "-" to read stdin.

The command exits non-zero when any query fails.

Example file:
  queries:
    - id: prior
      query: [Fraud]
    - id: posterior
      query: [Fraud]
      evidence: {FP: true, IP: false, CRP: true}
    - id: call
      query: [Call]
      decision: true
      evidence: {FP: true, IP: false, CRP: true}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("concurrency") {
				a.cfg.Runner.MaxConcurrency = concurrency
			}
			if cmd.Flags().Changed("fail-fast") {
				a.cfg.Runner.FailFast = failFast
			}
			return a.runBatch(cmd, args[0], noCache)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Queries in flight (default from config)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Cancel remaining queries after the first failure")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the result cache")
	return cmd
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func (a *app) runBatch(cmd *cobra.Command, path string, noCache bool) error {
	data, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}
	specs, err := network.ParseQueries(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	net, err := a.loadNetwork()
	if err != nil {
		return err
	}

	c, closeCache, err := a.openCache()
	if err != nil {
		return err
	}
	defer closeCache()
	if noCache {
		c = nil
	}
	r, err := a.newRunner(c)
	if err != nil {
		return err
	}

	outcomes, runErr := r.Run(cmd.Context(), net, specs)

	failed, cached := 0, 0
	items := make([]server.BatchItem, len(outcomes))
	for i, o := range outcomes {
		items[i] = server.NewBatchItem(net, o)
		if o.Err != nil {
			failed++
		}
		if o.Cached {
			cached++
		}
	}

	if a.jsonOut {
		if err := writeJSON(cmd.OutOrStdout(), server.BatchResponse{Results: items, Failed: failed}); err != nil {
			return err
		}
	} else {
		p := a.printer(cmd.OutOrStdout())
		for _, o := range outcomes {
			if o.Err != nil {
				p.Error(fmt.Sprintf("%s: %v", o.ID, o.Err))
				continue
			}
			printOutcome(p, o)
		}
		p.Summary(len(outcomes)-failed, failed, cached, len(outcomes))
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(outcomes))
	}
	return nil
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
