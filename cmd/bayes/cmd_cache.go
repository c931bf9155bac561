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
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ErrCacheDisabled is returned by cache commands when cache.enabled is false.
var ErrCacheDisabled = errors.New("result cache is disabled (set cache.enabled or BAYES_CACHE_ENABLED)")

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}

	var all bool
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached results of the current network",
		Long: `Delete cached results.

By default only entries of the current network (by fingerprint) are
removed. --all removes every entry.

Examples:
  bayes cache purge
  bayes cache purge --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCachePurge(cmd, all)
		},
	}
	purge.Flags().BoolVar(&all, "all", false, "Purge every network's entries")

	cmd.AddCommand(purge)
	return cmd
}

func (a *app) runCachePurge(cmd *cobra.Command, all bool) error {
	c, closeCache, err := a.openCache()
	if err != nil {
		return err
	}
	defer closeCache()
	if c == nil {
		return ErrCacheDisabled
	}

	fingerprint := ""
	if !all {
		net, err := a.loadNetwork()
		if err != nil {
			return err
		}
		fingerprint = net.Fingerprint()
	}

	n, err := c.Purge(cmd.Context(), fingerprint)
	if err != nil {
		return err
	}
	if a.jsonOut {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"purged": n, "fingerprint": fingerprint})
	}
	scope := "all networks"
	if fingerprint != "" {
		scope = "network " + fingerprint
	}
	a.printer(cmd.OutOrStdout()).Success(fmt.Sprintf("purged %d entries for %s", n, scope))
	return nil
}
