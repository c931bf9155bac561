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
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianBayes/services/inference/network"
)

func newShowCmd(a *app) *cobra.Command {
	var (
		tables     bool
		definition bool
	)
	cmd := &cobra.Command{
		Use:   "show [FACTOR...]",
		Short: "Describe the network",
		Long: `Describe the network: variables, declared order and factors.

Naming factors, or passing --tables, also prints their tables.
--definition prints the YAML definition instead, which for the built-in
network is a starting point for your own.

Examples:
  bayes show
  bayes show --tables
  bayes show p_fraud block_utility
  bayes show --definition > fraud.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if definition {
				return a.printDefinition(cmd)
			}
			return a.runShow(cmd, args, tables)
		},
	}
	cmd.Flags().BoolVarP(&tables, "tables", "t", false, "Print every factor table")
	cmd.Flags().BoolVar(&definition, "definition", false, "Print the network definition YAML")
	return cmd
}

func (a *app) runShow(cmd *cobra.Command, names []string, allTables bool) error {
	net, err := a.loadNetwork()
	if err != nil {
		return err
	}
	summary := net.Summary()

	if allTables && len(names) == 0 {
		for _, f := range summary.Factors {
			names = append(names, f.Name)
		}
	}

	if a.jsonOut {
		if len(names) == 0 {
			return writeJSON(cmd.OutOrStdout(), summary)
		}
		type factorTable struct {
			Name  string            `json:"name"`
			Kind  network.Kind      `json:"kind"`
			Table map[string]string `json:"table"`
		}
		out := struct {
			network.Summary
			Tables []factorTable `json:"tables"`
		}{Summary: summary}
		for _, name := range names {
			f, kind, err := net.Factor(name)
			if err != nil {
				return err
			}
			out.Tables = append(out.Tables, factorTable{Name: name, Kind: kind, Table: tableRows(f.Table())})
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	p := a.printer(cmd.OutOrStdout())
	p.Title(summary.Name)
	if summary.Description != "" {
		p.Info(strings.TrimSpace(summary.Description))
	}
	p.KeyValue("variables", strings.Join(summary.Variables, " "))
	if len(summary.Order) > 0 {
		p.KeyValue("order", strings.Join(summary.Order, " "))
	}
	p.KeyValue("fingerprint", summary.Fingerprint)
	for _, f := range summary.Factors {
		p.Info(fmt.Sprintf("%-10s %-9s f(%s)  %d entries", f.Name, f.Kind, strings.Join(f.Variables, ","), f.Size))
	}

	for _, name := range names {
		f, kind, err := net.Factor(name)
		if err != nil {
			return err
		}
		p.Box(fmt.Sprintf("%s (%s)", name, kind), f.Table())
	}
	return nil
}

// printDefinition writes the definition YAML as loaded.
func (a *app) printDefinition(cmd *cobra.Command) error {
	var data []byte
	if a.cfg.Network.Path == "" {
		data = network.ExampleYAML()
	} else {
		var err error
		if data, err = os.ReadFile(a.cfg.Network.Path); err != nil {
			return err
		}
	}
	_, err := cmd.OutOrStdout().Write(data)
	return err
}

// tableRows splits a factor table into assignment -> value.
func tableRows(table string) map[string]string {
	rows := make(map[string]string)
	for _, line := range strings.Split(strings.TrimRight(table, "\n"), "\n") {
		lhs, value, ok := strings.Cut(line, " = ")
		if !ok {
			continue
		}
		assignment := strings.TrimSuffix(strings.TrimPrefix(lhs, "f("), ")")
		rows[strings.ReplaceAll(assignment, " ", "")] = value
	}
	return rows
}
