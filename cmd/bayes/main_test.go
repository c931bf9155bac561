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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianBayes/services/inference/config"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
	"github.com/AleutianAI/AleutianBayes/services/inference/server"
)

// chainYAML is A -> B with P(A)=0.6, P(B|A)=0.8, P(B|~A)=0.1.
const chainYAML = `
name: chain
variables: [A, B]
factors:
  - name: p_a
    variables: [A]
    values: [0.4, 0.6]
  - name: p_b
    variables: [B, A]
    values: [0.9, 0.1, 0.2, 0.8]
`

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{
		"BAYES_CONFIG", "BAYES_NETWORK", "BAYES_NETWORK_WATCH", "BAYES_CACHE_ENABLED",
		"BAYES_LOG_LEVEL", "BAYES_HEURISTIC", "BAYES_API_KEY", "BAYES_AUDIT", "ALEUTIAN_PERSONALITY",
	} {
		if _, ok := os.LookupEnv(key); ok {
			t.Setenv(key, "")
		}
	}

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

// trueValue returns the value of the row where variable is true.
func trueValue(t *testing.T, resp server.InferResponse, variable string) float64 {
	t.Helper()
	for _, row := range resp.Result.Rows {
		if row.State[variable] && len(row.State) == 1 {
			return row.Value
		}
	}
	t.Fatalf("no row with %s=true in %+v", variable, resp.Result)
	return 0
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// =============================================================================
// Root
// =============================================================================

func TestRootRejectsBadLogLevel(t *testing.T) {
	_, err := execute(t, nil, "--log-level", "loud", "show")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRootMissingNetworkFile(t *testing.T) {
	_, err := execute(t, nil, "--network", filepath.Join(t.TempDir(), "missing.yaml"), "show")
	assert.Error(t, err)
}

// =============================================================================
// show
// =============================================================================

func TestShowJSON(t *testing.T) {
	out, err := execute(t, nil, "--json", "show")
	require.NoError(t, err)

	summary := decodeJSON[network.Summary](t, out)
	assert.Equal(t, "credit-card", summary.Name)
	assert.Contains(t, summary.Variables, "Fraud")
	assert.Len(t, summary.Factors, 8)
	assert.NotEmpty(t, summary.Fingerprint)
}

func TestShowTables(t *testing.T) {
	out, err := execute(t, nil, "--json", "show", "p_trav")
	require.NoError(t, err)

	var got struct {
		Tables []struct {
			Name  string            `json:"name"`
			Kind  string            `json:"kind"`
			Table map[string]string `json:"table"`
		} `json:"tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Tables, 1)
	assert.Equal(t, "cpt", got.Tables[0].Kind)
	assert.Equal(t, map[string]string{"Trav": "0.05", "~Trav": "0.95"}, got.Tables[0].Table)

	text, err := execute(t, nil, "--personality", "machine", "show", "--tables")
	require.NoError(t, err)
	assert.Contains(t, text, "# credit-card")
	assert.Contains(t, text, "block_utility (utility)")
	assert.Contains(t, text, "f( Trav) = 0.05")
}

func TestShowUnknownFactor(t *testing.T) {
	_, err := execute(t, nil, "show", "p_nothing")
	assert.ErrorIs(t, err, network.ErrUnknownFactor)
}

func TestShowDefinition(t *testing.T) {
	out, err := execute(t, nil, "show", "--definition")
	require.NoError(t, err)
	assert.Equal(t, string(network.ExampleYAML()), out)

	path := writeFile(t, "chain.yaml", chainYAML)
	out, err = execute(t, nil, "--network", path, "show", "--definition")
	require.NoError(t, err)
	assert.Equal(t, chainYAML, out)
}
