// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package network

import (
	"context"
	"testing"

	"github.com/AleutianAI/AleutianBayes/services/inference/elimination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func newEngine(t *testing.T) *elimination.Engine {
	t.Helper()
	e, err := elimination.NewEngine(elimination.DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestQueryExample(t *testing.T) {
	n, err := Example()
	require.NoError(t, err)
	e := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		spec QuerySpec
		want float64
	}{
		{"prior", QuerySpec{Query: []string{"Fraud"}}, 0.0043},
		{
			"posterior",
			QuerySpec{Query: []string{"Fraud"}, Evidence: map[string]bool{"FP": true, "IP": false, "CRP": true}},
			0.014983811413390233,
		},
		{
			"min-degree order",
			QuerySpec{
				Query:     []string{"Fraud"},
				Evidence:  map[string]bool{"FP": true, "IP": false, "CRP": true, "Trav": true},
				Heuristic: "min-degree",
				Order:     nil,
			},
			0.009899994767603944,
		},
		{
			"explicit order",
			QuerySpec{
				Query:    []string{"Fraud"},
				Evidence: map[string]bool{"IP": true, "CRP": false, "FP": false},
				Order:    []string{"CRP", "OC", "IP", "FP", "Trav"},
			},
			0.00915553250700674,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := n.Query(ctx, e, tt.spec)
			require.NoError(t, err)
			v, err := a.Factor.Value(true)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, v, 1e-12)
			assert.Nil(t, a.Decision)
		})
	}
}

func TestQueryDecisions(t *testing.T) {
	n, err := Example()
	require.NoError(t, err)
	e := newEngine(t)
	evidence := map[string]bool{"IP": false, "CRP": true, "FP": true}

	block, err := n.Query(context.Background(), e, QuerySpec{Query: []string{"Block"}, Evidence: evidence, Decision: true})
	require.NoError(t, err)
	require.NotNil(t, block.Decision)
	assert.True(t, block.Decision.Best)
	assert.InDelta(t, -0.034945574958, block.Decision.IfTrue, 1e-9)
	assert.InDelta(t, -0.035685517021, block.Decision.IfFalse, 1e-9)

	call, err := n.Query(context.Background(), e, QuerySpec{Query: []string{"Call"}, Evidence: evidence, Decision: true})
	require.NoError(t, err)
	assert.True(t, call.Decision.Best)
	assert.InDelta(t, 0.0144147736125, call.Decision.Gap(), 1e-9)
}

func TestCompileFactorSelection(t *testing.T) {
	n, err := Example()
	require.NoError(t, err)

	tests := []struct {
		name string
		spec QuerySpec
		want int
	}{
		{"normalized drops utilities", QuerySpec{Query: []string{"Fraud"}}, 6},
		{"unnormalized keeps utility over query", QuerySpec{Query: []string{"Block"}, Normalize: boolPtr(false)}, 7},
		{"unnormalized without decision variable", QuerySpec{Query: []string{"Fraud"}, Normalize: boolPtr(false)}, 6},
		{"explicit empty exclude", QuerySpec{Query: []string{"Fraud"}, Exclude: []string{}}, 8},
		{"exclude by name", QuerySpec{Query: []string{"Fraud"}, Exclude: []string{"block_utility"}}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, factors, err := n.Compile(tt.spec)
			require.NoError(t, err)
			assert.Len(t, factors, tt.want)
		})
	}
}

func TestCompileOrderCompletion(t *testing.T) {
	n, err := Example()
	require.NoError(t, err)

	q, _, err := n.Compile(QuerySpec{Query: []string{"Fraud"}, Exclude: []string{}, Normalize: boolPtr(false)})
	require.NoError(t, err)
	names := variableNames(q.Order)
	assert.Equal(t, []string{"Trav", "FP", "Fraud", "IP", "OC", "CRP"}, names[:6])
	assert.ElementsMatch(t, []string{"Block", "Call"}, names[6:])
}

func TestCompileErrors(t *testing.T) {
	n, err := Example()
	require.NoError(t, err)

	tests := []struct {
		name string
		spec QuerySpec
		err  error
	}{
		{"unknown query", QuerySpec{Query: []string{"Nope"}}, ErrUnknownName},
		{"unknown evidence", QuerySpec{Query: []string{"Fraud"}, Evidence: map[string]bool{"Nope": true}}, ErrUnknownName},
		{"unknown order", QuerySpec{Query: []string{"Fraud"}, Order: []string{"Nope"}}, ErrUnknownName},
		{"bad heuristic", QuerySpec{Query: []string{"Fraud"}, Heuristic: "min-weight"}, ErrInvalidQuery},
		{"empty name", QuerySpec{Query: []string{""}}, ErrInvalidQuery},
		{"decision needs one variable", QuerySpec{Query: []string{"Block", "Call"}, Decision: true}, ErrInvalidQuery},
		{"everything excluded", QuerySpec{Query: []string{"Fraud"}, Exclude: []string{"cpt", "utility"}}, ErrNoFactorsSelected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := n.Compile(tt.spec)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestQueryEngineErrorsPropagate(t *testing.T) {
	n, err := Example()
	require.NoError(t, err)
	_, err = n.Query(context.Background(), newEngine(t), QuerySpec{
		Query:    []string{"Fraud"},
		Evidence: map[string]bool{"Fraud": true},
	})
	assert.ErrorIs(t, err, elimination.ErrQueryIsEvidence)
}

func TestQuerySpecKey(t *testing.T) {
	a := QuerySpec{Query: []string{"Fraud"}, Evidence: map[string]bool{"FP": true, "IP": false, "CRP": true}}
	b := QuerySpec{
		Query:     []string{"Fraud"},
		Evidence:  map[string]bool{"CRP": true, "IP": false, "FP": true},
		Order:     []string{"Trav"},
		Heuristic: "min-degree",
		Normalize: boolPtr(true),
	}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "q=Fraud|e=CRP,FP,~IP|n=true|x=auto", a.Key())

	c := a
	c.Normalize = boolPtr(false)
	assert.NotEqual(t, a.Key(), c.Key())

	d := a
	d.Exclude = []string{"utility"}
	assert.NotEqual(t, a.Key(), d.Key())

	e := QuerySpec{Query: []string{"Block"}, Decision: true, Normalize: boolPtr(true)}
	assert.False(t, e.ShouldNormalize())
}

func TestParseQueries(t *testing.T) {
	list := `
- id: prior
  query: [Fraud]
- query: [Fraud]
  evidence: {FP: true, IP: false}
  normalize: false
`
	specs, err := ParseQueries([]byte(list))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "prior", specs[0].ID)
	assert.False(t, specs[1].ShouldNormalize())

	wrapped := `
queries:
  - query: [Block]
    decision: true
`
	specs, err = ParseQueries([]byte(wrapped))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.True(t, specs[0].Decision)

	json := `[{"query": ["Fraud"], "evidence": {"FP": true}}]`
	specs, err = ParseQueries([]byte(json))
	require.NoError(t, err)
	require.Len(t, specs, 1)

	_, err = ParseQueries([]byte("queries:\n  - query: [Fraud]\n    heuristic: nope\n"))
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = ParseQueries([]byte("other: 1\n"))
	assert.ErrorIs(t, err, ErrInvalidQuery)

	specs, err = ParseQueries(nil)
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestParseQueries_UnknownFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"list form", "- query: [Fraud]\n  evidense: {FP: true}\n"},
		{"wrapped form", "queries:\n  - query: [Fraud]\n    evidense: {FP: true}\n"},
		{"json list", `[{"query": ["Fraud"], "evidense": {"FP": true}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := ParseQueries([]byte(tt.input))
			require.ErrorIs(t, err, ErrInvalidQuery)
			assert.Contains(t, err.Error(), "evidense")
			assert.Nil(t, specs)
		})
	}
}
