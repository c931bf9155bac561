// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package elimination

import (
	"context"
	"testing"

	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedUtilityBlock(t *testing.T) {
	n := creditCard(t)
	e := newTestEngine(t)
	factors := append(append([]*factor.Factor(nil), n.cpts...), n.blockUtility)

	tests := []struct {
		name      string
		evidence  *factor.Evidence
		ifTrue    float64
		ifFalse   float64
		wantBlock bool
	}{
		{"no evidence", nil, -9.957, 0.6785, false},
		{
			"suspicious purchases",
			factor.NewEvidence().Set(n.ip, false).Set(n.crp, true).Set(n.fp, true),
			-0.034945574958, -0.035685517021, true,
		},
		{
			"suspicious purchases while travelling",
			factor.NewEvidence().Set(n.ip, false).Set(n.crp, true).Set(n.fp, true).Set(n.trav, true),
			-0.028823694075, -0.0144089204625, false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := e.ExpectedUtility(context.Background(), factors, Query{
				Variables: []factor.Variable{n.block},
				Order:     n.order,
				Evidence:  tt.evidence,
				Normalize: true,
			})
			require.NoError(t, err)

			d, err := Decide(r.Factor, n.block)
			require.NoError(t, err)
			assert.InDelta(t, tt.ifTrue, d.IfTrue, 1e-9)
			assert.InDelta(t, tt.ifFalse, d.IfFalse, 1e-9)
			assert.Equal(t, tt.wantBlock, d.Best)
			assert.GreaterOrEqual(t, d.Gap(), 0.0)
		})
	}
}

func TestExpectedUtilityCall(t *testing.T) {
	n := creditCard(t)
	e := newTestEngine(t)
	factors := append(append([]*factor.Factor(nil), n.cpts...), n.callUtility)

	r, err := e.ExpectedUtility(context.Background(), factors, Query{
		Variables: []factor.Variable{n.call},
		Order:     n.order,
		Evidence:  factor.NewEvidence().Set(n.ip, false).Set(n.crp, true).Set(n.fp, true),
	})
	require.NoError(t, err)

	d, err := Decide(r.Factor, n.call)
	require.NoError(t, err)
	assert.True(t, d.Best)
	assert.InDelta(t, -0.0205308013455, d.IfTrue, 1e-9)
	assert.InDelta(t, -0.034945574958, d.IfFalse, 1e-9)
	assert.InDelta(t, 0.0144147736125, d.Gap(), 1e-9)
	assert.Contains(t, d.String(), "-> Call")
}

func TestDecideRejectsWrongFactor(t *testing.T) {
	a, b := factor.NewVariable("A"), factor.NewVariable("B")
	f, err := factor.NewTable([]factor.Variable{a, b}, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	_, err = Decide(f, a)
	assert.ErrorIs(t, err, ErrNotDecision)

	g, err := factor.NewTable([]factor.Variable{a}, []float64{1, 2})
	require.NoError(t, err)
	_, err = Decide(g, b)
	assert.ErrorIs(t, err, ErrNotDecision)

	_, err = Decide(nil, a)
	assert.ErrorIs(t, err, ErrNotDecision)
}

func TestDecideTieChoosesFalse(t *testing.T) {
	a := factor.NewVariable("A")
	f, err := factor.NewTable([]factor.Variable{a}, []float64{1, 1})
	require.NoError(t, err)
	d, err := Decide(f, a)
	require.NoError(t, err)
	assert.False(t, d.Best)
	assert.Equal(t, 0.0, d.Gap())
}
