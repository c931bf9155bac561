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
	"fmt"

	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
)

// Decision is the expected-utility comparison of a boolean decision.
type Decision struct {
	Variable factor.Variable

	// Best is the value with the higher expected utility. Ties choose false.
	Best bool

	// IfTrue and IfFalse are the expected utilities of each choice.
	IfTrue  float64
	IfFalse float64
}

// Gap returns EU(best) - EU(other), never negative.
//
// With a decision to gather information, such as calling a customer before
// deciding, Gap is the value of that information.
func (d *Decision) Gap() float64 {
	if d.Best {
		return d.IfTrue - d.IfFalse
	}
	return d.IfFalse - d.IfTrue
}

// String renders the decision, e.g. "Block: EU(Block)=-0.03 EU(~Block)=-0.04 -> Block".
func (d *Decision) String() string {
	return fmt.Sprintf("%s: EU(%s)=%g EU(%s)=%g -> %s",
		d.Variable,
		d.Variable.Literal(true), d.IfTrue,
		d.Variable.Literal(false), d.IfFalse,
		d.Variable.Literal(d.Best))
}

// ExpectedUtility runs q without normalization.
//
// Description:
//
//	When the factors include a utility factor, the unnormalized result over
//	a decision variable holds, for each choice, the sum over every other
//	variable of probability times utility, scaled by P(evidence). The scale
//	is shared by both choices, so comparisons are unaffected.
func (e *Engine) ExpectedUtility(ctx context.Context, factors []*factor.Factor, q Query) (*Result, error) {
	q.Normalize = false
	return e.Infer(ctx, factors, q)
}

// Decide picks the better value of v from an expected-utility factor over v.
//
// Outputs:
//   - *Decision: The comparison.
//   - error: ErrNotDecision unless f ranges over exactly v.
func Decide(f *factor.Factor, v factor.Variable) (*Decision, error) {
	if f == nil || f.NumVariables() != 1 || !f.Contains(v) {
		return nil, fmt.Errorf("%w: %s for %s", ErrNotDecision, f, v)
	}
	best, _, err := f.ArgMax()
	if err != nil {
		return nil, err
	}
	ifFalse, err := f.Value(false)
	if err != nil {
		return nil, err
	}
	ifTrue, err := f.Value(true)
	if err != nil {
		return nil, err
	}
	choice, err := best.Value(v)
	if err != nil {
		return nil, err
	}
	return &Decision{Variable: v, Best: choice, IfTrue: ifTrue, IfFalse: ifFalse}, nil
}
