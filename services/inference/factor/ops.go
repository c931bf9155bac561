// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package factor

import (
	"fmt"
	"math"
)

// spliceIndex inserts a zero bit at position p of i.
//
// For a factor whose variable p was removed, spliceIndex maps an index of
// the smaller table to the index of the matching entry with that variable
// false in the original table.
func spliceIndex(i, p int) int {
	low := i & (1<<p - 1)
	return low | (i>>p)<<(p+1)
}

// without returns vars with position p removed.
func without(vars []Variable, p int) []Variable {
	out := make([]Variable, 0, len(vars)-1)
	out = append(out, vars[:p]...)
	return append(out, vars[p+1:]...)
}

// Restrict fixes v to value and removes it from the factor.
//
// Description:
//
//	The result ranges over the remaining variables in their original
//	order. Each of its entries equals the original entry for the same
//	assignment extended with v = value. Restricting the last variable
//	yields a scalar factor.
//
// Inputs:
//   - v: The variable to fix. Must be present.
//   - value: The observed value.
//
// Outputs:
//   - *Factor: A new factor with 2^(n-1) entries.
//   - error: ErrVariableNotPresent, or ErrUndefinedValue for an incomplete factor.
func (f *Factor) Restrict(v Variable, value bool) (*Factor, error) {
	p, ok := f.pos[v]
	if !ok {
		return nil, f.notPresent(v)
	}
	if err := f.checkComplete(); err != nil {
		return nil, err
	}
	bit := 0
	if value {
		bit = 1 << p
	}
	out := make([]float64, len(f.values)/2)
	for i := range out {
		out[i] = f.values[spliceIndex(i, p)|bit]
	}
	return build(without(f.vars, p), out), nil
}

// SumOut marginalizes v out of the factor.
//
// Description:
//
//	Each entry of the result is the sum of the two original entries that
//	differ only in v. Every output slot is written exactly once.
//
// Outputs:
//   - *Factor: A new factor over the remaining variables.
//   - error: ErrVariableNotPresent, or ErrUndefinedValue for an incomplete factor.
func (f *Factor) SumOut(v Variable) (*Factor, error) {
	p, ok := f.pos[v]
	if !ok {
		return nil, f.notPresent(v)
	}
	if err := f.checkComplete(); err != nil {
		return nil, err
	}
	bit := 1 << p
	out := make([]float64, len(f.values)/2)
	for i := range out {
		j := spliceIndex(i, p)
		out[i] = f.values[j] + f.values[j|bit]
	}
	return build(without(f.vars, p), out), nil
}

// Observe zeroes every entry inconsistent with v = value and keeps v.
//
// Unlike Restrict, the variable set is unchanged, so the result can be
// multiplied back against factors over v as an evidence indicator.
func (f *Factor) Observe(v Variable, value bool) (*Factor, error) {
	p, ok := f.pos[v]
	if !ok {
		return nil, f.notPresent(v)
	}
	if err := f.checkComplete(); err != nil {
		return nil, err
	}
	out := make([]float64, len(f.values))
	for i, x := range f.values {
		if (i>>p&1 == 1) == value {
			out[i] = x
		}
	}
	return build(f.vars, out), nil
}

// Normalize divides every entry by the sum of all entries.
//
// Outputs:
//   - *Factor: A new factor whose entries sum to 1.
//   - error: ErrZeroSum if the entries sum to zero, ErrUndefinedValue for an
//     incomplete factor.
func (f *Factor) Normalize() (*Factor, error) {
	sum, err := f.Sum()
	if err != nil {
		return nil, err
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: %s", ErrZeroSum, f)
	}
	out := make([]float64, len(f.values))
	for i, x := range f.values {
		out[i] = x / sum
	}
	return build(f.vars, out), nil
}

// Multiply returns the pointwise product of f1 and f2.
//
// Description:
//
//	The product ranges over f1's variables followed by the variables of f2
//	that f1 lacks. Its entry for a merged assignment is f1[a1] * f2[a2]
//	where a1 and a2 are the projections of that assignment, so only
//	consistent pairs are ever visited: O(2^|merged| * |f2|).
//
// Inputs:
//   - f1, f2: Complete factors. Either may be a scalar.
//
// Outputs:
//   - *Factor: The product.
//   - error: ErrUndefinedValue for an incomplete input, ErrTooManyVariables
//     if the merged variable set exceeds MaxVariables.
//
// Example:
//
//	joint, err := factor.Multiply(prior, conditional)
func Multiply(f1, f2 *Factor) (*Factor, error) {
	if err := f1.checkComplete(); err != nil {
		return nil, err
	}
	if err := f2.checkComplete(); err != nil {
		return nil, err
	}

	merged := append([]Variable(nil), f1.vars...)
	// Bit position, within the merged index, of each f2 variable.
	positions := make([]int, len(f2.vars))
	for j, v := range f2.vars {
		if p, ok := f1.pos[v]; ok {
			positions[j] = p
			continue
		}
		positions[j] = len(merged)
		merged = append(merged, v)
	}
	if len(merged) > MaxVariables {
		return nil, fmt.Errorf("%w: product of %s and %s has %d variables",
			ErrTooManyVariables, f1, f2, len(merged))
	}

	mask1 := 1<<len(f1.vars) - 1
	out := make([]float64, 1<<len(merged))
	for m := range out {
		i2 := 0
		for j, p := range positions {
			i2 |= (m >> p & 1) << j
		}
		out[m] = f1.values[m&mask1] * f2.values[i2]
	}
	return build(merged, out), nil
}

// MultiplyAll left-folds Multiply over factors.
//
// Outputs:
//   - *Factor: The product. A single-element list yields a copy.
//   - error: ErrEmptyProduct for an empty list, otherwise Multiply's errors.
func MultiplyAll(factors []*Factor) (*Factor, error) {
	if len(factors) == 0 {
		return nil, ErrEmptyProduct
	}
	if err := factors[0].checkComplete(); err != nil {
		return nil, err
	}
	product := factors[0].Clone()
	for _, f := range factors[1:] {
		next, err := Multiply(product, f)
		if err != nil {
			return nil, err
		}
		product = next
	}
	return product, nil
}

// Reorder returns the same function over a permutation of the variables.
//
// Outputs:
//   - *Factor: A factor whose bit order follows vars.
//   - error: ErrCardinality if vars is not a permutation of the factor's
//     variables, ErrVariableNotPresent for a foreign variable.
func (f *Factor) Reorder(vars []Variable) (*Factor, error) {
	if len(vars) != len(f.vars) {
		return nil, fmt.Errorf("%w: reorder %s to [%s]", ErrCardinality, f, joinNames(vars))
	}
	if dup, ok := firstDuplicate(vars); ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateVariable, dup)
	}
	if err := f.checkComplete(); err != nil {
		return nil, err
	}
	old := make([]int, len(vars))
	for j, v := range vars {
		p, ok := f.pos[v]
		if !ok {
			return nil, f.notPresent(v)
		}
		old[j] = p
	}
	out := make([]float64, len(f.values))
	for m := range out {
		i := 0
		for j, p := range old {
			i |= (m >> j & 1) << p
		}
		out[m] = f.values[i]
	}
	return build(vars, out), nil
}

// ArgMax returns the assignment with the largest entry.
//
// Ties resolve to the lowest table index.
func (f *Factor) ArgMax() (Assignment, float64, error) {
	if err := f.checkComplete(); err != nil {
		return Assignment{}, 0, err
	}
	best := 0
	for i, x := range f.values {
		if x > f.values[best] {
			best = i
		}
	}
	return decode(f.Variables(), best), f.values[best], nil
}

// ApproxEqual reports whether g represents the same function as f within tol.
//
// The variable order may differ; g is compared entry by entry after being
// reordered to f's order.
func (f *Factor) ApproxEqual(g *Factor, tol float64) bool {
	if len(f.vars) != len(g.vars) {
		return false
	}
	aligned, err := g.Reorder(f.vars)
	if err != nil || f.checkComplete() != nil {
		return false
	}
	for i, x := range f.values {
		if math.Abs(x-aligned.values[i]) > tol {
			return false
		}
	}
	return true
}
