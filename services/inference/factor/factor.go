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

// -----------------------------------------------------------------------------
// Factor
// -----------------------------------------------------------------------------

// Factor is a dense table mapping every assignment of its variables to a real value.
//
// Description:
//
//	The variable order is the bit order of the table: entry i holds the
//	value of the assignment decoded from i (first variable = least
//	significant bit). A factor built with New starts with every slot
//	unwritten; reading an unwritten slot, or running any algebra operation
//	while one remains, fails with ErrUndefinedValue. Factors produced by
//	Restrict, SumOut, Observe, Normalize, Multiply and Reorder are always
//	complete and never alias their inputs.
//
//	A factor with zero variables is a scalar, written f(-). Callers cannot
//	construct one directly, but restriction of a single-variable factor
//	produces one.
//
// Thread Safety: Safe for concurrent reads once complete. SetValue and SetAt
// must not race with any other call.
type Factor struct {
	vars   []Variable
	pos    map[Variable]int
	values []float64

	// written tracks populated slots; nil once every slot has a value.
	written []bool
	missing int
}

// New creates a factor over vars with every slot unwritten.
//
// Inputs:
//   - vars: Ordered variables. Must be non-empty, without duplicates,
//     and at most MaxVariables long.
//
// Outputs:
//   - *Factor: The empty factor. Populate it with SetValue or SetAt.
//   - error: ErrNoVariables, ErrDuplicateVariable or ErrTooManyVariables.
//
// Example:
//
//	a := factor.NewVariable("A")
//	f, err := factor.New(a)
//	if err != nil {
//	    return err
//	}
//	_ = f.SetValue(0.9, true)
//	_ = f.SetValue(0.1, false)
func New(vars ...Variable) (*Factor, error) {
	if len(vars) == 0 {
		return nil, ErrNoVariables
	}
	if err := checkVariables(vars); err != nil {
		return nil, err
	}
	f := build(vars, make([]float64, 1<<len(vars)))
	f.written = make([]bool, len(f.values))
	f.missing = len(f.values)
	return f, nil
}

// NewTable creates a complete factor from values listed in index order.
//
// Outputs:
//   - *Factor: The factor. values is copied.
//   - error: New's errors, ErrCardinality if len(values) != 2^len(vars),
//     ErrInvalidValue if a value is NaN.
func NewTable(vars []Variable, values []float64) (*Factor, error) {
	f, err := New(vars...)
	if err != nil {
		return nil, err
	}
	if len(values) != len(f.values) {
		return nil, fmt.Errorf("%w: %s needs %d values, got %d", ErrCardinality, f, len(f.values), len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: NaN at index %d of %s", ErrInvalidValue, i, f)
		}
	}
	copy(f.values, values)
	f.written = nil
	f.missing = 0
	return f, nil
}

func checkVariables(vars []Variable) error {
	if len(vars) > MaxVariables {
		return fmt.Errorf("%w: %d > %d", ErrTooManyVariables, len(vars), MaxVariables)
	}
	if dup, ok := firstDuplicate(vars); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateVariable, dup)
	}
	return nil
}

// build wraps trusted, already validated inputs. vars is copied, values is not.
func build(vars []Variable, values []float64) *Factor {
	f := &Factor{
		vars:   make([]Variable, len(vars)),
		pos:    make(map[Variable]int, len(vars)),
		values: values,
	}
	copy(f.vars, vars)
	for i, v := range f.vars {
		f.pos[v] = i
	}
	return f
}

// Variables returns a copy of the ordered variable list.
func (f *Factor) Variables() []Variable {
	out := make([]Variable, len(f.vars))
	copy(out, f.vars)
	return out
}

// NumVariables returns the number of variables.
func (f *Factor) NumVariables() int {
	return len(f.vars)
}

// Size returns the number of table entries, 2^NumVariables.
func (f *Factor) Size() int {
	return len(f.values)
}

// IsScalar reports whether the factor has no variables.
func (f *Factor) IsScalar() bool {
	return len(f.vars) == 0
}

// Contains reports whether v is one of the factor's variables.
func (f *Factor) Contains(v Variable) bool {
	_, ok := f.pos[v]
	return ok
}

// Complete reports whether every table slot has been written.
func (f *Factor) Complete() bool {
	return f.written == nil
}

// SetValue stores value for the assignment given as bits in variable order.
//
// Outputs:
//   - error: ErrCardinality if len(bits) != NumVariables, ErrInvalidValue for NaN.
func (f *Factor) SetValue(value float64, bits ...bool) error {
	if len(bits) != len(f.vars) {
		return fmt.Errorf("%w: %s takes %d values, got %d", ErrCardinality, f, len(f.vars), len(bits))
	}
	return f.setIndex(ToIndex(bits), value)
}

// SetAt stores value for an assignment, looking variables up by identity.
//
// The assignment may list variables in any order and may bind variables
// the factor does not have; those are ignored.
func (f *Factor) SetAt(value float64, a Assignment) error {
	i, err := f.indexOf(a)
	if err != nil {
		return err
	}
	return f.setIndex(i, value)
}

func (f *Factor) setIndex(i int, value float64) error {
	if math.IsNaN(value) {
		return fmt.Errorf("%w: NaN for %s", ErrInvalidValue, f)
	}
	f.values[i] = value
	if f.written != nil && !f.written[i] {
		f.written[i] = true
		f.missing--
		if f.missing == 0 {
			f.written = nil
		}
	}
	return nil
}

// Value returns the entry for the assignment given as bits in variable order.
//
// Outputs:
//   - float64: The entry.
//   - error: ErrCardinality if len(bits) != NumVariables, ErrUndefinedValue
//     if the slot was never written.
func (f *Factor) Value(bits ...bool) (float64, error) {
	if len(bits) != len(f.vars) {
		return 0, fmt.Errorf("%w: %s takes %d values, got %d", ErrCardinality, f, len(f.vars), len(bits))
	}
	return f.ValueAtIndex(ToIndex(bits))
}

// At returns the entry for an assignment, looking variables up by identity.
func (f *Factor) At(a Assignment) (float64, error) {
	i, err := f.indexOf(a)
	if err != nil {
		return 0, err
	}
	return f.ValueAtIndex(i)
}

// ValueAtIndex returns the entry stored at a table index.
func (f *Factor) ValueAtIndex(i int) (float64, error) {
	if i < 0 || i >= len(f.values) {
		return 0, fmt.Errorf("%w: %d for %s", ErrIndexOutOfRange, i, f)
	}
	if f.written != nil && !f.written[i] {
		return 0, fmt.Errorf("%w: %s at [%s]", ErrUndefinedValue, f, decode(f.vars, i))
	}
	return f.values[i], nil
}

// indexOf maps an assignment to this factor's table index.
func (f *Factor) indexOf(a Assignment) (int, error) {
	index := 0
	for i, v := range f.vars {
		value, err := a.Value(v)
		if err != nil {
			return 0, err
		}
		if value {
			index |= 1 << i
		}
	}
	return index, nil
}

// Values returns a copy of the table in index order.
func (f *Factor) Values() ([]float64, error) {
	if err := f.checkComplete(); err != nil {
		return nil, err
	}
	out := make([]float64, len(f.values))
	copy(out, f.values)
	return out, nil
}

// Sum returns the sum of all entries.
func (f *Factor) Sum() (float64, error) {
	if err := f.checkComplete(); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, v := range f.values {
		sum += v
	}
	return sum, nil
}

// Clone returns a deep copy, including unwritten-slot tracking.
func (f *Factor) Clone() *Factor {
	values := make([]float64, len(f.values))
	copy(values, f.values)
	c := build(f.vars, values)
	if f.written != nil {
		c.written = make([]bool, len(f.written))
		copy(c.written, f.written)
		c.missing = f.missing
	}
	return c
}

// checkComplete fails with ErrUndefinedValue naming the first unwritten slot.
func (f *Factor) checkComplete() error {
	if f.written == nil {
		return nil
	}
	for i, ok := range f.written {
		if !ok {
			return fmt.Errorf("%w: %s at [%s] (%d of %d slots unwritten)",
				ErrUndefinedValue, f, decode(f.vars, i), f.missing, len(f.values))
		}
	}
	return nil
}

func (f *Factor) notPresent(v Variable) error {
	return fmt.Errorf("%w: %s in %s", ErrVariableNotPresent, v, f)
}
