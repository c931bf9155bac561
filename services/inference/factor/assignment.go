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
	"iter"
	"strings"
)

// MaxVariables is the largest variable count a table may be indexed over.
const MaxVariables = 30

// Assignment binds a boolean value to each variable of an ordered list.
//
// Description:
//
//	The value at position i belongs to variable i. The table index of an
//	assignment is the sum of 2^i over the positions holding true, so the
//	first variable is the least significant bit. Assignments are values:
//	every operation returns a new Assignment and never mutates its inputs.
//
// Thread Safety: Safe for concurrent use (immutable).
type Assignment struct {
	vars   []Variable
	values []bool
}

// NewAssignment creates an assignment of values to vars.
//
// Inputs:
//   - vars: Ordered variables without duplicates.
//   - values: One value per variable.
//
// Outputs:
//   - Assignment: The assignment. Inputs are copied.
//   - error: ErrCardinality if the lengths differ, ErrDuplicateVariable on duplicates.
func NewAssignment(vars []Variable, values ...bool) (Assignment, error) {
	if len(vars) != len(values) {
		return Assignment{}, fmt.Errorf("%w: %d variables, %d values", ErrCardinality, len(vars), len(values))
	}
	if dup, ok := firstDuplicate(vars); ok {
		return Assignment{}, fmt.Errorf("%w: %s", ErrDuplicateVariable, dup)
	}
	a := Assignment{
		vars:   make([]Variable, len(vars)),
		values: make([]bool, len(values)),
	}
	copy(a.vars, vars)
	copy(a.values, values)
	return a, nil
}

// FromIndex decodes a table index into an assignment over vars.
//
// Description:
//
//	Bit i of index becomes the value of vars[i]; positions beyond the bit
//	length of index are false.
//
// Outputs:
//   - Assignment: The decoded assignment.
//   - error: ErrIndexOutOfRange unless 0 <= index < 2^len(vars).
func FromIndex(vars []Variable, index int) (Assignment, error) {
	if len(vars) > MaxVariables {
		return Assignment{}, fmt.Errorf("%w: %d > %d", ErrTooManyVariables, len(vars), MaxVariables)
	}
	if index < 0 || index >= 1<<len(vars) {
		return Assignment{}, fmt.Errorf("%w: %d for %d variables", ErrIndexOutOfRange, index, len(vars))
	}
	if dup, ok := firstDuplicate(vars); ok {
		return Assignment{}, fmt.Errorf("%w: %s", ErrDuplicateVariable, dup)
	}
	shared := make([]Variable, len(vars))
	copy(shared, vars)
	return decode(shared, index), nil
}

// decode builds the assignment for index without validation. vars is not copied.
func decode(vars []Variable, index int) Assignment {
	values := make([]bool, len(vars))
	for i := range values {
		values[i] = index>>i&1 == 1
	}
	return Assignment{vars: vars, values: values}
}

// ToIndex converts a value vector to its table index.
func ToIndex(values []bool) int {
	index := 0
	for i, set := range values {
		if set {
			index |= 1 << i
		}
	}
	return index
}

// Index returns the table index of the assignment.
func (a Assignment) Index() int {
	return ToIndex(a.values)
}

// Len returns the number of variables.
func (a Assignment) Len() int {
	return len(a.vars)
}

// Variables returns a copy of the variable list.
func (a Assignment) Variables() []Variable {
	out := make([]Variable, len(a.vars))
	copy(out, a.vars)
	return out
}

// Values returns a copy of the value vector.
func (a Assignment) Values() []bool {
	out := make([]bool, len(a.values))
	copy(out, a.values)
	return out
}

func (a Assignment) position(v Variable) int {
	for i, candidate := range a.vars {
		if candidate == v {
			return i
		}
	}
	return -1
}

// Contains reports whether v is bound by the assignment.
func (a Assignment) Contains(v Variable) bool {
	return a.position(v) >= 0
}

// Value returns the value bound to v.
func (a Assignment) Value(v Variable) (bool, error) {
	i := a.position(v)
	if i < 0 {
		return false, fmt.Errorf("%w: %s in assignment [%s]", ErrVariableNotPresent, v, a)
	}
	return a.values[i], nil
}

// RemoveVariable returns the assignment without v.
//
// Description:
//
//	The remaining variables keep their relative order, so every position
//	after v moves down by one.
//
// Outputs:
//   - Assignment: The projected assignment.
//   - error: ErrVariableNotPresent if v is not bound.
func (a Assignment) RemoveVariable(v Variable) (Assignment, error) {
	i := a.position(v)
	if i < 0 {
		return Assignment{}, fmt.Errorf("%w: %s in assignment [%s]", ErrVariableNotPresent, v, a)
	}
	out := Assignment{
		vars:   make([]Variable, 0, len(a.vars)-1),
		values: make([]bool, 0, len(a.values)-1),
	}
	out.vars = append(append(out.vars, a.vars[:i]...), a.vars[i+1:]...)
	out.values = append(append(out.values, a.values[:i]...), a.values[i+1:]...)
	return out, nil
}

// Consistent reports whether a1 and a2 agree on every shared variable.
func Consistent(a1, a2 Assignment) bool {
	for i, v := range a2.vars {
		if j := a1.position(v); j >= 0 && a1.values[j] != a2.values[i] {
			return false
		}
	}
	return true
}

// Merge combines two assignments.
//
// Description:
//
//	The merged variables are a1's variables followed by a2's variables not
//	already in a1. Shared variables must agree; merging inconsistent
//	assignments is rejected rather than silently preferring a1.
//
// Outputs:
//   - Assignment: The merged assignment.
//   - error: ErrInconsistentMerge if a shared variable has different values.
func Merge(a1, a2 Assignment) (Assignment, error) {
	out := Assignment{
		vars:   append([]Variable(nil), a1.vars...),
		values: append([]bool(nil), a1.values...),
	}
	for i, v := range a2.vars {
		j := a1.position(v)
		if j < 0 {
			out.vars = append(out.vars, v)
			out.values = append(out.values, a2.values[i])
			continue
		}
		if a1.values[j] != a2.values[i] {
			return Assignment{}, fmt.Errorf("%w: %s is %t in [%s] and %t in [%s]",
				ErrInconsistentMerge, v, a1.values[j], a1, a2.values[i], a2)
		}
	}
	return out, nil
}

// All enumerates every assignment over vars in index order 0..2^n-1.
//
// Description:
//
//	The sequence is lazy and can be ranged over any number of times. It is
//	empty when vars has more than MaxVariables entries. A variable list
//	with no entries yields a single empty assignment.
//
// Example:
//
//	for a := range factor.All(vars) {
//	    fmt.Println(a.Index(), a)
//	}
func All(vars []Variable) iter.Seq[Assignment] {
	shared := make([]Variable, len(vars))
	copy(shared, vars)
	return func(yield func(Assignment) bool) {
		if len(shared) > MaxVariables {
			return
		}
		for i := 0; i < 1<<len(shared); i++ {
			if !yield(decode(shared, i)) {
				return
			}
		}
	}
}

// String renders the assignment as literals, e.g. "A,~B,C".
func (a Assignment) String() string {
	return a.format(false)
}

// format renders literals; aligned pads true literals so columns line up
// with negated ones.
func (a Assignment) format(aligned bool) string {
	var b strings.Builder
	for i, v := range a.vars {
		if i > 0 {
			b.WriteString(",")
		}
		if aligned && a.values[i] {
			b.WriteString(" ")
		}
		b.WriteString(v.Literal(a.values[i]))
	}
	return b.String()
}
