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
	"strings"
)

// -----------------------------------------------------------------------------
// Variable
// -----------------------------------------------------------------------------

// Variable is a named boolean random variable.
//
// Description:
//
//	Variables are immutable, comparable values. Two variables with the same
//	name are the same variable, so a Variable can be used as a map key and
//	shared freely between factors, networks and goroutines. Observed values
//	live in an Evidence mapping, never on the variable itself.
//
// Thread Safety: Safe for concurrent use (immutable).
type Variable struct {
	name string
}

// NewVariable creates a variable with the given case-sensitive name.
func NewVariable(name string) Variable {
	return Variable{name: name}
}

// Name returns the variable name.
func (v Variable) Name() string {
	return v.name
}

// String returns the variable name.
func (v Variable) String() string {
	return v.name
}

// Literal renders the variable bound to value: "A" for true, "~A" for false.
func (v Variable) Literal(value bool) string {
	if value {
		return v.name
	}
	return "~" + v.name
}

// firstDuplicate returns the first variable that appears twice in vars.
func firstDuplicate(vars []Variable) (Variable, bool) {
	seen := make(map[Variable]struct{}, len(vars))
	for _, v := range vars {
		if _, ok := seen[v]; ok {
			return v, true
		}
		seen[v] = struct{}{}
	}
	return Variable{}, false
}

// joinNames renders a variable list as "A,B,C".
func joinNames(vars []Variable) string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.name
	}
	return strings.Join(names, ",")
}

// -----------------------------------------------------------------------------
// Evidence
// -----------------------------------------------------------------------------

// Evidence binds observed values to variables for a single query.
//
// Description:
//
//	Evidence replaces mutable per-variable state: each query owns its own
//	mapping, so concurrent queries over the same factors never interfere.
//	Variables keep the order in which they were first set, which is the
//	order the elimination engine restricts factors in. A nil *Evidence is
//	an empty mapping for every read method.
//
// Thread Safety: Not safe for concurrent mutation. Clone before sharing.
type Evidence struct {
	order  []Variable
	values map[Variable]bool
}

// NewEvidence creates an empty evidence mapping.
func NewEvidence() *Evidence {
	return &Evidence{values: make(map[Variable]bool)}
}

// Set binds v to value and returns the receiver for chaining.
//
// Setting an already bound variable overwrites its value and keeps its
// original position.
func (e *Evidence) Set(v Variable, value bool) *Evidence {
	if e.values == nil {
		e.values = make(map[Variable]bool)
	}
	if _, ok := e.values[v]; !ok {
		e.order = append(e.order, v)
	}
	e.values[v] = value
	return e
}

// Get returns the bound value of v and whether v is bound.
func (e *Evidence) Get(v Variable) (value bool, ok bool) {
	if e == nil {
		return false, false
	}
	value, ok = e.values[v]
	return value, ok
}

// Contains reports whether v is bound.
func (e *Evidence) Contains(v Variable) bool {
	_, ok := e.Get(v)
	return ok
}

// Len returns the number of bound variables.
func (e *Evidence) Len() int {
	if e == nil {
		return 0
	}
	return len(e.order)
}

// Variables returns the bound variables in the order they were first set.
func (e *Evidence) Variables() []Variable {
	if e == nil {
		return nil
	}
	out := make([]Variable, len(e.order))
	copy(out, e.order)
	return out
}

// Clone returns an independent copy of the mapping.
func (e *Evidence) Clone() *Evidence {
	c := NewEvidence()
	if e == nil {
		return c
	}
	for _, v := range e.order {
		c.Set(v, e.values[v])
	}
	return c
}

// Reset removes every binding. It is a no-op on a nil Evidence.
func (e *Evidence) Reset() {
	if e == nil {
		return
	}
	e.order = nil
	e.values = make(map[Variable]bool)
}

// String renders the evidence as literals, e.g. "FP,~IP,CRP".
func (e *Evidence) String() string {
	if e.Len() == 0 {
		return ""
	}
	parts := make([]string, len(e.order))
	for i, v := range e.order {
		parts[i] = v.Literal(e.values[v])
	}
	return strings.Join(parts, ",")
}
