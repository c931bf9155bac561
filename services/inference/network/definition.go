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
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxDefinitionSize is the largest definition file Load accepts (1MB).
	MaxDefinitionSize = 1024 * 1024

	// cptTolerance bounds how far a CPT row may sum from 1.
	cptTolerance = 1e-6
)

// definitionValidate checks struct tags on definitions and query specs.
var definitionValidate *validator.Validate

func init() {
	definitionValidate = validator.New()
}

// =============================================================================
// Types
// =============================================================================

// Kind classifies a factor.
type Kind string

const (
	// KindCPT is a conditional probability table. The first variable is the
	// child and the rest are parents.
	KindCPT Kind = "cpt"

	// KindUtility is a utility table used in expected-utility queries.
	KindUtility Kind = "utility"

	// KindPotential is an arbitrary non-negative table.
	KindPotential Kind = "potential"
)

// Definition is the YAML form of a network.
type Definition struct {
	Name        string             `yaml:"name" json:"name" validate:"required,max=128"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Variables   []string           `yaml:"variables" json:"variables" validate:"required,min=1,max=256,dive,required,max=64"`
	Order       []string           `yaml:"order,omitempty" json:"order,omitempty" validate:"dive,required"`
	Factors     []FactorDefinition `yaml:"factors" json:"factors" validate:"required,min=1,dive"`
}

// FactorDefinition is the YAML form of one factor.
//
// Exactly one of Values (dense, in table index order with the first variable
// as the least significant bit) or Entries must be given.
type FactorDefinition struct {
	Name      string            `yaml:"name" json:"name" validate:"required,max=128"`
	Kind      Kind              `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=cpt utility potential"`
	Variables []string          `yaml:"variables" json:"variables" validate:"required,min=1,max=30,dive,required"`
	Values    []float64         `yaml:"values,omitempty" json:"values,omitempty"`
	Entries   []EntryDefinition `yaml:"entries,omitempty" json:"entries,omitempty" validate:"dive"`
}

// EntryDefinition sets one row: the value for the assignment When, listed
// in the factor's variable order.
type EntryDefinition struct {
	When  []bool  `yaml:"when" json:"when" validate:"required"`
	Value float64 `yaml:"value" json:"value"`
}

// kind returns the declared kind, defaulting to KindCPT.
func (d FactorDefinition) kind() Kind {
	if d.Kind == "" {
		return KindCPT
	}
	return d.Kind
}

// Validate checks struct tags.
func (d *Definition) Validate() error {
	if err := definitionValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return nil
}

// =============================================================================
// Building
// =============================================================================

// build turns a validated definition into a factor over vars.
func (d FactorDefinition) build(vars []factor.Variable) (*factor.Factor, error) {
	switch {
	case len(d.Values) > 0 && len(d.Entries) > 0:
		return nil, fmt.Errorf("%w: factor %q sets both values and entries", ErrInvalidDefinition, d.Name)
	case len(d.Values) > 0:
		f, err := factor.NewTable(vars, d.Values)
		if err != nil {
			return nil, fmt.Errorf("%w: factor %q: %w", ErrInvalidDefinition, d.Name, err)
		}
		return f, nil
	case len(d.Entries) > 0:
		f, err := factor.New(vars...)
		if err != nil {
			return nil, fmt.Errorf("%w: factor %q: %w", ErrInvalidDefinition, d.Name, err)
		}
		seen := make(map[int]struct{}, len(d.Entries))
		for i, e := range d.Entries {
			if len(e.When) == len(vars) {
				index := factor.ToIndex(e.When)
				if _, dup := seen[index]; dup {
					return nil, fmt.Errorf("%w: factor %q entry %d repeats a row", ErrInvalidDefinition, d.Name, i)
				}
				seen[index] = struct{}{}
			}
			if err := f.SetValue(e.Value, e.When...); err != nil {
				return nil, fmt.Errorf("%w: factor %q entry %d: %w", ErrInvalidDefinition, d.Name, i, err)
			}
		}
		if !f.Complete() {
			_, err := f.Values()
			return nil, fmt.Errorf("%w: factor %q is missing rows: %w", ErrInvalidDefinition, d.Name, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: factor %q has no values", ErrInvalidDefinition, d.Name)
	}
}

// checkCPT verifies probabilities lie in [0,1] and every parent row sums to 1.
func checkCPT(name string, f *factor.Factor) error {
	values, err := f.Values()
	if err != nil {
		return err
	}
	for i, v := range values {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: factor %q index %d: probability %g outside [0,1]",
				ErrInvalidDefinition, name, i, v)
		}
	}
	// The child is bit 0, so each parent assignment owns a pair of slots.
	for i := 0; i < len(values); i += 2 {
		if sum := values[i] + values[i+1]; math.Abs(sum-1) > cptTolerance {
			parents, _ := factor.FromIndex(f.Variables()[1:], i>>1)
			return fmt.Errorf("%w: %w: factor %q given [%s] sums to %g",
				ErrInvalidDefinition, ErrNotNormalized, name, parents, sum)
		}
	}
	return nil
}

// checkPotential verifies a potential has no negative entries.
func checkPotential(name string, f *factor.Factor) error {
	values, err := f.Values()
	if err != nil {
		return err
	}
	for i, v := range values {
		if v < 0 || math.IsInf(v, 0) {
			return fmt.Errorf("%w: factor %q index %d: potential %g must be finite and non-negative",
				ErrInvalidDefinition, name, i, v)
		}
	}
	return nil
}

// checkUtility verifies every utility is finite. Utilities may be negative.
func checkUtility(name string, f *factor.Factor) error {
	values, err := f.Values()
	if err != nil {
		return err
	}
	for i, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return fmt.Errorf("%w: factor %q index %d: utility %g must be finite",
				ErrInvalidDefinition, name, i, v)
		}
	}
	return nil
}
