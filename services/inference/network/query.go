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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianBayes/services/inference/elimination"
	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
	"gopkg.in/yaml.v3"
)

// QuerySpec names a query by variable names, as read from YAML or JSON.
//
// Description:
//
//	Normalize defaults to true. Exclude lists factor names or kinds to
//	leave out of the query. When Exclude is nil, utility factors are kept
//	only for unnormalized queries, and then only those mentioning a query
//	variable, so an expected-utility query over one decision ignores the
//	utilities of the others. Order falls back to the network order,
//	completed with the Heuristic for any variable it misses.
type QuerySpec struct {
	ID        string          `yaml:"id,omitempty" json:"id,omitempty" validate:"max=128"`
	Query     []string        `yaml:"query" json:"query" validate:"max=30,dive,required"`
	Evidence  map[string]bool `yaml:"evidence,omitempty" json:"evidence,omitempty"`
	Order     []string        `yaml:"order,omitempty" json:"order,omitempty" validate:"dive,required"`
	Heuristic string          `yaml:"heuristic,omitempty" json:"heuristic,omitempty" validate:"omitempty,oneof=min-fill min-degree"`
	Normalize *bool           `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	Exclude   []string        `yaml:"exclude,omitempty" json:"exclude,omitempty" validate:"dive,required"`
	Decision  bool            `yaml:"decision,omitempty" json:"decision,omitempty"`
}

// Validate checks struct tags.
func (s *QuerySpec) Validate() error {
	if err := definitionValidate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if s.Decision && len(s.Query) != 1 {
		return fmt.Errorf("%w: a decision query needs exactly one query variable", ErrInvalidQuery)
	}
	return nil
}

// ShouldNormalize reports whether the result is normalized.
// Decision queries are never normalized.
func (s *QuerySpec) ShouldNormalize() bool {
	if s.Decision {
		return false
	}
	return s.Normalize == nil || *s.Normalize
}

// Key returns a canonical string identifying the answer of the query.
//
// Description:
//
//	Two specs with the same key produce the same result on the same
//	network. The elimination order and heuristic do not change the answer
//	and are left out; evidence and exclusions are sorted.
func (s *QuerySpec) Key() string {
	evidence := make([]string, 0, len(s.Evidence))
	for name, value := range s.Evidence {
		if value {
			evidence = append(evidence, name)
		} else {
			evidence = append(evidence, "~"+name)
		}
	}
	sort.Slice(evidence, func(i, j int) bool {
		return strings.TrimPrefix(evidence[i], "~") < strings.TrimPrefix(evidence[j], "~")
	})
	exclude := "auto"
	if s.Exclude != nil {
		sorted := append([]string(nil), s.Exclude...)
		sort.Strings(sorted)
		exclude = "[" + strings.Join(sorted, ",") + "]"
	}

	return fmt.Sprintf("q=%s|e=%s|n=%s|x=%s",
		strings.Join(s.Query, ","),
		strings.Join(evidence, ","),
		strconv.FormatBool(s.ShouldNormalize()),
		exclude)
}

// Compile resolves spec against the network.
//
// Outputs:
//   - elimination.Query: The query with variables, evidence and order resolved.
//   - []*factor.Factor: The selected factors.
//   - error: ErrInvalidQuery, ErrUnknownName, ErrNoFactorsSelected, or
//     the structural errors of elimination.Validate.
func (n *Network) Compile(spec QuerySpec) (elimination.Query, []*factor.Factor, error) {
	if err := spec.Validate(); err != nil {
		return elimination.Query{}, nil, err
	}
	heuristic, err := elimination.ParseHeuristic(spec.Heuristic)
	if err != nil {
		return elimination.Query{}, nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	queryVars, err := n.resolve(spec.Query)
	if err != nil {
		return elimination.Query{}, nil, err
	}

	names := make([]string, 0, len(spec.Evidence))
	for name := range spec.Evidence {
		names = append(names, name)
	}
	sort.Strings(names)
	evidence := factor.NewEvidence()
	for _, name := range names {
		v, err := n.Variable(name)
		if err != nil {
			return elimination.Query{}, nil, err
		}
		evidence.Set(v, spec.Evidence[name])
	}

	factors := n.selectFactors(spec, queryVars)
	if len(factors) == 0 {
		return elimination.Query{}, nil, fmt.Errorf("%w: exclude [%s]", ErrNoFactorsSelected, strings.Join(spec.Exclude, ","))
	}

	var order []factor.Variable
	if len(spec.Order) > 0 {
		if order, err = n.resolve(spec.Order); err != nil {
			return elimination.Query{}, nil, err
		}
	} else {
		order = n.Order()
		listed := make(map[factor.Variable]struct{}, len(order))
		for _, v := range order {
			listed[v] = struct{}{}
		}
		for _, v := range elimination.GreedyOrder(factors, queryVars, evidence, heuristic) {
			if _, ok := listed[v]; !ok {
				order = append(order, v)
			}
		}
	}

	q := elimination.Query{
		Variables: queryVars,
		Order:     order,
		Evidence:  evidence,
		Normalize: spec.ShouldNormalize(),
	}
	if err := elimination.Validate(factors, q); err != nil {
		return elimination.Query{}, nil, err
	}
	return q, factors, nil
}

// selectFactors applies the spec's exclusions.
func (n *Network) selectFactors(spec QuerySpec, queryVars []factor.Variable) []*factor.Factor {
	if spec.Exclude != nil {
		return n.FactorsExcept(spec.Exclude...)
	}
	normalize := spec.ShouldNormalize()
	out := make([]*factor.Factor, 0, len(n.factors))
	for _, nf := range n.factors {
		if nf.kind == KindUtility && (normalize || !mentionsAny(nf.factor, queryVars)) {
			continue
		}
		out = append(out, nf.factor)
	}
	return out
}

func mentionsAny(f *factor.Factor, vs []factor.Variable) bool {
	for _, v := range vs {
		if f.Contains(v) {
			return true
		}
	}
	return false
}

// Answer is the outcome of Network.Query.
type Answer struct {
	*elimination.Result

	// Decision is set for decision queries.
	Decision *elimination.Decision
}

// Query compiles spec and runs it on engine.
func (n *Network) Query(ctx context.Context, engine *elimination.Engine, spec QuerySpec) (*Answer, error) {
	q, factors, err := n.Compile(spec)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, engine, q, factors, spec.Decision)
}

// Execute runs a query returned by Compile. With decision set, the answer
// also carries the best action of the single query variable.
func Execute(ctx context.Context, engine *elimination.Engine, q elimination.Query, factors []*factor.Factor, decision bool) (*Answer, error) {
	result, err := engine.Infer(ctx, factors, q)
	if err != nil {
		return nil, err
	}
	answer := &Answer{Result: result}
	if decision {
		answer.Decision, err = elimination.Decide(result.Factor, q.Variables[0])
		if err != nil {
			return nil, err
		}
	}
	return answer, nil
}

// -----------------------------------------------------------------------------
// Batch files
// -----------------------------------------------------------------------------

// batchFile is the wrapped form of a batch: "queries: [...]".
type batchFile struct {
	Queries []QuerySpec `yaml:"queries"`
}

// ParseQueries decodes a batch of query specs.
//
// Description:
//
//	Accepts either a top-level YAML (or JSON) list of specs or a mapping
//	with a "queries" list. Unknown fields are rejected in both forms.
//	Each spec is validated.
func ParseQueries(data []byte) ([]QuerySpec, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var specs []QuerySpec
	if root.Content[0].Kind == yaml.SequenceNode {
		if err := dec.Decode(&specs); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
	} else {
		var wrapped batchFile
		if err := dec.Decode(&wrapped); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		specs = wrapped.Queries
	}
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
	}
	return specs, nil
}
