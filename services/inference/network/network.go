// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package network loads boolean Bayesian networks and decision models from
// YAML and turns query specs into elimination queries.
package network

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianBayes/pkg/validation"
	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
)

//go:embed examples/credit_card.yaml
var creditCardYAML []byte

// namedFactor is one factor of a network with its definition metadata.
type namedFactor struct {
	name   string
	kind   Kind
	factor *factor.Factor
}

// Network is a validated set of named factors over named boolean variables.
//
// Description:
//
//	A Network is immutable after construction. Factors() hands out the
//	shared factor pointers; factor operations never modify their inputs,
//	so any number of concurrent queries may use one Network.
//
// Thread Safety: Safe for concurrent use (immutable).
type Network struct {
	name        string
	description string
	vars        []factor.Variable
	byName      map[string]factor.Variable
	order       []factor.Variable
	factors     []namedFactor
	fingerprint string
}

// Parse decodes and validates a YAML network definition.
func Parse(data []byte) (*Network, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return FromDefinition(&def)
}

// Load reads and parses a network definition file.
//
// Outputs:
//   - *Network: The network.
//   - error: ErrDefinitionTooLarge above MaxDefinitionSize, read errors, or
//     Parse's errors.
func Load(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open network %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxDefinitionSize+1))
	if err != nil {
		return nil, fmt.Errorf("read network %s: %w", path, err)
	}
	if len(data) > MaxDefinitionSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrDefinitionTooLarge, path, MaxDefinitionSize)
	}
	n, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// Example returns the credit card fraud network with its Block and Call
// decision utilities.
func Example() (*Network, error) {
	return Parse(creditCardYAML)
}

// ExampleYAML returns the source of the example network.
func ExampleYAML() []byte {
	return bytes.Clone(creditCardYAML)
}

// FromDefinition validates def and builds the network.
//
// Description:
//
//	Beyond struct tags, checks that variable and factor names are unique,
//	every referenced name is declared, tables are complete, CPT entries are
//	probabilities whose rows sum to 1 within 1e-6, and potentials are
//	non-negative. Utility tables may hold any finite value.
func FromDefinition(def *Definition) (*Network, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	n := &Network{
		name:        def.Name,
		description: def.Description,
		byName:      make(map[string]factor.Variable, len(def.Variables)),
	}
	if err := validation.ValidateNames(def.Variables); err != nil {
		return nil, fmt.Errorf("%w: variables: %w", ErrInvalidDefinition, err)
	}
	for _, name := range def.Variables {
		if _, dup := n.byName[name]; dup {
			return nil, fmt.Errorf("%w: variable %q declared twice", ErrInvalidDefinition, name)
		}
		v := factor.NewVariable(name)
		n.byName[name] = v
		n.vars = append(n.vars, v)
	}

	order, err := n.resolve(def.Order)
	if err != nil {
		return nil, fmt.Errorf("%w: order: %w", ErrInvalidDefinition, err)
	}
	n.order = order

	seen := make(map[string]struct{}, len(def.Factors))
	for _, fd := range def.Factors {
		if _, dup := seen[fd.Name]; dup {
			return nil, fmt.Errorf("%w: factor %q declared twice", ErrInvalidDefinition, fd.Name)
		}
		seen[fd.Name] = struct{}{}

		vars, err := n.resolve(fd.Variables)
		if err != nil {
			return nil, fmt.Errorf("%w: factor %q: %w", ErrInvalidDefinition, fd.Name, err)
		}
		f, err := fd.build(vars)
		if err != nil {
			return nil, err
		}
		switch fd.kind() {
		case KindCPT:
			err = checkCPT(fd.Name, f)
		case KindPotential:
			err = checkPotential(fd.Name, f)
		case KindUtility:
			err = checkUtility(fd.Name, f)
		}
		if err != nil {
			return nil, err
		}
		n.factors = append(n.factors, namedFactor{name: fd.Name, kind: fd.kind(), factor: f})
	}

	n.fingerprint = n.computeFingerprint()
	return n, nil
}

// resolve maps names to variables.
func (n *Network) resolve(names []string) ([]factor.Variable, error) {
	out := make([]factor.Variable, 0, len(names))
	for _, name := range names {
		v, err := n.Variable(name)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// computeFingerprint hashes every table with its name, kind and variables.
func (n *Network) computeFingerprint() string {
	h := sha256.New()
	var buf [8]byte
	for _, nf := range n.factors {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00", nf.name, nf.kind, nf.factor)
		values, _ := nf.factor.Values()
		for _, v := range values {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Name returns the network name.
func (n *Network) Name() string {
	return n.name
}

// Variable looks a variable up by name.
func (n *Network) Variable(name string) (factor.Variable, error) {
	v, ok := n.byName[name]
	if !ok {
		return factor.Variable{}, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return v, nil
}

// Variables returns the declared variables in declaration order.
func (n *Network) Variables() []factor.Variable {
	return append([]factor.Variable(nil), n.vars...)
}

// Order returns the default elimination order, possibly empty.
func (n *Network) Order() []factor.Variable {
	return append([]factor.Variable(nil), n.order...)
}

// Factors returns every factor in declaration order, as a fresh slice.
func (n *Network) Factors() []*factor.Factor {
	out := make([]*factor.Factor, len(n.factors))
	for i, nf := range n.factors {
		out[i] = nf.factor
	}
	return out
}

// FactorsExcept returns the factors whose name or kind is not listed.
func (n *Network) FactorsExcept(exclude ...string) []*factor.Factor {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}
	out := make([]*factor.Factor, 0, len(n.factors))
	for _, nf := range n.factors {
		if _, ok := skip[nf.name]; ok {
			continue
		}
		if _, ok := skip[string(nf.kind)]; ok {
			continue
		}
		out = append(out, nf.factor)
	}
	return out
}

// Factor returns a factor and its kind by name.
func (n *Network) Factor(name string) (*factor.Factor, Kind, error) {
	for _, nf := range n.factors {
		if nf.name == name {
			return nf.factor, nf.kind, nil
		}
	}
	return nil, "", fmt.Errorf("%w: %q", ErrUnknownFactor, name)
}

// Fingerprint identifies the network's tables. Networks with equal
// fingerprints answer every query identically.
func (n *Network) Fingerprint() string {
	return n.fingerprint
}

// -----------------------------------------------------------------------------
// Summary
// -----------------------------------------------------------------------------

// Summary describes a network for display and the HTTP API.
type Summary struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Variables   []string        `json:"variables"`
	Order       []string        `json:"order,omitempty"`
	Factors     []FactorSummary `json:"factors"`
	Fingerprint string          `json:"fingerprint"`
}

// FactorSummary describes one factor.
type FactorSummary struct {
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	Variables []string `json:"variables"`
	Size      int      `json:"size"`
}

// Summary returns a description of the network.
func (n *Network) Summary() Summary {
	s := Summary{
		Name:        n.name,
		Description: n.description,
		Variables:   variableNames(n.vars),
		Order:       variableNames(n.order),
		Fingerprint: n.fingerprint,
	}
	for _, nf := range n.factors {
		s.Factors = append(s.Factors, FactorSummary{
			Name:      nf.name,
			Kind:      nf.kind,
			Variables: variableNames(nf.factor.Variables()),
			Size:      nf.factor.Size(),
		})
	}
	return s
}

func variableNames(vs []factor.Variable) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name()
	}
	return out
}
