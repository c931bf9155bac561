// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianBayes/pkg/ux"
	"github.com/AleutianAI/AleutianBayes/pkg/validation"
	"github.com/AleutianAI/AleutianBayes/services/inference/elimination"
	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
	"github.com/AleutianAI/AleutianBayes/services/inference/runner"
	"github.com/AleutianAI/AleutianBayes/services/inference/server"
)

// ErrBadEvidence is returned for an evidence literal that cannot be parsed.
var ErrBadEvidence = errors.New("invalid evidence")

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// queryFlags are shared by query and order.
type queryFlags struct {
	evidence    []string
	order       []string
	exclude     []string
	heuristic   string
	id          string
	decision    bool
	unnormalize bool
	noCache     bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.evidence, "evidence", "e", nil,
		"Observed literals: Name, ~Name, or Name=true|false (repeatable, comma-separated)")
	cmd.Flags().StringSliceVar(&f.order, "order", nil, "Elimination order (default: network order completed by the heuristic)")
	cmd.Flags().StringVar(&f.heuristic, "heuristic", "", "Ordering heuristic: min-fill or min-degree (default from config)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "Factor names or kinds (cpt, utility, potential) to leave out")
}

// spec builds the query spec for variables.
func (f *queryFlags) spec(cmd *cobra.Command, variables []string) (network.QuerySpec, error) {
	evidence, err := parseEvidence(f.evidence)
	if err != nil {
		return network.QuerySpec{}, err
	}
	spec := network.QuerySpec{
		ID:        f.id,
		Query:     variables,
		Evidence:  evidence,
		Order:     f.order,
		Heuristic: f.heuristic,
		Decision:  f.decision,
	}
	if cmd.Flags().Changed("exclude") {
		spec.Exclude = f.exclude
		if spec.Exclude == nil {
			spec.Exclude = []string{}
		}
	}
	if f.unnormalize {
		normalize := false
		spec.Normalize = &normalize
	}
	return spec, nil
}

// parseEvidence turns literals into an evidence map.
//
// Description:
//
//	Accepts "Name" (true), "~Name" or "!Name" (false), and "Name=value"
//	where value is anything strconv.ParseBool accepts. A variable given
//	twice with different values is an error.
func parseEvidence(literals []string) (map[string]bool, error) {
	if len(literals) == 0 {
		return nil, nil
	}
	evidence := make(map[string]bool, len(literals))
	for _, raw := range literals {
		lit := strings.TrimSpace(raw)
		name, value := lit, true
		switch {
		case strings.Contains(lit, "="):
			n, v, _ := strings.Cut(lit, "=")
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%w: %q: value must be true or false", ErrBadEvidence, raw)
			}
			name, value = strings.TrimSpace(n), b
		case strings.HasPrefix(lit, "~"), strings.HasPrefix(lit, "!"):
			name, value = strings.TrimSpace(lit[1:]), false
		}
		if err := validation.ValidateName(name); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrBadEvidence, raw, err)
		}
		if prev, ok := evidence[name]; ok && prev != value {
			return nil, fmt.Errorf("%w: %s observed as both true and false", ErrBadEvidence, name)
		}
		evidence[name] = value
	}
	return evidence, nil
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newQueryCmd(a *app) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query VARIABLE [VARIABLE...]",
		Short: "Compute a posterior, a joint, or an expected utility",
		Long: `Compute P(query | evidence) by variable elimination.

With --decision the single query variable is treated as a decision: the
network's utilities are kept, the result is left unnormalized, and the
choice with the higher expected utility is reported.

Examples:
  bayes query Fraud
  bayes query Fraud -e FP,~IP,CRP
  bayes query Fraud -e Trav=true --order OC,FP,IP,CRP
  bayes query Call --decision -e FP -e ~IP -e CRP
  bayes --json query Fraud OC`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runQuery(cmd, f, args)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.decision, "decision", false, "Treat the query variable as a decision and report expected utilities")
	cmd.Flags().BoolVar(&f.unnormalize, "unnormalized", false, "Do not normalize the result")
	cmd.Flags().StringVar(&f.id, "id", "", "Query ID (default: generated)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Bypass the result cache")
	return cmd
}

func newOrderCmd(a *app) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "order VARIABLE [VARIABLE...]",
		Short: "Show the elimination order a query would use",
		Long: `Show the greedy elimination order for a query.

Prints the order the chosen heuristic produces for the selected factors and,
separately, the order a query would actually use: the network's declared
order completed by the heuristic, or --order when given.

Examples:
  bayes order Fraud -e FP,~IP,CRP
  bayes order Fraud --heuristic min-degree`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runOrder(cmd, f, args)
		},
	}
	f.register(cmd)
	return cmd
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func (a *app) runQuery(cmd *cobra.Command, f *queryFlags, args []string) error {
	spec, err := f.spec(cmd, args)
	if err != nil {
		return err
	}
	net, err := a.loadNetwork()
	if err != nil {
		return err
	}

	c, closeCache, err := a.openCache()
	if err != nil {
		return err
	}
	defer closeCache()
	if f.noCache {
		c = nil
	}
	r, err := a.newRunner(c)
	if err != nil {
		return err
	}

	out := r.RunOne(cmd.Context(), net, spec)
	if out.Err != nil {
		return fmt.Errorf("query %s: %w", out.Spec.Key(), out.Err)
	}
	if a.jsonOut {
		return writeJSON(cmd.OutOrStdout(), server.NewInferResponse(net, out))
	}
	printOutcome(a.printer(cmd.OutOrStdout()), out)
	return nil
}

func (a *app) runOrder(cmd *cobra.Command, f *queryFlags, args []string) error {
	spec, err := f.spec(cmd, args)
	if err != nil {
		return err
	}
	if spec.Heuristic == "" {
		spec.Heuristic = a.cfg.Engine.Heuristic
	}
	net, err := a.loadNetwork()
	if err != nil {
		return err
	}
	q, factors, err := net.Compile(spec)
	if err != nil {
		return err
	}
	h, err := elimination.ParseHeuristic(spec.Heuristic)
	if err != nil {
		return err
	}

	greedy := namesOf(elimination.GreedyOrder(factors, q.Variables, q.Evidence, h))
	used := make([]string, 0, len(q.Order))
	for _, v := range q.Order {
		if _, observed := q.Evidence.Get(v); observed || slices.Contains(args, v.Name()) {
			continue
		}
		used = append(used, v.Name())
	}

	if a.jsonOut {
		return writeJSON(cmd.OutOrStdout(), struct {
			Heuristic string   `json:"heuristic"`
			Greedy    []string `json:"greedy"`
			Order     []string `json:"order"`
		}{h.String(), greedy, used})
	}

	p := a.printer(cmd.OutOrStdout())
	p.Title("Elimination order for " + spec.Key())
	p.KeyValue(h.String(), strings.Join(greedy, " "+string(ux.IconArrow)+" "))
	p.KeyValue("query uses", strings.Join(used, " "+string(ux.IconArrow)+" "))
	return nil
}

// =============================================================================
// RENDERING
// =============================================================================

// printOutcome renders one answered query.
func printOutcome(p *ux.Printer, o runner.Outcome) {
	a := o.Answer
	title := strings.Join(o.Spec.Query, ",")
	if len(o.Spec.Evidence) > 0 {
		title += " | " + formatEvidence(o.Spec.Evidence)
	}
	switch {
	case o.Spec.Decision:
		title = "EU(" + title + ")"
	case !o.Spec.ShouldNormalize():
		title = "unnormalized P(" + title + ")"
	default:
		title = "P(" + title + ")"
	}
	p.Title(title)

	for _, line := range strings.Split(strings.TrimRight(a.Factor.Table(), "\n"), "\n") {
		value := line[strings.LastIndex(line, "= ")+2:]
		bar := ""
		if v, err := strconv.ParseFloat(value, 64); err == nil && o.Spec.ShouldNormalize() {
			bar = p.ProbabilityBar(v, 20)
		}
		if bar != "" {
			line += "  " + bar
		}
		p.Info(line)
	}

	if d := a.Decision; d != nil {
		p.Success(fmt.Sprintf("choose %s (EU %s = %.6g, EU %s = %.6g, gap %.6g)",
			d.Variable.Literal(d.Best),
			d.Variable.Literal(true), d.IfTrue,
			d.Variable.Literal(false), d.IfFalse,
			d.Gap()))
	}

	if len(a.Order) > 0 {
		p.KeyValue("order", strings.Join(namesOf(a.Order), " "))
	}
	p.KeyValue("max width", a.MaxWidth)
	if o.Cached {
		p.KeyValue("cached", true)
	} else {
		p.KeyValue("duration", a.Duration)
	}
}

// formatEvidence renders evidence as sorted literals, e.g. "CRP, FP, ~IP".
func formatEvidence(e map[string]bool) string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if !e[name] {
			names[i] = "~" + name
		}
	}
	return strings.Join(names, ", ")
}

func namesOf(vs []factor.Variable) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name()
	}
	return out
}
