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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
)

// Heuristic scores a candidate variable during greedy ordering. Lower wins.
type Heuristic int

const (
	// MinFill picks the variable whose elimination adds the fewest new edges
	// to the interaction graph.
	MinFill Heuristic = iota

	// MinDegree picks the variable with the fewest neighbours.
	MinDegree
)

// String returns the heuristic name.
func (h Heuristic) String() string {
	switch h {
	case MinFill:
		return "min-fill"
	case MinDegree:
		return "min-degree"
	default:
		return fmt.Sprintf("heuristic(%d)", int(h))
	}
}

// ParseHeuristic maps "min-fill" or "min-degree" to a Heuristic.
// The empty string selects MinFill.
func ParseHeuristic(s string) (Heuristic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "min-fill", "minfill":
		return MinFill, nil
	case "min-degree", "mindegree":
		return MinDegree, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownHeuristic, s)
	}
}

// GreedyOrder computes an elimination order for every variable that is
// neither queried nor observed.
//
// Description:
//
//	Builds the interaction graph (variables sharing a factor are
//	neighbours), drops evidence variables, then repeatedly eliminates the
//	non-query variable with the lowest heuristic score, connecting its
//	neighbours pairwise. Ties go to the lexically smallest name, so the
//	result is deterministic.
//
// Inputs:
//   - factors: The model.
//   - query: Variables that are kept.
//   - evidence: Observed variables, removed from the graph. May be nil.
//   - h: The scoring heuristic.
//
// Outputs:
//   - []factor.Variable: The order. Empty, never nil, if nothing needs
//     eliminating.
func GreedyOrder(factors []*factor.Factor, query []factor.Variable, evidence *factor.Evidence, h Heuristic) []factor.Variable {
	graph := make(map[factor.Variable]map[factor.Variable]struct{})
	for _, f := range factors {
		if f == nil {
			continue
		}
		vs := f.Variables()
		for _, v := range vs {
			if evidence.Contains(v) {
				continue
			}
			if graph[v] == nil {
				graph[v] = make(map[factor.Variable]struct{})
			}
			for _, u := range vs {
				if u != v && !evidence.Contains(u) {
					graph[v][u] = struct{}{}
				}
			}
		}
	}

	keep := make(map[factor.Variable]struct{}, len(query))
	for _, v := range query {
		keep[v] = struct{}{}
	}

	order := []factor.Variable{}
	for {
		var (
			best      factor.Variable
			bestScore = -1
		)
		for v, neighbours := range graph {
			if _, ok := keep[v]; ok {
				continue
			}
			score := len(neighbours)
			if h == MinFill {
				score = fillIn(graph, neighbours)
			}
			if bestScore < 0 || score < bestScore || (score == bestScore && v.Name() < best.Name()) {
				best, bestScore = v, score
			}
		}
		if bestScore < 0 {
			return order
		}

		neighbours := graph[best]
		for u := range neighbours {
			for w := range neighbours {
				if u != w {
					graph[u][w] = struct{}{}
				}
			}
			delete(graph[u], best)
		}
		delete(graph, best)
		order = append(order, best)
	}
}

// fillIn counts neighbour pairs that are not yet adjacent.
func fillIn(graph map[factor.Variable]map[factor.Variable]struct{}, neighbours map[factor.Variable]struct{}) int {
	list := make([]factor.Variable, 0, len(neighbours))
	for u := range neighbours {
		list = append(list, u)
	}
	missing := 0
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			if _, ok := graph[list[i]][list[j]]; !ok {
				missing++
			}
		}
	}
	return missing
}
