// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/AleutianAI/AleutianBayes/services/inference/elimination"
	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
	"github.com/AleutianAI/AleutianBayes/services/inference/runner"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// BatchRequest is the body of POST /v1/batch.
type BatchRequest struct {
	Queries []network.QuerySpec `json:"queries" binding:"required"`
}

// RowResponse is one entry of a result table.
type RowResponse struct {
	// Assignment renders the row, e.g. "Fraud" or "~Block,Call".
	Assignment string          `json:"assignment"`
	State      map[string]bool `json:"state"`
	Value      float64         `json:"value"`
}

// FactorResponse is a result table in index order.
type FactorResponse struct {
	Variables []string      `json:"variables"`
	Rows      []RowResponse `json:"rows"`
}

// DecisionResponse reports a decision query.
type DecisionResponse struct {
	Variable string  `json:"variable"`
	Best     bool    `json:"best"`
	IfTrue   float64 `json:"eu_true"`
	IfFalse  float64 `json:"eu_false"`
	Gap      float64 `json:"gap"`
}

// InferResponse is the body of a successful POST /v1/infer and one entry
// of a batch response.
type InferResponse struct {
	ID          string             `json:"id"`
	Key         string             `json:"key"`
	Network     string             `json:"network"`
	Fingerprint string             `json:"fingerprint"`
	Result      FactorResponse     `json:"result"`
	Decision    *DecisionResponse  `json:"decision,omitempty"`
	Order       []string           `json:"order,omitempty"`
	Steps       []elimination.Step `json:"steps,omitempty"`
	MaxWidth    int                `json:"max_width"`
	DurationMs  float64            `json:"duration_ms"`
	Cached      bool               `json:"cached"`
}

// BatchItem is one outcome of a batch: a response or an error.
type BatchItem struct {
	ID string `json:"id"`
	*InferResponse
	Error *ErrorResponse `json:"error,omitempty"`
}

// BatchResponse is the body of POST /v1/batch.
type BatchResponse struct {
	Results   []BatchItem `json:"results"`
	Failed    int         `json:"failed"`
	RequestID string      `json:"request_id"`
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Network     string `json:"network"`
	Fingerprint string `json:"fingerprint"`
}

func newFactorResponse(f *factor.Factor) FactorResponse {
	vars := f.Variables()
	resp := FactorResponse{
		Variables: make([]string, len(vars)),
		Rows:      make([]RowResponse, 0, f.Size()),
	}
	for i, v := range vars {
		resp.Variables[i] = v.Name()
	}
	for a := range factor.All(vars) {
		value, err := f.At(a)
		if err != nil {
			continue
		}
		state := make(map[string]bool, len(vars))
		for i, b := range a.Values() {
			state[resp.Variables[i]] = b
		}
		resp.Rows = append(resp.Rows, RowResponse{Assignment: a.String(), State: state, Value: value})
	}
	return resp
}

// NewInferResponse renders a successful outcome.
func NewInferResponse(net *network.Network, o runner.Outcome) *InferResponse {
	a := o.Answer
	resp := &InferResponse{
		ID:          o.ID,
		Key:         o.Spec.Key(),
		Network:     net.Name(),
		Fingerprint: net.Fingerprint(),
		Result:      newFactorResponse(a.Factor),
		Steps:       a.Steps,
		MaxWidth:    a.MaxWidth,
		DurationMs:  float64(a.Duration.Microseconds()) / 1000,
		Cached:      o.Cached,
	}
	for _, v := range a.Order {
		resp.Order = append(resp.Order, v.Name())
	}
	if d := a.Decision; d != nil {
		resp.Decision = &DecisionResponse{
			Variable: d.Variable.Name(),
			Best:     d.Best,
			IfTrue:   d.IfTrue,
			IfFalse:  d.IfFalse,
			Gap:      d.Gap(),
		}
	}
	return resp
}

// NewBatchItem renders one batch outcome, successful or not.
func NewBatchItem(net *network.Network, o runner.Outcome) BatchItem {
	if o.Err != nil {
		_, code := classify(o.Err)
		return BatchItem{ID: o.ID, Error: &ErrorResponse{Error: o.Err.Error(), Code: code}}
	}
	return BatchItem{ID: o.ID, InferResponse: NewInferResponse(net, o)}
}
