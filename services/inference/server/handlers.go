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
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/AleutianAI/AleutianBayes/pkg/extensions"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
)

// bindStrict decodes the JSON body into v and runs gin's binding
// validator. Unknown fields are rejected with 400 INVALID_QUERY, other
// decode failures with 400 INVALID_REQUEST. It reports whether the handler
// may continue.
func (s *Server) bindStrict(c *gin.Context, logger *slog.Logger, v any) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil {
		err = binding.Validator.ValidateStruct(v)
	}
	if err == nil {
		return true
	}

	logger.Debug("invalid request body", slog.String("error", err.Error()))
	if strings.Contains(err.Error(), "unknown field") {
		err = fmt.Errorf("%w: %v", network.ErrInvalidQuery, err)
		status, code := classify(err)
		s.abort(c, status, code, err.Error())
		return false
	}
	s.abort(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
	return false
}

// handleInfer handles POST /v1/infer.
//
// Response:
//
//	200 OK: InferResponse
//	400 Bad Request: malformed body or structural query error
//	401 Unauthorized / 403 Forbidden: see authenticate
//	422 Unprocessable Entity: zero-probability evidence or an oversized factor
//	429 Too Many Requests: rate limited
//	504 Gateway Timeout: query timed out or the client went away
func (s *Server) handleInfer(c *gin.Context) {
	logger := s.requestLogger(c).With("handler", "infer")

	var spec network.QuerySpec
	if !s.bindStrict(c, logger, &spec) {
		return
	}

	net := s.Network()
	out := s.runner.RunOne(c.Request.Context(), net, spec)
	if out.Err != nil {
		status, code := classify(out.Err)
		logger.Info("query failed",
			slog.String("id", out.ID),
			slog.String("code", code),
			slog.String("error", out.Err.Error()),
		)
		s.audit(c, extensions.AuditEvent{
			EventType:    "inference.query",
			Action:       "infer",
			ResourceType: "network",
			ResourceID:   net.Fingerprint(),
			Outcome:      "failure",
			Metadata:     map[string]any{"key": spec.Key(), "error_code": code},
		})
		s.abort(c, status, code, out.Err.Error())
		return
	}

	logger.Debug("query answered", slog.String("id", out.ID), slog.Bool("cached", out.Cached))
	s.audit(c, extensions.AuditEvent{
		EventType:    "inference.query",
		Action:       "infer",
		ResourceType: "network",
		ResourceID:   net.Fingerprint(),
		Outcome:      "success",
		Metadata:     map[string]any{"key": spec.Key(), "cached": out.Cached},
	})
	c.JSON(http.StatusOK, NewInferResponse(net, out))
}

// handleBatch handles POST /v1/batch.
//
// Description:
//
//	Per-query failures are reported inside the 200 response. Only a
//	malformed body or an oversized batch fails the whole request.
func (s *Server) handleBatch(c *gin.Context) {
	logger := s.requestLogger(c).With("handler", "batch")

	var req BatchRequest
	if !s.bindStrict(c, logger, &req) {
		return
	}
	if len(req.Queries) > s.opts.MaxBatch {
		s.abort(c, http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE",
			fmt.Sprintf("batch of %d exceeds limit %d", len(req.Queries), s.opts.MaxBatch))
		return
	}

	net := s.Network()
	outcomes, err := s.runner.Run(c.Request.Context(), net, req.Queries)
	if err != nil && outcomes == nil {
		status, code := classify(err)
		s.abort(c, status, code, err.Error())
		return
	}

	resp := BatchResponse{
		Results:   make([]BatchItem, len(outcomes)),
		RequestID: getRequestID(c),
	}
	for i, o := range outcomes {
		resp.Results[i] = NewBatchItem(net, o)
		if o.Err != nil {
			resp.Failed++
		}
	}

	logger.Info("batch answered", slog.Int("queries", len(outcomes)), slog.Int("failed", resp.Failed))
	outcome := "success"
	if resp.Failed > 0 {
		outcome = "failure"
	}
	s.audit(c, extensions.AuditEvent{
		EventType:    "inference.batch",
		Action:       "batch",
		ResourceType: "network",
		ResourceID:   net.Fingerprint(),
		Outcome:      outcome,
		Metadata:     map[string]any{"queries": len(outcomes), "failed": resp.Failed},
	})
	c.JSON(http.StatusOK, resp)
}

// handleNetwork handles GET /v1/network.
func (s *Server) handleNetwork(c *gin.Context) {
	c.JSON(http.StatusOK, s.Network().Summary())
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(c *gin.Context) {
	net := s.Network()
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Network:     net.Name(),
		Fingerprint: net.Fingerprint(),
	})
}
