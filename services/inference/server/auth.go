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
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianBayes/pkg/extensions"
)

const (
	apiKeyHeader = "X-API-Key"
	authInfoKey  = "auth_info"

	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditResponse is the body of GET /v1/audit.
type AuditResponse struct {
	Events []extensions.AuditEvent `json:"events"`
}

// bearerToken reads "Authorization: Bearer <token>", falling back to
// X-API-Key.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return c.GetHeader(apiKeyHeader)
}

// authenticate validates the caller's token and requires role.
//
// Description:
//
//	401 when the token is missing or unknown, 403 when the user lacks the
//	role. Both are audited as "auth.denied". The AuthInfo is stored on the
//	gin context for handlers.
func (s *Server) authenticate(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := s.opts.Extensions.AuthProvider.Validate(c.Request.Context(), bearerToken(c))
		if err == nil {
			err = info.Require(role)
		}
		if err != nil {
			status, code := http.StatusUnauthorized, "UNAUTHORIZED"
			if errors.Is(err, extensions.ErrForbidden) {
				status, code = http.StatusForbidden, "FORBIDDEN"
			}
			user := ""
			if info != nil {
				user = info.UserID
			}
			s.requestLogger(c).Info("request denied",
				slog.String("path", c.FullPath()),
				slog.String("code", code),
				slog.String("error", err.Error()),
			)
			s.audit(c, extensions.AuditEvent{
				EventType:    "auth.denied",
				UserID:       user,
				Action:       c.Request.Method + " " + c.FullPath(),
				ResourceType: "route",
				Outcome:      "denied",
				Metadata:     map[string]any{"error_code": code},
			})
			s.abort(c, status, code, err.Error())
			return
		}
		c.Set(authInfoKey, info)
		c.Next()
	}
}

// authInfo returns the identity set by authenticate, or nil.
func authInfo(c *gin.Context) *extensions.AuthInfo {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, _ := v.(*extensions.AuthInfo)
	return info
}

// audit records e with the caller and request ID filled in. Logger
// failures are logged and otherwise ignored.
func (s *Server) audit(c *gin.Context, e extensions.AuditEvent) {
	if e.UserID == "" {
		if info := authInfo(c); info != nil {
			e.UserID = info.UserID
		}
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any, 1)
	}
	e.Metadata["request_id"] = getRequestID(c)
	if err := s.opts.Extensions.AuditLogger.Log(c.Request.Context(), e); err != nil {
		s.requestLogger(c).Warn("audit log failed", slog.String("error", err.Error()))
	}
}

// handleAudit handles GET /v1/audit.
//
// Query parameters: limit (default 100, at most 1000), user, event_type
// and outcome. Events are returned newest first.
func (s *Server) handleAudit(c *gin.Context) {
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.abort(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}
	filter := extensions.AuditFilter{
		UserID:  c.Query("user"),
		Outcome: c.Query("outcome"),
		Limit:   limit,
	}
	if et := c.Query("event_type"); et != "" {
		filter.EventTypes = strings.Split(et, ",")
	}

	events, err := s.opts.Extensions.AuditLogger.Query(c.Request.Context(), filter)
	if err != nil {
		status, code := classify(err)
		s.abort(c, status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, AuditResponse{Events: events})
}
