// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// AuditEvent represents an auditable action.
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "inference.query",
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       authInfo.UserID,
//	    Action:       "infer",
//	    ResourceType: "network",
//	    ResourceID:   fingerprint,
//	    Outcome:      "success",
//	    Metadata:     map[string]any{"key": spec.Key()},
//	}
type AuditEvent struct {
	// EventType categorizes the event.
	// Format: "category.action" (e.g., "auth.denied", "inference.query")
	EventType string `json:"event_type"`

	// Timestamp is when the event occurred (always use UTC).
	// If zero, implementations set it to time.Now().UTC().
	Timestamp time.Time `json:"timestamp"`

	// UserID identifies who performed the action.
	// Use "anonymous" if unknown.
	UserID string `json:"user_id"`

	// Action describes what operation was attempted, e.g. "infer" or "batch".
	Action string `json:"action"`

	// ResourceType is the category of resource involved, e.g. "network".
	ResourceType string `json:"resource_type,omitempty"`

	// ResourceID is the specific resource instance, e.g. a fingerprint.
	ResourceID string `json:"resource_id,omitempty"`

	// Outcome indicates the result: "success", "failure", or "denied".
	Outcome string `json:"outcome"`

	// Metadata holds event-specific details such as "request_id",
	// "error_code" and "queries".
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AuditFilter defines criteria for querying audit events.
//
// All fields are optional - only non-zero values are used as filters.
// Multiple fields are combined with AND logic.
type AuditFilter struct {
	// EventTypes limits results to specific event types.
	EventTypes []string

	// UserID limits results to events from a specific user.
	UserID string

	// StartTime is the earliest event timestamp to include (inclusive).
	StartTime time.Time

	// EndTime is the latest event timestamp to include (exclusive).
	EndTime time.Time

	// Outcome limits results to events with a specific outcome.
	Outcome string

	// Limit is the maximum number of events to return. Zero means all.
	Limit int
}

// Matches reports whether e passes the filter.
func (f AuditFilter) Matches(e AuditEvent) bool {
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !e.Timestamp.Before(f.EndTime) {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	return true
}

// AuditLogger records security-relevant events.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// Log should return quickly; it runs on the request path.
type AuditLogger interface {
	// Log records an event.
	Log(ctx context.Context, event AuditEvent) error

	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush ensures buffered events are persisted.
	Flush(ctx context.Context) error
}

// NopAuditLogger is the default audit logger. It discards all events.
//
// Thread-safe: This implementation has no mutable state.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

// Query returns an empty slice (no events are stored).
func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op since nothing is buffered.
func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// LogAuditLogger writes events to a structured logger and keeps the most
// recent ones in memory for Query.
//
// Thread Safety: Safe for concurrent use.
type LogAuditLogger struct {
	logger *slog.Logger

	mu     sync.Mutex
	recent []AuditEvent
	next   int
	full   bool
}

// NewLogAuditLogger returns an audit logger that retains up to capacity
// events. A nil logger uses slog.Default(); capacity below 1 retains none.
func NewLogAuditLogger(logger *slog.Logger, capacity int) *LogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAuditLogger{
		logger: logger.With("component", "audit"),
		recent: make([]AuditEvent, max(capacity, 0)),
	}
}

// Log writes the event at Info level and retains it.
func (l *LogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.UserID == "" {
		event.UserID = "anonymous"
	}

	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.String("user_id", event.UserID),
		slog.String("action", event.Action),
		slog.String("outcome", event.Outcome),
	}
	if event.ResourceID != "" {
		attrs = append(attrs, slog.String("resource_type", event.ResourceType), slog.String("resource_id", event.ResourceID))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)

	if len(l.recent) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recent[l.next] = event
	l.next = (l.next + 1) % len(l.recent)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

// Query returns retained events matching filter, newest first.
func (l *LogAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.recent)
	}
	out := make([]AuditEvent, 0, n)
	for i := 1; i <= n; i++ {
		e := l.recent[(l.next-i+len(l.recent))%len(l.recent)]
		if !filter.Matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Flush is a no-op; events are written synchronously.
func (l *LogAuditLogger) Flush(ctx context.Context) error {
	return nil
}
