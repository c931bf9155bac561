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
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
)

// ErrUnauthorized is returned when authentication fails. Implementations
// wrap it with context.
//
// Example:
//
//	if !validToken {
//	    return nil, fmt.Errorf("unknown token: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden is returned when an authenticated user lacks a role.
var ErrForbidden = errors.New("forbidden")

// Roles understood by the inference API.
const (
	// RoleQuery may call the inference endpoints.
	RoleQuery = "query"

	// RoleAdmin may also read the audit log.
	RoleAdmin = "admin"
)

// AuthInfo contains identity information returned after successful
// authentication.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// This is the only required field and must never be empty.
	UserID string

	// Roles contains the user's role memberships for authorization decisions.
	Roles []string
}

// HasRole checks if the user has a specific role. Admins have every role.
func (a *AuthInfo) HasRole(role string) bool {
	if a == nil {
		return false
	}
	return slices.Contains(a.Roles, role) || slices.Contains(a.Roles, RoleAdmin)
}

// Require returns ErrForbidden unless the user has role.
func (a *AuthInfo) Require(role string) error {
	if a.HasRole(role) {
		return nil
	}
	user := "anonymous"
	if a != nil {
		user = a.UserID
	}
	return fmt.Errorf("%w: %s lacks role %q", ErrForbidden, user, role)
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type AuthProvider interface {
	// Validate checks the token and returns the user's identity.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout control
	//   - token: The bearer token, possibly empty
	//
	// Outputs:
	//   - *AuthInfo: User identity if valid
	//   - error: ErrUnauthorized (or wrapped) if invalid
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider is the default authentication provider.
//
// Any token, including none, authenticates as "local-user" with admin
// privileges.
//
// Thread-safe: This implementation has no mutable state.
type NopAuthProvider struct{}

// Validate always returns the local admin.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{RoleAdmin},
	}, nil
}

// APIKey binds a static token to a user.
type APIKey struct {
	UserID string   `json:"user" yaml:"user" validate:"required"`
	Token  string   `json:"token" yaml:"token" validate:"required,min=16"`
	Roles  []string `json:"roles,omitempty" yaml:"roles,omitempty" validate:"dive,oneof=query admin"`
}

// TokenAuthProvider authenticates static API keys.
//
// Description:
//
//	Tokens are compared by SHA-256 digest in constant time. Keys without
//	roles get RoleQuery.
//
// Thread Safety: Immutable after construction. Safe for concurrent use.
type TokenAuthProvider struct {
	keys []hashedKey
}

type hashedKey struct {
	digest [sha256.Size]byte
	info   AuthInfo
}

// NewTokenAuthProvider builds a provider for keys.
func NewTokenAuthProvider(keys []APIKey) *TokenAuthProvider {
	p := &TokenAuthProvider{keys: make([]hashedKey, 0, len(keys))}
	for _, k := range keys {
		roles := k.Roles
		if len(roles) == 0 {
			roles = []string{RoleQuery}
		}
		p.keys = append(p.keys, hashedKey{
			digest: sha256.Sum256([]byte(k.Token)),
			info:   AuthInfo{UserID: k.UserID, Roles: append([]string(nil), roles...)},
		})
	}
	return p
}

// Validate looks the token up, comparing it against every key.
func (p *TokenAuthProvider) Validate(ctx context.Context, token string) (*AuthInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", ErrUnauthorized)
	}
	digest := sha256.Sum256([]byte(token))
	var found *AuthInfo
	for i := range p.keys {
		if subtle.ConstantTimeCompare(digest[:], p.keys[i].digest[:]) == 1 {
			found = &p.keys[i].info
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown token: %w", ErrUnauthorized)
	}
	info := *found
	info.Roles = append([]string(nil), found.Roles...)
	return &info, nil
}
