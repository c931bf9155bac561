// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided identifiers.
//
// Variable names appear inside rendered assignments ("~Block,Call"), in
// evidence literals ("FP", "~IP", "CRP=true") and in cache keys. A name
// holding '~', ',' or '=' would make those renderings ambiguous, so names
// are restricted to a small identifier alphabet.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxNameLength bounds a variable name.
const MaxNameLength = 64

// ErrInvalidName indicates a name outside the identifier alphabet.
var ErrInvalidName = errors.New("invalid name")

// namePattern matches valid variable names.
// Allows: a letter or underscore, then letters, digits, '_', '-' and '.'
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// ValidateName validates a variable name.
//
// Valid names:
//   - 1-64 characters
//   - Start with a letter or underscore
//   - Continue with letters, digits, '_', '-' or '.'
//
// Example:
//
//	if err := validation.ValidateName(name); err != nil {
//	    return fmt.Errorf("variable: %w", err)
//	}
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidName, name, MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (must start with a letter or '_' and use only letters, digits, '_', '-' or '.')",
			ErrInvalidName, name)
	}
	return nil
}

// ValidateNames validates several names.
// Returns an error listing all invalid names if any fail validation.
func ValidateNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, invalid)
	}
	return nil
}

// SanitizeName trims surrounding space and validates the result.
//
//	name, err := validation.SanitizeName(userInput)
//	if err != nil {
//	    return err
//	}
func SanitizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
