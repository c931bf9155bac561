// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"single letter", "A", false},
		{"mixed case", "Fraud", false},
		{"underscore start", "_hidden", false},
		{"digits and dots", "sensor.v2-raw_1", false},
		{"max length", strings.Repeat("a", MaxNameLength), false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxNameLength+1), true},
		{"digit start", "2fast", true},
		{"negation", "~IP", true},
		{"comma", "A,B", true},
		{"equals", "A=true", true},
		{"space", "Credit Risk", true},
		{"unicode", "Größe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) error does not wrap ErrInvalidName: %v", tt.input, err)
			}
		})
	}
}

func TestValidateNames(t *testing.T) {
	if err := ValidateNames([]string{"Trav", "Fraud", "FP"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateNames(nil); err != nil {
		t.Errorf("nil slice should be valid: %v", err)
	}

	err := ValidateNames([]string{"Trav", "~IP", "A,B"})
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if !strings.Contains(err.Error(), "~IP") || !strings.Contains(err.Error(), "A,B") {
		t.Errorf("error should list every invalid name: %v", err)
	}
	if strings.Contains(err.Error(), "Trav") {
		t.Errorf("error should not list valid names: %v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	got, err := SanitizeName("  Fraud\t")
	if err != nil || got != "Fraud" {
		t.Errorf("SanitizeName = %q, %v; want Fraud", got, err)
	}
	if _, err := SanitizeName("   "); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName for blank input, got %v", err)
	}
}
