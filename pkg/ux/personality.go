// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines the richness of CLI output
type PersonalityLevel string

const (
	// PersonalityStandard enables colors, icons, and boxes
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons and basic formatting only
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain text suitable for scripting and parsing
	PersonalityMachine PersonalityLevel = "machine"
)

// ParsePersonalityLevel converts a string to PersonalityLevel.
// Unknown values map to PersonalityStandard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q", "plain":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// DetectPersonality picks a level for output written to w.
//
// Description:
//
//	ALEUTIAN_PERSONALITY wins when set. Otherwise NO_COLOR or a writer
//	that is not a terminal selects PersonalityMachine, and a terminal
//	selects PersonalityStandard.
//
// Inputs:
//   - w: The destination. Only *os.File values can be terminals.
//
// Outputs:
//   - PersonalityLevel: The level to use.
func DetectPersonality(w io.Writer) PersonalityLevel {
	if env := os.Getenv("ALEUTIAN_PERSONALITY"); env != "" {
		return ParsePersonalityLevel(env)
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return PersonalityMachine
	}
	if !isTerminal(w) {
		return PersonalityMachine
	}
	return PersonalityStandard
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
