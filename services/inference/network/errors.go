// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package network

import "errors"

var (
	// ErrInvalidDefinition indicates a network definition failed validation.
	ErrInvalidDefinition = errors.New("invalid network definition")

	// ErrDefinitionTooLarge indicates a definition file exceeds MaxDefinitionSize.
	ErrDefinitionTooLarge = errors.New("network definition too large")

	// ErrUnknownName indicates a name that is not a network variable.
	ErrUnknownName = errors.New("unknown variable name")

	// ErrUnknownFactor indicates a name that is not a network factor.
	ErrUnknownFactor = errors.New("unknown factor")

	// ErrNotNormalized indicates a CPT row that does not sum to one.
	ErrNotNormalized = errors.New("conditional distribution does not sum to 1")

	// ErrInvalidQuery indicates a query spec failed validation.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNoFactorsSelected indicates a query's exclusions removed every factor.
	ErrNoFactorsSelected = errors.New("query excludes every factor")
)
