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

import "errors"

// Sentinel errors for the elimination engine.
var (
	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNoFactors indicates a query over an empty factor list.
	ErrNoFactors = errors.New("no factors to query")

	// ErrNilFactor indicates the factor list contains nil.
	ErrNilFactor = errors.New("factor list contains nil")

	// ErrQueryIsEvidence indicates a query variable is also bound as evidence.
	ErrQueryIsEvidence = errors.New("query variable is bound as evidence")

	// ErrUnknownVariable indicates a query variable no factor mentions.
	ErrUnknownVariable = errors.New("query variable not in any factor")

	// ErrIncompleteOrder indicates the elimination order misses variables
	// that are neither queried nor observed.
	ErrIncompleteOrder = errors.New("elimination order is incomplete")

	// ErrFactorTooLarge indicates an intermediate product exceeds
	// Config.MaxFactorVariables.
	ErrFactorTooLarge = errors.New("intermediate factor too large")

	// ErrZeroProbability indicates normalization failed because the evidence
	// has probability zero under the model.
	ErrZeroProbability = errors.New("evidence has zero probability")

	// ErrUnknownHeuristic indicates an unrecognized ordering heuristic name.
	ErrUnknownHeuristic = errors.New("unknown ordering heuristic")

	// ErrNotDecision indicates Decide was given a factor that is not over
	// exactly the decision variable.
	ErrNotDecision = errors.New("factor is not over the decision variable alone")

	// ErrInvalidConfig indicates an engine configuration failed validation.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)
