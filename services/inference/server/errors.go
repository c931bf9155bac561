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
	"context"
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianBayes/services/inference/elimination"
	"github.com/AleutianAI/AleutianBayes/services/inference/factor"
	"github.com/AleutianAI/AleutianBayes/services/inference/network"
)

var (
	// ErrNilRunner indicates New was given no runner.
	ErrNilRunner = errors.New("server: runner must not be nil")

	// ErrNilNetwork indicates New was given no network.
	ErrNilNetwork = errors.New("server: network must not be nil")
)

// errorMappings pairs sentinels with HTTP statuses and codes. The first
// match wins, so more specific sentinels come first.
var errorMappings = []struct {
	err    error
	status int
	code   string
}{
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
	{context.Canceled, http.StatusGatewayTimeout, "CANCELED"},
	{network.ErrUnknownName, http.StatusBadRequest, "UNKNOWN_VARIABLE"},
	{elimination.ErrUnknownVariable, http.StatusBadRequest, "UNKNOWN_VARIABLE"},
	{elimination.ErrIncompleteOrder, http.StatusBadRequest, "INCOMPLETE_ORDER"},
	{elimination.ErrQueryIsEvidence, http.StatusBadRequest, "QUERY_IS_EVIDENCE"},
	{network.ErrNoFactorsSelected, http.StatusBadRequest, "NO_FACTORS"},
	{network.ErrInvalidQuery, http.StatusBadRequest, "INVALID_QUERY"},
	{factor.ErrDuplicateVariable, http.StatusBadRequest, "DUPLICATE_VARIABLE"},
	{elimination.ErrNoFactors, http.StatusBadRequest, "NO_FACTORS"},
	{elimination.ErrNilFactor, http.StatusBadRequest, "INVALID_QUERY"},
	{factor.ErrNoVariables, http.StatusBadRequest, "INVALID_QUERY"},
	{factor.ErrVariableNotPresent, http.StatusBadRequest, "INVALID_QUERY"},
	{factor.ErrCardinality, http.StatusBadRequest, "INVALID_QUERY"},
	{elimination.ErrZeroProbability, http.StatusUnprocessableEntity, "ZERO_PROBABILITY"},
	{elimination.ErrFactorTooLarge, http.StatusUnprocessableEntity, "FACTOR_TOO_LARGE"},
	{factor.ErrTooManyVariables, http.StatusUnprocessableEntity, "FACTOR_TOO_LARGE"},
}

// classify maps an inference error to a status and code.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INFERENCE_FAILED"
}
