// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package factor

import "errors"

// Sentinel errors for the factor algebra.
//
// Structural errors are caller programming errors; they are returned
// wrapped with context and should be matched with errors.Is.
var (
	// ErrNoVariables indicates a factor was constructed without variables.
	ErrNoVariables = errors.New("factor must have at least one variable")

	// ErrDuplicateVariable indicates a variable list names the same variable twice.
	ErrDuplicateVariable = errors.New("duplicate variable")

	// ErrTooManyVariables indicates a table would exceed MaxVariables.
	ErrTooManyVariables = errors.New("too many variables")

	// ErrCardinality indicates a value vector does not match the variable count.
	ErrCardinality = errors.New("number of values does not match number of variables")

	// ErrIndexOutOfRange indicates a table index outside [0, 2^n).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrVariableNotPresent indicates an operation referenced an absent variable.
	ErrVariableNotPresent = errors.New("variable not present")

	// ErrUndefinedValue indicates a table slot was read before it was written.
	ErrUndefinedValue = errors.New("undefined table value")

	// ErrInvalidValue indicates an attempt to store NaN in a table.
	ErrInvalidValue = errors.New("invalid table value")

	// ErrZeroSum indicates normalization of a factor whose entries sum to zero.
	ErrZeroSum = errors.New("factor entries sum to zero")

	// ErrEmptyProduct indicates a product over an empty factor list.
	ErrEmptyProduct = errors.New("cannot compute the product of an empty list")

	// ErrInconsistentMerge indicates two assignments disagree on a shared variable.
	ErrInconsistentMerge = errors.New("assignments disagree on a shared variable")
)
