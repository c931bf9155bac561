// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package factor implements boolean variables, assignments and dense factor
// tables with the algebra needed for exact inference.
//
// A Factor over n variables stores 2^n real values. The assignment with
// value vector (b0, b1, ..., bn-1) lives at index sum(bi * 2^i), so the first
// variable is the least significant bit. All operations (Restrict, SumOut,
// Observe, Normalize, Multiply, Reorder) return new factors and never mutate
// their inputs.
//
// Observed values are passed explicitly as an *Evidence mapping rather than
// stored on variables, so any number of queries may share one set of factors.
package factor
