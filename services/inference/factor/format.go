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

import (
	"strconv"
	"strings"
)

// String renders the factor signature, e.g. "f(A,B)" or "f(-)" for a scalar.
func (f *Factor) String() string {
	if f == nil {
		return "f(nil)"
	}
	if len(f.vars) == 0 {
		return "f(-)"
	}
	return "f(" + joinNames(f.vars) + ")"
}

// Table renders one line per entry in index order.
//
// Description:
//
//	Each line reads "f( A,~B) = 0.25". True literals are padded so columns
//	line up. Unwritten slots render as "?".
func (f *Factor) Table() string {
	var b strings.Builder
	for i := range f.values {
		b.WriteString("f(")
		if len(f.vars) == 0 {
			b.WriteString("-")
		} else {
			b.WriteString(decode(f.vars, i).format(true))
		}
		b.WriteString(") = ")
		if f.written != nil && !f.written[i] {
			b.WriteString("?")
		} else {
			b.WriteString(strconv.FormatFloat(f.values[i], 'g', -1, 64))
		}
		b.WriteString("\n")
	}
	return b.String()
}
