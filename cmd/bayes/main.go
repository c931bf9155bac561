// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command bayes answers probability and expected-utility queries on boolean
// Bayesian networks, from the command line or over HTTP.
package main

import (
	"context"
	"os"

	"github.com/AleutianAI/AleutianBayes/pkg/ux"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		ux.NewPrinter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
