// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Penumbra - AC dimmer controller
//
// Runs the dimmer daemon and the co-processor diagnostics.

package main

import (
	"os"

	"github.com/Thermoquad/penumbra/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
