// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab
//
// Cardscope - SD Card Bus Analyzer
//
// A CLI tool for decoding SD card bus traffic from logic analyzer
// captures in human-readable format.

package main

import (
	"os"

	"github.com/tracelab/cardscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
