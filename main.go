// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Diablo - test stand protocol tool
//
// A CLI tool for monitoring, decoding and driving the Diablo engine test
// stand wire protocol over serial, WebSocket and UDP links.

package main

import (
	"os"

	"github.com/Thermoquad/diablo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
