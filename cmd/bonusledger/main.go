// Bonusledger - Loyalty points from accounting exports.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"os"

	"github.com/opensource-finance/bonusledger/internal/cli"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cli.Version, cli.Commit, cli.BuildDate = Version, Commit, BuildDate

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
