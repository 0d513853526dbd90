/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of nightshift.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/nightshift/internal/version.Version=X.Y.Z
var Version = "0.3.0"

// Commit and BuildDate are set the same way.
var (
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String formats the full build description.
func String() string {
	return fmt.Sprintf("nightshift %s (commit %s, built %s, %s)", Version, Commit, BuildDate, runtime.Version())
}
