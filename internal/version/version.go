// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package version carries build metadata injected via ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release tag, set with -ldflags "-X ...version.Version=vX.Y.Z".
	Version = "v0.1.0-dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the one-line banner printed by `vodpipe version`.
func String() string {
	return fmt.Sprintf("vodpipe %s (commit: %s, built: %s, %s)", Version, Commit, Date, runtime.Version())
}
