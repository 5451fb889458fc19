/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version reports the build version.
package version

// Version is set at build time via ldflags:
//
//	-X github.com/KaliNikolova/dayplanner/internal/version.Version=X.Y.Z
var Version = "0.1.0"

