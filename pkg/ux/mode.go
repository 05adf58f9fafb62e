// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ModeEnvVar overrides the detected output mode.
const ModeEnvVar = "ABR_OUTPUT"

// Mode controls how rich the console output is.
type Mode string

const (
	// ModeFull enables colors, icons, boxes and the banner.
	ModeFull Mode = "full"

	// ModeMinimal keeps icons but drops boxes, the banner and spinners.
	ModeMinimal Mode = "minimal"

	// ModeMachine prints plain prefixed lines and tab-separated tables.
	ModeMachine Mode = "machine"
)

// Modes lists the accepted output modes in display order.
func Modes() []Mode {
	return []Mode{ModeFull, ModeMinimal, ModeMachine}
}

// ParseMode converts a flag or environment value to a Mode.
//
// # Description
//
// Matching is case-insensitive and accepts the short forms used by the
// --output flag ("f", "min", "m", "quiet", "q"). An empty string is an
// error so callers can tell "unset" apart from a typo.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return ModeFull, nil
	case "minimal", "min", "m":
		return ModeMinimal, nil
	case "machine", "quiet", "q":
		return ModeMachine, nil
	default:
		return "", fmt.Errorf("unknown output mode %q (want full, minimal or machine)", s)
	}
}

// DetectMode picks the mode for a run.
//
// # Description
//
// An explicit value (the --output flag) wins, then ABR_OUTPUT, then the
// terminal check: a stdout that is not a TTY yields ModeMachine.
//
// # Inputs
//
//   - explicit: Value of the --output flag, may be empty.
//   - out: The file the console writes to, usually os.Stdout.
//
// # Outputs
//
//   - Mode: The resolved mode.
//   - error: Non-nil when explicit or ABR_OUTPUT holds an unknown value.
func DetectMode(explicit string, out *os.File) (Mode, error) {
	if explicit != "" {
		return ParseMode(explicit)
	}
	if env := os.Getenv(ModeEnvVar); env != "" {
		return ParseMode(env)
	}
	if out == nil || !IsTerminal(out.Fd()) {
		return ModeMachine, nil
	}
	return ModeFull, nil
}

// IsTerminal reports whether fd refers to a terminal, including Cygwin ptys.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Interactive reports whether prompts may be shown: stdin must be a
// terminal and the mode must not be machine.
func Interactive(mode Mode, in *os.File) bool {
	if mode == ModeMachine || in == nil {
		return false
	}
	return IsTerminal(in.Fd())
}
