// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stack

import (
	"fmt"
	"strings"
)

// Level is a backup consistency level.
type Level int

const (
	// Hot captures while the stack runs.
	Hot Level = iota + 1

	// SemiCold pauses the stack around capture.
	SemiCold

	// Cold stops the stack around capture.
	Cold
)

// Levels lists every level in prompt order.
func Levels() []Level {
	return []Level{Hot, SemiCold, Cold}
}

// String returns the flag value for l.
func (l Level) String() string {
	switch l {
	case Hot:
		return "hot"
	case SemiCold:
		return "semi-cold"
	case Cold:
		return "cold"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Description is the prompt label for l.
func (l Level) Description() string {
	switch l {
	case Hot:
		return "Hot backup (stack keeps running, lowest consistency)"
	case SemiCold:
		return "Semi-cold backup (stack paused during capture)"
	case Cold:
		return "Cold backup (stack stopped during capture, full consistency)"
	default:
		return l.String()
	}
}

// ParseLevel accepts "hot", "semi-cold", "cold" and the "-backup" suffixed
// names written by earlier tooling.
func ParseLevel(s string) (Level, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "-backup")
	switch name {
	case "hot":
		return Hot, nil
	case "semi-cold", "semicold", "semi_cold":
		return SemiCold, nil
	case "cold":
		return Cold, nil
	}
	return 0, fmt.Errorf("unknown backup level %q (want hot, semi-cold or cold)", s)
}

// Transition is a lifecycle change of the stack.
type Transition int

const (
	None Transition = iota
	Pause
	Resume
	Stop
	Restart
)

// String returns the transition name used in logs and spans.
func (t Transition) String() string {
	switch t {
	case None:
		return "none"
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case Stop:
		return "stop"
	case Restart:
		return "restart"
	default:
		return fmt.Sprintf("transition(%d)", int(t))
	}
}

// Transitions returns the transitions applied before and after capture.
func (l Level) Transitions() (pre, post Transition) {
	switch l {
	case SemiCold:
		return Pause, Resume
	case Cold:
		return Stop, Restart
	default:
		return None, None
	}
}
