// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workflow sequences the backup and restore commands.
//
// The engine packages (stack, remnant, catalog, capture, restore) each own
// one concern. This package threads a run through them in order, talks to
// the operator through pkg/ux, and records the outcome as metrics and
// spans. Nothing here keeps state between runs: the consistency level, the
// remnant set and the catalog listing are values local to one Run call.
package workflow
