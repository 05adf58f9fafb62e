// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stack describes the managed multi-container stack and drives its
// lifecycle.
//
// A Stack value names the compose project, its install directory and the
// fixed registry of data volumes. Level maps a backup consistency level to
// the lifecycle transitions around capture, and Controller applies those
// transitions through a compose.Executor, reporting each one as a typed
// Result (OK, Benign or Fatal).
package stack
