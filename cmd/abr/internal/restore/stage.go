// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package restore

// Stage is a state of the restore workflow.
type Stage int

const (
	StageIdle Stage = iota
	StageRemnantCheck
	StageCatalogSelect
	StageStaging
	StageExtract
	StageHelperUp
	StageCopyIn
	StageCleanup
	StageLifecycleRestart
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageIdle:             "idle",
	StageRemnantCheck:     "remnant-check",
	StageCatalogSelect:    "catalog-select",
	StageStaging:          "stage",
	StageExtract:          "extract",
	StageHelperUp:         "helper-up",
	StageCopyIn:           "copy-in",
	StageCleanup:          "cleanup",
	StageLifecycleRestart: "lifecycle-restart",
	StageDone:             "done",
	StageFailed:           "failed",
}

// String returns the stage name used in logs, spans and metrics.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// NeedsRestart reports whether a restore that failed in stage s touched the
// runtime enough that the stack must be brought up again. Failures before
// the helper starts leave the runtime untouched.
func (s Stage) NeedsRestart() bool {
	return s >= StageHelperUp && s != StageFailed
}
