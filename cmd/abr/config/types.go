// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"

	"github.com/AleutianAI/abr/cmd/abr/internal/capture"
	"github.com/AleutianAI/abr/cmd/abr/internal/restore"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/telemetry"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

// ABRConfig is the abr.yaml document. Relative paths resolve against
// Workdir; Load returns a config whose paths are all absolute.
type ABRConfig struct {
	// Workdir anchors every relative path. Default: the current directory.
	Workdir string `yaml:"workdir"`

	Stack    StackConfig    `yaml:"stack"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Helpers  HelperConfig   `yaml:"helpers"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Restore  RestoreConfig  `yaml:"restore"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Log      LogConfig      `yaml:"log"`
}

type StackConfig struct {
	Project        string   `yaml:"project"`         // compose project, e.g. appwrite
	InstallDir     string   `yaml:"install_dir"`     // holds docker-compose.yml and .env
	ComposeFile    string   `yaml:"compose_file"`    // relative to install_dir
	EnvFile        string   `yaml:"env_file"`        // relative to install_dir
	NameFilter     string   `yaml:"name_filter"`     // docker name= filter for remnants
	ImageNamespace string   `yaml:"image_namespace"` // appwrite -> reference=appwrite/*
	Volumes        []string `yaml:"volumes"`
}

type ArchiveConfig struct {
	Dir         string `yaml:"dir"`          // catalog folder
	StagingFile string `yaml:"staging_file"` // transient copy of the selected archive
	ExtractRoot string `yaml:"extract_root"`
	StagingDir  string `yaml:"staging_dir"` // must be <extract_root>/backup
}

type HelperConfig struct {
	CaptureImage     string `yaml:"capture_image"`
	RestoreImage     string `yaml:"restore_image"`
	RestoreContainer string `yaml:"restore_container"`
}

// TimeoutsConfig values are Go durations ("90s", "15m", "6h").
type TimeoutsConfig struct {
	Process  time.Duration `yaml:"process"`
	Compose  time.Duration `yaml:"compose"`
	Transfer time.Duration `yaml:"transfer"`
}

type RestoreConfig struct {
	KeepStagingOnFailure bool `yaml:"keep_staging_on_failure"`
}

type MetricsConfig struct {
	// Dir receives abr_<workflow>.prom textfiles. Empty disables metrics.
	Dir string `yaml:"dir"`
}

type TracingConfig struct {
	// File receives JSON spans. Empty disables tracing.
	File string `yaml:"file"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig reproduces the layout of a stock Appwrite install:
// ./appwrite, ./backups, ./backup.tar.gz and /tmp/backup.
func DefaultConfig() ABRConfig {
	timeouts := util.NewTimeoutConfig()
	return ABRConfig{
		Stack: StackConfig{
			Project:        "appwrite",
			InstallDir:     "appwrite",
			ComposeFile:    "docker-compose.yml",
			EnvFile:        ".env",
			NameFilter:     "appwrite",
			ImageNamespace: "appwrite",
			Volumes:        append([]string(nil), stack.DefaultVolumes...),
		},
		Archive: ArchiveConfig{
			Dir:         "backups",
			StagingFile: "backup.tar.gz",
			ExtractRoot: "/tmp",
		},
		Helpers: HelperConfig{
			CaptureImage:     capture.DefaultHelperImage,
			RestoreImage:     restore.DefaultHelperImage,
			RestoreContainer: restore.DefaultHelperName,
		},
		Timeouts: TimeoutsConfig{
			Process:  timeouts.Process,
			Compose:  timeouts.Compose,
			Transfer: timeouts.Transfer,
		},
		Log: LogConfig{Level: "info"},
	}
}

// StackSpec returns the managed stack described by the config.
func (c ABRConfig) StackSpec() stack.Stack {
	return stack.Stack{
		Project:        c.Stack.Project,
		InstallDir:     c.Stack.InstallDir,
		ComposeFile:    c.Stack.ComposeFile,
		EnvFile:        c.Stack.EnvFile,
		NameFilter:     c.Stack.NameFilter,
		ImageNamespace: c.Stack.ImageNamespace,
		Volumes:        append([]string(nil), c.Stack.Volumes...),
	}
}

// TimeoutConfig returns the validated per-category deadlines.
func (c ABRConfig) TimeoutConfig() util.TimeoutConfig {
	return util.TimeoutConfig{
		Process:  c.Timeouts.Process,
		Compose:  c.Timeouts.Compose,
		Transfer: c.Timeouts.Transfer,
	}.Validated()
}

// CaptureConfig returns the capture pipeline settings.
func (c ABRConfig) CaptureConfig() capture.Config {
	return capture.Config{
		Stack:       c.StackSpec(),
		ArchiveDir:  c.Archive.Dir,
		HelperImage: c.Helpers.CaptureImage,
	}
}

// RestoreConfig returns the restore pipeline settings.
func (c ABRConfig) RestoreConfig() restore.Config {
	return restore.Config{
		Stack:                c.StackSpec(),
		StagingFile:          c.Archive.StagingFile,
		ExtractRoot:          c.Archive.ExtractRoot,
		StagingDir:           c.Archive.StagingDir,
		HelperImage:          c.Helpers.RestoreImage,
		HelperName:           c.Helpers.RestoreContainer,
		KeepStagingOnFailure: c.Restore.KeepStagingOnFailure,
		Timeouts:             c.TimeoutConfig(),
	}
}

// TracingSettings returns the trace exporter settings for version.
func (c ABRConfig) TracingSettings(version string) telemetry.TracingConfig {
	return telemetry.TracingConfig{
		File:           c.Tracing.File,
		ServiceName:    "abr",
		ServiceVersion: version,
	}
}
