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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func loadIn(t *testing.T, dir string, opts LoadOptions, env map[string]string) (*ABRConfig, error) {
	t.Helper()
	opts.LookupEnv = envMap(env)
	opts.Getwd = func() (string, error) { return dir, nil }
	return Load(opts)
}

func TestLoad_DefaultsMatchStockLayout(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadIn(t, dir, LoadOptions{}, nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Workdir)
	assert.Equal(t, filepath.Join(dir, "appwrite"), cfg.Stack.InstallDir)
	assert.Equal(t, filepath.Join(dir, "appwrite", "docker-compose.yml"), cfg.Stack.ComposeFile)
	assert.Equal(t, filepath.Join(dir, "appwrite", ".env"), cfg.Stack.EnvFile)
	assert.Equal(t, filepath.Join(dir, "backups"), cfg.Archive.Dir)
	assert.Equal(t, filepath.Join(dir, "backup.tar.gz"), cfg.Archive.StagingFile)
	assert.Equal(t, "/tmp", cfg.Archive.ExtractRoot)
	assert.Equal(t, "/tmp/backup", cfg.Archive.StagingDir)
	assert.Equal(t, "docker.io/offen/docker-volume-backup:latest", cfg.Helpers.CaptureImage)
	assert.Equal(t, "docker.io/library/alpine:latest", cfg.Helpers.RestoreImage)
	assert.Equal(t, "temp_restore_container", cfg.Helpers.RestoreContainer)
	assert.Equal(t, stack.DefaultVolumes, cfg.Stack.Volumes)
	assert.Equal(t, util.NewTimeoutConfig(), cfg.TimeoutConfig())
}

func TestLoad_DefaultStackMatchesStackDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadIn(t, dir, LoadOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, stack.Default(dir), cfg.StackSpec())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	doc := `
stack:
  install_dir: srv/appwrite
  volumes: [vol-a, vol-b]
archive:
  dir: /var/backups/abr
helpers:
  restore_image: alpine:3.20
timeouts:
  compose: 20m
restore:
  keep_staging_on_failure: true
metrics:
  dir: metrics
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte(doc), 0600))

	cfg, err := loadIn(t, dir, LoadOptions{}, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "srv", "appwrite"), cfg.Stack.InstallDir)
	assert.Equal(t, filepath.Join(dir, "srv", "appwrite", "docker-compose.yml"), cfg.Stack.ComposeFile)
	assert.Equal(t, []string{"vol-a", "vol-b"}, cfg.Stack.Volumes)
	assert.Equal(t, "/var/backups/abr", cfg.Archive.Dir)
	assert.Equal(t, "docker.io/library/alpine:3.20", cfg.Helpers.RestoreImage)
	assert.Equal(t, 20*time.Minute, cfg.Timeouts.Compose)
	assert.True(t, cfg.Restore.KeepStagingOnFailure)
	assert.Equal(t, filepath.Join(dir, "metrics"), cfg.Metrics.Dir)

	rc := cfg.RestoreConfig()
	assert.True(t, rc.KeepStagingOnFailure)
	assert.Equal(t, 20*time.Minute, rc.Timeouts.Compose)
	assert.Equal(t, cfg.Archive.Dir, cfg.CaptureConfig().ArchiveDir)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("stack:\n  volumez: [a]\n"), 0600))
	_, err := loadIn(t, dir, LoadOptions{}, nil)
	assert.ErrorContains(t, err, "volumez")
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), nil, 0600))
	cfg, err := loadIn(t, dir, LoadOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "appwrite", cfg.Stack.Project)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	_, err := loadIn(t, dir, LoadOptions{Path: "nope.yaml"}, nil)
	assert.ErrorContains(t, err, "nope.yaml")
}

func TestLoad_EnvOverridesFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("log:\n  level: debug\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFileName),
		[]byte("ABR_LOG_LEVEL=warn\nABR_METRICS_DIR=from-dotenv\nABR_KEEP_STAGING_ON_FAILURE=true\n"), 0600))

	cfg, err := loadIn(t, dir, LoadOptions{}, map[string]string{
		"ABR_LOG_LEVEL":        "error",
		"ABR_VOLUMES":          "one, two ,,three",
		"ABR_TIMEOUT_TRANSFER": "2h",
	})
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dir, "from-dotenv"), cfg.Metrics.Dir)
	assert.True(t, cfg.Restore.KeepStagingOnFailure)
	assert.Equal(t, []string{"one", "two", "three"}, cfg.Stack.Volumes)
	assert.Equal(t, 2*time.Hour, cfg.Timeouts.Transfer)
}

func TestLoad_StagingDirMustBeArchiveTree(t *testing.T) {
	dir := t.TempDir()
	for _, staging := range []string{"restore", "nested/backup"} {
		_, err := loadIn(t, dir, LoadOptions{}, map[string]string{"ABR_STAGING_DIR": staging})
		require.ErrorIs(t, err, ErrInvalidConfig, staging)
		assert.ErrorContains(t, err, "archive.staging_dir", staging)
	}

	cfg, err := loadIn(t, dir, LoadOptions{}, map[string]string{"ABR_EXTRACT_ROOT": "extract", "ABR_STAGING_DIR": "backup"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "extract", "backup"), cfg.Archive.StagingDir)

	cfg, err = loadIn(t, dir, LoadOptions{}, map[string]string{"ABR_EXTRACT_ROOT": "extract"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "extract", "backup"), cfg.Archive.StagingDir)
}

func TestLoad_BadEnvValues(t *testing.T) {
	dir := t.TempDir()
	_, err := loadIn(t, dir, LoadOptions{}, map[string]string{
		"ABR_LOG_JSON":        "maybe",
		"ABR_TIMEOUT_PROCESS": "soon",
	})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "ABR_LOG_JSON")
	assert.ErrorContains(t, err, "ABR_TIMEOUT_PROCESS")
}

func TestLoad_WorkdirPrecedence(t *testing.T) {
	cwd := t.TempDir()
	flagDir := t.TempDir()

	cfg, err := loadIn(t, cwd, LoadOptions{Workdir: flagDir}, map[string]string{"ABR_WORKDIR": "/elsewhere"})
	require.NoError(t, err)
	assert.Equal(t, flagDir, cfg.Workdir)
	assert.Equal(t, filepath.Join(flagDir, "appwrite"), cfg.Stack.InstallDir)

	cfg, err = loadIn(t, cwd, LoadOptions{}, map[string]string{"ABR_WORKDIR": "sub"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "sub"), cfg.Workdir)

	require.NoError(t, os.WriteFile(filepath.Join(cwd, DefaultFileName), []byte("workdir: /srv\n"), 0600))
	cfg, err = loadIn(t, cwd, LoadOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv", cfg.Workdir)
	assert.Equal(t, "/srv/backups", cfg.Archive.Dir)
}

func TestValidate(t *testing.T) {
	base := func() ABRConfig {
		c := DefaultConfig()
		c.Workdir = "/work"
		c.resolvePaths()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*ABRConfig)
		wantErr string
	}{
		{"valid", func(*ABRConfig) {}, ""},
		{"no volumes", func(c *ABRConfig) { c.Stack.Volumes = nil }, "at least one volume"},
		{"duplicate volumes", func(c *ABRConfig) { c.Stack.Volumes = []string{"a", "b", "a"} }, "duplicates: a"},
		{"blank volume", func(c *ABRConfig) { c.Stack.Volumes = []string{"a", " "} }, "empty name"},
		{"bad image", func(c *ABRConfig) { c.Helpers.CaptureImage = "Not A Ref" }, "helpers.capture_image"},
		{"empty image", func(c *ABRConfig) { c.Helpers.RestoreImage = "" }, "helpers.restore_image"},
		{"bad container", func(c *ABRConfig) { c.Helpers.RestoreContainer = "-x" }, "restore_container"},
		{"no project", func(c *ABRConfig) { c.Stack.Project = "" }, "stack.project"},
		{"bad project", func(c *ABRConfig) { c.Stack.Project = "app.write" }, "stack.project"},
		{"bad volume name", func(c *ABRConfig) { c.Stack.Volumes = []string{"appwrite_appwrite-redis", "../etc"} }, "stack.volumes"},
		{"staging outside root", func(c *ABRConfig) { c.Archive.StagingDir = "/var/x" }, "staging_dir"},
		{"staging is root", func(c *ABRConfig) { c.Archive.StagingDir = c.Archive.ExtractRoot }, "staging_dir"},
		{"staging not archive tree", func(c *ABRConfig) { c.Archive.StagingDir = "/tmp/restore" }, "must be /tmp/backup"},
		{"staging nested", func(c *ABRConfig) { c.Archive.StagingDir = "/tmp/nested/backup" }, "must be /tmp/backup"},
		{"staging follows extract root", func(c *ABRConfig) {
			c.Archive.ExtractRoot = "/var/abr"
			c.Archive.StagingDir = "/var/abr/backup/"
		}, ""},
		{"bad log level", func(c *ABRConfig) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_NormalizesProject(t *testing.T) {
	c := DefaultConfig()
	c.Workdir = "/work"
	c.resolvePaths()
	c.Stack.Project = " AppWrite "
	require.NoError(t, c.Validate())
	assert.Equal(t, "appwrite", c.Stack.Project)
}

func TestNormalizeImage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"alpine", "docker.io/library/alpine:latest"},
		{"alpine:3.20", "docker.io/library/alpine:3.20"},
		{"offen/docker-volume-backup:v2", "docker.io/offen/docker-volume-backup:v2"},
		{"ghcr.io/acme/helper", "ghcr.io/acme/helper:latest"},
	}
	for _, tt := range tests {
		got, err := NormalizeImage(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	_, err := NormalizeImage("UPPER/case")
	assert.Error(t, err)
}

func TestTracingSettings(t *testing.T) {
	c := DefaultConfig()
	c.Tracing.File = "/tmp/abr-trace.json"
	got := c.TracingSettings("1.2.3")
	assert.Equal(t, "abr", got.ServiceName)
	assert.Equal(t, "1.2.3", got.ServiceVersion)
	assert.Equal(t, "/tmp/abr-trace.json", got.File)
}
