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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/abr/cmd/abr/internal/catalog"
	"github.com/AleutianAI/abr/cmd/abr/internal/restore"
	"github.com/AleutianAI/abr/pkg/logging"
	"github.com/AleutianAI/abr/pkg/validation"
)

const (
	// DefaultFileName is looked up in the workdir when --config is not set.
	DefaultFileName = "abr.yaml"

	// DotEnvFileName is read from the workdir for ABR_* overrides.
	DotEnvFileName = ".env"

	// EnvPrefix prefixes every override variable.
	EnvPrefix = "ABR_"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadOptions carries the command-line inputs to Load.
type LoadOptions struct {
	// Path is the --config flag. An explicit path must exist.
	Path string

	// Workdir is the --workdir flag. Overrides ABR_WORKDIR and the file.
	Workdir string

	// LookupEnv reads process environment. Default: os.LookupEnv
	LookupEnv func(string) (string, bool)

	// Getwd returns the current directory. Default: os.Getwd
	Getwd func() (string, error)
}

// Load builds the effective configuration.
//
// # Description
//
// Precedence, lowest first: DefaultConfig, abr.yaml, the workdir .env,
// process ABR_* variables, the --workdir flag. The .env file is read with
// godotenv without touching the process environment; real environment
// variables win over it. A missing default abr.yaml is not an error, a
// missing explicit --config is.
//
// After merging, relative paths are resolved against the workdir, helper
// images are normalized, and the result is validated.
//
// # Outputs
//
//   - *ABRConfig: Config with absolute paths and normalized images.
//   - error: Read, parse or validation failure (validation wraps ErrInvalidConfig).
func Load(opts LoadOptions) (*ABRConfig, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	getwd := opts.Getwd
	if getwd == nil {
		getwd = os.Getwd
	}

	cwd, err := getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve current directory: %w", err)
	}

	// The workdir must be known before .env and abr.yaml can be found.
	workdir := opts.Workdir
	if workdir == "" {
		if v, ok := lookup(EnvPrefix + "WORKDIR"); ok && v != "" {
			workdir = v
		}
	}
	if workdir == "" {
		workdir = cwd
	}
	workdir = absFrom(cwd, workdir)

	dotenv, err := readDotEnv(filepath.Join(workdir, DotEnvFileName))
	if err != nil {
		return nil, err
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	cfg := DefaultConfig()

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		if v, ok := env(EnvPrefix + "CONFIG"); ok && v != "" {
			path, explicit = v, true
		} else {
			path = filepath.Join(workdir, DefaultFileName)
		}
	}
	path = absFrom(workdir, path)

	if err := decodeFile(path, explicit, &cfg); err != nil {
		return nil, err
	}

	// Workdir precedence: flag, then env (both folded above), then file.
	if opts.Workdir == "" {
		if _, ok := env(EnvPrefix + "WORKDIR"); !ok && cfg.Workdir != "" {
			workdir = absFrom(workdir, cfg.Workdir)
		}
	}
	cfg.Workdir = workdir

	if err := applyEnv(&cfg, env); err != nil {
		return nil, err
	}

	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err == nil {
		return values, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	return nil, fmt.Errorf("read %s: %w", path, err)
}

func decodeFile(path string, explicit bool, cfg *ABRConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read the config file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return nil
}

// applyEnv folds ABR_* overrides into cfg.
func applyEnv(cfg *ABRConfig, env func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := env(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v, ok := env(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := env(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("PROJECT", &cfg.Stack.Project)
	str("INSTALL_DIR", &cfg.Stack.InstallDir)
	str("ARCHIVE_DIR", &cfg.Archive.Dir)
	str("STAGING_FILE", &cfg.Archive.StagingFile)
	str("EXTRACT_ROOT", &cfg.Archive.ExtractRoot)
	str("STAGING_DIR", &cfg.Archive.StagingDir)
	str("CAPTURE_IMAGE", &cfg.Helpers.CaptureImage)
	str("RESTORE_IMAGE", &cfg.Helpers.RestoreImage)
	str("RESTORE_CONTAINER", &cfg.Helpers.RestoreContainer)
	str("METRICS_DIR", &cfg.Metrics.Dir)
	str("TRACING_FILE", &cfg.Tracing.File)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_DIR", &cfg.Log.Dir)
	boolean("LOG_JSON", &cfg.Log.JSON)
	boolean("KEEP_STAGING_ON_FAILURE", &cfg.Restore.KeepStagingOnFailure)
	duration("TIMEOUT_PROCESS", &cfg.Timeouts.Process)
	duration("TIMEOUT_COMPOSE", &cfg.Timeouts.Compose)
	duration("TIMEOUT_TRANSFER", &cfg.Timeouts.Transfer)

	if v, ok := env(EnvPrefix + "VOLUMES"); ok && v != "" {
		cfg.Stack.Volumes = lo.Compact(lo.Map(strings.Split(v, ","), func(s string, _ int) string {
			return strings.TrimSpace(s)
		}))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// resolvePaths anchors relative paths: stack and archive paths against
// Workdir, compose and env files against the install dir.
func (c *ABRConfig) resolvePaths() {
	c.Stack.InstallDir = absFrom(c.Workdir, c.Stack.InstallDir)
	c.Stack.ComposeFile = absFrom(c.Stack.InstallDir, c.Stack.ComposeFile)
	c.Stack.EnvFile = absFrom(c.Stack.InstallDir, c.Stack.EnvFile)

	c.Archive.Dir = absFrom(c.Workdir, c.Archive.Dir)
	c.Archive.StagingFile = absFrom(c.Workdir, c.Archive.StagingFile)
	c.Archive.ExtractRoot = absFrom(c.Workdir, c.Archive.ExtractRoot)
	if c.Archive.StagingDir == "" {
		c.Archive.StagingDir = filepath.Join(c.Archive.ExtractRoot, catalog.TreeRoot)
	} else {
		c.Archive.StagingDir = absFrom(c.Archive.ExtractRoot, c.Archive.StagingDir)
	}

	if c.Metrics.Dir != "" {
		c.Metrics.Dir = absFrom(c.Workdir, c.Metrics.Dir)
	}
	if c.Tracing.File != "" {
		c.Tracing.File = absFrom(c.Workdir, c.Tracing.File)
	}
	if c.Log.Dir != "" && !strings.HasPrefix(c.Log.Dir, "~") {
		c.Log.Dir = absFrom(c.Workdir, c.Log.Dir)
	}
}

// Validate checks the merged config and normalizes helper images in place.
func (c *ABRConfig) Validate() error {
	var errs []error

	if project, err := validation.SanitizeProjectName(c.Stack.Project); err != nil {
		errs = append(errs, fmt.Errorf("stack.project: %w", err))
	} else {
		c.Stack.Project = project
	}
	if c.Stack.NameFilter == "" {
		errs = append(errs, errors.New("stack.name_filter is required"))
	}
	if len(c.Stack.Volumes) == 0 {
		errs = append(errs, errors.New("stack.volumes must list at least one volume"))
	}
	blank, named := lo.FilterReject(c.Stack.Volumes, func(v string, _ int) bool { return strings.TrimSpace(v) == "" })
	if len(blank) > 0 {
		errs = append(errs, errors.New("stack.volumes contains an empty name"))
	}
	if err := validation.ValidateObjectNames("volume", named); err != nil {
		errs = append(errs, fmt.Errorf("stack.volumes: %w", err))
	}
	if dups := lo.FindDuplicates(c.Stack.Volumes); len(dups) > 0 {
		errs = append(errs, fmt.Errorf("stack.volumes has duplicates: %s", strings.Join(dups, ", ")))
	}

	for _, img := range []struct {
		key string
		val *string
	}{
		{"helpers.capture_image", &c.Helpers.CaptureImage},
		{"helpers.restore_image", &c.Helpers.RestoreImage},
	} {
		normalized, err := NormalizeImage(*img.val)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", img.key, err))
			continue
		}
		*img.val = normalized
	}

	if err := validation.ValidateObjectName("container", c.Helpers.RestoreContainer); err != nil {
		errs = append(errs, fmt.Errorf("helpers.restore_container: %w", err))
	}

	if c.Archive.StagingFile == c.Archive.Dir {
		errs = append(errs, errors.New("archive.staging_file must differ from archive.dir"))
	}
	if err := restore.CheckLayout(c.Archive.ExtractRoot, c.Archive.StagingDir); err != nil {
		errs = append(errs, fmt.Errorf("archive.staging_dir: %w", err))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// NormalizeImage returns the fully qualified, tagged form of an image
// reference: "alpine" becomes "docker.io/library/alpine:latest".
func NormalizeImage(image string) (string, error) {
	if strings.TrimSpace(image) == "" {
		return "", errors.New("image is required")
	}
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	return reference.TagNameOnly(named).String(), nil
}

func absFrom(base, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
