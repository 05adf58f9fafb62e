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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

// ErrNotInstalled is returned when the stack's compose file or .env is absent.
var ErrNotInstalled = errors.New("stack installation not found")

// DefaultVolumes is the volume registry of an Appwrite installation.
var DefaultVolumes = []string{
	"appwrite_appwrite-redis",
	"appwrite_appwrite-cache",
	"appwrite_appwrite-builds",
	"appwrite_appwrite-config",
	"appwrite_appwrite-executor",
	"appwrite_appwrite-mariadb",
	"appwrite_appwrite-uploads",
	"appwrite_appwrite-functions",
	"appwrite_appwrite-certificates",
}

// Stack identifies the managed stack on this host.
type Stack struct {
	// Project is the compose project name, used for the project label.
	Project string

	// InstallDir holds the compose file and .env.
	InstallDir string

	// ComposeFile and EnvFile are absolute paths inside InstallDir.
	ComposeFile string
	EnvFile     string

	// NameFilter matches the stack's containers and volumes by name.
	NameFilter string

	// ImageNamespace matches the stack's images, e.g. "appwrite" for appwrite/*.
	ImageNamespace string

	// Volumes is the immutable registry of managed volumes.
	Volumes []string
}

// Default returns the Appwrite stack installed under workDir.
func Default(workDir string) Stack {
	installDir := filepath.Join(workDir, "appwrite")
	return Stack{
		Project:        "appwrite",
		InstallDir:     installDir,
		ComposeFile:    filepath.Join(installDir, "docker-compose.yml"),
		EnvFile:        filepath.Join(installDir, ".env"),
		NameFilter:     "appwrite",
		ImageNamespace: "appwrite",
		Volumes:        append([]string(nil), DefaultVolumes...),
	}
}

// Validate checks the fields every workflow relies on.
func (s Stack) Validate() error {
	if s.Project == "" {
		return errors.New("stack project is required")
	}
	if s.InstallDir == "" {
		return errors.New("stack install dir is required")
	}
	if len(s.Volumes) == 0 {
		return errors.New("stack has no volumes")
	}
	if dup := lo.FindDuplicates(s.Volumes); len(dup) > 0 {
		return fmt.Errorf("duplicate stack volumes: %v", dup)
	}
	if lo.Contains(s.Volumes, "") {
		return errors.New("stack volume names must not be empty")
	}
	return nil
}

// NameFilterArg is the docker filter matching container and volume names.
func (s Stack) NameFilterArg() string {
	return "name=" + s.NameFilter
}

// ProjectLabelFilterArg is the docker filter matching the project's containers.
func (s Stack) ProjectLabelFilterArg() string {
	return "label=com.docker.compose.project=" + s.Project
}

// ImageFilterArg is the docker filter matching the stack's images.
func (s Stack) ImageFilterArg() string {
	return "reference=" + s.ImageNamespace + "/*"
}

// InstallInfo is what CheckInstall learned about an installation.
type InstallInfo struct {
	ComposeFile string
	EnvFile     string

	// Env holds the parsed .env.
	Env map[string]string
}

// AppEnv returns _APP_ENV from the stack's .env, if set.
func (i *InstallInfo) AppEnv() string {
	return i.Env["_APP_ENV"]
}

// Domain returns _APP_DOMAIN from the stack's .env, if set.
func (i *InstallInfo) Domain() string {
	return i.Env["_APP_DOMAIN"]
}

// CheckInstall verifies that the stack is installed.
//
// # Outputs
//
//   - *InstallInfo: the parsed installation
//   - error: a precondition error wrapping ErrNotInstalled when the compose
//     file or .env is missing, or when .env cannot be parsed
func CheckInstall(s Stack) (*InstallInfo, error) {
	for _, path := range []string{s.ComposeFile, s.EnvFile} {
		info, err := os.Stat(path)
		if err != nil {
			return nil, util.Precondition("install-check", fmt.Errorf("%w: %s: %v", ErrNotInstalled, path, err))
		}
		if info.IsDir() {
			return nil, util.Precondition("install-check", fmt.Errorf("%w: %s is a directory", ErrNotInstalled, path))
		}
	}

	env, err := godotenv.Read(s.EnvFile)
	if err != nil {
		return nil, util.Precondition("install-check", fmt.Errorf("%w: cannot parse %s: %v", ErrNotInstalled, s.EnvFile, err))
	}

	return &InstallInfo{
		ComposeFile: s.ComposeFile,
		EnvFile:     s.EnvFile,
		Env:         env,
	}, nil
}
