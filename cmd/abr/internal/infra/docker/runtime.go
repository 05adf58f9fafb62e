// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package docker adapts the docker CLI to the operations the backup and
// restore engine needs: availability probing, name/label/reference
// queries, removals, disposable helper containers and file copies.
package docker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/AleutianAI/abr/cmd/abr/internal/infra/process"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

var (
	// ErrNotInstalled is returned by Info when the docker binary is missing.
	ErrNotInstalled = errors.New("docker is not installed on this system")

	// ErrDaemonUnavailable is returned by Info when the daemon does not answer.
	ErrDaemonUnavailable = errors.New("docker is not running, start docker and try again")
)

// Mount is a volume or bind mount for a helper container.
type Mount struct {
	// Source is a named volume or an absolute host path.
	Source string

	// Target is the mount point inside the container.
	Target string

	ReadOnly bool
}

// Arg renders the mount as a `-v` value.
func (m Mount) Arg() string {
	if m.ReadOnly {
		return m.Source + ":" + m.Target + ":ro"
	}
	return m.Source + ":" + m.Target
}

// RunSpec describes a disposable helper container.
type RunSpec struct {
	// Name is the container name. Empty lets docker pick one.
	Name string

	Image      string
	Mounts     []Mount
	Env        map[string]string
	Entrypoint string
	Command    []string

	// Detach starts the container in the background (`-d`).
	Detach bool

	// Remove deletes the container when it exits (`--rm`).
	Remove bool

	// Timeout overrides the runtime's transfer timeout for this run.
	Timeout time.Duration
}

// Args renders the spec as `docker run` arguments.
func (s RunSpec) Args() []string {
	args := []string{"run"}
	if s.Remove {
		args = append(args, "--rm")
	}
	if s.Detach {
		args = append(args, "-d")
	}
	if s.Name != "" {
		args = append(args, "--name", s.Name)
	}
	args = append(args, lo.FlatMap(s.Mounts, func(m Mount, _ int) []string {
		return []string{"-v", m.Arg()}
	})...)

	keys := lo.Keys(s.Env)
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--env", k+"="+s.Env[k])
	}

	if s.Entrypoint != "" {
		args = append(args, "--entrypoint", s.Entrypoint)
	}
	args = append(args, s.Image)
	return append(args, s.Command...)
}

// Runtime is the container runtime surface used by the engine.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The engine itself only
// calls them from a single goroutine.
type Runtime interface {
	// Info probes the runtime. Returns ErrNotInstalled or
	// ErrDaemonUnavailable when it cannot be used.
	Info(ctx context.Context) error

	// ContainerNames lists names of all containers (any state) matching filter.
	ContainerNames(ctx context.Context, filter string) ([]string, error)

	// ContainerIDs lists IDs of all containers (any state) matching filter.
	ContainerIDs(ctx context.Context, filter string) ([]string, error)

	// VolumeNames lists volumes matching filter.
	VolumeNames(ctx context.Context, filter string) ([]string, error)

	// ImageIDs lists images matching filter.
	ImageIDs(ctx context.Context, filter string) ([]string, error)

	// RemoveContainers force-removes containers. An empty list is a no-op.
	RemoveContainers(ctx context.Context, ids []string) error

	// RemoveVolumes force-removes volumes. An empty list is a no-op.
	RemoveVolumes(ctx context.Context, names []string) error

	// RemoveImages force-removes images. An empty list is a no-op.
	RemoveImages(ctx context.Context, ids []string) error

	// Run starts a container and returns docker's stdout (the container ID
	// for detached runs).
	Run(ctx context.Context, spec RunSpec) (string, error)

	// CopyTo copies a host path into a running container.
	CopyTo(ctx context.Context, src, container, dst string) error

	// StopContainer stops a running container.
	StopContainer(ctx context.Context, name string) error

	// RemoveContainer removes a container, optionally forcing it.
	RemoveContainer(ctx context.Context, name string, force bool) error

	// VolumeUsage reports the disk usage of every volume.
	VolumeUsage(ctx context.Context) ([]VolumeUsage, error)
}

// Config configures DefaultRuntime.
type Config struct {
	// Binary is the docker CLI. Default: "docker"
	Binary string

	Timeouts util.TimeoutConfig
}

// DefaultRuntime implements Runtime by invoking the docker CLI.
type DefaultRuntime struct {
	config Config
	proc   process.Manager
}

// NewDefaultRuntime creates a runtime adapter.
func NewDefaultRuntime(cfg Config, proc process.Manager) *DefaultRuntime {
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	cfg.Timeouts = cfg.Timeouts.Validated()
	return &DefaultRuntime{config: cfg, proc: proc}
}

// Info runs `docker info`.
func (r *DefaultRuntime) Info(ctx context.Context) error {
	_, err := r.run(ctx, r.config.Timeouts.Process, "info")
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotInstalled, err)
	}
	return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
}

// ContainerNames runs `docker ps -a --filter <filter> --format {{.Names}}`.
func (r *DefaultRuntime) ContainerNames(ctx context.Context, filter string) ([]string, error) {
	return r.list(ctx, "ps", "-a", "--filter", filter, "--format", "{{.Names}}")
}

// ContainerIDs runs `docker ps -a --filter <filter> --format {{.ID}}`.
func (r *DefaultRuntime) ContainerIDs(ctx context.Context, filter string) ([]string, error) {
	return r.list(ctx, "ps", "-a", "--filter", filter, "--format", "{{.ID}}")
}

// VolumeNames runs `docker volume ls --filter <filter> --format {{.Name}}`.
func (r *DefaultRuntime) VolumeNames(ctx context.Context, filter string) ([]string, error) {
	return r.list(ctx, "volume", "ls", "--filter", filter, "--format", "{{.Name}}")
}

// ImageIDs runs `docker images --filter <filter> --format {{.ID}}`.
func (r *DefaultRuntime) ImageIDs(ctx context.Context, filter string) ([]string, error) {
	ids, err := r.list(ctx, "images", "--filter", filter, "--format", "{{.ID}}")
	// The same image ID is listed once per tag.
	return lo.Uniq(ids), err
}

// RemoveContainers runs `docker rm -f <ids>`.
func (r *DefaultRuntime) RemoveContainers(ctx context.Context, ids []string) error {
	return r.remove(ctx, []string{"rm", "-f"}, ids)
}

// RemoveVolumes runs `docker volume rm -f <names>`.
func (r *DefaultRuntime) RemoveVolumes(ctx context.Context, names []string) error {
	return r.remove(ctx, []string{"volume", "rm", "-f"}, names)
}

// RemoveImages runs `docker rmi -f <ids>`.
func (r *DefaultRuntime) RemoveImages(ctx context.Context, ids []string) error {
	return r.remove(ctx, []string{"rmi", "-f"}, ids)
}

// Run runs `docker run` for spec.
func (r *DefaultRuntime) Run(ctx context.Context, spec RunSpec) (string, error) {
	if spec.Image == "" {
		return "", errors.New("run spec has no image")
	}
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = r.config.Timeouts.Transfer
		if spec.Detach {
			timeout = r.config.Timeouts.Process
		}
	}
	out, err := r.run(ctx, timeout, spec.Args()...)
	return strings.TrimSpace(out), err
}

// CopyTo runs `docker cp <src> <container>:<dst>`.
func (r *DefaultRuntime) CopyTo(ctx context.Context, src, container, dst string) error {
	_, err := r.run(ctx, r.config.Timeouts.Transfer, "cp", src, container+":"+dst)
	return err
}

// StopContainer runs `docker stop <name>`.
func (r *DefaultRuntime) StopContainer(ctx context.Context, name string) error {
	_, err := r.run(ctx, r.config.Timeouts.Process, "stop", name)
	return err
}

// RemoveContainer runs `docker rm [-f] <name>`.
func (r *DefaultRuntime) RemoveContainer(ctx context.Context, name string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	_, err := r.run(ctx, r.config.Timeouts.Process, append(args, name)...)
	return err
}

// VolumeUsage runs `docker system df -v` and parses the volume section.
func (r *DefaultRuntime) VolumeUsage(ctx context.Context) ([]VolumeUsage, error) {
	out, err := r.run(ctx, r.config.Timeouts.Process, "system", "df", "-v", "--format", "{{ json .Volumes }}")
	if err != nil {
		return nil, err
	}
	return ParseVolumeUsage(out)
}

func (r *DefaultRuntime) list(ctx context.Context, args ...string) ([]string, error) {
	out, err := r.run(ctx, r.config.Timeouts.Process, args...)
	if err != nil {
		return nil, err
	}
	return parseLines(out), nil
}

func (r *DefaultRuntime) remove(ctx context.Context, base []string, targets []string) error {
	targets = lo.Compact(targets)
	if len(targets) == 0 {
		return nil
	}
	_, err := r.run(ctx, r.config.Timeouts.Process, append(base, targets...)...)
	return err
}

// run executes a docker command and converts non-zero exits to
// *util.CommandError.
func (r *DefaultRuntime) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	cmdStr := r.config.Binary + " " + strings.Join(args, " ")

	execCtx, cancel := util.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := r.proc.RunInDir(execCtx, "", nil, r.config.Binary, args...)
	if err != nil {
		return stdout, util.NewCommandError(cmdStr, exitCode, stderr, err)
	}
	if exitCode != 0 {
		return stdout, util.NewCommandError(cmdStr, exitCode, stderr, nil)
	}
	return stdout, nil
}

func parseLines(output string) []string {
	return lo.Compact(lo.Map(strings.Split(output, "\n"), func(line string, _ int) string {
		return strings.TrimSpace(line)
	}))
}

var _ Runtime = (*DefaultRuntime)(nil)
