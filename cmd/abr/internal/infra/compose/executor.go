// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/AleutianAI/abr/cmd/abr/internal/infra/process"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrInvalidConfig is returned when Config is invalid.
	ErrInvalidConfig = errors.New("invalid compose configuration")

	// ErrAlreadyPaused is returned by Pause when the runtime reports that the
	// stack's containers are already paused.
	ErrAlreadyPaused = errors.New("stack is already paused")

	// ErrNotPaused is returned by Unpause when the runtime reports that the
	// stack's containers are not paused.
	ErrNotPaused = errors.New("stack is not paused")
)

// =============================================================================
// Interface Definition
// =============================================================================

// Executor runs `docker compose` for the managed stack.
//
// # Description
//
// Every command runs with the stack's install directory as working
// directory, so compose resolves the project's compose file and `.env` the
// same way an operator typing the command there would.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. State-changing
// operations are serialized.
type Executor interface {
	// Up runs `docker compose up -d`.
	Up(ctx context.Context) (*Result, error)

	// Down runs `docker compose down`.
	Down(ctx context.Context) (*Result, error)

	// Pause runs `docker compose pause`.
	//
	// # Outputs
	//
	//   - error: wraps ErrAlreadyPaused when the runtime says the containers
	//     are already paused, a *util.CommandError otherwise
	Pause(ctx context.Context) (*Result, error)

	// Unpause runs `docker compose unpause`.
	//
	// # Outputs
	//
	//   - error: wraps ErrNotPaused when the runtime says the containers are
	//     not paused, a *util.CommandError otherwise
	Unpause(ctx context.Context) (*Result, error)

	// Status runs `docker compose ps -a --format json`.
	Status(ctx context.Context) (*Status, error)
}

// =============================================================================
// Configuration and Result Types
// =============================================================================

// Config configures DefaultExecutor.
type Config struct {
	// StackDir is the stack's install directory. Required.
	StackDir string

	// ComposeFile is passed with -f when set. Relative to StackDir.
	ComposeFile string

	// ProjectName is passed with -p when set.
	ProjectName string

	// Binary is the docker CLI. Default: "docker"
	Binary string

	// Timeout bounds each compose command. Default: util.DefaultComposeTimeout
	Timeout time.Duration

	// StatusTimeout bounds Status. Default: util.DefaultProcessTimeout
	StatusTimeout time.Duration

	// Logger receives one debug record per command. Default: discard
	Logger *slog.Logger
}

// Result contains the result of a compose operation.
type Result struct {
	// Success indicates if the operation completed without error.
	Success bool

	ExitCode int
	Stdout   string
	Stderr   string

	// Duration is how long the operation took.
	Duration time.Duration

	// Command is the full command that was executed.
	Command string
}

// Status is the state of the stack's containers.
type Status struct {
	Services []ServiceStatus

	Running int
	Paused  int
	Stopped int
}

// ServiceStatus is one container of the stack.
type ServiceStatus struct {
	// Service is the compose service name.
	Service string

	// ContainerName is the actual container name.
	ContainerName string

	// State is the container state (running, paused, exited, ...).
	State string

	// Status is docker's human status, e.g. "Up 2 hours (Paused)".
	Status string

	Image string
}

// AllPaused reports whether the stack has containers and all are paused.
func (s *Status) AllPaused() bool {
	return s != nil && len(s.Services) > 0 && s.Paused == len(s.Services)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultExecutor implements Executor with the docker compose plugin.
type DefaultExecutor struct {
	config Config
	proc   process.Manager
	logger *slog.Logger
	mu     sync.Mutex
}

// NewDefaultExecutor creates an executor for the stack in cfg.StackDir.
//
// # Inputs
//
//   - cfg: Compose configuration (StackDir required)
//   - proc: process manager used for every command
//
// # Outputs
//
//   - *DefaultExecutor: Configured executor
//   - error: wraps ErrInvalidConfig if StackDir is empty
//
// # Example
//
//	exec, err := NewDefaultExecutor(Config{StackDir: "/srv/appwrite"}, proc)
func NewDefaultExecutor(cfg Config, proc process.Manager) (*DefaultExecutor, error) {
	if cfg.StackDir == "" {
		return nil, fmt.Errorf("%w: StackDir is required", ErrInvalidConfig)
	}
	if proc == nil {
		return nil, fmt.Errorf("%w: process manager is required", ErrInvalidConfig)
	}
	applyConfigDefaults(&cfg)

	return &DefaultExecutor{
		config: cfg,
		proc:   proc,
		logger: cfg.Logger,
	}, nil
}

func applyConfigDefaults(cfg *Config) {
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	cfg.Timeout = util.EnforceDefaultTimeout(cfg.Timeout, util.DefaultComposeTimeout)
	cfg.StatusTimeout = util.EnforceDefaultTimeout(cfg.StatusTimeout, util.DefaultProcessTimeout)
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Up runs `docker compose up -d`.
func (e *DefaultExecutor) Up(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCompose(ctx, e.config.Timeout, "up", "-d")
}

// Down runs `docker compose down`.
func (e *DefaultExecutor) Down(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCompose(ctx, e.config.Timeout, "down")
}

// Pause runs `docker compose pause`.
func (e *DefaultExecutor) Pause(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runCompose(ctx, e.config.Timeout, "pause")
	if err != nil && isAlreadyPaused(result) {
		return result, fmt.Errorf("%w: %w", ErrAlreadyPaused, err)
	}
	return result, err
}

// Unpause runs `docker compose unpause`.
func (e *DefaultExecutor) Unpause(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runCompose(ctx, e.config.Timeout, "unpause")
	if err != nil && isNotPaused(result) {
		return result, fmt.Errorf("%w: %w", ErrNotPaused, err)
	}
	return result, err
}

// Status runs `docker compose ps -a --format json`.
//
// # Description
//
// Older compose releases print one JSON array, newer ones one JSON object
// per line. Both are accepted.
func (e *DefaultExecutor) Status(ctx context.Context) (*Status, error) {
	result, err := e.runCompose(ctx, e.config.StatusTimeout, "ps", "-a", "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("failed to get stack status: %w", err)
	}
	return ParseStatus(result.Stdout)
}

// runCompose executes one compose subcommand in the stack directory.
//
// # Outputs
//
//   - *Result: always non-nil
//   - error: *util.CommandError on start failure, timeout or non-zero exit
func (e *DefaultExecutor) runCompose(ctx context.Context, timeout time.Duration, sub ...string) (*Result, error) {
	start := time.Now()

	args := e.buildArgs(sub...)
	cmdStr := e.config.Binary + " " + strings.Join(args, " ")
	e.logger.Debug("executing compose command", "command", cmdStr, "dir", e.config.StackDir)

	execCtx, cancel := util.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := e.proc.RunInDir(execCtx, e.config.StackDir, nil, e.config.Binary, args...)

	result := &Result{
		Success:  exitCode == 0 && err == nil,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  cmdStr,
	}

	if err != nil {
		return result, util.NewCommandError(cmdStr, exitCode, stderr, err)
	}
	if exitCode != 0 {
		return result, util.NewCommandError(cmdStr, exitCode, stderr, nil)
	}
	return result, nil
}

func (e *DefaultExecutor) buildArgs(sub ...string) []string {
	args := []string{"compose"}
	if e.config.ComposeFile != "" {
		args = append(args, "-f", e.config.ComposeFile)
	}
	if e.config.ProjectName != "" {
		args = append(args, "-p", e.config.ProjectName)
	}
	return append(args, sub...)
}

// isAlreadyPaused matches the daemon's message for pausing a paused
// container. The wording is not a stable API, so callers check Status first.
func isAlreadyPaused(result *Result) bool {
	return result != nil && strings.Contains(strings.ToLower(result.Stderr+result.Stdout), "already paused")
}

// isNotPaused matches the daemon's message for unpausing a running container.
func isNotPaused(result *Result) bool {
	return result != nil && strings.Contains(strings.ToLower(result.Stderr+result.Stdout), "is not paused")
}

// =============================================================================
// Status Parsing
// =============================================================================

type psEntry struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Status  string `json:"Status"`
	Image   string `json:"Image"`
}

// ParseStatus decodes `docker compose ps --format json` output.
func ParseStatus(output string) (*Status, error) {
	status := &Status{Services: []ServiceStatus{}}

	output = strings.TrimSpace(output)
	if output == "" {
		return status, nil
	}

	var entries []psEntry
	if strings.HasPrefix(output, "[") {
		if err := json.Unmarshal([]byte(output), &entries); err != nil {
			return nil, fmt.Errorf("failed to parse compose status: %w", err)
		}
	} else {
		for _, line := range strings.Split(output, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var entry psEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("failed to parse compose status line: %w", err)
			}
			entries = append(entries, entry)
		}
	}

	status.Services = lo.Map(entries, func(c psEntry, _ int) ServiceStatus {
		return ServiceStatus{
			Service:       c.Service,
			ContainerName: c.Name,
			State:         strings.ToLower(c.State),
			Status:        c.Status,
			Image:         c.Image,
		}
	})
	for _, svc := range status.Services {
		switch svc.State {
		case "running":
			status.Running++
		case "paused":
			status.Paused++
		default:
			status.Stopped++
		}
	}
	return status, nil
}

var _ Executor = (*DefaultExecutor)(nil)
