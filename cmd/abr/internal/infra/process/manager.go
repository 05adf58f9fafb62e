// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Manager handles external process operations.
//
// # Description
//
// Abstracts interaction with the operating system's process management so
// the engine never calls exec.Command directly.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Manager interface {
	// Run executes a command and returns its stdout.
	//
	// A non-zero exit is returned as an error that includes stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunInDir executes a command in dir with extra environment entries.
	//
	// # Outputs
	//
	//   - stdout, stderr: Captured output
	//   - exitCode: Process exit code, -1 if the process never ran
	//   - error: Non-nil only if the process could not be started or the
	//     context expired. A non-zero exit is reported through exitCode.
	RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

// DefaultManager implements Manager using os/exec.
type DefaultManager struct{}

// NewDefaultManager creates a Manager that executes real processes.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// Run executes a command synchronously and returns its output.
func (pm *DefaultManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	stdout, stderr, code, err := pm.RunInDir(ctx, "", nil, name, args...)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		if stderr != "" {
			return nil, fmt.Errorf("%s exited with code %d: %s", name, code, strings.TrimSpace(stderr))
		}
		return nil, fmt.Errorf("%s exited with code %d", name, code)
	}
	return []byte(stdout), nil
}

// RunInDir executes a command in the given directory.
func (pm *DefaultManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout.String(), stderr.String(), -1, fmt.Errorf("%s: %w", name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
		}
		return stdout.String(), stderr.String(), -1, err
	}

	return stdout.String(), stderr.String(), 0, nil
}

var _ Manager = (*DefaultManager)(nil)

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockManager is a test double for Manager.
//
// RunInDirFunc backs both methods. When it is nil every call succeeds with
// empty output.
//
// # Examples
//
//	mock := &MockManager{
//	    RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
//	        if name == "docker" && args[0] == "info" {
//	            return "", "Cannot connect to the Docker daemon", 1, nil
//	        }
//	        return "", "", 0, nil
//	    },
//	}
type MockManager struct {
	RunInDirFunc func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)

	// Calls records all invocations for verification.
	Calls []Call

	mu sync.Mutex
}

// Call records a single invocation.
type Call struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

// CommandLine returns "name arg1 arg2 ...".
func (c Call) CommandLine() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Run delegates to RunInDir.
func (m *MockManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	stdout, stderr, code, err := m.RunInDir(ctx, "", nil, name, args...)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("%s exited with code %d: %s", name, code, stderr)
	}
	return []byte(stdout), nil
}

// RunInDir records the call and delegates to RunInDirFunc.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Call{Dir: dir, Env: env, Name: name, Args: args})
	fn := m.RunInDirFunc
	m.mu.Unlock()

	if fn == nil {
		return "", "", 0, nil
	}
	return fn(ctx, dir, env, name, args...)
}

// CommandLines returns every recorded call as a command line, in order.
func (m *MockManager) CommandLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		lines[i] = c.CommandLine()
	}
	return lines
}

var _ Manager = (*MockManager)(nil)
