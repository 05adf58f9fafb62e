// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"strings"
)

// CommandError wraps an external command failure with stderr context.
//
// # Description
//
// Provides rich error context for docker, compose and tar failures,
// including the command line, exit code and stderr output. Implements
// error interface and supports unwrapping.
//
// # Example
//
//	err := NewCommandError("docker compose pause", 1, "already paused", originalErr)
//	fmt.Println(err.Error()) // "docker compose pause (exit 1): already paused"
type CommandError struct {
	// Command is the command that was executed.
	Command string

	// ExitCode is the process exit code (-1 if unknown).
	ExitCode int

	// Stderr contains the standard error output (trimmed).
	Stderr string

	// Wrapped is the underlying error (may be nil).
	Wrapped error
}

// Error returns a formatted error message.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr returns true if stderr output is available.
func (e *CommandError) HasStderr() bool {
	return e.Stderr != ""
}

var _ error = (*CommandError)(nil)

// NewCommandError creates a CommandError with full context.
//
// Stderr is trimmed of leading/trailing whitespace.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// ExtractStderr returns the first non-empty stderr found in the error chain.
func ExtractStderr(err error) string {
	var cmdErr *CommandError
	for err != nil {
		if errors.As(err, &cmdErr) {
			if cmdErr.HasStderr() {
				return cmdErr.Stderr
			}
			err = cmdErr.Wrapped
			continue
		}
		break
	}
	return ""
}

// =============================================================================
// Classified Errors
// =============================================================================

// ErrorClass categorizes workflow failures.
type ErrorClass int

const (
	// ClassUnknown is reported for errors that were never classified.
	ClassUnknown ErrorClass = iota

	// ClassPrecondition means the command cannot start: runtime unavailable,
	// installation folder missing, archive folder or file missing.
	ClassPrecondition

	// ClassBenign means the runtime reported a failure that is expected and
	// equivalent to success, e.g. pausing an already paused stack.
	ClassBenign

	// ClassStep means a pipeline step failed and the remaining steps were
	// skipped. Guaranteed cleanup and resume phases still ran.
	ClassStep

	// ClassUserDeclined means the operator refused a required action.
	ClassUserDeclined
)

// String returns the class name used in logs.
func (c ErrorClass) String() string {
	switch c {
	case ClassPrecondition:
		return "precondition"
	case ClassBenign:
		return "benign"
	case ClassStep:
		return "step"
	case ClassUserDeclined:
		return "user_declined"
	default:
		return "unknown"
	}
}

// ClassifiedError attaches an ErrorClass and the failing step to an error.
type ClassifiedError struct {
	Class ErrorClass
	Step  string
	Err   error
}

// Error returns "<step>: <cause>".
func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return e.Step
	}
	if e.Step == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

// Unwrap returns the cause.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

var _ error = (*ClassifiedError)(nil)

// Precondition classifies err as a precondition failure of step.
func Precondition(step string, err error) error {
	return &ClassifiedError{Class: ClassPrecondition, Step: step, Err: err}
}

// StepFailure classifies err as an unrecoverable failure of step.
func StepFailure(step string, err error) error {
	return &ClassifiedError{Class: ClassStep, Step: step, Err: err}
}

// Benign classifies err as an expected failure of step.
func Benign(step string, err error) error {
	return &ClassifiedError{Class: ClassBenign, Step: step, Err: err}
}

// UserDeclined reports that the operator refused the action named by step.
func UserDeclined(step string, reason string) error {
	return &ClassifiedError{Class: ClassUserDeclined, Step: step, Err: errors.New(reason)}
}

// ClassOf returns the outermost class found in the error chain.
func ClassOf(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassUnknown
}

// IsClass reports whether err carries class c.
func IsClass(err error, c ErrorClass) bool {
	return err != nil && ClassOf(err) == c
}

// StepOf returns the step name of the outermost classified error, or "".
func StepOf(err error) string {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Step
	}
	return ""
}
