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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/AleutianAI/abr/cmd/abr/internal/infra/compose"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

// Outcome classifies the result of a lifecycle transition.
type Outcome int

const (
	// OK means the transition succeeded.
	OK Outcome = iota

	// Benign means the runtime refused because the stack was already in the
	// target state. Callers treat it as success.
	Benign

	// Fatal means the transition failed.
	Fatal
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Benign:
		return "benign"
	default:
		return "fatal"
	}
}

// Result is the typed outcome of one transition.
type Result struct {
	Transition Transition
	Outcome    Outcome

	// Err is nil for OK, a util.Benign error for Benign and a
	// util.StepFailure error for Fatal.
	Err error
}

// Failed reports whether the transition must abort the enclosing workflow.
func (r Result) Failed() bool {
	return r.Outcome == Fatal
}

// Controller drives the stack through stop, pause, resume and restart.
//
// # Description
//
// Controller never string-matches runtime output itself. Pause consults the
// stack status first and only falls back to the executor's
// compose.ErrAlreadyPaused classification when the status is unavailable
// or inconclusive.
type Controller struct {
	exec   compose.Executor
	logger *slog.Logger
}

// NewController creates a controller for the stack behind exec.
func NewController(exec compose.Executor, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{exec: exec, logger: logger}
}

// Apply runs transition t. None is always OK.
func (c *Controller) Apply(ctx context.Context, t Transition) Result {
	switch t {
	case None:
		return Result{Transition: None, Outcome: OK}
	case Pause:
		return c.Pause(ctx)
	case Resume:
		return c.Resume(ctx)
	case Stop:
		return c.Stop(ctx)
	case Restart:
		return c.Restart(ctx)
	}
	return c.fatal(t, fmt.Errorf("unknown transition %d", int(t)))
}

// Stop brings the stack down. Every failure is Fatal.
func (c *Controller) Stop(ctx context.Context) Result {
	if _, err := c.exec.Down(ctx); err != nil {
		return c.fatal(Stop, err)
	}
	return c.ok(Stop)
}

// Pause freezes the stack's containers. An already paused stack is Benign.
func (c *Controller) Pause(ctx context.Context) Result {
	status, err := c.exec.Status(ctx)
	if err != nil {
		c.logger.Debug("stack status unavailable, pausing unconditionally", "error", err)
	} else if status.AllPaused() {
		return c.benign(Pause, compose.ErrAlreadyPaused)
	}

	if _, err := c.exec.Pause(ctx); err != nil {
		if errors.Is(err, compose.ErrAlreadyPaused) {
			return c.benign(Pause, err)
		}
		return c.fatal(Pause, err)
	}
	return c.ok(Pause)
}

// Resume unpauses the stack. A stack that is not paused is Benign.
func (c *Controller) Resume(ctx context.Context) Result {
	if _, err := c.exec.Unpause(ctx); err != nil {
		if errors.Is(err, compose.ErrNotPaused) {
			return c.benign(Resume, err)
		}
		return c.fatal(Resume, err)
	}
	return c.ok(Resume)
}

// Restart brings the stack up. Failures are Fatal and never retried.
func (c *Controller) Restart(ctx context.Context) Result {
	if _, err := c.exec.Up(ctx); err != nil {
		return c.fatal(Restart, err)
	}
	return c.ok(Restart)
}

func (c *Controller) ok(t Transition) Result {
	c.logger.Info("stack transition complete", "transition", t.String())
	return Result{Transition: t, Outcome: OK}
}

func (c *Controller) benign(t Transition, err error) Result {
	c.logger.Info("stack already in target state", "transition", t.String(), "detail", err.Error())
	return Result{Transition: t, Outcome: Benign, Err: util.Benign(t.String(), err)}
}

func (c *Controller) fatal(t Transition, err error) Result {
	c.logger.Error("stack transition failed", "transition", t.String(), "error", err)
	return Result{Transition: t, Outcome: Fatal, Err: util.StepFailure(t.String(), err)}
}
