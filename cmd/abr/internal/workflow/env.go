// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/abr/cmd/abr/internal/infra/docker"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/telemetry"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
	"github.com/AleutianAI/abr/pkg/ux"
)

// ErrRuntimeUnavailable marks a failed availability probe. The CLI maps it
// to its own exit code.
var ErrRuntimeUnavailable = errors.New("container runtime unavailable")

// Env carries the collaborators shared by every workflow.
type Env struct {
	Runtime   docker.Runtime
	Lifecycle *stack.Controller
	Console   *ux.Console
	Prompter  ux.Prompter

	// Logger, Tracer and Metrics may be nil.
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *telemetry.Recorder

	// MetricsDir receives abr_<workflow>.prom. Empty disables the textfile.
	MetricsDir string
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

func (e Env) tracer() trace.Tracer {
	if e.Tracer == nil {
		return telemetry.NoopTracing().Tracer
	}
	return e.Tracer
}

// record observes m and rewrites the workflow's textfile. A write failure
// is logged; metrics never fail a run.
func (e Env) record(m telemetry.RunMetrics) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.Observe(m)
	path, err := e.Metrics.WriteTextfile(e.MetricsDir, m.Workflow)
	if err != nil {
		e.logger().Warn("failed to write metrics", "workflow", m.Workflow, "error", err)
		return
	}
	if path != "" {
		e.logger().Debug("metrics written", "path", path)
	}
}

// Probe checks that the container runtime answers. Any failure is a
// precondition error wrapping ErrRuntimeUnavailable; nothing else has run
// at that point.
func Probe(ctx context.Context, rt docker.Runtime) error {
	if err := rt.Info(ctx); err != nil {
		return util.Precondition("runtime-probe", fmt.Errorf("%w: %w", ErrRuntimeUnavailable, err))
	}
	return nil
}

// promptError classifies a prompter failure for step.
func promptError(step string, err error) error {
	switch {
	case errors.Is(err, ux.ErrNonInteractive):
		return util.Precondition(step, err)
	case errors.Is(err, ux.ErrAborted):
		return util.UserDeclined(step, "aborted at the prompt")
	default:
		return err
	}
}
