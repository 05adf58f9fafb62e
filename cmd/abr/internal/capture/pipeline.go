// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package capture writes a point-in-time archive of the managed stack.
//
// A capture applies the pre-capture lifecycle transition of the chosen
// consistency level, runs a disposable helper container that tars and
// gzips every managed volume plus the stack's .env and compose file into
// the archive directory, and then applies the post-capture transition.
// The post-capture transition runs on every exit path, so a failed
// capture never leaves the stack paused or stopped.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/abr/cmd/abr/internal/catalog"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/docker"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/telemetry"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

const (
	// DefaultHelperImage tars the mounted volumes when run with the
	// "backup" entrypoint.
	DefaultHelperImage = "offen/docker-volume-backup:latest"

	helperEntrypoint = "backup"
	helperSourceRoot = "/" + catalog.TreeRoot
	helperArchiveDir = "/archive"
)

// ErrArchiveMissing is returned when the helper exited cleanly but the
// archive does not exist.
var ErrArchiveMissing = errors.New("capture helper did not produce an archive")

// Config configures a Pipeline.
type Config struct {
	Stack stack.Stack

	// ArchiveDir receives the archives.
	ArchiveDir string

	// HelperImage is the capture helper. Default: DefaultHelperImage
	HelperImage string

	// Clock returns the capture time. Default: time.Now
	Clock func() time.Time
}

// Result describes one capture run.
type Result struct {
	Level stack.Level

	// ArchiveName and ArchivePath are set once the name is chosen, even if
	// the capture then failed.
	ArchiveName string
	ArchivePath string

	// Size is the archive size on success.
	Size datasize.ByteSize

	// Pre and Post are the lifecycle results around the capture.
	Pre  stack.Result
	Post stack.Result

	Duration time.Duration
}

// Pipeline runs captures.
type Pipeline struct {
	cfg       Config
	rt        docker.Runtime
	lifecycle *stack.Controller
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewPipeline creates a capture pipeline.
//
// # Inputs
//
//   - cfg: stack, archive directory and helper image
//   - rt: runtime that runs the helper
//   - lifecycle: controller for the pre and post transitions
//   - logger, tracer: may be nil
func NewPipeline(cfg Config, rt docker.Runtime, lifecycle *stack.Controller, logger *slog.Logger, tracer trace.Tracer) *Pipeline {
	if cfg.HelperImage == "" {
		cfg.HelperImage = DefaultHelperImage
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if tracer == nil {
		tracer = telemetry.NoopTracing().Tracer
	}
	return &Pipeline{cfg: cfg, rt: rt, lifecycle: lifecycle, logger: logger, tracer: tracer}
}

// Capture archives the stack at the given consistency level.
//
// # Description
//
//  1. Apply the level's pre-capture transition. A Benign outcome continues.
//     A Fatal one skips the capture.
//  2. Create the archive directory.
//  3. Run the helper, which writes backup-<UTC timestamp>.tar.gz.
//  4. Apply the post-capture transition. This step is deferred and runs
//     whatever happened before it, with a context that survives
//     cancellation of ctx.
//
// # Outputs
//
//   - *Result: always non-nil
//   - error: a classified step failure from step 1, 2 or 3, or from step 4
//     when everything before it succeeded
func (p *Pipeline) Capture(ctx context.Context, level stack.Level) (res *Result, err error) {
	start := time.Now()
	res = &Result{Level: level}
	pre, post := level.Transitions()

	log := p.logger.With("level", level.String())
	log.Info("starting capture")

	defer func() {
		res.Post = p.transition(context.WithoutCancel(ctx), "capture.post", post)
		res.Duration = time.Since(start)
		if res.Post.Failed() {
			log.Error("stack was not brought back, recover it manually", "transition", post.String(), "error", res.Post.Err)
			if err == nil {
				err = res.Post.Err
			}
		}
	}()

	res.Pre = p.transition(ctx, "capture.pre", pre)
	if res.Pre.Failed() {
		return res, res.Pre.Err
	}

	res.ArchiveName = catalog.FilenameFor(p.cfg.Clock())
	res.ArchivePath = filepath.Join(p.cfg.ArchiveDir, res.ArchiveName)

	err = telemetry.Step(ctx, p.tracer, "capture.archive-dir", func(ctx context.Context) error {
		if err := os.MkdirAll(p.cfg.ArchiveDir, 0o755); err != nil {
			return util.StepFailure("archive-dir", err)
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	err = telemetry.Step(ctx, p.tracer, "capture.helper", func(ctx context.Context) error {
		if _, err := p.rt.Run(ctx, p.HelperSpec(res.ArchiveName)); err != nil {
			return util.StepFailure("capture", err)
		}
		info, err := os.Stat(res.ArchivePath)
		if err != nil {
			return util.StepFailure("capture", fmt.Errorf("%w: %s", ErrArchiveMissing, res.ArchivePath))
		}
		res.Size = datasize.ByteSize(info.Size())
		return nil
	}, attribute.String("archive", res.ArchiveName))
	if err != nil {
		log.Error("capture failed", "error", err)
		return res, err
	}

	log.Info("capture complete", "archive", res.ArchivePath, "size", res.Size.HumanReadable())
	return res, nil
}

func (p *Pipeline) transition(ctx context.Context, span string, t stack.Transition) stack.Result {
	var result stack.Result
	_ = telemetry.Step(ctx, p.tracer, span, func(ctx context.Context) error {
		result = p.lifecycle.Apply(ctx, t)
		if result.Failed() {
			return result.Err
		}
		return nil
	}, attribute.String("transition", t.String()))
	return result
}

// HelperSpec is the helper container for an archive called name. Volumes
// and stack files are mounted read-only under /backup and the archive
// directory at /archive.
func (p *Pipeline) HelperSpec(name string) docker.RunSpec {
	s := p.cfg.Stack
	mounts := lo.Map(s.Volumes, func(v string, _ int) docker.Mount {
		return docker.Mount{Source: v, Target: helperSourceRoot + "/" + v, ReadOnly: true}
	})
	stackTarget := helperSourceRoot + "/" + filepath.Base(s.InstallDir)
	mounts = append(mounts,
		docker.Mount{Source: s.EnvFile, Target: stackTarget + "/" + filepath.Base(s.EnvFile), ReadOnly: true},
		docker.Mount{Source: s.ComposeFile, Target: stackTarget + "/" + filepath.Base(s.ComposeFile), ReadOnly: true},
		docker.Mount{Source: p.cfg.ArchiveDir, Target: helperArchiveDir},
	)

	return docker.RunSpec{
		Image:      p.cfg.HelperImage,
		Mounts:     mounts,
		Env:        map[string]string{"BACKUP_FILENAME": name},
		Entrypoint: helperEntrypoint,
		Remove:     true,
	}
}
