// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package restore replays an archive into the managed stack's volumes.
//
// The pipeline stages a copy of the chosen archive, validates and extracts
// it, starts an idle helper container with every managed volume and the
// install directory mounted, and copies the extracted tree into it so the
// writes land in the volumes. A deferred cleanup phase always removes the
// staged copy, the helper and the extraction directory, and releases the
// host lock that keeps a second restore from colliding with the helper's
// fixed name.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/abr/cmd/abr/internal/catalog"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/docker"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/process"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/telemetry"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

const (
	// DefaultHelperImage idles while the staged tree is copied in.
	DefaultHelperImage = "alpine"

	// DefaultHelperName is the fixed helper container name.
	DefaultHelperName = "temp_restore_container"

	helperRestoreRoot = "/backup_restore"
)

// Config configures a Pipeline.
type Config struct {
	Stack stack.Stack

	// StagingFile is the canonical path of the staged archive copy.
	StagingFile string

	// ExtractRoot is where the archive is extracted. The archive's
	// top-level directory becomes StagingDir, so StagingDir must be
	// <ExtractRoot>/backup. See CheckLayout.
	ExtractRoot string
	StagingDir  string

	HelperImage string
	HelperName  string

	// KeepStagingOnFailure retains the staged copy and the extracted tree
	// when the restore fails.
	KeepStagingOnFailure bool

	// TarBinary extracts archives. Default: "tar"
	TarBinary string

	Timeouts util.TimeoutConfig
}

// Result describes one restore run.
type Result struct {
	// Archive is the catalog file that was restored.
	Archive string

	// Stage is the last stage entered. FailedAt is set when Failed is true.
	Stage    Stage
	Failed   bool
	FailedAt Stage

	Manifest *Manifest

	// HelperStarted is true once the helper container was created.
	HelperStarted bool

	// StagingKept is true when a failed run retained its staging state.
	StagingKept bool

	// CleanupErrors holds best-effort cleanup failures. They never fail
	// the run.
	CleanupErrors []error

	Bytes    datasize.ByteSize
	Duration time.Duration
}

// Pipeline runs restores.
type Pipeline struct {
	cfg    Config
	rt     docker.Runtime
	proc   process.Manager
	locker process.Locker
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPipeline creates a restore pipeline.
//
// # Inputs
//
//   - cfg: paths, helper settings and timeouts
//   - rt: runtime for the helper container
//   - proc: runs the archive tool
//   - locker: host lock keyed by the helper name
//   - logger, tracer: may be nil
func NewPipeline(cfg Config, rt docker.Runtime, proc process.Manager, locker process.Locker, logger *slog.Logger, tracer trace.Tracer) *Pipeline {
	if cfg.HelperImage == "" {
		cfg.HelperImage = DefaultHelperImage
	}
	if cfg.HelperName == "" {
		cfg.HelperName = DefaultHelperName
	}
	if cfg.TarBinary == "" {
		cfg.TarBinary = "tar"
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(cfg.ExtractRoot, catalog.TreeRoot)
	}
	cfg.Timeouts = cfg.Timeouts.Validated()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if tracer == nil {
		tracer = telemetry.NoopTracing().Tracer
	}
	return &Pipeline{cfg: cfg, rt: rt, proc: proc, locker: locker, logger: logger, tracer: tracer}
}

// Restore replays the archive at archivePath into the stack's volumes.
//
// # Description
//
//  1. Take the host lock for the helper name.
//  2. Copy the archive to StagingFile.
//  3. Validate it, then extract it into ExtractRoot.
//  4. Remove any stale helper, create the install directory and start the
//     idle helper with every volume and the install directory mounted.
//  5. Copy StagingDir into the helper's mount tree.
//
// Cleanup is deferred and runs on every path after the lock is held. The
// archive at archivePath is never modified.
//
// # Outputs
//
//   - *Result: always non-nil
//   - error: a classified step failure, or the lock error
func (p *Pipeline) Restore(ctx context.Context, archivePath string) (res *Result, err error) {
	start := time.Now()
	res = &Result{Archive: archivePath, Stage: StageStaging}
	log := p.logger.With("archive", archivePath)

	if err := CheckLayout(p.cfg.ExtractRoot, p.cfg.StagingDir); err != nil {
		res.Failed, res.FailedAt = true, StageStaging
		return res, util.Precondition("stage", err)
	}

	if err := p.locker.Acquire(); err != nil {
		res.Failed, res.FailedAt = true, StageStaging
		return res, fmt.Errorf("restore helper %q is in use: %w", p.cfg.HelperName, err)
	}

	defer func() {
		failed := err != nil
		if failed {
			res.Failed, res.FailedAt = true, res.Stage
			log.Error("restore failed", "stage", res.Stage.String(), "error", err)
		}
		res.Stage = StageCleanup
		res.StagingKept = failed && p.cfg.KeepStagingOnFailure
		res.CleanupErrors = p.Cleanup(context.WithoutCancel(ctx), res.HelperStarted, res.StagingKept)
		if rerr := p.locker.Release(); rerr != nil {
			res.CleanupErrors = append(res.CleanupErrors, fmt.Errorf("release lock: %w", rerr))
		}
		res.Duration = time.Since(start)
	}()

	if err = p.step(ctx, res, StageStaging, func(ctx context.Context) error {
		return p.stage(archivePath)
	}); err != nil {
		return res, err
	}

	if err = p.step(ctx, res, StageExtract, func(ctx context.Context) error {
		return p.extract(ctx, res)
	}); err != nil {
		return res, err
	}

	if err = p.step(ctx, res, StageHelperUp, func(ctx context.Context) error {
		return p.startHelper(ctx, res)
	}); err != nil {
		return res, err
	}

	if err = p.step(ctx, res, StageCopyIn, func(ctx context.Context) error {
		src := p.cfg.StagingDir + string(filepath.Separator) + "."
		if err := p.rt.CopyTo(ctx, src, p.cfg.HelperName, helperRestoreRoot); err != nil {
			return util.StepFailure("copy", err)
		}
		return nil
	}); err != nil {
		return res, err
	}

	log.Info("restore copied into volumes", "bytes", res.Bytes.HumanReadable())
	return res, nil
}

func (p *Pipeline) step(ctx context.Context, res *Result, stage Stage, fn func(ctx context.Context) error) error {
	res.Stage = stage
	p.logger.Debug("restore stage", "stage", stage.String())
	return telemetry.Step(ctx, p.tracer, "restore."+stage.String(), fn, attribute.String("helper", p.cfg.HelperName))
}

// stage copies the archive to the staging file.
func (p *Pipeline) stage(archivePath string) error {
	src, err := filepath.Abs(archivePath)
	if err != nil {
		return util.StepFailure("stage", err)
	}
	dst, err := filepath.Abs(p.cfg.StagingFile)
	if err != nil {
		return util.StepFailure("stage", err)
	}
	if src == dst {
		return util.StepFailure("stage", fmt.Errorf("archive %s is the staging file itself", src))
	}

	in, err := os.Open(src)
	if err != nil {
		return util.Precondition("stage", fmt.Errorf("open archive: %w", err))
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return util.StepFailure("stage", fmt.Errorf("create staging file: %w", err))
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return util.StepFailure("stage", fmt.Errorf("copy archive: %w", err))
	}
	if err := out.Close(); err != nil {
		return util.StepFailure("stage", fmt.Errorf("close staging file: %w", err))
	}
	return nil
}

// extract validates the staged archive and unpacks it with the archive tool.
func (p *Pipeline) extract(ctx context.Context, res *Result) error {
	if err := os.RemoveAll(p.cfg.StagingDir); err != nil {
		return util.StepFailure("extract", fmt.Errorf("clear stale staging dir: %w", err))
	}
	if err := os.MkdirAll(p.cfg.ExtractRoot, 0o755); err != nil {
		return util.StepFailure("extract", err)
	}

	manifest, err := InspectArchive(p.cfg.StagingFile, p.cfg.ExtractRoot, catalog.TreeRoot)
	if err != nil {
		return util.StepFailure("extract", err)
	}
	res.Manifest = manifest
	res.Bytes = datasize.ByteSize(manifest.Bytes)
	if missing := manifest.Missing(p.cfg.Stack.Volumes); len(missing) > 0 {
		p.logger.Warn("archive does not contain every managed volume", "missing", missing)
	}

	execCtx, cancel := util.WithTimeout(ctx, p.cfg.Timeouts.Transfer)
	defer cancel()

	args := []string{"-C", p.cfg.ExtractRoot, "-xzf", p.cfg.StagingFile}
	_, stderr, code, err := p.proc.RunInDir(execCtx, "", nil, p.cfg.TarBinary, args...)
	if err != nil || code != 0 {
		cmd := util.NewCommandError(p.cfg.TarBinary+" "+strings.Join(args, " "), code, stderr, err)
		return util.StepFailure("extract", cmd)
	}

	if info, err := os.Stat(p.cfg.StagingDir); err != nil || !info.IsDir() {
		return util.StepFailure("extract", fmt.Errorf("%w: extraction produced no %s", ErrInvalidArchive, p.cfg.StagingDir))
	}
	return nil
}

// startHelper replaces any stale helper and starts a fresh idle one.
func (p *Pipeline) startHelper(ctx context.Context, res *Result) error {
	if err := p.rt.RemoveContainer(ctx, p.cfg.HelperName, true); err == nil {
		p.logger.Debug("removed stale restore helper", "name", p.cfg.HelperName)
	}
	if err := os.MkdirAll(p.cfg.Stack.InstallDir, 0o755); err != nil {
		return util.StepFailure("helper-start", fmt.Errorf("create install dir: %w", err))
	}

	if _, err := p.rt.Run(ctx, p.HelperSpec()); err != nil {
		return util.StepFailure("helper-start", err)
	}
	res.HelperStarted = true
	return nil
}

// HelperSpec is the idle helper with every volume under /backup_restore
// and the install directory at /backup_restore/<install dir name>.
func (p *Pipeline) HelperSpec() docker.RunSpec {
	s := p.cfg.Stack
	mounts := lo.Map(s.Volumes, func(v string, _ int) docker.Mount {
		return docker.Mount{Source: v, Target: helperRestoreRoot + "/" + v}
	})
	mounts = append(mounts, docker.Mount{
		Source: s.InstallDir,
		Target: helperRestoreRoot + "/" + filepath.Base(s.InstallDir),
	})

	return docker.RunSpec{
		Name:    p.cfg.HelperName,
		Image:   p.cfg.HelperImage,
		Mounts:  mounts,
		Command: []string{"tail", "-f", "/dev/null"},
		Detach:  true,
	}
}

// CheckLayout reports whether stagingDir is the directory that extracting
// an archive into extractRoot produces. Any other staging dir would either
// reject every archive or leave the extracted tree behind after cleanup.
func CheckLayout(extractRoot, stagingDir string) error {
	want := filepath.Join(extractRoot, catalog.TreeRoot)
	if filepath.Clean(stagingDir) != want {
		return fmt.Errorf("%w: staging dir %s must be %s", ErrStagingLayout, stagingDir, want)
	}
	return nil
}

// Cleanup removes the staged archive copy, the helper container and the
// extraction directory. keepStaging retains the staged copy and the
// extracted tree. Cleanup is best effort and safe to run repeatedly.
func (p *Pipeline) Cleanup(ctx context.Context, helperStarted, keepStaging bool) []error {
	var errs []error
	_ = telemetry.Step(ctx, p.tracer, "restore."+StageCleanup.String(), func(ctx context.Context) error {
		if keepStaging {
			p.logger.Warn("keeping staging state for inspection", "file", p.cfg.StagingFile, "dir", p.cfg.StagingDir)
		} else if err := os.Remove(p.cfg.StagingFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove staged archive: %w", err))
		}

		if helperStarted {
			if err := p.rt.StopContainer(ctx, p.cfg.HelperName); err != nil {
				p.logger.Debug("stop restore helper", "error", err)
			}
			if err := p.rt.RemoveContainer(ctx, p.cfg.HelperName, true); err != nil {
				errs = append(errs, fmt.Errorf("remove restore helper: %w", err))
			}
		}

		if !keepStaging {
			if err := os.RemoveAll(p.cfg.StagingDir); err != nil {
				errs = append(errs, fmt.Errorf("remove staging dir: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	for _, err := range errs {
		p.logger.Warn("restore cleanup step failed", "error", err)
	}
	return errs
}

// StagingFile returns the configured staging copy path.
func (p *Pipeline) StagingFile() string {
	return p.cfg.StagingFile
}
