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
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/AleutianAI/abr/cmd/abr/internal/capture"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/telemetry"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
	"github.com/AleutianAI/abr/pkg/ux"
)

// LevelPromptTitle is the title of the consistency level prompt.
const LevelPromptTitle = "Choose the backup type"

// BackupOptions are the per-run inputs of the backup command.
type BackupOptions struct {
	// Level is the --level flag. Empty means ask the operator.
	Level string

	// Strict turns a failed capture step into a failing exit. By default
	// the failure is reported and the run counts as bypassed.
	Strict bool
}

// Backup runs the backup command.
type Backup struct {
	env        Env
	stack      stack.Stack
	archiveDir string
	pipeline   *capture.Pipeline
}

// NewBackup wires a capture pipeline from cfg and env.
func NewBackup(env Env, cfg capture.Config) *Backup {
	return &Backup{
		env:        env,
		stack:      cfg.Stack,
		archiveDir: cfg.ArchiveDir,
		pipeline:   capture.NewPipeline(cfg, env.Runtime, env.Lifecycle, env.logger(), env.tracer()),
	}
}

// Run executes one backup.
//
// # Description
//
//  1. Probe the runtime and check the installation (compose file + .env).
//  2. Show the volume size report; warn when the archive disk looks short.
//  3. Resolve the level from opts or by asking until one is chosen.
//  4. Capture. The pipeline always applies the post-capture transition.
//  5. Record metrics.
//
// # Outputs
//
//   - *capture.Result: nil when the run stopped before capture
//   - error: classified with util; a bypassed capture failure is
//     util.ClassBenign unless opts.Strict is set
func (b *Backup) Run(ctx context.Context, opts BackupOptions) (res *capture.Result, err error) {
	start := time.Now()
	var level stack.Level

	defer func() {
		m := telemetry.RunMetrics{
			Workflow:   "backup",
			Success:    err == nil,
			Duration:   time.Since(start),
			FailedStep: util.StepOf(err),
		}
		if level != 0 {
			m.Level = level.String()
		}
		if res != nil {
			m.ArchiveBytes = uint64(res.Size)
		}
		b.env.record(m)
	}()

	err = telemetry.Step(ctx, b.env.tracer(), "workflow.backup", func(ctx context.Context) error {
		var runErr error
		level, res, runErr = b.run(ctx, opts)
		return runErr
	})
	return res, err
}

func (b *Backup) run(ctx context.Context, opts BackupOptions) (stack.Level, *capture.Result, error) {
	log := b.env.logger()
	console := b.env.Console

	if err := Probe(ctx, b.env.Runtime); err != nil {
		return 0, nil, err
	}

	info, err := stack.CheckInstall(b.stack)
	if err != nil {
		return 0, nil, err
	}
	log.Info("installation found", "install_dir", b.stack.InstallDir, "app_env", info.AppEnv(), "domain", info.Domain())

	b.preflight(ctx)

	level, err := b.resolveLevel(ctx, opts.Level)
	if err != nil {
		return 0, nil, err
	}

	console.Step("Creating %s backup", level.String())
	spin := console.NewSpinner(fmt.Sprintf("Capturing %d volumes", len(b.stack.Volumes)))
	spin.Start()
	res, err := b.pipeline.Capture(ctx, level)
	bypass := err != nil && util.StepOf(err) == "capture" && util.IsClass(err, util.ClassStep) && !opts.Strict && !res.Post.Failed()
	switch {
	case err == nil:
		spin.StopWithSuccess(fmt.Sprintf("Backup written to %s (%s)", res.ArchivePath, res.Size.HumanReadable()))
	case bypass:
		spin.StopWithWarning(fmt.Sprintf("Capture failed, stack is back up: %v", err))
	case util.StepOf(err) != "":
		spin.StopWithError(fmt.Sprintf("Backup failed at %s", util.StepOf(err)))
	default:
		spin.StopWithError(fmt.Sprintf("Backup failed: %v", err))
	}

	reportTransition(console, res.Pre)
	reportTransition(console, res.Post)

	if bypass {
		return level, res, util.Benign("capture", err)
	}
	return level, res, err
}

// preflight prints the size report. Failures only cost the report.
func (b *Backup) preflight(ctx context.Context) {
	report, err := capture.Check(ctx, b.env.Runtime, b.stack, b.archiveDir)
	if err != nil {
		b.env.logger().Warn("volume size report unavailable", "error", err)
		return
	}
	ShowPreflight(b.env.Console, report)
	if missing := lo.Filter(report.Volumes, func(v capture.VolumeSize, _ int) bool { return v.Missing }); len(missing) > 0 {
		b.env.Console.Warning("%d managed volumes do not exist and will be captured empty", len(missing))
	}
	if report.LowSpace {
		b.env.Console.WarningBox("Low disk space",
			fmt.Sprintf("Volumes total %s but only %s is free for %s. The archive is compressed and may still fit.",
				report.Total.HumanReadable(), report.Free.HumanReadable(), b.archiveDir))
	}
}

func (b *Backup) resolveLevel(ctx context.Context, flag string) (stack.Level, error) {
	if flag != "" {
		return stack.ParseLevel(flag)
	}
	return SelectLevel(ctx, b.env.Prompter)
}

// SelectLevel asks for a consistency level until a valid one is chosen.
func SelectLevel(ctx context.Context, p ux.Prompter) (stack.Level, error) {
	options := lo.Map(stack.Levels(), func(l stack.Level, _ int) ux.PromptOption {
		return ux.PromptOption{
			Label:       l.Description(),
			Value:       l.String(),
			Recommended: l == stack.Cold,
		}
	})
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		choice, err := p.Select(ctx, LevelPromptTitle, options)
		if err != nil {
			return 0, promptError("level-select", err)
		}
		if level, err := stack.ParseLevel(choice); err == nil {
			return level, nil
		}
	}
}

func reportTransition(c *ux.Console, r stack.Result) {
	if r.Transition == stack.None {
		return
	}
	switch r.Outcome {
	case stack.OK:
		c.Success("Stack %s done", r.Transition.String())
	case stack.Benign:
		c.Info("Stack %s skipped, already in that state", r.Transition.String())
	case stack.Fatal:
		c.Error("Stack %s failed: %v", r.Transition.String(), r.Err)
	}
}
