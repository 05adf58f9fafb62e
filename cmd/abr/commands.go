// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/abr/cmd/abr/config"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/compose"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/docker"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/process"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/telemetry"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
	"github.com/AleutianAI/abr/cmd/abr/internal/workflow"
	"github.com/AleutianAI/abr/pkg/logging"
	"github.com/AleutianAI/abr/pkg/ux"
)

// Process exit codes.
const (
	ExitOK                 = 0
	ExitFailure            = 1
	ExitRuntimeUnavailable = 2
	ExitPrecondition       = 3
	ExitDeclined           = 4
	ExitStepFailure        = 5
)

// hostLockName serializes the mutating commands on one host.
const hostLockName = "abr"

// promptHints tells a non-interactive run which flag answers each prompt.
var promptHints = map[string]string{
	workflow.LevelPromptTitle:   "--level",
	workflow.ArchivePromptTitle: "--archive",
	workflow.CleanupPromptTitle: "--yes",
}

// =============================================================================
// CLI
// =============================================================================

type rootFlags struct {
	configPath string
	workdir    string
	logLevel   string
	logDir     string
	output     string
}

// backends are the runtime-facing collaborators of a session.
type backends struct {
	Runtime    docker.Runtime
	Compose    compose.Executor
	Process    process.Manager
	HostLock   process.Locker
	HelperLock process.Locker
}

// connector builds the backends for a loaded config.
type connector func(cfg *config.ABRConfig, logger *slog.Logger) (*backends, error)

// session is everything PersistentPreRunE sets up for one command.
type session struct {
	cfg         *config.ABRConfig
	logger      *logging.Logger
	console     *ux.Console
	prompter    ux.Prompter
	tracing     *telemetry.Tracing
	metrics     *telemetry.Recorder
	interactive bool
}

type cli struct {
	in      *os.File
	out     io.Writer
	errOut  io.Writer
	outFile *os.File

	lookupEnv func(string) (string, bool)
	getwd     func() (string, error)
	connect   connector

	// prompter replaces the terminal prompter when set.
	prompter ux.Prompter

	flags   rootFlags
	session *session
}

func newCLI(in, out, errOut *os.File) *cli {
	return &cli{
		in:      in,
		out:     out,
		errOut:  errOut,
		outFile: out,
		connect: dockerBackends,
	}
}

// Execute runs the command line args and returns the process exit code.
func (c *cli) Execute(ctx context.Context, args []string) int {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	err := root.ExecuteContext(ctx)
	code := c.report(err)
	c.close()
	return code
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "abr",
		Short: "Back up and restore an Appwrite stack's Docker volumes",
		Long: `abr captures the named volumes, compose file and .env of an Appwrite
installation into timestamped archives, and restores them onto a clean host.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "path to abr.yaml (default: <workdir>/abr.yaml)")
	pf.StringVar(&c.flags.workdir, "workdir", "", "directory holding the install folder and backups (default: current directory)")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&c.flags.logDir, "log-dir", "", "write JSON logs to this directory")
	pf.StringVar(&c.flags.output, "output", "", "output mode: full, minimal, machine (default: machine when stdout is not a terminal)")

	root.AddCommand(
		c.backupCmd(),
		c.restoreCmd(),
		c.listCmd(),
		c.pruneCmd(),
	)
	return root
}

// setup loads the config and builds the logger, console and prompter.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(config.LoadOptions{
		Path:      c.flags.configPath,
		Workdir:   c.flags.workdir,
		LookupEnv: c.lookupEnv,
		Getwd:     c.getwd,
	})
	if err != nil {
		return err
	}
	if c.flags.logLevel != "" {
		cfg.Log.Level = c.flags.logLevel
	}
	if c.flags.logDir != "" {
		cfg.Log.Dir = c.flags.logDir
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	mode, err := ux.DetectMode(c.flags.output, c.outFile)
	if err != nil {
		return err
	}
	console := ux.NewConsole(mode, c.out, c.errOut)

	// Styled modes keep stderr for the console unless debugging.
	logger, logErr := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: logging.DefaultService,
		JSON:    cfg.Log.JSON,
		Quiet:   mode != ux.ModeMachine && level != logging.LevelDebug,
		Output:  c.errOut,
	})
	if logErr != nil {
		console.Warning("File logging disabled: %v", logErr)
	}
	logger = logger.ForRun(cmd.Name())

	tracing, err := telemetry.NewTracing(cfg.TracingSettings(version))
	if err != nil {
		console.Warning("Tracing disabled: %v", err)
		tracing = telemetry.NoopTracing()
	}

	s := &session{
		cfg:         cfg,
		logger:      logger,
		console:     console,
		tracing:     tracing,
		metrics:     telemetry.NewRecorder(),
		interactive: ux.Interactive(mode, c.in),
	}
	switch {
	case c.prompter != nil:
		s.prompter = c.prompter
	case s.interactive:
		s.prompter = ux.NewHuhPrompter()
	default:
		s.prompter = ux.NonInteractivePrompter{Hints: promptHints}
	}
	c.session = s

	if s.interactive {
		console.Banner()
	}
	logger.Debug("configuration loaded",
		"workdir", cfg.Workdir,
		"install_dir", cfg.Stack.InstallDir,
		"archive_dir", cfg.Archive.Dir,
		"output", string(mode))
	return nil
}

// env builds the workflow environment around b.
func (c *cli) env(b *backends) workflow.Env {
	s := c.session
	return workflow.Env{
		Runtime:    b.Runtime,
		Lifecycle:  stack.NewController(b.Compose, s.logger.Slog()),
		Console:    s.console,
		Prompter:   s.prompter,
		Logger:     s.logger.Slog(),
		Tracer:     s.tracing.Tracer,
		Metrics:    s.metrics,
		MetricsDir: s.cfg.Metrics.Dir,
	}
}

// withHostLock connects the backends and runs fn while holding the host lock.
func (c *cli) withHostLock(fn func(b *backends) error) error {
	b, err := c.connect(c.session.cfg, c.session.logger.Slog())
	if err != nil {
		return err
	}
	if err := b.HostLock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := b.HostLock.Release(); err != nil {
			c.session.logger.Warn("failed to release host lock", "error", err)
		}
	}()
	return fn(b)
}

func (c *cli) close() {
	if c.session == nil {
		return
	}
	if err := c.session.tracing.Shutdown(context.Background()); err != nil {
		c.session.logger.Warn("failed to flush traces", "error", err)
	}
	_ = c.session.logger.Close()
}

// report prints err and maps it to an exit code.
func (c *cli) report(err error) int {
	code := exitCode(err)
	if err == nil {
		return code
	}

	var console *ux.Console
	if c.session != nil {
		console = c.session.console
		attrs := []any{
			"error", err,
			"class", util.ClassOf(err).String(),
			"step", util.StepOf(err),
			"exit_code", code,
		}
		if stderr := util.ExtractStderr(err); stderr != "" {
			attrs = append(attrs, "stderr", stderr)
		}
		c.session.logger.Error("command failed", attrs...)
	} else {
		console = ux.NewConsole(ux.ModeMachine, c.out, c.errOut)
	}

	if code == ExitOK {
		console.Warning("Completed with a bypassed error: %v", err)
		return code
	}
	console.Error("%v", err)
	return code
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, workflow.ErrRuntimeUnavailable) {
		return ExitRuntimeUnavailable
	}
	switch util.ClassOf(err) {
	case util.ClassBenign:
		return ExitOK
	case util.ClassPrecondition:
		return ExitPrecondition
	case util.ClassUserDeclined:
		return ExitDeclined
	case util.ClassStep:
		return ExitStepFailure
	default:
		return ExitFailure
	}
}

// dockerBackends talks to the local docker daemon through the docker CLI.
func dockerBackends(cfg *config.ABRConfig, logger *slog.Logger) (*backends, error) {
	proc := process.NewDefaultManager()
	timeouts := cfg.TimeoutConfig()
	s := cfg.StackSpec()

	exec, err := compose.NewDefaultExecutor(compose.Config{
		StackDir:      s.InstallDir,
		ComposeFile:   s.ComposeFile,
		ProjectName:   s.Project,
		Timeout:       timeouts.Compose,
		StatusTimeout: timeouts.Process,
		Logger:        logger,
	}, proc)
	if err != nil {
		return nil, fmt.Errorf("create compose executor: %w", err)
	}

	return &backends{
		Runtime:    docker.NewDefaultRuntime(docker.Config{Timeouts: timeouts}, proc),
		Compose:    exec,
		Process:    proc,
		HostLock:   process.NewLock(process.LockConfig{LockName: hostLockName}),
		HelperLock: process.NewLock(process.LockConfig{LockName: cfg.Helpers.RestoreContainer}),
	}, nil
}
