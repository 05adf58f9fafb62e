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

	"github.com/AleutianAI/abr/cmd/abr/internal/catalog"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/process"
	"github.com/AleutianAI/abr/cmd/abr/internal/remnant"
	"github.com/AleutianAI/abr/cmd/abr/internal/restore"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/telemetry"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
	"github.com/AleutianAI/abr/pkg/ux"
)

// Prompt titles, also used as keys for non-interactive flag hints.
const (
	ArchivePromptTitle = "Choose the backup to restore"
	CleanupPromptTitle = "Remove the previous installation before restoring?"
)

// RestoreOptions are the per-run inputs of the restore command.
type RestoreOptions struct {
	// Archive is the --archive flag, a catalog file name. Empty means ask.
	Archive string

	// Yes consents to remnant cleanup without asking.
	Yes bool
}

// RestoreReport traces one restore run through the workflow stages.
type RestoreReport struct {
	// Stages lists every stage entered, in order, ending in StageDone or
	// StageFailed.
	Stages []restore.Stage

	Remnants []remnant.Remnant
	Cleanup  *remnant.Report
	Archive  catalog.Descriptor

	// Result is nil when the run stopped before the restore pipeline.
	Result *restore.Result

	// Restart is nil when the stack was not restarted.
	Restart *stack.Result
}

func (r *RestoreReport) enter(s restore.Stage) {
	r.Stages = append(r.Stages, s)
}

// Final is the last stage entered.
func (r *RestoreReport) Final() restore.Stage {
	if len(r.Stages) == 0 {
		return restore.StageIdle
	}
	return r.Stages[len(r.Stages)-1]
}

// Restore runs the restore command.
type Restore struct {
	env        Env
	detector   *remnant.Detector
	reconciler *remnant.Reconciler
	catalog    *catalog.Catalog
	pipeline   *restore.Pipeline
}

// NewRestore wires the remnant, catalog and restore components.
//
// # Inputs
//
//   - env: shared collaborators
//   - cfg: restore pipeline settings; cfg.Stack is the managed stack
//   - archiveDir: the catalog folder
//   - proc: runs the archive tool
//   - locker: host lock keyed by the restore helper name
func NewRestore(env Env, cfg restore.Config, archiveDir string, proc process.Manager, locker process.Locker) *Restore {
	log := env.logger()
	return &Restore{
		env:        env,
		detector:   remnant.NewDetector(env.Runtime, cfg.Stack, log),
		reconciler: remnant.NewReconciler(env.Runtime, cfg.Stack, log),
		catalog:    catalog.New(archiveDir),
		pipeline:   restore.NewPipeline(cfg, env.Runtime, proc, locker, log, env.tracer()),
	}
}

// Run executes one restore.
//
// # Description
//
// Idle → RemnantCheck → CatalogSelect → Stage → Extract → HelperUp →
// CopyIn → Cleanup → LifecycleRestart → Done, with Failed replacing the
// tail on an unrecoverable error.
//
// The catalog is checked before any remnant is removed, so an empty or
// missing archive folder aborts while the old installation is intact.
// Remnant cleanup needs consent; a refusal ends the run with a
// user-declined error before any restore step. The stack is brought up
// after a successful restore, and after a failure once the helper had been
// created. Earlier failures leave the runtime as it was.
//
// # Outputs
//
//   - *RestoreReport: always non-nil
//   - error: classified with util
func (r *Restore) Run(ctx context.Context, opts RestoreOptions) (rep *RestoreReport, err error) {
	start := time.Now()
	rep = &RestoreReport{}
	rep.enter(restore.StageIdle)

	defer func() {
		if err != nil {
			rep.enter(restore.StageFailed)
		} else {
			rep.enter(restore.StageDone)
		}
		m := telemetry.RunMetrics{
			Workflow:   "restore",
			Success:    err == nil,
			Duration:   time.Since(start),
			FailedStep: util.StepOf(err),
		}
		if rep.Result != nil {
			m.ArchiveBytes = uint64(rep.Result.Bytes)
		}
		r.env.record(m)
	}()

	err = telemetry.Step(ctx, r.env.tracer(), "workflow.restore", func(ctx context.Context) error {
		return r.run(ctx, opts, rep)
	})
	return rep, err
}

func (r *Restore) run(ctx context.Context, opts RestoreOptions, rep *RestoreReport) error {
	console := r.env.Console
	log := r.env.logger()

	if err := Probe(ctx, r.env.Runtime); err != nil {
		return err
	}

	rep.enter(restore.StageRemnantCheck)
	rep.Remnants = r.detector.Detect(ctx)

	archives, chosen, err := r.precheckCatalog(opts.Archive)
	if err != nil {
		return err
	}

	if len(rep.Remnants) > 0 {
		console.Warning("Found %d leftovers of a previous installation", len(rep.Remnants))
		ShowRemnants(console, rep.Remnants)
	}
	consent := remnant.AlwaysConsent
	if !opts.Yes {
		consent = r.askConsent
	}
	rep.Cleanup, err = r.reconciler.Reconcile(ctx, rep.Remnants, consent)
	if err != nil {
		return err
	}
	for _, cerr := range rep.Cleanup.Errors {
		console.Warning("Cleanup step skipped: %v", cerr)
	}
	if rep.Cleanup.Prompted {
		console.Success("Previous installation removed")
	}

	rep.enter(restore.StageCatalogSelect)
	if chosen == nil {
		ShowCatalog(console, archives)
		d, err := catalog.Select(ctx, archives, r.chooseArchive)
		if err != nil {
			return promptError("catalog-select", err)
		}
		chosen = &d
	}
	rep.Archive = *chosen
	log.Info("archive selected", "archive", chosen.Name, "taken", chosen.Display)

	console.Step("Restoring %s", chosen.Label())
	spin := console.NewSpinner("Restoring volumes")
	spin.Start()
	result, restoreErr := r.pipeline.Restore(ctx, chosen.Path)
	if restoreErr != nil {
		spin.StopWithError(fmt.Sprintf("Restore failed at %s: %v", result.FailedAt.String(), restoreErr))
	} else {
		spin.StopWithSuccess(fmt.Sprintf("Volumes restored from %s", chosen.Name))
	}

	rep.Result = result
	rep.Stages = append(rep.Stages, pipelineStages(result)...)
	for _, cerr := range result.CleanupErrors {
		console.Warning("Cleanup: %v", cerr)
	}
	if result.StagingKept {
		console.Info("Staging kept for inspection: %s", r.pipeline.StagingFile())
	}

	if restoreErr == nil || result.FailedAt.NeedsRestart() {
		rep.enter(restore.StageLifecycleRestart)
		restart := r.env.Lifecycle.Restart(context.WithoutCancel(ctx))
		rep.Restart = &restart
		reportTransition(console, restart)
		if restart.Failed() && restoreErr == nil {
			return restart.Err
		}
	}

	if restoreErr != nil {
		return restoreErr
	}
	console.Success("Restored %s", chosen.Name)
	return nil
}

// precheckCatalog reads the catalog before anything is removed. With an
// explicit name it resolves that archive; otherwise it lists all of them.
func (r *Restore) precheckCatalog(name string) ([]catalog.Descriptor, *catalog.Descriptor, error) {
	if name != "" {
		d, err := r.catalog.Resolve(name)
		if err != nil {
			return nil, nil, util.Precondition("catalog-select", err)
		}
		return nil, &d, nil
	}
	descs, err := r.catalog.List()
	if err != nil {
		return nil, nil, util.Precondition("catalog-select", fmt.Errorf("%s: %w", r.catalog.Dir(), err))
	}
	return descs, nil, nil
}

func (r *Restore) askConsent(ctx context.Context, remnants []remnant.Remnant) (bool, error) {
	ok, err := r.env.Prompter.Confirm(ctx, CleanupPromptTitle, false)
	if err != nil {
		return false, promptError("remnant-cleanup", err)
	}
	return ok, nil
}

func (r *Restore) chooseArchive(ctx context.Context, options []catalog.Descriptor) (string, error) {
	return r.env.Prompter.Select(ctx, ArchivePromptTitle, lo.Map(options, func(d catalog.Descriptor, i int) ux.PromptOption {
		return ux.PromptOption{Label: d.Label(), Value: d.Name, Recommended: i == 0 && d.Known}
	}))
}

// pipelineStages lists the pipeline stages a result passed through,
// ending with Cleanup, which the pipeline always runs once started.
func pipelineStages(res *restore.Result) []restore.Stage {
	last := restore.StageCopyIn
	if res.Failed {
		last = res.FailedAt
	}
	var stages []restore.Stage
	for s := restore.StageStaging; s <= last; s++ {
		stages = append(stages, s)
	}
	return append(stages, restore.StageCleanup)
}
