// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remnant finds and clears what a previous installation of the
// managed stack left behind: containers, volumes and the install folder.
//
// Detection never fails as a whole. A runtime query that errors is logged
// and reported as "nothing of that kind". Reconciliation removes each
// category independently so one failing removal never blocks the next.
package remnant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/samber/lo"

	"github.com/AleutianAI/abr/cmd/abr/internal/infra/docker"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

// Kind is the type of a remnant.
type Kind int

const (
	Container Kind = iota + 1
	Volume
	Folder
)

// String returns the kind name shown to the operator.
func (k Kind) String() string {
	switch k {
	case Container:
		return "container"
	case Volume:
		return "volume"
	case Folder:
		return "folder"
	default:
		return "unknown"
	}
}

// Remnant is one leftover piece of a previous installation.
type Remnant struct {
	Name string
	Kind Kind
}

// OfKind returns the names of the remnants of kind k.
func OfKind(remnants []Remnant, k Kind) []string {
	return lo.FilterMap(remnants, func(r Remnant, _ int) (string, bool) {
		return r.Name, r.Kind == k
	})
}

// =============================================================================
// Detector
// =============================================================================

// Detector queries the runtime and the filesystem for remnants.
type Detector struct {
	rt     docker.Runtime
	stack  stack.Stack
	logger *slog.Logger
}

// NewDetector creates a detector for s.
func NewDetector(rt docker.Runtime, s stack.Stack, logger *slog.Logger) *Detector {
	return &Detector{rt: rt, stack: s, logger: orDiscard(logger)}
}

// Detect returns containers and volumes whose names match the stack's name
// filter, then the install folder if it exists. An empty result means the
// host is clean. Detect has no side effects.
func (d *Detector) Detect(ctx context.Context) []Remnant {
	var remnants []Remnant

	containers, err := d.rt.ContainerNames(ctx, d.stack.NameFilterArg())
	if err != nil {
		d.logger.Warn("container query failed, assuming no container remnants", "error", err)
	}
	remnants = append(remnants, toRemnants(containers, Container)...)

	volumes, err := d.rt.VolumeNames(ctx, d.stack.NameFilterArg())
	if err != nil {
		d.logger.Warn("volume query failed, assuming no volume remnants", "error", err)
	}
	remnants = append(remnants, toRemnants(volumes, Volume)...)

	if _, err := os.Stat(d.stack.InstallDir); err == nil {
		remnants = append(remnants, Remnant{Name: d.stack.InstallDir, Kind: Folder})
	} else if !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("install folder check failed, assuming no folder remnant", "path", d.stack.InstallDir, "error", err)
	}

	d.logger.Debug("remnant detection complete", "count", len(remnants))
	return remnants
}

func toRemnants(names []string, k Kind) []Remnant {
	return lo.Map(names, func(name string, _ int) Remnant {
		return Remnant{Name: name, Kind: k}
	})
}

// =============================================================================
// Reconciler
// =============================================================================

// Consent asks the operator whether remnants may be removed.
type Consent func(ctx context.Context, remnants []Remnant) (bool, error)

// AlwaysConsent is the Consent used for --yes.
func AlwaysConsent(context.Context, []Remnant) (bool, error) {
	return true, nil
}

// Report summarizes a reconciliation.
type Report struct {
	// Prompted is false when there was nothing to reconcile.
	Prompted bool

	ContainersRemoved int
	VolumesRemoved    int
	ImagesRemoved     int
	FolderRemoved     bool

	// Errors holds the removal failures that were logged and bypassed.
	Errors []error
}

// Reconciler removes remnants once the operator agreed.
type Reconciler struct {
	rt     docker.Runtime
	stack  stack.Stack
	logger *slog.Logger
}

// NewReconciler creates a reconciler for s.
func NewReconciler(rt docker.Runtime, s stack.Stack, logger *slog.Logger) *Reconciler {
	return &Reconciler{rt: rt, stack: s, logger: orDiscard(logger)}
}

// Reconcile clears remnants.
//
// # Description
//
// With no remnants it returns immediately without calling consent. When
// consent is refused it returns a util.ClassUserDeclined error and removes
// nothing. Otherwise it removes, in order: the project's containers (by
// compose label, plus any detected by name), the stack's volumes, the
// stack's images and the install folder. A failure in one category is
// logged, recorded in the report and does not stop the next.
//
// # Outputs
//
//   - *Report: what was removed
//   - error: only for refused or failed consent
func (r *Reconciler) Reconcile(ctx context.Context, remnants []Remnant, consent Consent) (*Report, error) {
	report := &Report{}
	if len(remnants) == 0 {
		return report, nil
	}

	report.Prompted = true
	ok, err := consent(ctx, remnants)
	if err != nil {
		return report, err
	}
	if !ok {
		return report, util.UserDeclined("remnant-cleanup", "cleanup of the previous installation was declined, restore aborted")
	}

	report.ContainersRemoved = r.removeContainers(ctx, remnants, report)
	report.VolumesRemoved = r.removeVolumes(ctx, remnants, report)
	report.ImagesRemoved = r.removeImages(ctx, report)
	report.FolderRemoved = r.removeFolder(report)

	r.logger.Info("remnant cleanup complete",
		"containers", report.ContainersRemoved,
		"volumes", report.VolumesRemoved,
		"images", report.ImagesRemoved,
		"folder", report.FolderRemoved,
		"errors", len(report.Errors))
	return report, nil
}

func (r *Reconciler) removeContainers(ctx context.Context, remnants []Remnant, report *Report) int {
	ids, err := r.rt.ContainerIDs(ctx, r.stack.ProjectLabelFilterArg())
	if err != nil {
		r.bypass(report, "list project containers", err)
	}
	targets := lo.Uniq(append(ids, OfKind(remnants, Container)...))
	if len(targets) == 0 {
		r.logger.Info("no containers to remove")
		return 0
	}
	if err := r.rt.RemoveContainers(ctx, targets); err != nil {
		r.bypass(report, "remove containers", err)
		return 0
	}
	return len(targets)
}

func (r *Reconciler) removeVolumes(ctx context.Context, remnants []Remnant, report *Report) int {
	names, err := r.rt.VolumeNames(ctx, r.stack.NameFilterArg())
	if err != nil {
		r.bypass(report, "list volumes", err)
	}
	targets := lo.Uniq(append(names, OfKind(remnants, Volume)...))
	if len(targets) == 0 {
		r.logger.Info("no volumes to remove")
		return 0
	}
	if err := r.rt.RemoveVolumes(ctx, targets); err != nil {
		r.bypass(report, "remove volumes", err)
		return 0
	}
	return len(targets)
}

func (r *Reconciler) removeImages(ctx context.Context, report *Report) int {
	ids, err := r.rt.ImageIDs(ctx, r.stack.ImageFilterArg())
	if err != nil {
		r.bypass(report, "list images", err)
		return 0
	}
	if len(ids) == 0 {
		r.logger.Info("no images to remove")
		return 0
	}
	if err := r.rt.RemoveImages(ctx, ids); err != nil {
		r.bypass(report, "remove images", err)
		return 0
	}
	return len(ids)
}

func (r *Reconciler) removeFolder(report *Report) bool {
	if _, err := os.Stat(r.stack.InstallDir); errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err := os.RemoveAll(r.stack.InstallDir); err != nil {
		r.bypass(report, "remove install folder", err)
		return false
	}
	return true
}

func (r *Reconciler) bypass(report *Report, what string, err error) {
	r.logger.Warn("remnant cleanup step failed, continuing", "step", what, "error", err)
	report.Errors = append(report.Errors, fmt.Errorf("%s: %w", what, err))
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
