// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics is the outcome of one workflow run.
type RunMetrics struct {
	// Workflow is "backup" or "restore".
	Workflow string

	Success  bool
	Duration time.Duration
	Finished time.Time

	// Level is the consistency level of a backup run.
	Level string

	// ArchiveBytes is the size of the archive written or restored.
	ArchiveBytes uint64

	// FailedStep names the step that failed, if any.
	FailedStep string
}

// Recorder collects RunMetrics into a private registry.
type Recorder struct {
	registry *prometheus.Registry

	success      *prometheus.GaugeVec
	lastSuccess  *prometheus.GaugeVec
	lastRun      *prometheus.GaugeVec
	duration     *prometheus.GaugeVec
	archiveBytes *prometheus.GaugeVec
	failures     *prometheus.GaugeVec
}

// NewRecorder creates a recorder with the abr_* gauges registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abr_last_run_success",
			Help: "1 if the last run of the workflow succeeded, 0 otherwise.",
		}, []string{"workflow", "level"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abr_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run of the workflow.",
		}, []string{"workflow"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abr_last_run_timestamp_seconds",
			Help: "Unix time of the last run of the workflow.",
		}, []string{"workflow"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abr_last_run_duration_seconds",
			Help: "Duration of the last run of the workflow.",
		}, []string{"workflow"}),
		archiveBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abr_archive_size_bytes",
			Help: "Size of the archive written or restored by the last run.",
		}, []string{"workflow"}),
		failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abr_last_run_failed_step",
			Help: "1 for the step that failed the last run of the workflow.",
		}, []string{"workflow", "step"}),
	}
	r.registry.MustRegister(r.success, r.lastSuccess, r.lastRun, r.duration, r.archiveBytes, r.failures)
	return r
}

// Observe records m.
func (r *Recorder) Observe(m RunMetrics) {
	if m.Finished.IsZero() {
		m.Finished = time.Now()
	}

	ok := 0.0
	if m.Success {
		ok = 1
		r.lastSuccess.WithLabelValues(m.Workflow).Set(float64(m.Finished.Unix()))
	}
	r.success.WithLabelValues(m.Workflow, m.Level).Set(ok)
	r.lastRun.WithLabelValues(m.Workflow).Set(float64(m.Finished.Unix()))
	r.duration.WithLabelValues(m.Workflow).Set(m.Duration.Seconds())
	r.archiveBytes.WithLabelValues(m.Workflow).Set(float64(m.ArchiveBytes))
	if m.FailedStep != "" {
		r.failures.WithLabelValues(m.Workflow, m.FailedStep).Set(1)
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the registry to <dir>/abr_<workflow>.prom for the
// node exporter's textfile collector. An empty dir is a no-op.
func (r *Recorder) WriteTextfile(dir, workflow string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create metrics dir: %w", err)
	}
	path := filepath.Join(dir, "abr_"+workflow+".prom")
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return "", fmt.Errorf("write metrics textfile: %w", err)
	}
	return path, nil
}
