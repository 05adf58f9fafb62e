// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/abr/cmd/abr/internal/catalog"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/compose"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/docker"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

var fixedNow = time.Date(2025, 3, 2, 14, 5, 9, 0, time.UTC)

type fixture struct {
	pipeline   *Pipeline
	rt         *docker.MockRuntime
	exec       *compose.MockExecutor
	archiveDir string
}

// newFixture builds a pipeline whose helper writes the archive it was asked
// for, like the real helper does.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	work := t.TempDir()
	f := &fixture{
		exec:       &compose.MockExecutor{},
		archiveDir: filepath.Join(work, "backups"),
	}
	f.rt = &docker.MockRuntime{
		RunFunc: func(ctx context.Context, spec docker.RunSpec) (string, error) {
			name := spec.Env["BACKUP_FILENAME"]
			return "", os.WriteFile(filepath.Join(f.archiveDir, name), []byte("tarball"), 0o644)
		},
	}
	cfg := Config{
		Stack:      stack.Default(work),
		ArchiveDir: f.archiveDir,
		Clock:      func() time.Time { return fixedNow },
	}
	f.pipeline = NewPipeline(cfg, f.rt, stack.NewController(f.exec, nil), nil, nil)
	return f
}

func archiveCount(t *testing.T, dir string) int {
	t.Helper()
	descs, _ := catalog.New(dir).List()
	return len(descs)
}

func TestCapture_Levels(t *testing.T) {
	tests := []struct {
		level stack.Level
		calls []string
	}{
		{stack.Hot, nil},
		{stack.SemiCold, []string{"Status", "Pause", "Unpause"}},
		{stack.Cold, []string{"Down", "Up"}},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			f := newFixture(t)

			res, err := f.pipeline.Capture(context.Background(), tt.level)
			require.NoError(t, err)

			assert.Equal(t, tt.calls, f.exec.CallLog())
			assert.Equal(t, "backup-2025-03-02T14-05-09.tar.gz", res.ArchiveName)
			assert.FileExists(t, res.ArchivePath)
			assert.Equal(t, datasize.ByteSize(7), res.Size)
			assert.Equal(t, 1, archiveCount(t, f.archiveDir))
			assert.False(t, res.Post.Failed())
		})
	}
}

func TestCapture_FailedCaptureStillResumes(t *testing.T) {
	for _, level := range []stack.Level{stack.SemiCold, stack.Cold} {
		t.Run(level.String(), func(t *testing.T) {
			f := newFixture(t)
			f.rt.RunFunc = func(ctx context.Context, spec docker.RunSpec) (string, error) {
				return "", util.NewCommandError("docker run", 125, "pull access denied", nil)
			}

			res, err := f.pipeline.Capture(context.Background(), level)
			require.Error(t, err)
			assert.True(t, util.IsClass(err, util.ClassStep))
			assert.Equal(t, "capture", util.StepOf(err))

			_, post := level.Transitions()
			assert.Equal(t, post, res.Post.Transition)
			assert.Equal(t, stack.OK, res.Post.Outcome)
			calls := f.exec.CallLog()
			assert.Contains(t, []string{"Unpause", "Up"}, calls[len(calls)-1])
		})
	}
}

func TestCapture_AlreadyPausedIsNotAFailure(t *testing.T) {
	f := newFixture(t)
	f.exec.PauseFunc = func(ctx context.Context) (*compose.Result, error) {
		return &compose.Result{ExitCode: 1}, compose.ErrAlreadyPaused
	}

	res, err := f.pipeline.Capture(context.Background(), stack.SemiCold)
	require.NoError(t, err)
	assert.Equal(t, stack.Benign, res.Pre.Outcome)
	assert.FileExists(t, res.ArchivePath)
}

func TestCapture_StopFailureAbortsButRestarts(t *testing.T) {
	f := newFixture(t)
	f.exec.DownFunc = func(ctx context.Context) (*compose.Result, error) {
		return &compose.Result{ExitCode: 1}, errors.New("network appwrite has active endpoints")
	}

	res, err := f.pipeline.Capture(context.Background(), stack.Cold)
	require.Error(t, err)
	assert.Equal(t, "stop", util.StepOf(err))
	assert.Empty(t, f.rt.RunSpecs, "capture must not run after a failed stop")
	assert.Equal(t, []string{"Down", "Up"}, f.exec.CallLog())
	assert.Equal(t, stack.OK, res.Post.Outcome)
	assert.Zero(t, archiveCount(t, f.archiveDir))
}

func TestCapture_RestartFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.exec.UpFunc = func(ctx context.Context) (*compose.Result, error) {
		return nil, errors.New("port 80 already allocated")
	}

	res, err := f.pipeline.Capture(context.Background(), stack.Cold)
	require.Error(t, err)
	assert.Equal(t, "restart", util.StepOf(err))
	assert.FileExists(t, res.ArchivePath)
}

func TestCapture_PostRunsAfterCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	var postCtxErr error
	f.rt.RunFunc = func(ctx context.Context, spec docker.RunSpec) (string, error) {
		cancel()
		return "", ctx.Err()
	}
	f.exec.UnpauseFunc = func(ctx context.Context) (*compose.Result, error) {
		postCtxErr = ctx.Err()
		return &compose.Result{Success: true}, nil
	}

	_, err := f.pipeline.Capture(ctx, stack.SemiCold)
	require.Error(t, err)
	assert.NoError(t, postCtxErr)
	assert.Contains(t, f.exec.CallLog(), "Unpause")
}

func TestCapture_MissingArchive(t *testing.T) {
	f := newFixture(t)
	f.rt.RunFunc = func(ctx context.Context, spec docker.RunSpec) (string, error) {
		return "", nil
	}

	_, err := f.pipeline.Capture(context.Background(), stack.Hot)
	require.ErrorIs(t, err, ErrArchiveMissing)
}

func TestHelperSpec(t *testing.T) {
	f := newFixture(t)
	spec := f.pipeline.HelperSpec("backup-2025-03-02T14-05-09.tar.gz")
	s := f.pipeline.cfg.Stack

	assert.Equal(t, DefaultHelperImage, spec.Image)
	assert.Equal(t, "backup", spec.Entrypoint)
	assert.True(t, spec.Remove)
	assert.Equal(t, "backup-2025-03-02T14-05-09.tar.gz", spec.Env["BACKUP_FILENAME"])
	require.Len(t, spec.Mounts, len(s.Volumes)+3)

	assert.Equal(t, docker.Mount{
		Source: "appwrite_appwrite-redis", Target: "/backup/appwrite_appwrite-redis", ReadOnly: true,
	}, spec.Mounts[0])
	assert.Equal(t, docker.Mount{
		Source: s.EnvFile, Target: "/backup/appwrite/.env", ReadOnly: true,
	}, spec.Mounts[len(s.Volumes)])
	assert.Equal(t, docker.Mount{
		Source: s.ComposeFile, Target: "/backup/appwrite/docker-compose.yml", ReadOnly: true,
	}, spec.Mounts[len(s.Volumes)+1])
	assert.Equal(t, docker.Mount{Source: f.archiveDir, Target: "/archive"}, spec.Mounts[len(s.Volumes)+2])
}

func TestCheck(t *testing.T) {
	s := stack.Default(t.TempDir())
	rt := &docker.MockRuntime{
		VolumeUsageFunc: func(ctx context.Context) ([]docker.VolumeUsage, error) {
			return []docker.VolumeUsage{
				{Name: "appwrite_appwrite-mariadb", Size: 200 * datasize.MB, Raw: "209.7MB"},
				{Name: "appwrite_appwrite-cache", Size: 1 * datasize.KB, Raw: "1.024kB"},
				{Name: "unrelated", Size: 10 * datasize.GB, Raw: "10.7GB"},
			}, nil
		},
	}

	report, err := Check(context.Background(), rt, s, filepath.Join(t.TempDir(), "not-yet", "backups"))
	require.NoError(t, err)

	require.Len(t, report.Volumes, len(s.Volumes))
	assert.Equal(t, "appwrite_appwrite-mariadb", report.Volumes[0].Name)
	assert.Equal(t, 200*datasize.MB+datasize.KB, report.Total)
	assert.Greater(t, report.Free, datasize.ByteSize(0))

	missing := 0
	for _, v := range report.Volumes {
		if v.Missing {
			missing++
		}
	}
	assert.Equal(t, len(s.Volumes)-2, missing)
}

func TestCheck_RuntimeError(t *testing.T) {
	rt := &docker.MockRuntime{
		VolumeUsageFunc: func(ctx context.Context) ([]docker.VolumeUsage, error) {
			return nil, errors.New("df failed")
		},
	}
	_, err := Check(context.Background(), rt, stack.Default(t.TempDir()), t.TempDir())
	assert.Error(t, err)
}
