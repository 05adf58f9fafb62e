// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/abr/cmd/abr/internal/infra/process"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

func newTestExecutor(t *testing.T, fn func(args []string) (string, string, int, error)) (*DefaultExecutor, *process.MockManager) {
	t.Helper()
	mock := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return fn(args)
		},
	}
	exec, err := NewDefaultExecutor(Config{StackDir: "/srv/appwrite"}, mock)
	require.NoError(t, err)
	return exec, mock
}

func TestNewDefaultExecutor_RequiresStackDir(t *testing.T) {
	_, err := NewDefaultExecutor(Config{}, &process.MockManager{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewDefaultExecutor(Config{StackDir: "/srv"}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultExecutor_RunsInStackDir(t *testing.T) {
	exec, mock := newTestExecutor(t, func(args []string) (string, string, int, error) {
		return "", "", 0, nil
	})
	ctx := context.Background()

	_, err := exec.Down(ctx)
	require.NoError(t, err)
	_, err = exec.Up(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"docker compose down", "docker compose up -d"}, mock.CommandLines())
	for _, c := range mock.Calls {
		assert.Equal(t, "/srv/appwrite", c.Dir)
	}
}

func TestDefaultExecutor_ComposeFileAndProject(t *testing.T) {
	mock := &process.MockManager{}
	exec, err := NewDefaultExecutor(Config{
		StackDir:    "/srv/appwrite",
		ComposeFile: "docker-compose.yml",
		ProjectName: "appwrite",
	}, mock)
	require.NoError(t, err)

	_, err = exec.Pause(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"docker compose -f docker-compose.yml -p appwrite pause"}, mock.CommandLines())
}

func TestDefaultExecutor_Pause(t *testing.T) {
	t.Run("already paused", func(t *testing.T) {
		exec, _ := newTestExecutor(t, func(args []string) (string, string, int, error) {
			return "", "Error response from daemon: Container 4f1c is already paused", 1, nil
		})
		result, err := exec.Pause(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAlreadyPaused)
		assert.False(t, result.Success)

		var cmdErr *util.CommandError
		assert.True(t, errors.As(err, &cmdErr))
	})

	t.Run("other failure", func(t *testing.T) {
		exec, _ := newTestExecutor(t, func(args []string) (string, string, int, error) {
			return "", "no configuration file provided: not found", 14, nil
		})
		_, err := exec.Pause(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrAlreadyPaused)
		assert.Contains(t, util.ExtractStderr(err), "no configuration file")
	})
}

func TestDefaultExecutor_UnpauseNotPaused(t *testing.T) {
	exec, _ := newTestExecutor(t, func(args []string) (string, string, int, error) {
		return "", "Error response from daemon: Container 4f1c is not paused", 1, nil
	})
	_, err := exec.Unpause(context.Background())
	require.ErrorIs(t, err, ErrNotPaused)
}

func TestDefaultExecutor_StartFailure(t *testing.T) {
	exec, _ := newTestExecutor(t, func(args []string) (string, string, int, error) {
		return "", "", -1, context.DeadlineExceeded
	})
	result, err := exec.Up(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, result.ExitCode)
}

func TestDefaultExecutor_Status(t *testing.T) {
	exec, mock := newTestExecutor(t, func(args []string) (string, string, int, error) {
		return `{"Name":"appwrite","Service":"appwrite","State":"paused","Status":"Up 2 hours (Paused)"}
{"Name":"appwrite-redis","Service":"redis","State":"running","Status":"Up 2 hours"}
`, "", 0, nil
	})

	status, err := exec.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"docker compose ps -a --format json"}, mock.CommandLines())
	require.Len(t, status.Services, 2)
	assert.Equal(t, "redis", status.Services[1].Service)
	assert.Equal(t, 1, status.Paused)
	assert.Equal(t, 1, status.Running)
	assert.False(t, status.AllPaused())
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		services  int
		running   int
		allPaused bool
		wantErr   bool
	}{
		{name: "empty", input: "  \n", services: 0},
		{
			name:      "array form",
			input:     `[{"Name":"a","Service":"a","State":"paused"},{"Name":"b","Service":"b","State":"Paused"}]`,
			services:  2,
			allPaused: true,
		},
		{
			name:     "lines form",
			input:    `{"Name":"a","Service":"a","State":"running"}`,
			services: 1,
			running:  1,
		},
		{name: "garbage", input: "{oops", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, status.Services, tt.services)
			assert.Equal(t, tt.allPaused, status.AllPaused())
			assert.Equal(t, tt.running, status.Running)
		})
	}
}

func TestMockExecutor_Defaults(t *testing.T) {
	m := &MockExecutor{}
	ctx := context.Background()

	_, err := m.Pause(ctx)
	require.NoError(t, err)
	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Services)
	assert.Equal(t, []string{"Pause", "Status"}, m.CallLog())
}
