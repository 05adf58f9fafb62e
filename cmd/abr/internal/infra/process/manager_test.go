// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultManager_RunInDir_CapturesExitCode(t *testing.T) {
	pm := NewDefaultManager()
	dir := t.TempDir()

	stdout, stderr, code, err := pm.RunInDir(context.Background(), dir, []string{"ABR_TEST=value"},
		"sh", "-c", `pwd; echo "$ABR_TEST" >&2; exit 3`)

	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, stdout, dir)
	assert.Equal(t, "value\n", stderr)
}

func TestDefaultManager_RunInDir_MissingBinary(t *testing.T) {
	pm := NewDefaultManager()

	_, _, code, err := pm.RunInDir(context.Background(), "", nil, "abr-definitely-not-a-binary")

	require.Error(t, err)
	assert.Equal(t, -1, code)
}

func TestDefaultManager_RunInDir_Timeout(t *testing.T) {
	pm := NewDefaultManager()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, code, err := pm.RunInDir(ctx, "", nil, "sleep", "5")

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, code)
}

func TestDefaultManager_Run(t *testing.T) {
	pm := NewDefaultManager()

	out, err := pm.Run(context.Background(), "sh", "-c", "echo ok")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(out))

	_, err = pm.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestMockManager_RecordsCalls(t *testing.T) {
	mock := &MockManager{}

	_, _, _, err := mock.RunInDir(context.Background(), "/stack", nil, "docker", "compose", "pause")
	require.NoError(t, err)
	_, err = mock.Run(context.Background(), "docker", "info")
	require.NoError(t, err)

	assert.Equal(t, []string{"docker compose pause", "docker info"}, mock.CommandLines())
	assert.Equal(t, "/stack", mock.Calls[0].Dir)
}

func TestMockManager_RunReportsExitCode(t *testing.T) {
	mock := &MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "daemon down", 1, nil
		},
	}

	_, err := mock.Run(context.Background(), "docker", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon down")
}
