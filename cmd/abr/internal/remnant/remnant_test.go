// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remnant

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/abr/cmd/abr/internal/infra/docker"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
)

func TestDetector_Detect(t *testing.T) {
	s := stack.Default(t.TempDir())
	require.NoError(t, os.MkdirAll(s.InstallDir, 0o755))

	rt := &docker.MockRuntime{
		ContainerNamesFunc: func(ctx context.Context, filter string) ([]string, error) {
			return []string{"appwrite", "appwrite-redis"}, nil
		},
		VolumeNamesFunc: func(ctx context.Context, filter string) ([]string, error) {
			return []string{"appwrite_appwrite-cache"}, nil
		},
	}

	got := NewDetector(rt, s, nil).Detect(context.Background())

	assert.Equal(t, []Remnant{
		{Name: "appwrite", Kind: Container},
		{Name: "appwrite-redis", Kind: Container},
		{Name: "appwrite_appwrite-cache", Kind: Volume},
		{Name: s.InstallDir, Kind: Folder},
	}, got)
	assert.Equal(t, []string{"ContainerNames name=appwrite", "VolumeNames name=appwrite"}, rt.CallLog())
}

func TestDetector_FailedQueryDegrades(t *testing.T) {
	s := stack.Default(t.TempDir())
	rt := &docker.MockRuntime{
		ContainerNamesFunc: func(ctx context.Context, filter string) ([]string, error) {
			return nil, errors.New("daemon hiccup")
		},
		VolumeNamesFunc: func(ctx context.Context, filter string) ([]string, error) {
			return []string{"appwrite_appwrite-uploads"}, nil
		},
	}

	got := NewDetector(rt, s, nil).Detect(context.Background())
	assert.Equal(t, []Remnant{{Name: "appwrite_appwrite-uploads", Kind: Volume}}, got)
}

func TestDetector_CleanHost(t *testing.T) {
	s := stack.Default(t.TempDir())
	got := NewDetector(&docker.MockRuntime{}, s, nil).Detect(context.Background())
	assert.Empty(t, got)
}

func TestReconciler_EmptyNeverPrompts(t *testing.T) {
	rt := &docker.MockRuntime{}
	prompted := false
	consent := func(context.Context, []Remnant) (bool, error) {
		prompted = true
		return false, nil
	}

	report, err := NewReconciler(rt, stack.Default(t.TempDir()), nil).Reconcile(context.Background(), nil, consent)
	require.NoError(t, err)
	assert.False(t, prompted)
	assert.False(t, report.Prompted)
	assert.Empty(t, rt.CallLog())
}

func TestReconciler_Declined(t *testing.T) {
	s := stack.Default(t.TempDir())
	require.NoError(t, os.MkdirAll(s.InstallDir, 0o755))
	rt := &docker.MockRuntime{}

	_, err := NewReconciler(rt, s, nil).Reconcile(context.Background(),
		[]Remnant{{Name: s.InstallDir, Kind: Folder}},
		func(context.Context, []Remnant) (bool, error) { return false, nil })

	require.Error(t, err)
	assert.True(t, util.IsClass(err, util.ClassUserDeclined))
	assert.Empty(t, rt.CallLog())
	assert.DirExists(t, s.InstallDir)
}

func TestReconciler_ConsentError(t *testing.T) {
	wantErr := errors.New("no terminal")
	_, err := NewReconciler(&docker.MockRuntime{}, stack.Default(t.TempDir()), nil).Reconcile(context.Background(),
		[]Remnant{{Name: "appwrite", Kind: Container}},
		func(context.Context, []Remnant) (bool, error) { return false, wantErr })
	require.ErrorIs(t, err, wantErr)
}

func TestReconciler_RemovesInOrder(t *testing.T) {
	s := stack.Default(t.TempDir())
	require.NoError(t, os.MkdirAll(s.InstallDir, 0o755))
	require.NoError(t, os.WriteFile(s.EnvFile, []byte("A=1\n"), 0o600))

	rt := &docker.MockRuntime{
		ContainerIDsFunc: func(ctx context.Context, filter string) ([]string, error) {
			return []string{"c1", "c2"}, nil
		},
		VolumeNamesFunc: func(ctx context.Context, filter string) ([]string, error) {
			return []string{"appwrite_appwrite-cache"}, nil
		},
		ImageIDsFunc: func(ctx context.Context, filter string) ([]string, error) {
			return []string{"img1"}, nil
		},
	}
	remnants := []Remnant{
		{Name: "appwrite", Kind: Container},
		{Name: "appwrite_appwrite-cache", Kind: Volume},
		{Name: s.InstallDir, Kind: Folder},
	}

	report, err := NewReconciler(rt, s, nil).Reconcile(context.Background(), remnants, AlwaysConsent)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ContainerIDs label=com.docker.compose.project=appwrite",
		"RemoveContainers [c1 c2 appwrite]",
		"VolumeNames name=appwrite",
		"RemoveVolumes [appwrite_appwrite-cache]",
		"ImageIDs reference=appwrite/*",
		"RemoveImages [img1]",
	}, rt.CallLog())
	assert.Equal(t, 3, report.ContainersRemoved)
	assert.Equal(t, 1, report.VolumesRemoved)
	assert.Equal(t, 1, report.ImagesRemoved)
	assert.True(t, report.FolderRemoved)
	assert.Empty(t, report.Errors)
	assert.NoDirExists(t, s.InstallDir)
}

func TestReconciler_CategoriesAreIndependent(t *testing.T) {
	s := stack.Default(t.TempDir())
	require.NoError(t, os.MkdirAll(s.InstallDir, 0o755))

	rt := &docker.MockRuntime{
		ContainerIDsFunc: func(ctx context.Context, filter string) ([]string, error) {
			return nil, errors.New("ps failed")
		},
		RemoveVolumesFunc: func(ctx context.Context, names []string) error {
			return errors.New("volume is in use")
		},
		ImageIDsFunc: func(ctx context.Context, filter string) ([]string, error) {
			return []string{"img1"}, nil
		},
	}
	remnants := []Remnant{
		{Name: "appwrite_appwrite-cache", Kind: Volume},
		{Name: s.InstallDir, Kind: Folder},
	}

	report, err := NewReconciler(rt, s, nil).Reconcile(context.Background(), remnants, AlwaysConsent)
	require.NoError(t, err)

	assert.Len(t, report.Errors, 2)
	assert.Zero(t, report.ContainersRemoved)
	assert.Zero(t, report.VolumesRemoved)
	assert.Equal(t, 1, report.ImagesRemoved)
	assert.True(t, report.FolderRemoved)
}

func TestOfKind(t *testing.T) {
	remnants := []Remnant{{"a", Container}, {"b", Volume}, {"c", Container}}
	assert.Equal(t, []string{"a", "c"}, OfKind(remnants, Container))
	assert.Empty(t, OfKind(remnants, Folder))
	assert.Equal(t, "folder", Folder.String())
}
