// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644))
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 2, 14, 5, 9, 0, time.UTC)
	name := FilenameFor(at)
	assert.Equal(t, "backup-2025-03-02T14-05-09.tar.gz", name)

	parsed, ok := ParseFilename(name)
	require.True(t, ok)
	assert.True(t, parsed.Equal(at))
	assert.Equal(t, "02/03/2025 @ 2:05 PM", FormatDisplay(parsed))
}

func TestFilenameFor_ConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	at := time.Date(2025, 1, 1, 1, 30, 0, 0, zone)
	assert.Equal(t, "backup-2024-12-31T23-30-00.tar.gz", FilenameFor(at))
}

func TestFormatDisplay(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"backup-2025-03-02T00-07-00.tar.gz", "02/03/2025 @ 12:07 AM"},
		{"backup-2025-03-02T12-00-59.tar.gz", "02/03/2025 @ 12:00 PM"},
		{"backup-2024-12-31T23-59-59.tar.gz", "31/12/2024 @ 11:59 PM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := ParseFilename(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.want, FormatDisplay(parsed))
		})
	}

	_, ok := ParseFilename("backup-latest.tar.gz")
	assert.False(t, ok)
}

func TestIsArchiveName(t *testing.T) {
	assert.True(t, IsArchiveName("backup-2025-03-02T14-05-09.tar.gz"))
	assert.True(t, IsArchiveName("backup-manual.tar.gz"))
	assert.False(t, IsArchiveName("notes.txt"))
	assert.False(t, IsArchiveName("backup-.tar.gz"))
	assert.False(t, IsArchiveName("backup-2025.tar"))
}

func TestList_Example(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "backup-2025-03-02T14-05-09.tar.gz", "notes.txt")

	descs, err := New(dir).List()
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "backup-2025-03-02T14-05-09.tar.gz", descs[0].Name)
	assert.Equal(t, "02/03/2025 @ 2:05 PM", descs[0].Display)
	assert.Equal(t, filepath.Join(dir, descs[0].Name), descs[0].Path)
	assert.EqualValues(t, 4, descs[0].Size.Bytes())
}

func TestList_Ordering(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"backup-2024-01-01T00-00-00.tar.gz",
		"backup-zeta.tar.gz",
		"backup-2025-06-01T08-00-00.tar.gz",
		"backup-alpha.tar.gz",
	)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "backup-dir.tar.gz"), 0o755))

	descs, err := New(dir).List()
	require.NoError(t, err)

	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{
		"backup-2025-06-01T08-00-00.tar.gz",
		"backup-2024-01-01T00-00-00.tar.gz",
		"backup-alpha.tar.gz",
		"backup-zeta.tar.gz",
	}, names)
	assert.Equal(t, UnknownDisplay, descs[2].Display)
	assert.False(t, descs[3].Known)
}

func TestList_EmptyOutcomes(t *testing.T) {
	descs, err := New(filepath.Join(t.TempDir(), "missing")).List()
	assert.ErrorIs(t, err, ErrNoArchiveDir)
	assert.NotNil(t, descs)
	assert.Empty(t, descs)

	dir := t.TempDir()
	writeFiles(t, dir, "notes.txt")
	descs, err = New(dir).List()
	assert.ErrorIs(t, err, ErrNoArchives)
	assert.Empty(t, descs)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "backup-2025-03-02T14-05-09.tar.gz")
	c := New(dir)

	d, err := c.Resolve("backup-2025-03-02T14-05-09.tar.gz")
	require.NoError(t, err)
	assert.True(t, d.Known)

	_, err = c.Resolve("backup-2020-01-01T00-00-00.tar.gz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Resolve("../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)

	// Escaping names resolve inside the catalog directory.
	outside := t.TempDir()
	writeFiles(t, outside, "backup-2025-03-02T14-05-09.tar.gz")
	_, err = c.Resolve(filepath.Join("..", filepath.Base(outside), "backup-2025-03-02T14-05-09.tar.gz"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelect_RepromptsUntilValid(t *testing.T) {
	options := []Descriptor{
		{Name: "backup-2025-03-02T14-05-09.tar.gz"},
		{Name: "backup-2025-03-01T10-00-00.tar.gz"},
	}
	answers := []string{"", "nope", "backup-2025-03-01T10-00-00.tar.gz"}
	calls := 0

	got, err := Select(context.Background(), options, func(ctx context.Context, opts []Descriptor) (string, error) {
		answer := answers[calls]
		calls++
		return answer, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "backup-2025-03-01T10-00-00.tar.gz", got.Name)
	assert.Equal(t, 3, calls)
}

func TestSelect_Errors(t *testing.T) {
	_, err := Select(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoArchives)

	wantErr := errors.New("interrupted")
	_, err = Select(context.Background(), []Descriptor{{Name: "a"}}, func(context.Context, []Descriptor) (string, error) {
		return "", wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Select(ctx, []Descriptor{{Name: "a"}}, func(context.Context, []Descriptor) (string, error) {
		return "", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"backup-2025-01-01T00-00-00.tar.gz",
		"backup-2025-01-02T00-00-00.tar.gz",
		"backup-2025-01-03T00-00-00.tar.gz",
		"backup-manual.tar.gz",
	)
	c := New(dir)

	dry, err := c.Prune(1, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Len(t, dry.Removed, 2)
	assert.FileExists(t, filepath.Join(dir, "backup-2025-01-01T00-00-00.tar.gz"))

	res, err := c.Prune(1, false)
	require.NoError(t, err)
	require.Len(t, res.Removed, 2)
	assert.Equal(t, "backup-2025-01-02T00-00-00.tar.gz", res.Removed[0].Name)
	assert.NoFileExists(t, filepath.Join(dir, "backup-2025-01-01T00-00-00.tar.gz"))
	assert.NoFileExists(t, filepath.Join(dir, "backup-2025-01-02T00-00-00.tar.gz"))
	assert.FileExists(t, filepath.Join(dir, "backup-2025-01-03T00-00-00.tar.gz"))
	assert.FileExists(t, filepath.Join(dir, "backup-manual.tar.gz"))
}

func TestPrune_EdgeCases(t *testing.T) {
	_, err := New(t.TempDir()).Prune(-1, false)
	assert.Error(t, err)

	res, err := New(filepath.Join(t.TempDir(), "missing")).Prune(3, false)
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
}
