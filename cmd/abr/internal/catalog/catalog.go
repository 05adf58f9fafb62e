// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog enumerates the archives in the archive directory, parses
// their timestamps for display and resolves an operator's choice back to a
// file.
//
// The catalog is recomputed from the directory on every call. Nothing is
// cached between invocations.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	securejoin "github.com/cyphar/filepath-securejoin"
)

const (
	// FilenameLayout is the time layout of archive names.
	FilenameLayout = "backup-2006-01-02T15-04-05.tar.gz"

	// DisplayLayout renders archive times as DD/MM/YYYY @ h:mm AM/PM.
	DisplayLayout = "02/01/2006 @ 3:04 PM"

	// UnknownDisplay is shown for archives whose name carries no timestamp.
	UnknownDisplay = "Unknown"

	// TreeRoot is the top-level directory of every archive. Capture mounts
	// the volumes under /<TreeRoot>; extraction recreates it as a directory.
	TreeRoot = "backup"

	archivePrefix = "backup-"
	archiveSuffix = ".tar.gz"
)

var (
	// ErrNoArchiveDir is returned by List when the archive directory is absent.
	ErrNoArchiveDir = errors.New("no backups directory found")

	// ErrNoArchives is returned by List when the directory holds no archives.
	ErrNoArchives = errors.New("no backup files found")

	// ErrNotFound is returned by Resolve for a name that is not in the catalog.
	ErrNotFound = errors.New("backup not found in catalog")
)

// FilenameFor returns the archive name for a capture taken at t (UTC).
func FilenameFor(t time.Time) string {
	return t.UTC().Format(FilenameLayout)
}

// ParseFilename extracts the capture time from an archive name.
func ParseFilename(name string) (time.Time, bool) {
	t, err := time.ParseInLocation(FilenameLayout, name, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDisplay renders t with DisplayLayout.
func FormatDisplay(t time.Time) string {
	return t.Format(DisplayLayout)
}

// IsArchiveName reports whether name looks like an archive (backup-*.tar.gz).
func IsArchiveName(name string) bool {
	return strings.HasPrefix(name, archivePrefix) &&
		strings.HasSuffix(name, archiveSuffix) &&
		len(name) > len(archivePrefix)+len(archiveSuffix)
}

// Descriptor is one catalog entry.
type Descriptor struct {
	// Name is the file name inside the archive directory.
	Name string

	// Path is the absolute path of the archive.
	Path string

	// Timestamp is the parsed capture time. Zero when Known is false.
	Timestamp time.Time
	Known     bool

	// Display is the formatted Timestamp, or UnknownDisplay.
	Display string

	Size datasize.ByteSize
}

// Label is the text offered when selecting d.
func (d Descriptor) Label() string {
	return fmt.Sprintf("%s  (%s, %s)", d.Display, d.Name, d.Size.HumanReadable())
}

func describe(dir, name string, size int64) Descriptor {
	d := Descriptor{
		Name:    name,
		Path:    filepath.Join(dir, name),
		Display: UnknownDisplay,
		Size:    datasize.ByteSize(max(size, 0)),
	}
	if t, ok := ParseFilename(name); ok {
		d.Timestamp, d.Known, d.Display = t, true, FormatDisplay(t)
	}
	return d
}

// Catalog reads archives from one directory.
type Catalog struct {
	dir string
}

// New returns the catalog of dir.
func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the archive directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns the archives, newest first. Archives whose name does not
// parse follow, ordered by name.
//
// # Outputs
//
//   - []Descriptor: never nil
//   - error: ErrNoArchiveDir or ErrNoArchives for the expected empty
//     outcomes, another error if the directory cannot be read
func (c *Catalog) List() ([]Descriptor, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Descriptor{}, ErrNoArchiveDir
		}
		return []Descriptor{}, fmt.Errorf("failed to read backups directory: %w", err)
	}

	descs := []Descriptor{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsArchiveName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		descs = append(descs, describe(c.dir, entry.Name(), info.Size()))
	}

	if len(descs) == 0 {
		return descs, ErrNoArchives
	}

	sort.SliceStable(descs, func(i, j int) bool {
		a, b := descs[i], descs[j]
		if a.Known != b.Known {
			return a.Known
		}
		if a.Known && !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Name < b.Name
	})
	return descs, nil
}

// Resolve returns the descriptor of the archive called name.
//
// # Description
//
// name is joined to the archive directory with securejoin, so a name that
// tries to escape the directory resolves inside it and then fails the
// existence check.
func (c *Catalog) Resolve(name string) (Descriptor, error) {
	if !IsArchiveName(filepath.Base(name)) {
		return Descriptor{}, fmt.Errorf("%w: %q is not a backup archive name", ErrNotFound, name)
	}
	path, err := securejoin.SecureJoin(c.dir, name)
	if err != nil {
		return Descriptor{}, fmt.Errorf("invalid backup name %q: %w", name, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !info.Mode().IsRegular() {
		return Descriptor{}, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, name)
	}

	d := describe(filepath.Dir(path), filepath.Base(path), info.Size())
	return d, nil
}

// Chooser asks the operator to pick one of options and returns the chosen
// Name. An empty return means nothing was picked.
type Chooser func(ctx context.Context, options []Descriptor) (string, error)

// Select asks choose until it returns the name of one of options.
func Select(ctx context.Context, options []Descriptor, choose Chooser) (Descriptor, error) {
	if len(options) == 0 {
		return Descriptor{}, ErrNoArchives
	}
	for {
		if err := ctx.Err(); err != nil {
			return Descriptor{}, err
		}
		name, err := choose(ctx, options)
		if err != nil {
			return Descriptor{}, err
		}
		for _, d := range options {
			if name != "" && d.Name == name {
				return d, nil
			}
		}
	}
}

// PruneResult lists the archives Prune removed, or would remove.
type PruneResult struct {
	Kept    []Descriptor
	Removed []Descriptor
	DryRun  bool
}

// Prune deletes the oldest archives, keeping the newest keep. Archives with
// unparsable names are never deleted.
func (c *Catalog) Prune(keep int, dryRun bool) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative, got %d", keep)
	}

	descs, err := c.List()
	if err != nil {
		if errors.Is(err, ErrNoArchives) || errors.Is(err, ErrNoArchiveDir) {
			return &PruneResult{DryRun: dryRun}, nil
		}
		return nil, err
	}

	result := &PruneResult{DryRun: dryRun}
	known := 0
	for _, d := range descs {
		if !d.Known || known < keep {
			if d.Known {
				known++
			}
			result.Kept = append(result.Kept, d)
			continue
		}
		result.Removed = append(result.Removed, d)
	}

	if dryRun {
		return result, nil
	}

	var errs []error
	for _, d := range result.Removed {
		if err := os.Remove(d.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", d.Name, err))
		}
	}
	return result, errors.Join(errs...)
}
