// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package restore

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/samber/lo"
)

// ErrInvalidArchive is returned when a staged archive is unreadable or
// holds entries that would land outside the staging directory.
var ErrInvalidArchive = errors.New("invalid backup archive")

// ErrStagingLayout is returned when the staging dir is not the extracted
// archive's top-level directory.
var ErrStagingLayout = errors.New("staging dir does not match the archive layout")

// Manifest summarizes a validated archive.
type Manifest struct {
	// Entries is the number of tar entries.
	Entries int

	// Bytes is the total size of regular files.
	Bytes int64

	// Roots are the directories directly below the staging tree, one per
	// captured volume plus the stack folder.
	Roots []string
}

// Missing returns the names in want that the archive does not contain.
func (m *Manifest) Missing(want []string) []string {
	have := lo.SliceToMap(m.Roots, func(r string) (string, struct{}) { return r, struct{}{} })
	return lo.Filter(want, func(name string, _ int) bool {
		_, ok := have[name]
		return !ok
	})
}

// validateEntryName rejects absolute names and names that climb out of the
// extraction root.
func validateEntryName(name string) error {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(name) || filepath.IsAbs(cleaned) {
		return fmt.Errorf("%w: absolute path %q", ErrInvalidArchive, name)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) ||
		strings.Contains(cleaned, string(filepath.Separator)+".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: path traversal in %q", ErrInvalidArchive, name)
	}
	return nil
}

// InspectArchive reads the gzip-compressed tar at path without extracting
// it. Every entry must resolve inside root and below the top-level
// directory treeName, which is what extraction into root turns into the
// staging directory.
func InspectArchive(path, root, treeName string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open staged archive: %w", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer gzr.Close()

	tree := filepath.Join(root, treeName)
	roots := map[string]struct{}{}
	m := &Manifest{}
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}

		if err := validateEntryName(header.Name); err != nil {
			return nil, err
		}
		target, err := securejoin.SecureJoin(root, header.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		if target != tree && !strings.HasPrefix(target, tree+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: entry %q is outside %s/", ErrInvalidArchive, header.Name, treeName)
		}

		m.Entries++
		if header.Typeflag == tar.TypeReg {
			m.Bytes += header.Size
		}
		if rel := strings.TrimPrefix(target, tree+string(filepath.Separator)); rel != target {
			roots[strings.SplitN(rel, string(filepath.Separator), 2)[0]] = struct{}{}
		}
	}

	if m.Entries == 0 {
		return nil, fmt.Errorf("%w: archive is empty", ErrInvalidArchive)
	}
	m.Roots = lo.Keys(roots)
	sort.Strings(m.Roots)
	return m, nil
}
