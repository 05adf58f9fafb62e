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
	"sort"

	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"
	"golang.org/x/sys/unix"

	"github.com/AleutianAI/abr/cmd/abr/internal/infra/docker"
	"github.com/AleutianAI/abr/cmd/abr/internal/stack"
)

// VolumeSize is one managed volume in a size report.
type VolumeSize struct {
	Name string

	// Size is the parsed size, Raw what docker printed.
	Size datasize.ByteSize
	Raw  string

	// Missing is true when the runtime does not know the volume.
	Missing bool
}

// Preflight is the pre-capture report shown to the operator.
type Preflight struct {
	Volumes []VolumeSize
	Total   datasize.ByteSize

	// Free is the space available to unprivileged users on the file system
	// holding the archive directory. Zero when unknown.
	Free datasize.ByteSize

	// LowSpace is true when Total exceeds Free. The archive is compressed,
	// so this is a warning only.
	LowSpace bool
}

// Check reports the size of every managed volume and the free space for the
// archive. Errors from the runtime are returned. A failed free-space probe
// only leaves Free at zero.
func Check(ctx context.Context, rt docker.Runtime, s stack.Stack, archiveDir string) (*Preflight, error) {
	usage, err := rt.VolumeUsage(ctx)
	if err != nil {
		return nil, err
	}
	byName := lo.SliceToMap(usage, func(u docker.VolumeUsage) (string, docker.VolumeUsage) {
		return u.Name, u
	})

	report := &Preflight{}
	for _, name := range s.Volumes {
		u, ok := byName[name]
		report.Volumes = append(report.Volumes, VolumeSize{Name: name, Size: u.Size, Raw: u.Raw, Missing: !ok})
		report.Total += u.Size
	}
	sort.SliceStable(report.Volumes, func(i, j int) bool {
		return report.Volumes[i].Size > report.Volumes[j].Size
	})

	if free, err := FreeSpace(archiveDir); err == nil {
		report.Free = free
		report.LowSpace = report.Total > free
	}
	return report, nil
}

// FreeSpace returns the space available on the file system holding path.
// When path does not exist yet the nearest existing parent is used.
func FreeSpace(path string) (datasize.ByteSize, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return datasize.ByteSize(st.Bavail * uint64(st.Bsize)), nil
}
