// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
)

// VolumeUsage is one row of `docker system df -v`.
type VolumeUsage struct {
	Name string

	// Size is the parsed size. Zero when Raw could not be parsed.
	Size datasize.ByteSize

	// Raw is the size exactly as docker printed it, e.g. "1.2GB".
	Raw string
}

// ParseVolumeUsage decodes the `{{ json .Volumes }}` template output.
func ParseVolumeUsage(output string) ([]VolumeUsage, error) {
	output = strings.TrimSpace(output)
	if output == "" || output == "null" {
		return nil, nil
	}

	var rows []struct {
		Name string `json:"Name"`
		Size string `json:"Size"`
	}
	if err := json.Unmarshal([]byte(output), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse volume usage: %w", err)
	}

	usage := make([]VolumeUsage, 0, len(rows))
	for _, row := range rows {
		size, _ := ParseSize(row.Size)
		usage = append(usage, VolumeUsage{Name: row.Name, Size: size, Raw: row.Size})
	}
	return usage, nil
}

// ParseSize converts docker's human sizes ("0B", "532.5kB", "1.2GB") to a
// ByteSize. datasize only accepts integer magnitudes, so the unit is parsed
// by datasize and the fractional magnitude is applied here.
func ParseSize(s string) (datasize.ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("empty size")
	}

	i := 0
	for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	magnitude, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	unit, err := datasize.ParseString("1" + strings.TrimSpace(s[i:]))
	if err != nil {
		return 0, fmt.Errorf("invalid size unit in %q: %w", s, err)
	}

	return datasize.ByteSize(magnitude * float64(unit.Bytes())), nil
}
