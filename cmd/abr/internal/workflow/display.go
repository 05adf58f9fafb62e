// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/AleutianAI/abr/cmd/abr/internal/capture"
	"github.com/AleutianAI/abr/cmd/abr/internal/catalog"
	"github.com/AleutianAI/abr/cmd/abr/internal/remnant"
	"github.com/AleutianAI/abr/pkg/ux"
)

// ShowRemnants prints the leftovers of a previous installation.
func ShowRemnants(c *ux.Console, remnants []remnant.Remnant) {
	c.Table([]string{"NAME", "KIND"}, lo.Map(remnants, func(r remnant.Remnant, _ int) []string {
		return []string{r.Name, r.Kind.String()}
	}))
}

// ShowPreflight prints the volume size report and the free-space summary.
func ShowPreflight(c *ux.Console, p *capture.Preflight) {
	c.Table([]string{"VOLUME", "SIZE"}, lo.Map(p.Volumes, func(v capture.VolumeSize, _ int) []string {
		size := v.Size.HumanReadable()
		if v.Missing {
			size = "missing"
		} else if v.Raw != "" {
			size = v.Raw
		}
		return []string{v.Name, size}
	}))
	c.Info("Total volume size: %s", p.Total.HumanReadable())
	if p.Free > 0 {
		c.Info("Free space for archives: %s", p.Free.HumanReadable())
	}
}

// ShowCatalog prints the archives, numbered in catalog order.
func ShowCatalog(c *ux.Console, descs []catalog.Descriptor) {
	c.Table([]string{"#", "DATE", "ARCHIVE", "SIZE"}, lo.Map(descs, func(d catalog.Descriptor, i int) []string {
		return []string{strconv.Itoa(i + 1), d.Display, d.Name, d.Size.HumanReadable()}
	}))
}
