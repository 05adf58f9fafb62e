// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/abr/cmd/abr/internal/catalog"
	"github.com/AleutianAI/abr/cmd/abr/internal/util"
	"github.com/AleutianAI/abr/cmd/abr/internal/workflow"
)

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the archives in the catalog, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.New(c.session.cfg.Archive.Dir)
			descs, err := cat.List()
			if err != nil {
				switch {
				case errors.Is(err, catalog.ErrNoArchiveDir):
					c.session.console.Info("No backups directory at %s", cat.Dir())
					return nil
				case errors.Is(err, catalog.ErrNoArchives):
					c.session.console.Info("No backups in %s", cat.Dir())
					return nil
				}
				return util.Precondition("catalog-list", fmt.Errorf("%s: %w", cat.Dir(), err))
			}
			workflow.ShowCatalog(c.session.console, descs)
			return nil
		},
	}
}
