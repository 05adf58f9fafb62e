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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/abr/cmd/abr/internal/catalog"
	"github.com/AleutianAI/abr/cmd/abr/internal/infra/process"
	"github.com/AleutianAI/abr/cmd/abr/internal/workflow"
)

func (c *cli) pruneCmd() *cobra.Command {
	var (
		keep   int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest archives, keeping the newest N",
		Long: `Delete the oldest archives in the catalog, keeping the newest --keep.
Archives whose names carry no timestamp are never deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("keep") {
				return errors.New("--keep is required")
			}
			lock := process.NewLock(process.LockConfig{LockName: hostLockName})
			if err := lock.Acquire(); err != nil {
				return err
			}
			defer lock.Release()

			console := c.session.console
			res, err := catalog.New(c.session.cfg.Archive.Dir).Prune(keep, dryRun)
			if res != nil && len(res.Removed) > 0 {
				if dryRun {
					console.Info("Would delete %d archives:", len(res.Removed))
				} else {
					console.Info("Deleted %d archives:", len(res.Removed))
				}
				workflow.ShowCatalog(console, res.Removed)
			}
			if err != nil {
				return err
			}
			if len(res.Removed) == 0 {
				console.Info("Nothing to prune, %d archives kept", len(res.Kept))
				return nil
			}
			c.session.logger.Info("catalog pruned", "removed", len(res.Removed), "kept", len(res.Kept), "dry_run", dryRun)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "number of newest archives to keep")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted without deleting")
	return cmd
}
