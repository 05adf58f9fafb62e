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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/abr/cmd/abr/internal/workflow"
)

func (c *cli) restoreCmd() *cobra.Command {
	var (
		opts        workflow.RestoreOptions
		keepStaging bool
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore an archive from the catalog onto this host",
		Long: `Restore an archive into the stack's volumes and install folder.

Leftovers of a previous installation (containers, volumes, images and the
install folder) must be removed first; you are asked for consent unless
--yes is given. The archive is chosen interactively unless --archive names
one. The stack is started once the data is in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.session.cfg
			if cmd.Flags().Changed("keep-staging-on-failure") {
				cfg.Restore.KeepStagingOnFailure = keepStaging
			}
			return c.withHostLock(func(b *backends) error {
				r := workflow.NewRestore(c.env(b), cfg.RestoreConfig(), cfg.Archive.Dir, b.Process, b.HelperLock)
				_, err := r.Run(cmd.Context(), opts)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Archive, "archive", "a", "", "archive file name in the catalog, e.g. backup-2025-03-02T14-05-09.tar.gz")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "remove leftovers of a previous installation without asking")
	cmd.Flags().BoolVar(&keepStaging, "keep-staging-on-failure", false, "keep the staged copy and extracted tree when the restore fails")
	return cmd
}
