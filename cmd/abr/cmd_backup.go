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

func (c *cli) backupCmd() *cobra.Command {
	var opts workflow.BackupOptions

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Capture the stack's volumes, compose file and .env into a new archive",
		Long: `Capture the stack into <archive dir>/backup-<UTC time>.tar.gz.

Levels:
  hot        the stack keeps running (fastest, lowest consistency)
  semi-cold  the stack is paused during capture
  cold       the stack is stopped during capture (full consistency)

Without --level the level is chosen interactively. A failed capture is
reported but exits 0 once the stack is back up; pass --strict to fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withHostLock(func(b *backends) error {
				_, err := workflow.NewBackup(c.env(b), c.session.cfg.CaptureConfig()).Run(cmd.Context(), opts)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Level, "level", "l", "", "backup level: hot, semi-cold or cold")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit non-zero when the capture itself fails")
	return cmd
}
