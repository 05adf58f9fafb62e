// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table prints rows under headers.
//
// # Description
//
// Full and minimal modes render a bordered lipgloss table with a styled
// header row. Machine mode prints the header and each row as
// tab-separated lines so the output can be piped into cut or awk.
// An empty row set prints nothing.
func (c *Console) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	if c.Machine() {
		fmt.Fprintln(c.Out, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(c.Out, strings.Join(row, "\t"))
		}
		return
	}
	fmt.Fprintln(c.Out, RenderTable(headers, rows))
}

// RenderTable returns the bordered table without printing it.
func RenderTable(headers []string, rows [][]string) string {
	headerStyle := Styles.Bold.Foreground(ColorAccent).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}
