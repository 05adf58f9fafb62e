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
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// BannerText is printed at the start of interactive runs.
const BannerText = "#ABR - Appwrite Backup Restore"

// Palette. Appwrite pink for emphasis, muted greys for secondary text.
var (
	ColorAccent  = lipgloss.Color("#FD366E")
	ColorAccent2 = lipgloss.Color("#F02E65")
	ColorBorder  = lipgloss.Color("#56565C")
	ColorMuted   = lipgloss.Color("#818186")
	ColorSuccess = lipgloss.Color("#10B981")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles holds the pre-configured lipgloss styles used by Console.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Banner     lipgloss.Style
	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorAccent2).Bold(true),

	Banner: lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent).
		Border(lipgloss.DoubleBorder()).
		BorderForeground(ColorAccent2).
		Padding(0, 2),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon with its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// boxWidth is the fixed width of boxed output.
const boxWidth = 64

// Console renders user-facing output for one command run.
//
// # Description
//
// Console replaces package-level print helpers: the mode and writers are
// fixed at construction, so tests capture output through buffers and no
// global state is shared between runs. Status lines go to Out; warnings
// and errors in machine mode go to Err so scripts can parse Out cleanly.
type Console struct {
	Mode Mode
	Out  io.Writer
	Err  io.Writer
}

// NewConsole builds a Console. Nil writers default to os.Stdout/os.Stderr.
func NewConsole(mode Mode, out, errOut io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	if mode == "" {
		mode = ModeFull
	}
	return &Console{Mode: mode, Out: out, Err: errOut}
}

// Machine reports whether the console is in machine mode.
func (c *Console) Machine() bool {
	return c.Mode == ModeMachine
}

// Banner prints the tool banner. Only full mode shows it.
func (c *Console) Banner() {
	if c.Mode != ModeFull {
		return
	}
	fmt.Fprintln(c.Out, Styles.Banner.Render(BannerText))
}

// Title prints a section title.
func (c *Console) Title(text string) {
	if c.Machine() {
		return
	}
	fmt.Fprintln(c.Out, Styles.Title.Render(text))
}

// Success prints a success line.
func (c *Console) Success(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	switch c.Mode {
	case ModeMachine:
		fmt.Fprintf(c.Out, "OK: %s\n", text)
	case ModeMinimal:
		fmt.Fprintf(c.Out, "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(c.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning line.
func (c *Console) Warning(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	switch c.Mode {
	case ModeMachine:
		fmt.Fprintf(c.Err, "WARN: %s\n", text)
	case ModeMinimal:
		fmt.Fprintf(c.Out, "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(c.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error line.
func (c *Console) Error(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	switch c.Mode {
	case ModeMachine:
		fmt.Fprintf(c.Err, "ERROR: %s\n", text)
	case ModeMinimal:
		fmt.Fprintf(c.Out, "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(c.Out, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func (c *Console) Info(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if c.Machine() {
		fmt.Fprintln(c.Out, text)
		return
	}
	fmt.Fprintf(c.Out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Step prints a pending step marker, e.g. "→ Pausing stack".
func (c *Console) Step(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if c.Machine() {
		fmt.Fprintf(c.Out, "STEP: %s\n", text)
		return
	}
	fmt.Fprintf(c.Out, "%s %s\n", IconArrow.Render(), text)
}

// Muted prints secondary text. Machine mode drops it.
func (c *Console) Muted(text string) {
	if c.Machine() {
		return
	}
	fmt.Fprintln(c.Out, Styles.Muted.Render(text))
}

// Box prints a titled box. Minimal mode prints title and content as lines.
func (c *Console) Box(title, content string) {
	switch c.Mode {
	case ModeMachine:
		fmt.Fprintf(c.Out, "%s: %s\n", title, content)
	case ModeMinimal:
		fmt.Fprintln(c.Out, Styles.Bold.Render(title))
		fmt.Fprintln(c.Out, content)
	default:
		fmt.Fprintln(c.Out, Styles.Box.Width(boxWidth).Render(Styles.Title.Render(title)+"\n"+content))
	}
}

// WarningBox prints a warning-styled titled box.
func (c *Console) WarningBox(title, content string) {
	switch c.Mode {
	case ModeMachine:
		fmt.Fprintf(c.Err, "WARN %s: %s\n", title, content)
	case ModeMinimal:
		fmt.Fprintf(c.Out, "%s %s\n%s\n", IconWarning.Render(), title, content)
	default:
		titleLine := Styles.Warning.Bold(true).Render(title)
		fmt.Fprintln(c.Out, Styles.WarningBox.Width(boxWidth).Render(titleLine+"\n"+content))
	}
}
