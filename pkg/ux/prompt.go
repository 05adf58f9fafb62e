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
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/huh"
)

var (
	// ErrNonInteractive is returned when a choice is needed but prompts are
	// unavailable (machine mode or no TTY on stdin).
	ErrNonInteractive = errors.New("interactive input required")

	// ErrAborted is returned when the user cancels a prompt (Ctrl+C / Esc).
	ErrAborted = errors.New("prompt aborted")
)

// maxDescriptionLen bounds option descriptions in select lists.
const maxDescriptionLen = 60

// PromptOption is one choice in a Select prompt.
type PromptOption struct {
	// Label is what the user sees.
	Label string

	// Description is appended to the label, truncated to fit one line.
	Description string

	// Value is what Select returns when this option is chosen.
	Value string

	// Recommended marks the default choice; it is pre-selected.
	Recommended bool
}

// Prompter asks the operator for decisions.
//
// # Description
//
// Select returns the Value of the chosen option, Confirm returns the yes/no
// answer. Implementations return ErrAborted when the user cancels and
// ErrNonInteractive when no prompt can be shown. Callers that require
// exactly one non-empty answer loop on Select themselves.
type Prompter interface {
	Select(ctx context.Context, title string, options []PromptOption) (string, error)
	Confirm(ctx context.Context, title string, def bool) (bool, error)
}

// =============================================================================
// huh prompter
// =============================================================================

// HuhPrompter shows terminal forms built with charmbracelet/huh.
type HuhPrompter struct {
	theme *huh.Theme
}

// NewHuhPrompter creates a prompter using the abr theme.
func NewHuhPrompter() *HuhPrompter {
	return &HuhPrompter{theme: abrTheme()}
}

// Select implements Prompter.
func (p *HuhPrompter) Select(ctx context.Context, title string, options []PromptOption) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("select %q: no options", title)
	}

	var value string
	opts := make([]huh.Option[string], 0, len(options))
	for _, o := range options {
		opts = append(opts, huh.NewOption(optionLabel(o), o.Value))
		if o.Recommended && value == "" {
			value = o.Value
		}
	}

	field := huh.NewSelect[string]().
		Title(title).
		Options(opts...).
		Value(&value)

	if err := p.run(ctx, field); err != nil {
		return "", err
	}
	return value, nil
}

// Confirm implements Prompter.
func (p *HuhPrompter) Confirm(ctx context.Context, title string, def bool) (bool, error) {
	answer := def
	field := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&answer)

	if err := p.run(ctx, field); err != nil {
		return false, err
	}
	return answer, nil
}

func (p *HuhPrompter) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).WithTheme(p.theme)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return err
	}
	return nil
}

func optionLabel(o PromptOption) string {
	label := o.Label
	if o.Description != "" {
		label += " - " + truncate(o.Description, maxDescriptionLen)
	}
	if o.Recommended {
		label += " (recommended)"
	}
	return label
}

// abrTheme derives the prompt theme from the console palette.
func abrTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = t.Focused.Title.Foreground(ColorAccent).Bold(true)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(ColorAccent2)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(ColorAccent)
	t.Focused.FocusedButton = t.Focused.FocusedButton.Background(ColorAccent)
	t.Focused.Description = t.Focused.Description.Foreground(ColorMuted)
	t.Blurred.Title = t.Blurred.Title.Foreground(ColorMuted)

	return t
}

// truncate shortens s to maxLen runes, ending with "..." when cut.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}

// =============================================================================
// Non-interactive prompter
// =============================================================================

// NonInteractivePrompter fails every prompt with ErrNonInteractive and a
// hint naming the flag that supplies the answer.
type NonInteractivePrompter struct {
	// Hints maps a prompt title to the flag that answers it.
	Hints map[string]string
}

// Select implements Prompter.
func (p NonInteractivePrompter) Select(_ context.Context, title string, _ []PromptOption) (string, error) {
	return "", p.fail(title)
}

// Confirm implements Prompter.
func (p NonInteractivePrompter) Confirm(_ context.Context, title string, _ bool) (bool, error) {
	return false, p.fail(title)
}

func (p NonInteractivePrompter) fail(title string) error {
	if flag, ok := p.Hints[title]; ok {
		return fmt.Errorf("%w: %q (pass %s)", ErrNonInteractive, title, flag)
	}
	return fmt.Errorf("%w: %q", ErrNonInteractive, title)
}

// =============================================================================
// Mock prompter
// =============================================================================

// MockPrompter answers prompts from scripted queues and records titles.
//
// When a queue runs dry, Select returns "" and Confirm returns the default.
type MockPrompter struct {
	mu sync.Mutex

	SelectAnswers  []string
	ConfirmAnswers []bool
	SelectErr      error
	ConfirmErr     error

	SelectTitles  []string
	ConfirmTitles []string
	Options       [][]PromptOption
}

// Select implements Prompter.
func (m *MockPrompter) Select(_ context.Context, title string, options []PromptOption) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SelectTitles = append(m.SelectTitles, title)
	m.Options = append(m.Options, options)
	if m.SelectErr != nil {
		return "", m.SelectErr
	}
	if len(m.SelectAnswers) == 0 {
		return "", nil
	}
	answer := m.SelectAnswers[0]
	m.SelectAnswers = m.SelectAnswers[1:]
	return answer, nil
}

// Confirm implements Prompter.
func (m *MockPrompter) Confirm(_ context.Context, title string, def bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfirmTitles = append(m.ConfirmTitles, title)
	if m.ConfirmErr != nil {
		return false, m.ConfirmErr
	}
	if len(m.ConfirmAnswers) == 0 {
		return def, nil
	}
	answer := m.ConfirmAnswers[0]
	m.ConfirmAnswers = m.ConfirmAnswers[1:]
	return answer, nil
}
