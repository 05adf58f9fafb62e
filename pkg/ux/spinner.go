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
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner is the animated progress indicator shown while a long external
// step (capture, extract, copy) runs.
//
// Only full mode animates. Minimal mode prints the message once, machine
// mode prints a PROGRESS line.
type Spinner struct {
	console *Console

	mu        sync.Mutex
	message   string
	running   bool
	animating bool
	stop      chan struct{}
	done      chan struct{}
}

// NewSpinner creates a stopped spinner.
func (c *Console) NewSpinner(message string) *Spinner {
	return &Spinner{console: c, message: message}
}

// Start begins the animation. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	switch s.console.Mode {
	case ModeMachine:
		fmt.Fprintf(s.console.Out, "PROGRESS: %s\n", s.message)
		return
	case ModeMinimal:
		fmt.Fprintf(s.console.Out, "%s %s\n", IconPending.Render(), s.message)
		return
	}

	s.animating = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-stop:
			fmt.Fprint(s.console.Out, "\r\033[K")
			return
		case <-ticker.C:
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(s.console.Out, "\r%s %s", Styles.Highlight.Render(spinnerFrames[frame]), msg)
			frame = (frame + 1) % len(spinnerFrames)
		}
	}
}

// Stop halts the animation and clears the line. Safe to call twice.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	animating := s.animating
	s.animating = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if animating {
		close(stop)
		<-done
	}
}

// StopWithSuccess stops and prints a success line.
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	s.console.Success("%s", message)
}

// StopWithError stops and prints an error line.
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	s.console.Error("%s", message)
}

// StopWithWarning stops and prints a warning line.
func (s *Spinner) StopWithWarning(message string) {
	s.Stop()
	s.console.Warning("%s", message)
}
