// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Locker defines the interface for host-level single-flight locking.
//
// # Thread Safety
//
// The lock provides inter-process synchronization, not intra-process.
type Locker interface {
	// Acquire attempts to get an exclusive lock without blocking.
	Acquire() error

	// Release releases the lock if held.
	// Safe to call multiple times or if lock was never acquired.
	Release() error

	// IsHeld returns true if this instance currently holds the lock.
	IsHeld() bool
}

// LockConfig configures lock file location.
type LockConfig struct {
	// LockDir is the directory for lock files.
	// Default: system temp directory
	LockDir string

	// LockName is the base name for lock files.
	// Default: "abr"
	LockName string
}

// Lock implements Locker using flock(2).
//
// # How It Works
//
//  1. Creates a lock file at {LockDir}/{LockName}.lock
//  2. Attempts a non-blocking exclusive flock on the file
//  3. Writes the PID to {LockDir}/{LockName}.pid for diagnostics
//  4. On release, removes the PID file and releases the flock
//
// The OS drops the flock when the process dies, so a crash never leaves the
// lock held. The PID file may then be stale and is only informational.
type Lock struct {
	config   LockConfig
	lockPath string
	pidPath  string
	lockFile *os.File
	held     bool
}

// ErrLockHeld is returned when another process holds the lock.
type ErrLockHeld struct {
	Name      string
	HolderPID int
	LockPath  string
}

// Error implements the error interface.
func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another abr run holds %q (PID %d)", e.Name, e.HolderPID)
	}
	return fmt.Sprintf("another abr run holds %q (check: lsof %s)", e.Name, e.LockPath)
}

// NewLock creates a lock. It does not acquire it.
func NewLock(config LockConfig) *Lock {
	if config.LockDir == "" {
		config.LockDir = os.TempDir()
	}
	if config.LockName == "" {
		config.LockName = "abr"
	}

	return &Lock{
		config:   config,
		lockPath: filepath.Join(config.LockDir, config.LockName+".lock"),
		pidPath:  filepath.Join(config.LockDir, config.LockName+".pid"),
	}
}

// Acquire attempts to get an exclusive lock.
//
// Returns *ErrLockHeld if another process holds it.
func (p *Lock) Acquire() error {
	if p.held {
		return nil
	}

	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", p.lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &ErrLockHeld{
				Name:      p.config.LockName,
				HolderPID: p.readHolderPID(),
				LockPath:  p.lockPath,
			}
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	p.lockFile = f
	p.held = true

	// Non-fatal: the flock is what matters.
	_ = os.WriteFile(p.pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)

	return nil
}

// Release removes the PID file and releases the flock.
func (p *Lock) Release() error {
	if !p.held || p.lockFile == nil {
		return nil
	}

	os.Remove(p.pidPath)

	err := unix.Flock(int(p.lockFile.Fd()), unix.LOCK_UN)

	p.lockFile.Close()
	p.lockFile = nil
	p.held = false

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsHeld returns true if this instance currently holds the lock.
func (p *Lock) IsHeld() bool {
	return p.held
}

// HolderPID returns the PID recorded by the current holder, or 0.
func (p *Lock) HolderPID() int {
	return p.readHolderPID()
}

// LockPath returns the path to the lock file.
func (p *Lock) LockPath() string {
	return p.lockPath
}

func (p *Lock) readHolderPID() int {
	data, err := os.ReadFile(p.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

var _ Locker = (*Lock)(nil)

// NopLocker satisfies Locker without locking anything. Tests use it.
type NopLocker struct {
	held bool
}

// Acquire marks the lock as held.
func (n *NopLocker) Acquire() error { n.held = true; return nil }

// Release marks the lock as released.
func (n *NopLocker) Release() error { n.held = false; return nil }

// IsHeld reports whether Acquire was called without a matching Release.
func (n *NopLocker) IsHeld() bool { return n.held }

var _ Locker = (*NopLocker)(nil)
