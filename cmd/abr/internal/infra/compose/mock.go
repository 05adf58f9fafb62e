// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"sync"
)

// MockExecutor is a test double for Executor.
//
// Each method delegates to its Func field when set. Otherwise Up, Down,
// Pause and Unpause succeed and Status reports an empty stack.
type MockExecutor struct {
	UpFunc      func(ctx context.Context) (*Result, error)
	DownFunc    func(ctx context.Context) (*Result, error)
	PauseFunc   func(ctx context.Context) (*Result, error)
	UnpauseFunc func(ctx context.Context) (*Result, error)
	StatusFunc  func(ctx context.Context) (*Status, error)

	// Calls records method names in invocation order.
	Calls []string

	mu sync.Mutex
}

func (m *MockExecutor) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
}

func (m *MockExecutor) call(ctx context.Context, name string, fn func(context.Context) (*Result, error)) (*Result, error) {
	m.record(name)
	if fn != nil {
		return fn(ctx)
	}
	return &Result{Success: true}, nil
}

// Up implements Executor.
func (m *MockExecutor) Up(ctx context.Context) (*Result, error) {
	return m.call(ctx, "Up", m.UpFunc)
}

// Down implements Executor.
func (m *MockExecutor) Down(ctx context.Context) (*Result, error) {
	return m.call(ctx, "Down", m.DownFunc)
}

// Pause implements Executor.
func (m *MockExecutor) Pause(ctx context.Context) (*Result, error) {
	return m.call(ctx, "Pause", m.PauseFunc)
}

// Unpause implements Executor.
func (m *MockExecutor) Unpause(ctx context.Context) (*Result, error) {
	return m.call(ctx, "Unpause", m.UnpauseFunc)
}

// Status implements Executor.
func (m *MockExecutor) Status(ctx context.Context) (*Status, error) {
	m.record("Status")
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &Status{Services: []ServiceStatus{}}, nil
}

// CallLog returns a copy of the recorded calls.
func (m *MockExecutor) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

var _ Executor = (*MockExecutor)(nil)
