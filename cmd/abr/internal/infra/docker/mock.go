// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package docker

import (
	"context"
	"fmt"
	"sync"
)

// MockRuntime is a test double for Runtime.
//
// Every method delegates to its Func field when set and succeeds with an
// empty result otherwise. All calls are recorded in order in Calls as
// "<Method> <arg>" strings.
//
// # Example
//
//	rt := &MockRuntime{
//	    InfoFunc: func(ctx context.Context) error { return ErrDaemonUnavailable },
//	}
type MockRuntime struct {
	InfoFunc             func(ctx context.Context) error
	ContainerNamesFunc   func(ctx context.Context, filter string) ([]string, error)
	ContainerIDsFunc     func(ctx context.Context, filter string) ([]string, error)
	VolumeNamesFunc      func(ctx context.Context, filter string) ([]string, error)
	ImageIDsFunc         func(ctx context.Context, filter string) ([]string, error)
	RemoveContainersFunc func(ctx context.Context, ids []string) error
	RemoveVolumesFunc    func(ctx context.Context, names []string) error
	RemoveImagesFunc     func(ctx context.Context, ids []string) error
	RunFunc              func(ctx context.Context, spec RunSpec) (string, error)
	CopyToFunc           func(ctx context.Context, src, container, dst string) error
	StopContainerFunc    func(ctx context.Context, name string) error
	RemoveContainerFunc  func(ctx context.Context, name string, force bool) error
	VolumeUsageFunc      func(ctx context.Context) ([]VolumeUsage, error)

	Calls    []string
	RunSpecs []RunSpec

	mu sync.Mutex
}

func (m *MockRuntime) record(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, fmt.Sprintf(format, args...))
}

// Info implements Runtime.
func (m *MockRuntime) Info(ctx context.Context) error {
	m.record("Info")
	if m.InfoFunc != nil {
		return m.InfoFunc(ctx)
	}
	return nil
}

// ContainerNames implements Runtime.
func (m *MockRuntime) ContainerNames(ctx context.Context, filter string) ([]string, error) {
	m.record("ContainerNames %s", filter)
	if m.ContainerNamesFunc != nil {
		return m.ContainerNamesFunc(ctx, filter)
	}
	return nil, nil
}

// ContainerIDs implements Runtime.
func (m *MockRuntime) ContainerIDs(ctx context.Context, filter string) ([]string, error) {
	m.record("ContainerIDs %s", filter)
	if m.ContainerIDsFunc != nil {
		return m.ContainerIDsFunc(ctx, filter)
	}
	return nil, nil
}

// VolumeNames implements Runtime.
func (m *MockRuntime) VolumeNames(ctx context.Context, filter string) ([]string, error) {
	m.record("VolumeNames %s", filter)
	if m.VolumeNamesFunc != nil {
		return m.VolumeNamesFunc(ctx, filter)
	}
	return nil, nil
}

// ImageIDs implements Runtime.
func (m *MockRuntime) ImageIDs(ctx context.Context, filter string) ([]string, error) {
	m.record("ImageIDs %s", filter)
	if m.ImageIDsFunc != nil {
		return m.ImageIDsFunc(ctx, filter)
	}
	return nil, nil
}

// RemoveContainers implements Runtime.
func (m *MockRuntime) RemoveContainers(ctx context.Context, ids []string) error {
	m.record("RemoveContainers %v", ids)
	if m.RemoveContainersFunc != nil {
		return m.RemoveContainersFunc(ctx, ids)
	}
	return nil
}

// RemoveVolumes implements Runtime.
func (m *MockRuntime) RemoveVolumes(ctx context.Context, names []string) error {
	m.record("RemoveVolumes %v", names)
	if m.RemoveVolumesFunc != nil {
		return m.RemoveVolumesFunc(ctx, names)
	}
	return nil
}

// RemoveImages implements Runtime.
func (m *MockRuntime) RemoveImages(ctx context.Context, ids []string) error {
	m.record("RemoveImages %v", ids)
	if m.RemoveImagesFunc != nil {
		return m.RemoveImagesFunc(ctx, ids)
	}
	return nil
}

// Run implements Runtime.
func (m *MockRuntime) Run(ctx context.Context, spec RunSpec) (string, error) {
	m.record("Run %s", spec.Image)
	m.mu.Lock()
	m.RunSpecs = append(m.RunSpecs, spec)
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, spec)
	}
	return "", nil
}

// CopyTo implements Runtime.
func (m *MockRuntime) CopyTo(ctx context.Context, src, container, dst string) error {
	m.record("CopyTo %s %s:%s", src, container, dst)
	if m.CopyToFunc != nil {
		return m.CopyToFunc(ctx, src, container, dst)
	}
	return nil
}

// StopContainer implements Runtime.
func (m *MockRuntime) StopContainer(ctx context.Context, name string) error {
	m.record("StopContainer %s", name)
	if m.StopContainerFunc != nil {
		return m.StopContainerFunc(ctx, name)
	}
	return nil
}

// RemoveContainer implements Runtime.
func (m *MockRuntime) RemoveContainer(ctx context.Context, name string, force bool) error {
	m.record("RemoveContainer %s force=%t", name, force)
	if m.RemoveContainerFunc != nil {
		return m.RemoveContainerFunc(ctx, name, force)
	}
	return nil
}

// VolumeUsage implements Runtime.
func (m *MockRuntime) VolumeUsage(ctx context.Context) ([]VolumeUsage, error) {
	m.record("VolumeUsage")
	if m.VolumeUsageFunc != nil {
		return m.VolumeUsageFunc(ctx)
	}
	return nil, nil
}

// CallLog returns a copy of the recorded calls.
func (m *MockRuntime) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

var _ Runtime = (*MockRuntime)(nil)
