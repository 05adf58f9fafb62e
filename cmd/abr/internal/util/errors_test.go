// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "with stderr",
			err:  NewCommandError("docker compose pause", 1, "  container is already paused\n", nil),
			want: "docker compose pause (exit 1): container is already paused",
		},
		{
			name: "wrapped only",
			err:  NewCommandError("tar -xzf", 2, "", errors.New("signal: killed")),
			want: "tar -xzf (exit 2): signal: killed",
		},
		{
			name: "bare",
			err:  NewCommandError("docker info", -1, "", nil),
			want: "docker info (exit -1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestExtractStderr_WalksChain(t *testing.T) {
	inner := NewCommandError("docker run", 125, "Conflict. The container name is already in use", nil)
	wrapped := fmt.Errorf("start helper: %w", StepFailure("helper-up", inner))

	assert.Equal(t, "Conflict. The container name is already in use", ExtractStderr(wrapped))
	assert.Empty(t, ExtractStderr(errors.New("plain")))
	assert.Empty(t, ExtractStderr(nil))
}

func TestClassOf(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"precondition", Precondition("probe", cause), ClassPrecondition},
		{"step", StepFailure("extract", cause), ClassStep},
		{"benign", Benign("pause", cause), ClassBenign},
		{"declined", UserDeclined("reconcile", "restoration requires a clean install"), ClassUserDeclined},
		{"wrapped step", fmt.Errorf("restore: %w", StepFailure("copy-in", cause)), ClassStep},
		{"unclassified", cause, ClassUnknown},
		{"nil", nil, ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
		})
	}
}

func TestClassifiedError_PreservesCause(t *testing.T) {
	cause := errors.New("no such file")
	err := Precondition("install-check", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "install-check: no such file", err.Error())
	assert.Equal(t, "install-check", StepOf(err))
	assert.True(t, IsClass(err, ClassPrecondition))
	assert.False(t, IsClass(nil, ClassPrecondition))
}

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "precondition", ClassPrecondition.String())
	assert.Equal(t, "benign", ClassBenign.String())
	assert.Equal(t, "step", ClassStep.String())
	assert.Equal(t, "user_declined", ClassUserDeclined.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
