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
	"context"
	"time"
)

const (
	// MinProcessTimeout is the smallest accepted timeout for a single
	// external command.
	MinProcessTimeout = 5 * time.Second

	// DefaultProcessTimeout bounds short runtime queries (ps, volume ls, rm).
	DefaultProcessTimeout = 2 * time.Minute

	// DefaultComposeTimeout bounds compose transitions. `up -d` may pull
	// images after a restore so it gets a generous default.
	DefaultComposeTimeout = 15 * time.Minute

	// DefaultTransferTimeout bounds capture, extraction and copy-in.
	DefaultTransferTimeout = 6 * time.Hour
)

// TimeoutConfig groups the per-category deadlines for external calls.
type TimeoutConfig struct {
	Process  time.Duration
	Compose  time.Duration
	Transfer time.Duration
}

// NewTimeoutConfig returns the default deadlines.
func NewTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Process:  DefaultProcessTimeout,
		Compose:  DefaultComposeTimeout,
		Transfer: DefaultTransferTimeout,
	}
}

// Validated returns a copy with unset values defaulted and every value
// raised to MinProcessTimeout.
func (c TimeoutConfig) Validated() TimeoutConfig {
	return TimeoutConfig{
		Process:  EnforceMinTimeout(EnforceDefaultTimeout(c.Process, DefaultProcessTimeout), MinProcessTimeout),
		Compose:  EnforceMinTimeout(EnforceDefaultTimeout(c.Compose, DefaultComposeTimeout), MinProcessTimeout),
		Transfer: EnforceMinTimeout(EnforceDefaultTimeout(c.Transfer, DefaultTransferTimeout), MinProcessTimeout),
	}
}

// EnforceMinTimeout returns minimum when requested is unset or smaller.
func EnforceMinTimeout(requested, minimum time.Duration) time.Duration {
	if requested <= 0 || requested < minimum {
		return minimum
	}
	return requested
}

// EnforceDefaultTimeout returns defaultVal when requested is unset.
func EnforceDefaultTimeout(requested, defaultVal time.Duration) time.Duration {
	if requested <= 0 {
		return defaultVal
	}
	return requested
}

// WithTimeout derives a deadline for one external call. A zero timeout
// leaves ctx unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
