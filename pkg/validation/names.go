// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided names before they reach a docker
// command line or a compose invocation.
//
// Docker accepts container and volume names matching [a-zA-Z0-9][a-zA-Z0-9_.-]+
// and compose project names matching [a-z0-9][a-z0-9_-]*. Anything else is
// rejected here so a config typo fails at load time instead of as an opaque
// runtime error halfway through a workflow.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// objectNamePattern is the docker rule for container and volume names.
	objectNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]+$`)

	// projectNamePattern is the compose rule for project names.
	projectNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// ValidateObjectName validates a container or volume name. kind only
// appears in the error message.
//
// Example:
//
//	if err := validation.ValidateObjectName("container", name); err != nil {
//	    return fmt.Errorf("helpers.restore_container: %w", err)
//	}
func ValidateObjectName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	if !objectNamePattern.MatchString(name) {
		return fmt.Errorf("invalid %s name %q (must start with a letter or digit, then letters, digits, '_', '.' or '-')", kind, name)
	}
	return nil
}

// ValidateObjectNames validates several names of one kind.
// Returns an error listing all invalid names if any fail validation.
func ValidateObjectNames(kind string, names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateObjectName(kind, n); err != nil {
			invalid = append(invalid, fmt.Sprintf("%q", n))
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid %s names: %s", kind, strings.Join(invalid, ", "))
	}
	return nil
}

// SanitizeProjectName normalizes and validates a compose project name.
// Returns the lowercase name if valid, or an error if invalid.
//
//	project, err := validation.SanitizeProjectName(userInput)
//	if err != nil {
//	    return err
//	}
func SanitizeProjectName(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "", fmt.Errorf("project name cannot be empty")
	}
	if !projectNamePattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid project name %q (lowercase letters, digits, '_' and '-' only)", name)
	}
	return normalized, nil
}
