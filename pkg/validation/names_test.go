// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"testing"
)

func TestValidateObjectName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Valid names
		{"helper", "temp_restore_container", false},
		{"volume", "appwrite_appwrite-mariadb", false},
		{"with dot", "abr.helper", false},
		{"mixed case", "Restore1", false},
		{"digit first", "1backup", false},

		// Invalid names - would break or inject into the docker command line
		{"empty", "", true},
		{"single char", "a", true},
		{"space", "temp restore", true},
		{"option injection", "--privileged", true},
		{"shell chars", "x;rm -rf /", true},
		{"slash", "appwrite/redis", true},
		{"newline", "helper\nname", true},
		{"starts with underscore", "_helper", true},
		{"starts with dot", ".helper", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectName("container", tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateObjectName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateObjectNames(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		wantErr bool
	}{
		{"all valid", []string{"appwrite_appwrite-redis", "appwrite_appwrite-cache"}, false},
		{"one invalid", []string{"appwrite_appwrite-redis", "bad name"}, true},
		{"empty entry", []string{""}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectNames("volume", tt.names)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateObjectNames(%v) error = %v, wantErr %v", tt.names, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeProjectName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"passthrough", "appwrite", "appwrite", false},
		{"uppercase normalized", "AppWrite", "appwrite", false},
		{"spaces trimmed", "  appwrite  ", "appwrite", false},
		{"hyphen and underscore", "my_app-1", "my_app-1", false},
		{"empty", "   ", "", true},
		{"dot rejected", "app.write", "", true},
		{"leading hyphen", "-appwrite", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeProjectName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeProjectName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeProjectName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
