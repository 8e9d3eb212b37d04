// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListIndexes(t *testing.T) {
	dir := t.TempDir()
	writeFile := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeFile("app_codebase.db", "0123456789")
	writeFile("other.db", "xy")
	writeFile("README.md", "not an index")
	if err := os.Mkdir(filepath.Join(dir, "nested.db"), 0o755); err != nil {
		t.Fatal(err)
	}

	listings, err := listIndexes(dir)
	if err != nil {
		t.Fatalf("listIndexes() error = %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("listIndexes() returned %d entries, want 2", len(listings))
	}

	// os.ReadDir returns entries sorted by name.
	if got := listings[0].Path; got != filepath.Join(dir, "app_codebase.db") {
		t.Errorf("listings[0].Path = %q", got)
	}
	if got := listings[0].SizeBytes; got != 10 {
		t.Errorf("listings[0].SizeBytes = %d, want 10", got)
	}
	if got := listings[1].SizeBytes; got != 2 {
		t.Errorf("listings[1].SizeBytes = %d, want 2", got)
	}
	if listings[0].Modified.IsZero() {
		t.Error("listings[0].Modified should be set")
	}
}

func TestListIndexes_MissingDir(t *testing.T) {
	_, err := listIndexes(filepath.Join(t.TempDir(), "gone"))
	if err == nil {
		t.Fatal("listIndexes() should fail on a missing directory")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{2 * 1024 * 1024, "2.0 MiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
