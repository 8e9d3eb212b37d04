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

package testing

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteRepo materializes a fixture repository under a fresh temp directory.
//
// Keys are repo-relative paths using forward slashes; values are file
// contents. Parent directories are created as needed. The directory is
// cleaned up when the test finishes.
//
// Example:
//
//	root := testing.WriteRepo(t, map[string]string{
//	    "pkg/__init__.py": "",
//	    "pkg/mod.py":      testing.SampleClassModule,
//	    "README.md":       "# demo\n",
//	})
func WriteRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile writes one file under root, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture file %s: %v", rel, err)
	}
}

// ReadFile reads a file and fails the test on error.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// Canned Python sources shared by extractor, pipeline, and CLI tests.
const (
	// SampleClassModule defines one documented class with one documented
	// method plus one documented top-level function.
	SampleClassModule = `"""Workspace accounting helpers."""

import os
from collections import OrderedDict


class Ledger:
    """Tracks debits and credits for a workspace."""

    def add(self, amount: int) -> int:
        """Record one entry and return the running total."""
        self.total = self.total + amount
        return self.total


def summarize(entries: list) -> str:
    """Render entries as a short report."""
    return ", ".join(str(e) for e in entries)
`

	// SampleFunctionModule defines top-level functions only, covering the
	// parameter group orderings.
	SampleFunctionModule = `"""Retry helpers."""


async def fetch(url, *args, timeout: float = 2.0, **kwargs) -> bytes:
    """Fetch a URL with retries."""
    return b""


def backoff(base, factor=2, *, cap):
    return min(base * factor, cap)
`

	// SampleBrokenModule fails to parse.
	SampleBrokenModule = `def broken(:
    pass
`
)
