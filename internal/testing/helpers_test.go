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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWriteRepo verifies fixture trees are written with nested directories.
func TestWriteRepo(t *testing.T) {
	root := WriteRepo(t, map[string]string{
		"pkg/__init__.py":     "",
		"pkg/sub/helpers.py":  "x = 1\n",
		"README.md":           "# demo\n",
		"docs/guide/setup.md": "setup\n",
	})

	require.DirExists(t, root)

	for rel, want := range map[string]string{
		"pkg/__init__.py":     "",
		"pkg/sub/helpers.py":  "x = 1\n",
		"README.md":           "# demo\n",
		"docs/guide/setup.md": "setup\n",
	} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		data, err := os.ReadFile(path)
		require.NoError(t, err, rel)
		assert.Equal(t, want, string(data), rel)
	}
}

// TestWriteRepoIsolation verifies each call gets its own tree.
func TestWriteRepoIsolation(t *testing.T) {
	root1 := WriteRepo(t, map[string]string{"a.py": "a = 1\n"})
	root2 := WriteRepo(t, map[string]string{"b.py": "b = 2\n"})

	require.NotEqual(t, root1, root2)
	assert.NoFileExists(t, filepath.Join(root2, "a.py"))
	assert.NoFileExists(t, filepath.Join(root1, "b.py"))
}

// TestReadFile verifies the round trip through the helper.
func TestReadFile(t *testing.T) {
	root := WriteRepo(t, map[string]string{"mod.py": SampleClassModule})

	got := ReadFile(t, filepath.Join(root, "mod.py"))
	assert.Equal(t, SampleClassModule, got)
}

// TestCannedSources sanity-checks the shared fixtures.
func TestCannedSources(t *testing.T) {
	assert.Contains(t, SampleClassModule, "class Ledger:")
	assert.Contains(t, SampleClassModule, "def add(self, amount: int) -> int:")
	assert.Contains(t, SampleClassModule, "def summarize(entries: list) -> str:")
	assert.Contains(t, SampleFunctionModule, "async def fetch(")
	assert.Contains(t, SampleBrokenModule, "def broken(:")
}
