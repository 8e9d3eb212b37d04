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

package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestManifestManager_Roundtrip tests save and reload next to the index
// location.
func TestManifestManager_Roundtrip(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "demo_codebase.db")
	mgr := NewManifestManager(indexPath)
	assert.Equal(t, indexPath+".manifest.json", mgr.Path())

	saved := &Manifest{
		RunID:          "run-123",
		FilesProcessed: 7,
		FilesSkipped:   2,
		ChunksCreated:  19,
		SymbolsIndexed: 11,
		DurationMS:     1500,
		FileHashes: map[string]string{
			"pkg/mod.py": "00000000deadbeef",
		},
	}
	require.NoError(t, mgr.Save(saved))
	assert.NotEmpty(t, saved.CompletedAt, "Save stamps a completion time")

	loaded, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved, loaded)
}

// TestManifestManager_LoadMissing tests the (nil, nil) contract for a
// first run.
func TestManifestManager_LoadMissing(t *testing.T) {
	mgr := NewManifestManager(filepath.Join(t.TempDir(), "absent.db"))

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

// TestManifestManager_LoadMalformed tests the parse error path.
func TestManifestManager_LoadMalformed(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "demo.db")
	mgr := NewManifestManager(indexPath)
	require.NoError(t, os.WriteFile(mgr.Path(), []byte("not json"), 0644))

	_, err := mgr.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse manifest")
}

// TestManifestManager_Clear tests removal, including the tolerated
// missing-file case.
func TestManifestManager_Clear(t *testing.T) {
	mgr := NewManifestManager(filepath.Join(t.TempDir(), "demo.db"))
	require.NoError(t, mgr.Save(&Manifest{RunID: "run-1"}))

	require.NoError(t, mgr.Clear())
	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	assert.NoError(t, mgr.Clear(), "Clearing twice is fine")
}

// TestManifestManager_EmptyHashesLoadNonNil tests that a manifest saved
// without hashes loads with a usable map.
func TestManifestManager_EmptyHashesLoadNonNil(t *testing.T) {
	mgr := NewManifestManager(filepath.Join(t.TempDir(), "demo.db"))
	require.NoError(t, mgr.Save(&Manifest{RunID: "run-1"}))

	loaded, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.NotNil(t, loaded.FileHashes)
}

// TestContentHash tests shape and stability of the change-detection hash.
func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("def add(a, b):\n    return a + b\n"))
	b := ContentHash([]byte("def add(a, b):\n    return a + b\n"))
	c := ContentHash([]byte("def add(a, b):\n    return a - b\n"))

	assert.Len(t, a, 16)
	assert.Regexp(t, "^[0-9a-f]{16}$", a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, ContentHash(nil), 16, "Empty content still hashes to fixed width")
}
