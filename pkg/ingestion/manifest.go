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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/xxh3"
)

// Manifest records the outcome of an ingestion run next to its index.
// It is what makes --skip-unchanged possible on the next run.
type Manifest struct {
	RunID          string `json:"run_id"`
	FilesProcessed int    `json:"files_processed"`
	FilesSkipped   int    `json:"files_skipped,omitempty"`
	ChunksCreated  int    `json:"chunks_created"`
	SymbolsIndexed int    `json:"symbols_indexed"`
	DurationMS     int64  `json:"duration_ms"`
	CompletedAt    string `json:"completed_at"`

	// FileHashes maps relative source paths to content hashes, so the
	// next run can skip files that have not changed.
	FileHashes map[string]string `json:"file_hashes,omitempty"`
}

// ManifestManager persists the run manifest for one index location.
type ManifestManager struct {
	path string
}

// NewManifestManager creates a manager writing next to the given index.
func NewManifestManager(indexPath string) *ManifestManager {
	return &ManifestManager{path: indexPath + ".manifest.json"}
}

// Path returns the manifest file location.
func (m *ManifestManager) Path() string {
	return m.path
}

// Load reads the manifest from disk. A missing file returns (nil, nil).
func (m *ManifestManager) Load() (*Manifest, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.FileHashes == nil {
		manifest.FileHashes = make(map[string]string)
	}

	return &manifest, nil
}

// Save writes the manifest atomically (temp file + rename).
func (m *ManifestManager) Save(manifest *Manifest) error {
	if manifest.CompletedAt == "" {
		manifest.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write manifest temp: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename manifest: %w", err)
	}

	return nil
}

// Clear removes the manifest file. A missing file is not an error.
func (m *ManifestManager) Clear() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	return nil
}

// ContentHash returns the hash used for change detection, as fixed-width
// hex.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}
