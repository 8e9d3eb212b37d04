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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pylore/pkg/ingestion"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Empty(t, cfg.Index.Path)
	assert.Empty(t, cfg.Index.Name)
	assert.Empty(t, cfg.Discovery.Exclude)
	assert.False(t, cfg.Discovery.UseGitignore)
	assert.Equal(t, ingestion.DefaultBodyCapChars, cfg.Limits.BodyChars)
	assert.Equal(t, ingestion.DefaultModuleCapChars, cfg.Limits.ModuleChars)
	assert.Equal(t, ingestion.DefaultBatchSize, cfg.Indexing.BatchSize)
	assert.Zero(t, cfg.Concurrency.Workers)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join("repo", ".pylore"), ConfigDir("repo"))
	assert.Equal(t, filepath.Join("repo", ".pylore", "config.yaml"), ConfigPath("repo"))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `index:
  path: custom.db
  name: myproject
discovery:
  exclude:
    - generated
    - "*.pb.py"
concurrency:
  workers: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "custom.db", cfg.Index.Path)
	assert.Equal(t, "myproject", cfg.Index.Name)
	assert.Equal(t, []string{"generated", "*.pb.py"}, cfg.Discovery.Exclude)
	assert.Equal(t, 3, cfg.Concurrency.Workers)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, ingestion.DefaultBodyCapChars, cfg.Limits.BodyChars)
	assert.Equal(t, ingestion.DefaultBatchSize, cfg.Indexing.BatchSize)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, "none", cfg.LLM.Provider)
}

func TestLoadConfig_ExpandsEnvironment(t *testing.T) {
	t.Setenv("PYLORE_TEST_INDEX", "from_env.db")
	t.Setenv("PYLORE_TEST_MODEL", "nomic-embed-text")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `index:
  path: ${PYLORE_TEST_INDEX}
embedding:
  provider: ollama
  model: ${PYLORE_TEST_MODEL}
  endpoint: ${PYLORE_TEST_UNSET_ENDPOINT}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from_env.db", cfg.Index.Path)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	// Unset variables expand to the empty string.
	assert.Empty(t, cfg.Embedding.Endpoint)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index: [unclosed\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("PYLORE_TEST_VALUE", "filled")

	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"${PYLORE_TEST_VALUE}", "filled"},
		{"pre-${PYLORE_TEST_VALUE}-post", "pre-filled-post"},
		{"${PYLORE_TEST_NEVER_SET}", ""},
		// $VAR without braces is left alone.
		{"$PYLORE_TEST_VALUE", "$PYLORE_TEST_VALUE"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(expandEnv([]byte(tt.in))), "input %q", tt.in)
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := ConfigPath(t.TempDir())
	require.NoError(t, WriteDefaultConfig(path))

	// The template must stay in sync with the coded defaults.
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "provider: hash")
}
