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
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/pylore/pkg/ingestion"
)

// Config is the project configuration loaded from .pylore/config.yaml.
//
// Every key has a working default, so a missing config file is not an
// error. Command-line flags override file values.
type Config struct {
	Index       IndexConfig       `yaml:"index"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Limits      LimitsConfig      `yaml:"limits"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// IndexConfig names the output index.
type IndexConfig struct {
	// Path is the index file location. Empty means
	// "<repo_name>_codebase.db" in the working directory.
	Path string `yaml:"path"`

	// Name labels the produced chunks. Empty means the repository
	// directory name.
	Name string `yaml:"name"`
}

// DiscoveryConfig tunes repository scanning.
type DiscoveryConfig struct {
	// Exclude adds directory or file name patterns to the built-in
	// exclusion table.
	Exclude []string `yaml:"exclude"`

	// UseGitignore honors the repository's root .gitignore.
	UseGitignore bool `yaml:"use_gitignore"`
}

// LimitsConfig caps extracted text sizes.
type LimitsConfig struct {
	// BodyChars caps one entity's extracted source text.
	BodyChars int `yaml:"body_chars"`

	// ModuleChars caps module and text-file chunk segments.
	ModuleChars int `yaml:"module_chars"`
}

// IndexingConfig tunes index writes.
type IndexingConfig struct {
	// BatchSize is the number of chunks per index write.
	BatchSize int `yaml:"batch_size"`
}

// ConcurrencyConfig bounds worker fan-out.
type ConcurrencyConfig struct {
	// Workers bounds parsing and analysis concurrency. Zero means
	// runtime.NumCPU().
	Workers int `yaml:"workers"`
}

// EmbeddingConfig selects the chunk embedding provider.
type EmbeddingConfig struct {
	// Provider is one of hash, ollama, openai. Empty means hash.
	Provider string `yaml:"provider"`

	// Model is the provider's embedding model name.
	Model string `yaml:"model"`

	// Endpoint overrides the provider's base URL.
	Endpoint string `yaml:"endpoint"`
}

// LLMConfig selects the answer-synthesis provider for pylore query --answer.
type LLMConfig struct {
	// Provider is one of none, ollama, openai, anthropic, mock.
	// Empty or "none" disables answer synthesis.
	Provider string `yaml:"provider"`

	// Model is the provider's generation model name.
	Model string `yaml:"model"`
}

// MetricsConfig controls the optional Prometheus endpoint during ingest.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Limits: LimitsConfig{
			BodyChars:   ingestion.DefaultBodyCapChars,
			ModuleChars: ingestion.DefaultModuleCapChars,
		},
		Indexing: IndexingConfig{
			BatchSize: ingestion.DefaultBatchSize,
		},
		Embedding: EmbeddingConfig{
			Provider: "hash",
		},
		LLM: LLMConfig{
			Provider: "none",
		},
	}
}

// ConfigDir returns the pylore configuration directory for a repository.
func ConfigDir(repoPath string) string {
	return filepath.Join(repoPath, ".pylore")
}

// ConfigPath returns the configuration file path for a repository.
func ConfigPath(repoPath string) string {
	return filepath.Join(ConfigDir(repoPath), "config.yaml")
}

// envPattern matches ${VAR} references in config values.
var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv replaces ${VAR} references with environment values. Unset
// variables expand to the empty string.
func expandEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadConfig loads the configuration file at path. An empty path means
// ./.pylore/config.yaml. A missing file yields the defaults; a malformed
// file is an error. ${VAR} references in the file are expanded from the
// environment before parsing.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath(".")
	}

	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(expandEnv(raw), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// defaultConfigYAML is the commented template written by pylore init.
// It parses to exactly DefaultConfig().
const defaultConfigYAML = `# pylore project configuration.
# Every key is optional; command-line flags override file values.

index:
  # Index file location. Empty means <repo_name>_codebase.db in the
  # working directory.
  path: ""
  # Label applied to produced chunks. Empty means the repository
  # directory name.
  name: ""

discovery:
  # Extra directory or file name patterns to exclude, on top of the
  # built-in table (.git, __pycache__, .venv, node_modules, ...).
  # exclude:
  #   - "*.generated.py"
  # Honor the repository's root .gitignore during discovery.
  use_gitignore: false

limits:
  # Cap on one extracted entity's source text, in characters.
  body_chars: 10000
  # Cap on module and text-file chunk segments, in characters.
  module_chars: 50000

indexing:
  # Chunks per index write.
  batch_size: 50

concurrency:
  # Parsing and analysis workers. 0 means the CPU count.
  workers: 0

embedding:
  # hash (offline, deterministic), ollama, or openai.
  provider: hash
  model: ""
  endpoint: ""

llm:
  # Answer synthesis for "pylore query --answer":
  # none, ollama, openai, anthropic, or mock.
  provider: none
  model: ""

metrics:
  # Serve Prometheus metrics on addr for the duration of an ingest run.
  enabled: false
  addr: ""
`

// WriteDefaultConfig writes the commented default configuration to path,
// creating the parent directory.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
