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
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// defaultExcludePatterns are path components never walked into or
// ingested. Patterns are matched per component, fnmatch-style.
var defaultExcludePatterns = []string{
	".git",
	"__pycache__",
	".venv",
	"venv",
	"node_modules",
	".pytest_cache",
	".mypy_cache",
	".tox",
	"dist",
	"build",
	"env",
	".eggs",
	"*.egg-info",
	".ruff_cache",
	".hypothesis",
}

var sourceExtensions = map[string]bool{
	".py": true,
}

var documentationExtensions = map[string]bool{
	".md":  true,
	".rst": true,
	".txt": true,
}

var configurationFilenames = map[string]bool{
	"pyproject.toml":   true,
	"setup.py":         true,
	"setup.cfg":        true,
	"requirements.txt": true,
	"Pipfile":          true,
	"poetry.lock":      true,
	"tox.ini":          true,
	"pytest.ini":       true,
}

// Discoverer walks a repository tree and classifies files for ingestion.
type Discoverer struct {
	logger *slog.Logger
}

// NewDiscoverer creates a Discoverer. A nil logger falls back to
// slog.Default().
func NewDiscoverer(logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{logger: logger}
}

// DiscoverOptions adjust a single repository walk.
type DiscoverOptions struct {
	// ExtraExcludes are additional component patterns excluded on top of
	// the fixed table.
	ExtraExcludes []string

	// UseGitignore additionally honors the repository's root .gitignore.
	// The fixed exclusion table still applies.
	UseGitignore bool
}

// Discover recursively walks root and returns every file matching the
// classification tables. Unmatched files are omitted, not an error.
// Unreadable subtrees are logged and skipped; only a missing or
// non-directory root fails the call. Result order follows the lexical
// walk order and callers must not depend on it.
func (d *Discoverer) Discover(root string, opts DiscoverOptions) ([]FileRecord, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve repository path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat repository path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path is not a directory: %s", absRoot)
	}

	excludes := make([]string, 0, len(defaultExcludePatterns)+len(opts.ExtraExcludes))
	excludes = append(excludes, defaultExcludePatterns...)
	excludes = append(excludes, opts.ExtraExcludes...)

	var ignore *gitignore.GitIgnore
	if opts.UseGitignore {
		ignorePath := filepath.Join(absRoot, ".gitignore")
		ign, ignErr := gitignore.CompileIgnoreFile(ignorePath)
		switch {
		case ignErr == nil:
			ignore = ign
		case os.IsNotExist(ignErr):
			// No .gitignore is not an error.
		default:
			d.logger.Warn("discovery.gitignore.unreadable",
				"path", ignorePath,
				"error", ignErr)
		}
	}

	var records []FileRecord
	skipReasons := make(map[string]int)

	walkErr := filepath.WalkDir(absRoot, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entry or subtree. Log and move on.
			d.logger.Warn("discovery.walk.error",
				"path", p,
				"error", err)
			skipReasons["unreadable"]++
			return nil
		}

		rel, relErr := filepath.Rel(absRoot, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if matchesExclude(entry.Name(), excludes) {
				skipReasons["excluded_dir"]++
				return filepath.SkipDir
			}
			if ignore != nil && ignore.MatchesPath(rel) {
				skipReasons["gitignored"]++
				return filepath.SkipDir
			}
			return nil
		}

		if matchesExclude(entry.Name(), excludes) {
			skipReasons["excluded_name"]++
			return nil
		}
		if ignore != nil && ignore.MatchesPath(rel) {
			skipReasons["gitignored"]++
			return nil
		}

		kind, ok := classifyFile(entry.Name())
		if !ok {
			skipReasons["unclassified"]++
			return nil
		}

		var size int64
		if fi, statErr := entry.Info(); statErr == nil {
			size = fi.Size()
		}

		records = append(records, FileRecord{
			Path:    rel,
			AbsPath: p,
			Kind:    kind,
			Size:    size,
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk repository: %w", walkErr)
	}

	d.logger.Info("discovery.complete",
		"root", absRoot,
		"files", len(records),
		"skip_reasons", skipReasons)

	return records, nil
}

// classifyFile maps a filename to its ingestion kind. Source and
// documentation match on extension, configuration on the exact filename;
// a .py configuration file like setup.py therefore classifies as source.
// Matching is case-sensitive.
func classifyFile(name string) (FileKind, bool) {
	ext := filepath.Ext(name)
	switch {
	case sourceExtensions[ext]:
		return KindSource, true
	case documentationExtensions[ext]:
		return KindDocumentation, true
	case configurationFilenames[name]:
		return KindConfiguration, true
	}
	return "", false
}

// matchesExclude reports whether a single path component matches any
// exclusion pattern. Invalid patterns degrade to literal comparison.
func matchesExclude(name string, patterns []string) bool {
	for _, pat := range patterns {
		ok, err := path.Match(pat, name)
		if err != nil {
			if pat == name {
				return true
			}
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
