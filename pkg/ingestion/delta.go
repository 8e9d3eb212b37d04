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
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
)

// DeltaDetector lists the files that changed since a git revision. It
// shells out to the git binary; callers should check IsGitRepository
// before running a detection.
type DeltaDetector struct {
	logger   *slog.Logger
	repoPath string
}

// NewDeltaDetector creates a detector for a repository working tree.
func NewDeltaDetector(repoPath string, logger *slog.Logger) *DeltaDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeltaDetector{logger: logger, repoPath: repoPath}
}

// GitDelta represents the changes between a base revision and HEAD.
type GitDelta struct {
	// BaseSHA is the resolved starting commit.
	BaseSHA string

	// HeadSHA is the resolved HEAD commit.
	HeadSHA string

	// Added, Modified, and Deleted list changed paths per status, sorted.
	Added    []string
	Modified []string
	Deleted  []string

	// Renamed maps old path to new path for renamed files.
	Renamed map[string]string
}

// ChangedSet returns the normalized paths that exist at HEAD with new or
// changed content: added, modified, and the new side of renames. Deleted
// files and rename sources are not in the set.
func (d *GitDelta) ChangedSet() map[string]bool {
	set := make(map[string]bool, len(d.Added)+len(d.Modified)+len(d.Renamed))
	for _, p := range d.Added {
		set[normalizePath(p)] = true
	}
	for _, p := range d.Modified {
		set[normalizePath(p)] = true
	}
	for _, newPath := range d.Renamed {
		set[normalizePath(newPath)] = true
	}
	return set
}

// HasChanges reports whether the delta contains any changed paths.
func (d *GitDelta) HasChanges() bool {
	return len(d.Added)+len(d.Modified)+len(d.Deleted)+len(d.Renamed) > 0
}

// DetectSince diffs a base revision against HEAD with rename detection
// and buckets the results by status.
func (dd *DeltaDetector) DetectSince(baseRev string) (*GitDelta, error) {
	resolvedBase, err := dd.resolveRef(baseRev)
	if err != nil {
		return nil, fmt.Errorf("resolve base revision: %w", err)
	}
	resolvedHead, err := dd.resolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	delta := &GitDelta{
		BaseSHA: resolvedBase,
		HeadSHA: resolvedHead,
		Renamed: make(map[string]string),
	}

	cmd := exec.Command("git", "diff", "--name-status", "-M", resolvedBase, resolvedHead)
	cmd.Dir = dd.repoPath

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git diff failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("git diff: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		status, paths := parseGitDiffLine(line)
		if status == "" {
			continue
		}

		switch status[0] {
		case 'A':
			delta.Added = append(delta.Added, paths[0])
		case 'M':
			delta.Modified = append(delta.Modified, paths[0])
		case 'D':
			delta.Deleted = append(delta.Deleted, paths[0])
		case 'R':
			// Status carries a similarity score ("R100"); paths are old, new.
			if len(paths) >= 2 {
				delta.Renamed[paths[0]] = paths[1]
			}
		case 'C':
			// Copies behave like adds of the destination.
			if len(paths) >= 2 {
				delta.Added = append(delta.Added, paths[1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse git diff: %w", err)
	}

	sort.Strings(delta.Added)
	sort.Strings(delta.Modified)
	sort.Strings(delta.Deleted)

	dd.logger.Info("delta.detect.complete",
		"base_sha", shortSHA(resolvedBase),
		"head_sha", shortSHA(resolvedHead),
		"added", len(delta.Added),
		"modified", len(delta.Modified),
		"deleted", len(delta.Deleted),
		"renamed", len(delta.Renamed),
	)

	return delta, nil
}

// IsGitRepository reports whether the repo path is inside a git work
// tree.
func (dd *DeltaDetector) IsGitRepository() bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = dd.repoPath
	return cmd.Run() == nil
}

// resolveRef resolves a revision (branch, tag, SHA, HEAD) to a commit
// SHA.
func (dd *DeltaDetector) resolveRef(ref string) (string, error) {
	cmd := exec.Command("git", "rev-parse", ref)
	cmd.Dir = dd.repoPath

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git rev-parse %s failed: %s", ref, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git rev-parse: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// parseGitDiffLine splits one --name-status line into its status and
// tab-separated paths.
func parseGitDiffLine(line string) (status string, paths []string) {
	parts := strings.Split(line, "\t")
	if len(parts) < 2 {
		return "", nil
	}

	status = parts[0]
	paths = parts[1:]
	for i, p := range paths {
		paths[i] = unquoteGitPath(p)
	}

	return status, paths
}

// unquoteGitPath undoes git's quoting of paths with special characters.
func unquoteGitPath(path string) string {
	if len(path) >= 2 && path[0] == '"' && path[len(path)-1] == '"' {
		unquoted := path[1 : len(path)-1]
		unquoted = strings.ReplaceAll(unquoted, "\\n", "\n")
		unquoted = strings.ReplaceAll(unquoted, "\\t", "\t")
		unquoted = strings.ReplaceAll(unquoted, "\\\\", "\\")
		unquoted = strings.ReplaceAll(unquoted, "\\\"", "\"")
		return unquoted
	}
	return path
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
