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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/pylore/pkg/ingestion"
)

func TestIngestOptions_FlagsWinOverConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Index.Path = "config.db"
	cfg.Index.Name = "billing"
	cfg.Discovery.Exclude = []string{"migrations"}
	cfg.Discovery.UseGitignore = true
	cfg.Limits.BodyChars = 2000
	cfg.Limits.ModuleChars = 9000
	cfg.Indexing.BatchSize = 10
	cfg.Concurrency.Workers = 4

	fl := ingestFlags{
		output:        "flag.db",
		excludes:      []string{"generated", "*.pb.py"},
		skipUnchanged: true,
		since:         "HEAD~5",
	}

	opts := ingestOptions(cfg, fl, "/srv/repo")

	assert.Equal(t, "/srv/repo", opts.RepoPath)
	assert.Equal(t, "billing", opts.ProjectName)
	assert.Equal(t, "flag.db", opts.IndexPath)
	assert.Equal(t, []string{"migrations", "generated", "*.pb.py"}, opts.ExtraExcludes)
	assert.True(t, opts.UseGitignore)
	assert.Equal(t, 2000, opts.BodyCapChars)
	assert.Equal(t, 9000, opts.ModuleCapChars)
	assert.Equal(t, 10, opts.BatchSize)
	assert.Equal(t, 4, opts.Workers)
	assert.True(t, opts.SkipUnchanged)
	assert.Equal(t, "HEAD~5", opts.SinceRev)
}

func TestMetricsAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ":9301"

	// The flag wins over configuration.
	addr := metricsAddress(ingestFlags{metricsAddr: "127.0.0.1:9999"}, cfg)
	assert.Equal(t, "127.0.0.1:9999", addr)

	// Without the flag, enabled config supplies the address.
	assert.Equal(t, ":9301", metricsAddress(ingestFlags{}, cfg))

	// Disabled config leaves the endpoint off.
	cfg.Metrics.Enabled = false
	assert.Empty(t, metricsAddress(ingestFlags{}, cfg))
}

func TestIngestOptions_ConfigIndexPathUsedWithoutFlag(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Index.Path = "config.db"

	opts := ingestOptions(cfg, ingestFlags{}, ".")
	assert.Equal(t, "config.db", opts.IndexPath)
}

func TestIngestOptions_Defaults(t *testing.T) {
	opts := ingestOptions(DefaultConfig(), ingestFlags{}, ".")

	assert.Equal(t, ".", opts.RepoPath)
	assert.Empty(t, opts.ProjectName)
	// Empty index path lets the pipeline derive <repo_name>_codebase.db.
	assert.Empty(t, opts.IndexPath)
	assert.Empty(t, opts.ExtraExcludes)
	assert.Equal(t, ingestion.DefaultBodyCapChars, opts.BodyCapChars)
	assert.Equal(t, ingestion.DefaultModuleCapChars, opts.ModuleCapChars)
	assert.Equal(t, ingestion.DefaultBatchSize, opts.BatchSize)
	assert.False(t, opts.SkipUnchanged)
	assert.Empty(t, opts.SinceRev)
}

func feedEvents(events ...ingestion.Event) <-chan ingestion.Event {
	ch := make(chan ingestion.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestRenderIngestEvents_Completion(t *testing.T) {
	result := ingestion.IngestResult{
		RunID:          "run-1",
		FilesProcessed: 3,
		ChunksCreated:  6,
	}
	events := feedEvents(
		ingestion.ProgressEvent{Stage: ingestion.StageDiscovery, Status: ingestion.StatusActive, Detail: "Scanning repository for Python files..."},
		ingestion.ProgressEvent{Stage: ingestion.StageDiscovery, Status: ingestion.StatusComplete, Progress: 100, Detail: "✓ Found 3 files (source: 3)"},
		ingestion.ProgressEvent{Stage: ingestion.StageIndexing, Status: ingestion.StatusActive, Progress: 50, Detail: "⚙️ Batch 1/2"},
		ingestion.CompletionEvent{Result: result, SummaryText: "stats block"},
	)

	out := renderIngestEvents(events, GlobalFlags{Quiet: true})

	require.NotNil(t, out.result)
	assert.Equal(t, result, *out.result)
	assert.Equal(t, "stats block", out.summary)
	assert.Nil(t, out.failure)
}

func TestRenderIngestEvents_Failure(t *testing.T) {
	events := feedEvents(
		ingestion.ProgressEvent{Stage: ingestion.StageIndexing, Status: ingestion.StatusActive, Detail: "Creating knowledge index and indexing..."},
		ingestion.ErrorEvent{Stage: ingestion.StageIndexing, Err: errors.New("disk full")},
	)

	out := renderIngestEvents(events, GlobalFlags{Quiet: true})

	require.NotNil(t, out.failure)
	assert.Equal(t, ingestion.StageIndexing, out.failure.Stage)
	assert.EqualError(t, out.failure.Err, "disk full")
	assert.Nil(t, out.result)
	assert.Empty(t, out.summary)
}

func TestRenderIngestEvents_CancelledStream(t *testing.T) {
	// A cancelled run closes the stream without a terminal event.
	events := feedEvents(
		ingestion.ProgressEvent{Stage: ingestion.StageParsing, Status: ingestion.StatusActive, Detail: "Starting file parsing..."},
	)

	out := renderIngestEvents(events, GlobalFlags{Quiet: true})

	assert.Nil(t, out.result)
	assert.Nil(t, out.failure)
	assert.Empty(t, out.summary)
}
