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
	"strings"
	"time"
)

// Pipeline stage names, in execution order.
const (
	StageDiscovery       = "discovery"
	StageParsing         = "parsing"
	StageTypeAnalysis    = "type_analysis"
	StageMessageCreation = "message_creation"
	StageIndexing        = "indexing"

	// StageUnknown labels faults that cannot be attributed to a stage.
	StageUnknown = "unknown"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{
	StageDiscovery,
	StageParsing,
	StageTypeAnalysis,
	StageMessageCreation,
	StageIndexing,
}

// Stage statuses.
const (
	StatusPending  = "pending"
	StatusActive   = "active"
	StatusComplete = "complete"
	StatusError    = "error"
)

// Event is a pipeline progress notification. The concrete types are
// ProgressEvent, CompletionEvent, and ErrorEvent; a run's event stream
// ends with exactly one of the latter two, or with neither when the run
// is cancelled.
type Event interface {
	event()
}

// ProgressEvent reports a stage transition or periodic progress within a
// stage.
type ProgressEvent struct {
	// Stage is one of the Stage* constants.
	Stage string

	// Status is one of the Status* constants.
	Status string

	// Progress is the stage's completion percentage, 0 to 100.
	Progress float64

	// Detail is a human-readable one-liner for display.
	Detail string
}

func (ProgressEvent) event() {}

// CompletionEvent is the terminal event of a successful run.
type CompletionEvent struct {
	Result IngestResult

	// SummaryText is the preformatted statistics block for display.
	SummaryText string
}

func (CompletionEvent) event() {}

// ErrorEvent is the terminal event of a failed run.
type ErrorEvent struct {
	// Stage names the stage that was active when the run failed, or
	// StageUnknown when the fault cannot be attributed.
	Stage string

	Err error
}

func (ErrorEvent) event() {}

// IngestResult summarizes a completed ingestion run.
type IngestResult struct {
	// RunID is the unique identifier for this ingestion run (UUID).
	RunID string

	// FilesProcessed is the total number of files the run considered,
	// across all kinds.
	FilesProcessed int

	// FilesSkipped is the number of source files skipped because their
	// content hash matched the previous run's manifest.
	FilesSkipped int

	// ChunksCreated is the number of knowledge chunks built from those
	// files.
	ChunksCreated int

	// SymbolsIndexed is the total number of classes and functions
	// extracted from source files.
	SymbolsIndexed int

	// SemanticReferences is the number of derived cross-references the
	// index reported while appending.
	SemanticReferences int

	// Failures lists the files that failed during any stage. A non-empty
	// list does not make the run unsuccessful.
	Failures []FileFailure

	// Duration is the total wall time of the run.
	Duration time.Duration

	// IndexPath is the location of the knowledge index that was written.
	IndexPath string

	// IndexName is the logical name of the index.
	IndexName string
}

// Summary renders the statistics block shown after a successful run.
func (r *IngestResult) Summary() string {
	var b strings.Builder
	b.WriteString("📊 Ingestion Statistics:\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "📄 Files Processed: %d\n", r.FilesProcessed)
	fmt.Fprintf(&b, "💬 Messages Created: %d\n", r.ChunksCreated)
	fmt.Fprintf(&b, "🔤 Symbols Indexed: %d\n", r.SymbolsIndexed)
	fmt.Fprintf(&b, "🔗 Semantic References: %d\n", r.SemanticReferences)
	fmt.Fprintf(&b, "⏱️  Duration: %.2fs\n", r.Duration.Seconds())
	fmt.Fprintf(&b, "💾 Database: %s", r.IndexPath)
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "\n\n⚠️  Warning: %d files failed to process", len(r.Failures))
	}
	return b.String()
}
