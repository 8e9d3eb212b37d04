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

// Package ingestion turns a Python repository into a searchable
// knowledge index.
//
// The package walks a repository, parses its Python sources into
// structural entities (modules, classes, functions, call edges), layers
// best-effort type and reference facts on top, renders everything into
// bounded text chunks, and appends those chunks to a knowledge store.
//
// # Pipeline Overview
//
// The pipeline processes a repository in five stages:
//
//  1. Discovery: walk the tree, classify files as source,
//     documentation, or configuration, and apply exclusions
//  2. Parsing: parse each source file with Tree-sitter and extract
//     entities
//  3. Type analysis: run an independent symbol pass collecting
//     definition, type, and reference facts
//  4. Message creation: assemble chunks for modules, classes, methods,
//     functions, and text files
//  5. Indexing: append chunk batches to the knowledge store
//
// Stages run strictly in order. Per-file faults are accumulated and
// reported; only index write errors abort a run.
//
// # Quick Start
//
// Create and run a pipeline, consuming its event stream:
//
//	pipeline, err := ingestion.NewPipeline(ingestion.Options{
//	    RepoPath: "/path/to/repo",
//	    Embedder: knowledge.NewHashEmbedder(knowledge.DefaultDimensions),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for ev := range pipeline.Run(ctx) {
//	    switch ev := ev.(type) {
//	    case ingestion.ProgressEvent:
//	        fmt.Println(ev.Detail)
//	    case ingestion.CompletionEvent:
//	        fmt.Println(ev.SummaryText)
//	    case ingestion.ErrorEvent:
//	        log.Fatalf("%s: %v", ev.Stage, ev.Err)
//	    }
//	}
//
// Cancelling the context stops the run cleanly: the channel closes
// without a terminal event.
//
// # Key Components
//
// Discoverer finds and classifies files:
//
//	files, err := ingestion.NewDiscoverer(logger).Discover(root, opts)
//
// Extractor parses one Python file into a SourceUnit:
//
//	unit, err := ingestion.NewExtractor(logger).Extract(content, relPath)
//
// Enricher adds symbol facts to a parsed unit; a nil result means the
// file could not be analyzed and is not an error:
//
//	facts := ingestion.NewEnricher(logger).Enrich(content, unit)
//
// Assembler renders units and text files into knowledge chunks:
//
//	chunks := ingestion.NewAssembler(logger).Assemble(unit, facts, project)
//
// Batcher groups chunks into fixed-size index writes, and
// ManifestManager persists the per-run manifest that powers
// --skip-unchanged.
//
// # Incremental Runs
//
// With Options.SkipUnchanged, the pipeline loads the previous run's
// manifest and skips parsing files whose content hash is unchanged.
// With Options.SinceRev, parsing is narrowed to the files git reports
// as changed since a revision; discovery and text-file chunks stay
// complete either way.
//
// # Metrics
//
// Prometheus counters and histograms cover discovered files, created
// chunks, parse failures, batch outcomes, and per-stage durations. They
// register on first use and are served when the CLI enables its
// metrics endpoint.
package ingestion
