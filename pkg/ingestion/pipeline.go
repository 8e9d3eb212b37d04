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
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/pylore/pkg/knowledge"
)

// Progress cadences: intermediate events are emitted every N completed
// units, not on every unit.
const (
	parseProgressEvery    = 50
	analysisProgressEvery = 25
	messageProgressEvery  = 25
)

// Options configures one ingestion run. Zero values select the defaults
// documented on each field.
type Options struct {
	// RepoPath is the repository to ingest. Required.
	RepoPath string

	// ProjectName tags the produced chunks. Defaults to the repository
	// directory name.
	ProjectName string

	// IndexPath is the output index location. Defaults to
	// "<repo_name>_codebase.db" in the working directory.
	IndexPath string

	// ExtraExcludes adds directory/file name patterns to the discovery
	// exclusion table.
	ExtraExcludes []string

	// UseGitignore honors the repository's root .gitignore during
	// discovery.
	UseGitignore bool

	// BodyCapChars caps extracted entity bodies. Defaults to
	// DefaultBodyCapChars.
	BodyCapChars int

	// ModuleCapChars caps module and text-file chunk segments. Defaults
	// to DefaultModuleCapChars.
	ModuleCapChars int

	// BatchSize is the number of chunks per index write. Defaults to
	// DefaultBatchSize.
	BatchSize int

	// Workers bounds parsing and analysis concurrency. Defaults to
	// runtime.NumCPU().
	Workers int

	// SkipUnchanged skips parsing files whose content hash matches the
	// previous run's manifest.
	SkipUnchanged bool

	// SinceRev, when set, restricts parsing to source files git reports
	// as added, modified, or renamed since this revision.
	SinceRev string

	// Embedder embeds chunks at append time. Required; use
	// knowledge.NewHashEmbedder for a deterministic offline default.
	Embedder knowledge.Embedder

	Logger *slog.Logger
}

// Pipeline runs the repository-to-index ingestion flow and reports
// progress as an event stream.
type Pipeline struct {
	opts        Options
	logger      *slog.Logger
	repoPath    string
	repoName    string
	projectName string
	indexPath   string
	indexName   string
	workers     int
}

// NewPipeline validates options and resolves the run's naming defaults.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.RepoPath == "" {
		return nil, fmt.Errorf("repository path required")
	}
	repoPath, err := filepath.Abs(opts.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repository path: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repoName := filepath.Base(repoPath)

	projectName := opts.ProjectName
	if projectName == "" {
		projectName = repoName
	}

	indexPath := opts.IndexPath
	if indexPath == "" {
		indexPath = repoName + "_codebase.db"
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Pipeline{
		opts:        opts,
		logger:      logger,
		repoPath:    repoPath,
		repoName:    repoName,
		projectName: projectName,
		indexPath:   indexPath,
		indexName:   repoName + "-codebase",
		workers:     workers,
	}, nil
}

// IndexPath returns the resolved output index location.
func (p *Pipeline) IndexPath() string { return p.indexPath }

// IndexName returns the resolved logical index name.
func (p *Pipeline) IndexName() string { return p.indexName }

// Run executes the pipeline. The returned channel carries progress
// events and closes when the run ends. A successful run ends with a
// CompletionEvent, a failed run with an ErrorEvent; a cancelled run ends
// with neither.
func (p *Pipeline) Run(ctx context.Context) <-chan Event {
	events := make(chan Event)
	go p.run(ctx, events)
	return events
}

func (p *Pipeline) run(ctx context.Context, events chan<- Event) {
	defer close(events)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("ingest.panic", "panic", r)
			emit(ctx, events, ErrorEvent{Stage: StageUnknown, Err: fmt.Errorf("unexpected fault: %v", r)})
		}
	}()

	start := time.Now()
	runID := uuid.NewString()
	p.logger.Info("ingest.start", "repo", p.repoPath, "index", p.indexPath, "run_id", runID)

	// Stage 1: discovery.
	if !emit(ctx, events, ProgressEvent{Stage: StageDiscovery, Status: StatusActive, Detail: "Scanning repository for Python files..."}) {
		return
	}
	stageStart := time.Now()

	files, err := NewDiscoverer(p.logger).Discover(p.repoPath, DiscoverOptions{
		ExtraExcludes: p.opts.ExtraExcludes,
		UseGitignore:  p.opts.UseGitignore,
	})
	if err != nil {
		emit(ctx, events, ErrorEvent{Stage: StageDiscovery, Err: err})
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, f := range files {
		recordFileDiscovered(f.Kind)
	}
	recordStageDuration(StageDiscovery, time.Since(stageStart))

	if !emit(ctx, events, ProgressEvent{Stage: StageDiscovery, Status: StatusComplete, Progress: 100, Detail: discoveryDetail(files)}) {
		return
	}

	var sourceFiles, textFiles []FileRecord
	for _, f := range files {
		if f.Kind == KindSource {
			sourceFiles = append(sourceFiles, f)
		} else {
			textFiles = append(textFiles, f)
		}
	}

	// The --since filter narrows the parsing fan-out only; discovery and
	// text-file chunks stay complete.
	if p.opts.SinceRev != "" {
		detector := NewDeltaDetector(p.repoPath, p.logger)
		if !detector.IsGitRepository() {
			emit(ctx, events, ErrorEvent{Stage: StageParsing, Err: fmt.Errorf("git delta since %s: %s is not a git repository", p.opts.SinceRev, p.repoPath)})
			return
		}
		delta, err := detector.DetectSince(p.opts.SinceRev)
		if err != nil {
			emit(ctx, events, ErrorEvent{Stage: StageParsing, Err: fmt.Errorf("git delta since %s: %w", p.opts.SinceRev, err)})
			return
		}
		changed := delta.ChangedSet()
		kept := sourceFiles[:0]
		for _, f := range sourceFiles {
			if changed[f.Path] {
				kept = append(kept, f)
			}
		}
		p.logger.Info("ingest.delta.filtered", "since", p.opts.SinceRev, "kept", len(kept), "of", len(sourceFiles))
		sourceFiles = kept
	}

	var prevHashes map[string]string
	manifestMgr := NewManifestManager(p.indexPath)
	if p.opts.SkipUnchanged {
		prev, err := manifestMgr.Load()
		if err != nil {
			p.logger.Warn("ingest.manifest.load.error", "err", err)
		} else if prev != nil {
			prevHashes = prev.FileHashes
		}
	}

	// Stage 2: parsing.
	if !emit(ctx, events, ProgressEvent{Stage: StageParsing, Status: StatusActive, Detail: "Starting file parsing..."}) {
		return
	}
	stageStart = time.Now()

	parsed, ok := p.parseFiles(ctx, events, sourceFiles, prevHashes)
	if !ok {
		return
	}
	recordStageDuration(StageParsing, time.Since(stageStart))

	if !emit(ctx, events, ProgressEvent{Stage: StageParsing, Status: StatusComplete, Progress: 100, Detail: fmt.Sprintf("✓ Parsed %d files", len(parsed.units))}) {
		return
	}

	// Stage 3: type analysis. Skipped without events when nothing parsed.
	enrichments := make([]*EnrichmentResult, len(parsed.units))
	if len(parsed.units) > 0 {
		if !emit(ctx, events, ProgressEvent{Stage: StageTypeAnalysis, Status: StatusActive, Detail: "Starting type analysis..."}) {
			return
		}
		stageStart = time.Now()

		analyzed, ok := p.analyzeUnits(ctx, events, parsed.units, enrichments)
		if !ok {
			return
		}
		recordStageDuration(StageTypeAnalysis, time.Since(stageStart))

		if !emit(ctx, events, ProgressEvent{Stage: StageTypeAnalysis, Status: StatusComplete, Progress: 100, Detail: fmt.Sprintf("✓ Analyzed %d files with type facts", analyzed)}) {
			return
		}
	}

	// Stage 4: message creation.
	if !emit(ctx, events, ProgressEvent{Stage: StageMessageCreation, Status: StatusActive, Detail: "Creating messages from parsed code..."}) {
		return
	}
	stageStart = time.Now()

	chunks, ok := p.createMessages(ctx, events, parsed.units, enrichments, textFiles)
	if !ok {
		return
	}
	recordStageDuration(StageMessageCreation, time.Since(stageStart))

	totalFiles := len(parsed.units) + len(textFiles)
	if !emit(ctx, events, ProgressEvent{Stage: StageMessageCreation, Status: StatusComplete, Progress: 100, Detail: fmt.Sprintf("✓ Created %d messages from %d files", len(chunks), totalFiles)}) {
		return
	}

	symbols := 0
	for _, u := range parsed.units {
		symbols += u.SymbolCount()
	}

	// Stage 5: indexing.
	if !emit(ctx, events, ProgressEvent{Stage: StageIndexing, Status: StatusActive, Detail: "Creating knowledge index and indexing..."}) {
		return
	}
	stageStart = time.Now()

	appended, refs, ok := p.indexChunks(ctx, events, chunks, runID)
	if !ok {
		return
	}
	recordStageDuration(StageIndexing, time.Since(stageStart))

	if !emit(ctx, events, ProgressEvent{Stage: StageIndexing, Status: StatusComplete, Progress: 100, Detail: "✓ Indexing complete"}) {
		return
	}

	duration := time.Since(start)

	manifest := &Manifest{
		RunID:          runID,
		FilesProcessed: len(files),
		FilesSkipped:   parsed.skipped,
		ChunksCreated:  len(chunks),
		SymbolsIndexed: symbols,
		DurationMS:     duration.Milliseconds(),
		FileHashes:     parsed.hashes,
	}
	if err := manifestMgr.Save(manifest); err != nil {
		p.logger.Warn("ingest.manifest.save.error", "err", err)
	}

	result := IngestResult{
		RunID:              runID,
		FilesProcessed:     len(files),
		FilesSkipped:       parsed.skipped,
		ChunksCreated:      len(chunks),
		SymbolsIndexed:     symbols,
		SemanticReferences: refs,
		Failures:           parsed.failures,
		Duration:           duration,
		IndexPath:          p.indexPath,
		IndexName:          p.indexName,
	}

	p.logger.Info("ingest.complete",
		"run_id", runID,
		"files", result.FilesProcessed,
		"files_skipped", result.FilesSkipped,
		"chunks", result.ChunksCreated,
		"symbols", result.SymbolsIndexed,
		"refs", result.SemanticReferences,
		"appended", appended,
		"failures", len(result.Failures),
		"duration_ms", duration.Milliseconds(),
	)

	emit(ctx, events, CompletionEvent{Result: result, SummaryText: result.Summary()})
}

// parseStageResult aggregates the parsing stage's output. units holds
// successfully parsed files in discovery order.
type parseStageResult struct {
	units    []*SourceUnit
	hashes   map[string]string
	failures []FileFailure
	skipped  int
}

// fileOutcome is one file's parsing result, tagged with its input index
// so collection preserves discovery order.
type fileOutcome struct {
	index   int
	path    string
	unit    *SourceUnit
	hash    string
	skipped bool
	failure *FileFailure
}

func (p *Pipeline) parseFiles(ctx context.Context, events chan<- Event, files []FileRecord, prevHashes map[string]string) (*parseStageResult, bool) {
	if len(files) == 0 {
		return &parseStageResult{hashes: make(map[string]string)}, true
	}
	if len(files) < 10 || p.workers <= 1 {
		return p.parseFilesSequential(ctx, events, files, prevHashes)
	}
	return p.parseFilesParallel(ctx, events, files, prevHashes)
}

func (p *Pipeline) parseFilesParallel(ctx context.Context, events chan<- Event, files []FileRecord, prevHashes map[string]string) (*parseStageResult, bool) {
	jobs := make(chan int, len(files))
	resultsChan := make(chan fileOutcome, len(files))

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			extractor := p.newExtractor()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				resultsChan <- p.parseOne(extractor, files[i], i, prevHashes)
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	units := make([]*SourceUnit, len(files))
	result := &parseStageResult{hashes: make(map[string]string)}
	completed := 0
	for fr := range resultsChan {
		completed++
		p.collectOutcome(result, units, fr)
		if completed%parseProgressEvery == 0 || completed == len(files) {
			if !p.emitParseProgress(ctx, events, completed, len(files)) {
				return nil, false
			}
		}
	}
	if ctx.Err() != nil {
		return nil, false
	}

	result.units = compactUnits(units)
	return result, true
}

func (p *Pipeline) parseFilesSequential(ctx context.Context, events chan<- Event, files []FileRecord, prevHashes map[string]string) (*parseStageResult, bool) {
	extractor := p.newExtractor()
	units := make([]*SourceUnit, len(files))
	result := &parseStageResult{hashes: make(map[string]string)}

	for i := range files {
		if ctx.Err() != nil {
			return nil, false
		}
		p.collectOutcome(result, units, p.parseOne(extractor, files[i], i, prevHashes))
		completed := i + 1
		if completed%parseProgressEvery == 0 || completed == len(files) {
			if !p.emitParseProgress(ctx, events, completed, len(files)) {
				return nil, false
			}
		}
	}

	result.units = compactUnits(units)
	return result, true
}

func (p *Pipeline) newExtractor() *Extractor {
	extractor := NewExtractor(p.logger)
	if p.opts.BodyCapChars > 0 {
		extractor.SetBodyCap(p.opts.BodyCapChars)
	}
	return extractor
}

// parseOne reads, hashes, and extracts one source file. Hashes are only
// recorded for files that parse or are skipped, so a failed file is
// retried by the next incremental run.
func (p *Pipeline) parseOne(extractor *Extractor, rec FileRecord, index int, prevHashes map[string]string) fileOutcome {
	content, err := os.ReadFile(rec.AbsPath)
	if err != nil {
		p.logger.Warn("ingest.parse_file.error", "path", rec.Path, "err", err)
		return fileOutcome{index: index, path: rec.Path, failure: &FileFailure{Path: rec.Path, Reason: err.Error()}}
	}

	hash := ContentHash(content)
	if prevHashes != nil && prevHashes[rec.Path] == hash {
		return fileOutcome{index: index, path: rec.Path, hash: hash, skipped: true}
	}

	unit, err := extractor.Extract(content, rec.Path)
	if err != nil {
		recordParseFailure()
		p.logger.Warn("ingest.parse_file.error", "path", rec.Path, "err", err)
		return fileOutcome{index: index, path: rec.Path, failure: &FileFailure{Path: rec.Path, Reason: err.Error()}}
	}

	return fileOutcome{index: index, path: rec.Path, unit: unit, hash: hash}
}

func (p *Pipeline) collectOutcome(result *parseStageResult, units []*SourceUnit, fr fileOutcome) {
	units[fr.index] = fr.unit
	if fr.hash != "" {
		result.hashes[fr.path] = fr.hash
	}
	if fr.skipped {
		result.skipped++
	}
	if fr.failure != nil {
		result.failures = append(result.failures, *fr.failure)
	}
}

func (p *Pipeline) emitParseProgress(ctx context.Context, events chan<- Event, completed, total int) bool {
	pct := float64(completed) / float64(total) * 100
	return emit(ctx, events, ProgressEvent{
		Stage:    StageParsing,
		Status:   StatusActive,
		Progress: pct,
		Detail:   fmt.Sprintf("⚙️ Processing: %d/%d Python files (%.1f%%)", completed, total, pct),
	})
}

func compactUnits(units []*SourceUnit) []*SourceUnit {
	kept := make([]*SourceUnit, 0, len(units))
	for _, u := range units {
		if u != nil {
			kept = append(kept, u)
		}
	}
	return kept
}

// analyzeUnits runs the enrichment pass over every parsed unit, bounded
// by the worker limit. It fills enrichments positionally and returns the
// number of files that produced usable facts.
func (p *Pipeline) analyzeUnits(ctx context.Context, events chan<- Event, units []*SourceUnit, enrichments []*EnrichmentResult) (int, bool) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	total := len(units)
	var analyzed, completed atomic.Int64

	for i := range units {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			enricher := NewEnricher(p.logger)
			res := enricher.Enrich([]byte(units[i].SourceText), units[i])
			enrichments[i] = res
			if res != nil {
				analyzed.Add(1)
			}

			done := completed.Add(1)
			if done%analysisProgressEvery == 0 || int(done) == total {
				pct := float64(done) / float64(total) * 100
				ev := ProgressEvent{
					Stage:    StageTypeAnalysis,
					Status:   StatusActive,
					Progress: pct,
					Detail:   fmt.Sprintf("⚙️ Analyzing: %d/%d files (%.1f%%)", done, total, pct),
				}
				if !emit(gctx, events, ev) {
					return gctx.Err()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, false
	}
	return int(analyzed.Load()), true
}

// createMessages assembles chunks for parsed units and text files, in
// discovery order: each module chunk, its classes and methods, its
// functions, then documentation and configuration chunks.
func (p *Pipeline) createMessages(ctx context.Context, events chan<- Event, units []*SourceUnit, enrichments []*EnrichmentResult, textFiles []FileRecord) ([]knowledge.Chunk, bool) {
	assembler := NewAssembler(p.logger)
	if p.opts.ModuleCapChars > 0 {
		assembler.SetModuleCap(p.opts.ModuleCapChars)
	}

	total := len(units) + len(textFiles)
	var chunks []knowledge.Chunk
	processed := 0

	progress := func() bool {
		if processed%messageProgressEvery != 0 && processed != total {
			return true
		}
		pct := float64(processed) / float64(total) * 100
		return emit(ctx, events, ProgressEvent{
			Stage:    StageMessageCreation,
			Status:   StatusActive,
			Progress: pct,
			Detail:   fmt.Sprintf("⚙️ Processing: %d/%d files (%.1f%%) - %d messages created", processed, total, pct, len(chunks)),
		})
	}

	for i, unit := range units {
		if ctx.Err() != nil {
			return nil, false
		}
		cs := assembler.Assemble(unit, enrichments[i], p.projectName)
		for _, c := range cs {
			recordChunks(chunkKind(c), 1)
		}
		chunks = append(chunks, cs...)
		processed++
		if !progress() {
			return nil, false
		}
	}

	for _, rec := range textFiles {
		if ctx.Err() != nil {
			return nil, false
		}
		if c := assembler.AssembleTextFile(rec); c != nil {
			recordChunks(string(rec.Kind), 1)
			chunks = append(chunks, *c)
		}
		processed++
		if !progress() {
			return nil, false
		}
	}

	return chunks, true
}

// indexChunks opens the store, appends every batch, and stamps the run.
// Index write errors are fatal for the run.
func (p *Pipeline) indexChunks(ctx context.Context, events chan<- Event, chunks []knowledge.Chunk, runID string) (int, int, bool) {
	store, err := knowledge.Open(p.indexPath, knowledge.SchemaHint{
		Name: p.indexName,
		Tags: []string{p.repoName, "codebase", "python"},
	}, p.opts.Embedder, p.logger)
	if err != nil {
		emit(ctx, events, ErrorEvent{Stage: StageIndexing, Err: err})
		return 0, 0, false
	}
	defer store.Close()

	batches := NewBatcher(p.opts.BatchSize, p.logger).Batch(chunks)

	totalMessages := 0
	totalRefs := 0
	for bi, batch := range batches {
		if ctx.Err() != nil {
			return 0, 0, false
		}

		num := bi + 1
		detail := fmt.Sprintf("⚙️ Batch %d/%d: Processing %d messages - Extracting knowledge...", num, len(batches), len(batch))
		if !emit(ctx, events, ProgressEvent{Stage: StageIndexing, Status: StatusActive, Progress: float64(bi) / float64(len(batches)) * 100, Detail: detail}) {
			return 0, 0, false
		}

		appendStart := time.Now()
		stats, err := store.AppendBatch(ctx, batch)
		recordAppendDuration(time.Since(appendStart))
		if err != nil {
			if ctx.Err() != nil {
				return 0, 0, false
			}
			recordBatch("error")
			emit(ctx, events, ErrorEvent{Stage: StageIndexing, Err: fmt.Errorf("append batch %d/%d: %w", num, len(batches), err)})
			return 0, 0, false
		}
		recordBatch("ok")

		totalMessages += stats.ChunksAppended
		totalRefs += stats.DerivedLinksAdded

		pct := float64(num) / float64(len(batches)) * 100
		detail = fmt.Sprintf("✓ Batch %d/%d done (%.1f%%) | Total: %d messages, %d refs", num, len(batches), pct, totalMessages, totalRefs)
		if !emit(ctx, events, ProgressEvent{Stage: StageIndexing, Status: StatusActive, Progress: pct, Detail: detail}) {
			return 0, 0, false
		}
	}

	if err := store.StampRun(ctx, runID); err != nil {
		if ctx.Err() != nil {
			return 0, 0, false
		}
		emit(ctx, events, ErrorEvent{Stage: StageIndexing, Err: fmt.Errorf("stamp run: %w", err)})
		return 0, 0, false
	}

	return totalMessages, totalRefs, true
}

// discoveryDetail renders the discovery completion line with kind counts
// in first-seen order.
func discoveryDetail(files []FileRecord) string {
	counts := make(map[FileKind]int)
	var order []FileKind
	for _, f := range files {
		if counts[f.Kind] == 0 {
			order = append(order, f.Kind)
		}
		counts[f.Kind]++
	}

	if len(order) == 0 {
		return fmt.Sprintf("✓ Found %d files", len(files))
	}

	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return fmt.Sprintf("✓ Found %d files (%s)", len(files), strings.Join(parts, ", "))
}

func chunkKind(c knowledge.Chunk) string {
	if len(c.Tags) > 0 && c.Tags[0] != "" {
		return c.Tags[0]
	}
	return "unknown"
}

// emit delivers an event unless the run is cancelled first. A false
// return means the consumer stopped listening or the context ended;
// callers bail out without a terminal event.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
