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
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/pylore/internal/errors"
	"github.com/kraklabs/pylore/internal/output"
	"github.com/kraklabs/pylore/internal/ui"
	"github.com/kraklabs/pylore/pkg/ingestion"
	"github.com/kraklabs/pylore/pkg/knowledge"
)

// ingestFlags holds parsed flags for the ingest command.
type ingestFlags struct {
	output        string
	excludes      []string
	skipUnchanged bool
	since         string
	metricsAddr   string
}

// runIngest executes the 'ingest' CLI command, running the full pipeline
// over a repository and rendering its event stream.
//
// Flags:
//   - -o/--output: Index file path (default: <repo_name>_codebase.db)
//   - --exclude: Extra exclude pattern, repeatable
//   - -q/--quiet: Suppress progress output
//   - --skip-unchanged: Skip files unchanged since the last run
//   - --since: Only parse files changed since this git revision
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//
// Examples:
//
//	pylore ingest .                       Ingest the current repository
//	pylore ingest ~/src/app -o app.db     Choose the index file
//	pylore ingest . --skip-unchanged      Re-ingest only changed files
//	pylore ingest . --since HEAD~5        Only files changed in the last 5 commits
func runIngest(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	outPath := fs.StringP("output", "o", "", "Index file path (default: <repo_name>_codebase.db)")
	excludes := fs.StringArray("exclude", nil, "Extra exclude pattern (repeatable)")
	quiet := fs.BoolP("quiet", "q", false, "Suppress progress output")
	skipUnchanged := fs.Bool("skip-unchanged", false, "Skip files whose content is unchanged since the last run")
	since := fs.String("since", "", "Only parse files changed since this git revision")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: pylore ingest [repo] [options]

Ingests a Python repository into a local knowledge index. The repository
defaults to the current directory. Configuration is read from
.pylore/config.yaml when present; flags override file values.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  pylore ingest .
  pylore ingest ~/src/app -o app.db --exclude migrations
  pylore ingest . --skip-unchanged
  pylore ingest . --since v1.4.0
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	globals.Quiet = globals.Quiet || *quiet

	repoPath := "."
	if fs.NArg() > 0 {
		repoPath = fs.Arg(0)
	}

	cfgPath := globals.ConfigPath
	if cfgPath == "" {
		cfgPath = ConfigPath(repoPath)
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load pylore configuration",
			err.Error(),
			"Fix the file or run 'pylore init' to write a fresh configuration",
			err,
		), globals.JSON)
	}

	logger := slog.Default()

	embedder, err := knowledge.NewEmbedder(cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Endpoint, logger)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot create embedding provider",
			err.Error(),
			"Check the embedding section of .pylore/config.yaml",
			err,
		), globals.JSON)
	}

	fl := ingestFlags{
		output:        *outPath,
		excludes:      *excludes,
		skipUnchanged: *skipUnchanged,
		since:         *since,
		metricsAddr:   *metricsAddr,
	}
	opts := ingestOptions(cfg, fl, repoPath)
	opts.Embedder = embedder
	opts.Logger = logger

	pipeline, err := ingestion.NewPipeline(opts)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Invalid repository path",
			err.Error(),
			"Pass the root directory of the repository to ingest",
		), globals.JSON)
	}

	// Optional Prometheus endpoint, served for the duration of the run.
	addr := metricsAddress(fl, cfg)
	if addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: addr, Handler: mux}
			logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	// Signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	outcome := renderIngestEvents(pipeline.Run(ctx), globals)

	switch {
	case outcome.failure != nil:
		fatalIngestError(outcome.failure, globals.JSON)

	case outcome.result == nil:
		// The stream closed without a terminal event: the run was cancelled.
		ui.Warning("Cancelled")
		os.Exit(130)

	default:
		if globals.JSON {
			if err := output.JSON(outcome.result); err != nil {
				errors.FatalError(err, true)
			}
			return
		}
		fmt.Println()
		fmt.Println(outcome.summary)
		fmt.Println()
		manifestPath := ingestion.NewManifestManager(pipeline.IndexPath()).Path()
		fmt.Printf("Manifest stored in: %s\n", ui.DimText(manifestPath))
	}
}

// ingestOptions maps the loaded configuration and parsed flags onto
// pipeline options. Flags win over config values.
func ingestOptions(cfg *Config, fl ingestFlags, repoPath string) ingestion.Options {
	indexPath := fl.output
	if indexPath == "" {
		indexPath = cfg.Index.Path
	}

	extra := append([]string{}, cfg.Discovery.Exclude...)
	extra = append(extra, fl.excludes...)

	return ingestion.Options{
		RepoPath:       repoPath,
		ProjectName:    cfg.Index.Name,
		IndexPath:      indexPath,
		ExtraExcludes:  extra,
		UseGitignore:   cfg.Discovery.UseGitignore,
		BodyCapChars:   cfg.Limits.BodyChars,
		ModuleCapChars: cfg.Limits.ModuleChars,
		BatchSize:      cfg.Indexing.BatchSize,
		Workers:        cfg.Concurrency.Workers,
		SkipUnchanged:  fl.skipUnchanged,
		SinceRev:       fl.since,
	}
}

// metricsAddress resolves the Prometheus listen address: the flag wins,
// then configuration when metrics are enabled. Empty disables the
// endpoint.
func metricsAddress(fl ingestFlags, cfg *Config) string {
	if fl.metricsAddr != "" {
		return fl.metricsAddr
	}
	if cfg.Metrics.Enabled {
		return cfg.Metrics.Addr
	}
	return ""
}

// ingestOutcome is what the event stream produced: a result on success,
// a failure on error, neither when the run was cancelled.
type ingestOutcome struct {
	result  *ingestion.IngestResult
	summary string
	failure *ingestion.ErrorEvent
}

// renderIngestEvents consumes the pipeline's event stream and renders it:
// a per-stage progress bar on a TTY, plain completion lines otherwise,
// nothing in quiet mode.
func renderIngestEvents(events <-chan ingestion.Event, globals GlobalFlags) ingestOutcome {
	cfg := NewProgressConfig(globals)

	var out ingestOutcome
	var bar *progressbar.ProgressBar

	finishBar := func() {
		if bar != nil {
			_ = bar.Finish()
			bar = nil
		}
	}

	for ev := range events {
		switch e := ev.(type) {
		case ingestion.ProgressEvent:
			switch e.Status {
			case ingestion.StatusActive:
				if cfg.Enabled {
					if bar == nil {
						bar = NewProgressBar(cfg, 100, stageTitle(e.Stage))
					}
					if e.Detail != "" {
						bar.Describe(e.Detail)
					}
					if e.Progress > 0 {
						_ = bar.Set(int(e.Progress))
					}
				} else if globals.Verbose > 0 && !globals.Quiet {
					fmt.Fprintln(os.Stderr, e.Detail)
				}

			case ingestion.StatusComplete:
				finishBar()
				if !globals.Quiet {
					fmt.Println(e.Detail)
				}
			}

		case ingestion.ErrorEvent:
			finishBar()
			out.failure = &e

		case ingestion.CompletionEvent:
			finishBar()
			result := e.Result
			out.result = &result
			out.summary = e.SummaryText
		}
	}
	finishBar()
	return out
}

// fatalIngestError converts a pipeline error event into a user error and
// exits. The stage determines the error category.
func fatalIngestError(ev *ingestion.ErrorEvent, jsonOutput bool) {
	var uerr *errors.UserError
	switch ev.Stage {
	case ingestion.StageDiscovery:
		uerr = errors.NewInputError(
			"Cannot scan repository",
			ev.Err.Error(),
			"Pass the root directory of the repository to ingest",
		)
	case ingestion.StageParsing:
		uerr = errors.NewInputError(
			"Cannot resolve changed files",
			ev.Err.Error(),
			"Check that the repository is a git checkout and the --since revision exists",
		)
	case ingestion.StageIndexing:
		uerr = errors.NewIndexError(
			"Cannot write knowledge index",
			ev.Err.Error(),
			"Close other pylore instances and retry",
			ev.Err,
		)
	default:
		uerr = errors.NewInternalError(
			"Ingestion failed unexpectedly",
			ev.Err.Error(),
			"Re-run with --log-level debug and report the output",
			ev.Err,
		)
	}
	errors.FatalError(uerr, jsonOutput)
}
