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
// Package main implements the pylore CLI for ingesting Python repositories
// into knowledge indexes and querying them.
//
// Usage:
//
//	pylore ingest <repo>          Ingest a repository into a knowledge index
//	pylore query <text>           Query a knowledge index
//	pylore list                   List knowledge indexes
//	pylore info <db>              Show index metadata
//	pylore init                   Create .pylore/config.yaml configuration
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kraklabs/pylore/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags carries the options shared by every subcommand.
type GlobalFlags struct {
	// ConfigPath is the configuration file location. Empty means
	// ./.pylore/config.yaml.
	ConfigPath string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// JSON selects machine-readable output. Implies Quiet.
	JSON bool

	// Quiet suppresses progress output. Set by --json or a command's
	// -q flag.
	Quiet bool

	// NoColor disables colored terminal output.
	NoColor bool

	// Verbose is nonzero when debug logging is active; cadence progress
	// lines are printed on non-TTY output only at this level.
	Verbose int
}

// main is the entry point for the pylore CLI.
//
// It parses global flags, configures logging and colors, and dispatches
// to command handlers.
//
// Global flags:
//   - --version: Display version information and exit
//   - --config: Path to .pylore/config.yaml configuration file
//   - --log-level: Log level (debug|info|warn|error)
//   - --no-color: Disable colored output
//   - --json: Machine-readable output
//
// Commands:
//   - ingest: Ingest a repository into a knowledge index
//   - query: Query a knowledge index
//   - list: List knowledge index files
//   - info: Show index metadata
//   - init: Create .pylore/config.yaml configuration
func main() {
	// Global flags
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .pylore/config.yaml (default: ./.pylore/config.yaml)")
		logLevel    = flag.String("log-level", "warn", "Log level: debug|info|warn|error")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		jsonOut     = flag.Bool("json", false, "Machine-readable JSON output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `pylore - Python repository knowledge extraction

pylore parses a Python repository with Tree-sitter, turns its modules,
classes, and functions into knowledge chunks, and writes them to a
local SQLite knowledge index that can be queried from the command line.

Usage:
  pylore <command> [options]

Commands:
  ingest        Ingest a repository into a knowledge index
  query         Query a knowledge index
  list          List knowledge index files
  info          Show index metadata
  init          Create .pylore/config.yaml configuration

Global Options:
  --config      Path to .pylore/config.yaml
  --log-level   Log level: debug|info|warn|error (default: warn)
  --no-color    Disable colored output
  --json        Machine-readable JSON output
  --version     Show version and exit

Examples:
  pylore ingest .                    Ingest the current repository
  pylore ingest . -o project.db      Choose the index file
  pylore ingest . --skip-unchanged   Re-ingest only changed files
  pylore query "how is retry handled"
  pylore query "auth flow" --answer  Synthesize an answer via the LLM
  pylore list                        Show indexes in the current directory
  pylore info project.db             Show index metadata
  pylore init                        Write a commented default config

Getting Started:
  1. Write a configuration (optional):  pylore init
  2. Ingest your repository:            pylore ingest .
  3. Query the index:                   pylore query "<question>"

Environment Variables:
  OLLAMA_BASE_URL    Ollama URL (default: http://localhost:11434)
  OPENAI_API_KEY     Required for the openai embedding/LLM provider
  NO_COLOR           Disable colored output

For detailed command help: pylore <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("pylore version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	globals := GlobalFlags{
		ConfigPath: *configPath,
		LogLevel:   *logLevel,
		JSON:       *jsonOut,
		Quiet:      *jsonOut,
		NoColor:    *noColor,
	}
	if globals.LogLevel == "debug" {
		globals.Verbose = 1
	}

	ui.InitColors(globals.NoColor)
	setupLogging(globals.LogLevel)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "ingest":
		runIngest(cmdArgs, globals)
	case "query":
		runQuery(cmdArgs, globals)
	case "list":
		runList(cmdArgs, globals)
	case "info":
		runInfo(cmdArgs, globals)
	case "init":
		runInit(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// setupLogging installs the default slog handler on stderr. The default
// level is warn so progress output stays clean.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
}
