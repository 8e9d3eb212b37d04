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
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/pylore/internal/errors"
	"github.com/kraklabs/pylore/internal/output"
	"github.com/kraklabs/pylore/internal/ui"
	"github.com/kraklabs/pylore/pkg/knowledge"
	"github.com/kraklabs/pylore/pkg/llm"
)

// runQuery executes the 'query' CLI command, retrieving knowledge chunks
// matching the query text.
//
// Flags:
//   - -d/--database: Index file to query (default: the single *.db in CWD)
//   - --answer: Synthesize an answer via the configured LLM provider
//   - --top: Number of chunks to retrieve (default: 5)
//
// Examples:
//
//	pylore query "how is retry handled"
//	pylore query "auth flow" -d app.db --top 10
//	pylore query "what does the Ledger class do" --answer
func runQuery(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	database := fs.StringP("database", "d", "", "Index file to query (default: the single *.db in the current directory)")
	answer := fs.Bool("answer", false, "Synthesize an answer via the configured LLM provider")
	top := fs.Int("top", 5, "Number of chunks to retrieve")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: pylore query <text> [options]

Retrieves knowledge chunks matching the query text and prints ranked
excerpts. With --answer, the configured LLM provider synthesizes a
grounded answer from the excerpts instead.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  pylore query "how is retry handled"
  pylore query "auth flow" -d app.db --top 10
  pylore query "what does the Ledger class do" --answer
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		errors.FatalError(errors.NewInputError(
			"Missing query text",
			"The query command needs text to search for",
			`Run: pylore query "<question>"`,
		), globals.JSON)
	}

	cfg, err := LoadConfig(globals.ConfigPath)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load pylore configuration",
			err.Error(),
			"Fix the file or run 'pylore init' to write a fresh configuration",
			err,
		), globals.JSON)
	}

	indexPath, candidates, err := findIndex(*database, ".")
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if len(candidates) > 1 && !globals.Quiet {
		ui.Warningf("Multiple indexes found, using %s", indexPath)
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

	store, err := knowledge.OpenExisting(indexPath, embedder, logger)
	if err != nil {
		if stderrors.Is(err, knowledge.ErrNoSuchIndex) {
			errors.FatalError(errors.NewNotFoundError(
				"No knowledge index found",
				fmt.Sprintf("%s does not exist", indexPath),
				"Run 'pylore ingest' first or pass an index with -d",
			), globals.JSON)
		}
		errors.FatalError(errors.NewIndexError(
			"Cannot open knowledge index",
			err.Error(),
			"Close other pylore instances and retry",
			err,
		), globals.JSON)
	}
	defer func() { _ = store.Close() }()

	opts := knowledge.QueryOptions{TopN: *top}
	if *answer {
		provider, perr := answerProvider(cfg)
		if perr != nil {
			errors.FatalError(perr, globals.JSON)
		}
		opts.Answerer = provider
		opts.Model = cfg.LLM.Model
	}

	result, err := store.Query(context.Background(), text, opts)
	if err != nil {
		if *answer {
			errors.FatalError(errors.NewNetworkError(
				"Answer synthesis failed",
				err.Error(),
				"Check the llm section of .pylore/config.yaml and the provider endpoint",
				err,
			), globals.JSON)
		}
		errors.FatalError(errors.NewIndexError(
			"Query failed",
			err.Error(),
			"The index file may be corrupted; re-run 'pylore ingest'",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		payload := struct {
			Query  string `json:"query"`
			Index  string `json:"index"`
			Result string `json:"result"`
		}{Query: text, Index: indexPath, Result: result}
		if err := output.JSON(payload); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	fmt.Println(result)
}

// findIndex resolves the index file to query. An explicit path wins;
// otherwise the lexicographically first *.db in dir is picked, with the
// full candidate list returned so the caller can warn about ambiguity.
func findIndex(explicit, dir string) (string, []string, error) {
	if explicit != "" {
		return explicit, nil, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.db"))
	if err != nil {
		return "", nil, fmt.Errorf("scan for indexes: %w", err)
	}
	sort.Strings(matches)

	if len(matches) == 0 {
		return "", nil, errors.NewNotFoundError(
			"No knowledge index found",
			"No *.db files exist in the current directory",
			"Run 'pylore ingest' first or pass an index with -d",
		)
	}
	return matches[0], matches, nil
}

// answerProvider builds the LLM provider for --answer from configuration.
func answerProvider(cfg *Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "", "none":
		return nil, errors.NewConfigError(
			"Answer synthesis is disabled",
			"llm.provider is not configured",
			"Set llm.provider in .pylore/config.yaml (ollama, openai, anthropic, or mock)",
			nil,
		)
	}

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Type:         cfg.LLM.Provider,
		DefaultModel: cfg.LLM.Model,
	})
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot create LLM provider",
			err.Error(),
			"Check the llm section of .pylore/config.yaml",
			err,
		)
	}
	return provider, nil
}
