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
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/pylore/internal/errors"
	"github.com/kraklabs/pylore/internal/output"
	"github.com/kraklabs/pylore/internal/ui"
	"github.com/kraklabs/pylore/pkg/ingestion"
	"github.com/kraklabs/pylore/pkg/knowledge"
)

// runInfo executes the 'info' CLI command, printing index metadata and,
// when present, the last ingest run recorded in the sidecar manifest.
//
// Examples:
//
//	pylore info project.db
//	pylore --json info project.db
func runInfo(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: pylore info <db>

Prints a knowledge index's identity, counters, and last ingest run.
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	indexPath := fs.Arg(0)

	logger := slog.Default()

	store, err := knowledge.OpenExisting(indexPath, nil, logger)
	if err != nil {
		if stderrors.Is(err, knowledge.ErrNoSuchIndex) {
			errors.FatalError(errors.NewNotFoundError(
				"No knowledge index found",
				fmt.Sprintf("%s does not exist", indexPath),
				"Run 'pylore ingest' first or check the path",
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

	info, err := store.Info(context.Background())
	if err != nil {
		errors.FatalError(errors.NewIndexError(
			"Cannot read index metadata",
			err.Error(),
			"The index file may be corrupted; re-run 'pylore ingest'",
			err,
		), globals.JSON)
	}

	var sizeBytes int64
	if st, err := os.Stat(indexPath); err == nil {
		sizeBytes = st.Size()
	}

	// The manifest sidecar is best effort: absent for indexes written by
	// other tools or moved without it.
	manifest, _ := ingestion.NewManifestManager(indexPath).Load()

	if globals.JSON {
		payload := struct {
			Path      string               `json:"path"`
			SizeBytes int64                `json:"size_bytes"`
			Info      *knowledge.IndexInfo `json:"info"`
			Manifest  *ingestion.Manifest  `json:"manifest,omitempty"`
		}{Path: indexPath, SizeBytes: sizeBytes, Info: info, Manifest: manifest}
		if err := output.JSON(payload); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Header("Knowledge Index")
	fmt.Printf("%s %s\n", ui.Label("Path:"), indexPath)
	fmt.Printf("%s %s\n", ui.Label("Name:"), info.Name)
	if len(info.Tags) > 0 {
		fmt.Printf("%s %s\n", ui.Label("Tags:"), strings.Join(info.Tags, ", "))
	}
	fmt.Printf("%s %s\n", ui.Label("Chunks:"), ui.CountText(info.Chunks))
	fmt.Printf("%s %s\n", ui.Label("Links:"), ui.CountText(info.Links))
	fmt.Printf("%s %s\n", ui.Label("Size:"), formatBytes(sizeBytes))
	if info.LastRunID != "" {
		fmt.Printf("%s %s\n", ui.Label("Last run:"), info.LastRunID)
	}
	if !info.UpdatedAt.IsZero() {
		fmt.Printf("%s %s\n", ui.Label("Updated:"), info.UpdatedAt.Format(time.RFC3339))
	}

	if manifest != nil {
		fmt.Println()
		ui.SubHeader("Last ingest:")
		fmt.Printf("  Files processed: %s\n", ui.CountText(manifest.FilesProcessed))
		if manifest.FilesSkipped > 0 {
			fmt.Printf("  Files skipped:   %s\n", ui.CountText(manifest.FilesSkipped))
		}
		fmt.Printf("  Chunks created:  %s\n", ui.CountText(manifest.ChunksCreated))
		fmt.Printf("  Symbols indexed: %s\n", ui.CountText(manifest.SymbolsIndexed))
		fmt.Printf("  Duration:        %.2fs\n", float64(manifest.DurationMS)/1000)
		if manifest.CompletedAt != "" {
			fmt.Printf("  Completed:       %s\n", manifest.CompletedAt)
		}
	}
}
