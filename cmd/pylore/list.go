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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/pylore/internal/errors"
	"github.com/kraklabs/pylore/internal/output"
	"github.com/kraklabs/pylore/internal/ui"
)

// indexListing describes one index file found by the list command.
type indexListing struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Modified  time.Time `json:"modified"`
}

// runList executes the 'list' CLI command, tabling the *.db index files
// in a directory.
//
// Flags:
//   - -d/--dir: Directory to scan (default: current directory)
func runList(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dir := fs.StringP("dir", "d", ".", "Directory to scan for index files")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: pylore list [options]

Lists the knowledge index files (*.db) in a directory with their sizes.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	listings, err := listIndexes(*dir)
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Cannot scan directory",
			err.Error(),
			"Pass a readable directory with -d",
		), globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(listings); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	if len(listings) == 0 {
		ui.Infof("No knowledge indexes found in %s", *dir)
		return
	}

	ui.Header("Knowledge Indexes")
	for _, l := range listings {
		fmt.Printf("%-40s %10s  %s\n", l.Path, formatBytes(l.SizeBytes), l.Modified.Format("2006-01-02 15:04"))
	}
}

// listIndexes returns the *.db files directly under dir, in name order.
func listIndexes(dir string) ([]indexListing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var listings []indexListing
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		listings = append(listings, indexListing{
			Path:      filepath.Join(dir, e.Name()),
			SizeBytes: info.Size(),
			Modified:  info.ModTime(),
		})
	}
	return listings, nil
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
