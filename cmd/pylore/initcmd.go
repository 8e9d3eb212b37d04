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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/pylore/internal/errors"
	"github.com/kraklabs/pylore/internal/output"
	"github.com/kraklabs/pylore/internal/ui"
)

// runInit executes the 'init' CLI command, writing a commented default
// .pylore/config.yaml in the current directory.
//
// Flags:
//   - --force: Overwrite an existing configuration
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite existing configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: pylore init [options]

Writes .pylore/config.yaml with commented defaults.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot read current directory",
			err.Error(),
			"Run pylore from a readable working directory",
			err,
		), globals.JSON)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !*force {
		errors.FatalError(errors.NewInputError(
			"Configuration already exists",
			fmt.Sprintf("%s is already present", configPath),
			"Use --force to overwrite it",
		), globals.JSON)
	}

	if err := WriteDefaultConfig(configPath); err != nil {
		errors.FatalError(errors.NewPermissionError(
			"Cannot write configuration",
			err.Error(),
			"Check write permissions on the current directory",
			err,
		), globals.JSON)
	}

	if globals.JSON {
		payload := struct {
			ConfigPath string `json:"config_path"`
		}{ConfigPath: configPath}
		if err := output.JSON(payload); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Successf("Wrote %s", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Review the configuration:   %s\n", ui.DimText(configPath))
	fmt.Println("  2. Ingest your repository:     pylore ingest .")
	fmt.Println(`  3. Query the index:            pylore query "<question>"`)
}
