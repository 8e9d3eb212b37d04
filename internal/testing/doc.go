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

// Package testing provides shared fixture helpers for pylore tests.
//
// The helpers build throwaway repository trees that the ingestion and CLI
// tests walk, parse, and index. Everything lives under t.TempDir(), so no
// cleanup code is needed in the tests themselves.
//
// # Quick Start
//
//	func TestMyFeature(t *testing.T) {
//	    root := testing.WriteRepo(t, map[string]string{
//	        "pkg/__init__.py": "",
//	        "pkg/mod.py":      testing.SampleClassModule,
//	        "README.md":       "# demo\n",
//	    })
//
//	    // Run discovery / the pipeline against root...
//	}
//
// # Canned Sources
//
// The package exports a few Python sources reused across test files:
//   - SampleClassModule: documented class + method + top-level function
//   - SampleFunctionModule: parameter-group coverage (async, *args, kwonly, **kwargs)
//   - SampleBrokenModule: unparsable source for failure paths
package testing
