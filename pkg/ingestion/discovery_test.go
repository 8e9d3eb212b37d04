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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pyloretest "github.com/kraklabs/pylore/internal/testing"
)

func discoverRepo(t *testing.T, files map[string]string, opts DiscoverOptions) map[string]FileKind {
	t.Helper()

	root := pyloretest.WriteRepo(t, files)
	records, err := NewDiscoverer(nil).Discover(root, opts)
	require.NoError(t, err)

	kinds := make(map[string]FileKind, len(records))
	for _, rec := range records {
		kinds[rec.Path] = rec.Kind
	}
	return kinds
}

// TestDiscoverer_Classification tests the three classification tables and
// their precedence.
func TestDiscoverer_Classification(t *testing.T) {
	kinds := discoverRepo(t, map[string]string{
		"app/__init__.py":  "",
		"app/main.py":      "print('hi')\n",
		"README.md":        "# readme\n",
		"docs/guide.rst":   "guide\n",
		"notes.txt":        "notes\n",
		"pyproject.toml":   "[project]\n",
		"Pipfile":          "[packages]\n",
		"setup.py":         "from setuptools import setup\n",
		"requirements.txt": "requests\n",
		"image.png":        "\x89PNG",
		"script.sh":        "#!/bin/sh\n",
	}, DiscoverOptions{})

	assert.Equal(t, KindSource, kinds["app/__init__.py"])
	assert.Equal(t, KindSource, kinds["app/main.py"])
	assert.Equal(t, KindDocumentation, kinds["README.md"])
	assert.Equal(t, KindDocumentation, kinds["docs/guide.rst"])
	assert.Equal(t, KindDocumentation, kinds["notes.txt"])
	assert.Equal(t, KindConfiguration, kinds["pyproject.toml"])
	assert.Equal(t, KindConfiguration, kinds["Pipfile"])

	// Extension tables win over the configuration filename table.
	assert.Equal(t, KindSource, kinds["setup.py"])
	assert.Equal(t, KindDocumentation, kinds["requirements.txt"])

	_, ok := kinds["image.png"]
	assert.False(t, ok, "Unclassified files are omitted")
	_, ok = kinds["script.sh"]
	assert.False(t, ok)
	assert.Len(t, kinds, 9)
}

// TestDiscoverer_DefaultExclusions tests the fixed exclusion table,
// including the *.egg-info glob.
func TestDiscoverer_DefaultExclusions(t *testing.T) {
	kinds := discoverRepo(t, map[string]string{
		"src/ok.py":              "x = 1\n",
		"__pycache__/cached.py":  "x = 1\n",
		".venv/lib/thing.py":     "x = 1\n",
		"dist/pkg.py":            "x = 1\n",
		"build/out.py":           "x = 1\n",
		"demo.egg-info/meta.py":  "x = 1\n",
		".pytest_cache/stamp.py": "x = 1\n",
	}, DiscoverOptions{})

	assert.Len(t, kinds, 1)
	assert.Equal(t, KindSource, kinds["src/ok.py"])
}

// TestDiscoverer_ExtraExcludes tests caller-supplied component patterns on
// top of the fixed table.
func TestDiscoverer_ExtraExcludes(t *testing.T) {
	kinds := discoverRepo(t, map[string]string{
		"app/models.py":           "x = 1\n",
		"app/models.generated.py": "x = 1\n",
		"app/migrations/0001.py":  "x = 1\n",
	}, DiscoverOptions{ExtraExcludes: []string{"migrations", "*.generated.py"}})

	assert.Len(t, kinds, 1)
	_, ok := kinds["app/models.py"]
	assert.True(t, ok)
}

// TestDiscoverer_Gitignore tests honoring the root .gitignore only when
// asked to.
func TestDiscoverer_Gitignore(t *testing.T) {
	files := map[string]string{
		".gitignore":       "secret/\n*.txt\n",
		"app.py":           "x = 1\n",
		"secret/hidden.py": "x = 1\n",
		"notes.txt":        "notes\n",
	}

	withIgnore := discoverRepo(t, files, DiscoverOptions{UseGitignore: true})
	assert.Len(t, withIgnore, 1)
	assert.Equal(t, KindSource, withIgnore["app.py"])

	withoutIgnore := discoverRepo(t, files, DiscoverOptions{})
	assert.Len(t, withoutIgnore, 3)
}

// TestDiscoverer_RecordFields tests path normalization, absolute paths and
// sizes on discovered records.
func TestDiscoverer_RecordFields(t *testing.T) {
	root := pyloretest.WriteRepo(t, map[string]string{
		"pkg/sub/mod.py": "value = 42\n",
	})

	records, err := NewDiscoverer(nil).Discover(root, DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "pkg/sub/mod.py", rec.Path)
	assert.True(t, filepath.IsAbs(rec.AbsPath))
	assert.Equal(t, int64(len("value = 42\n")), rec.Size)
}

// TestDiscoverer_BadRoot tests the two fatal root conditions.
func TestDiscoverer_BadRoot(t *testing.T) {
	d := NewDiscoverer(nil)

	_, err := d.Discover(filepath.Join(t.TempDir(), "missing"), DiscoverOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat repository path")

	root := pyloretest.WriteRepo(t, map[string]string{"plain.py": "x = 1\n"})
	_, err = d.Discover(filepath.Join(root, "plain.py"), DiscoverOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}
