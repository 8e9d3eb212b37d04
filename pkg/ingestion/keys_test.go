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

import "testing"

func TestModulePathFor(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"pkg/mod.py", "pkg.mod"},
		{"pkg/sub/deep.py", "pkg.sub.deep"},
		{"pkg/__init__.py", "pkg"},
		{"pkg/sub/__init__.py", "pkg.sub"},
		{"__init__.py", "__init__"},
		{"top.py", "top"},
		{"./pkg/mod.py", "pkg.mod"},
	}
	for _, tc := range cases {
		if got := ModulePathFor(tc.path); got != tc.want {
			t.Errorf("ModulePathFor(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"./a/b.py", "a/b.py"},
		{"a//b.py", "a/b.py"},
		{"a/./b.py", "a/b.py"},
		{"a/b.py", "a/b.py"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.path); got != tc.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestSymbolKeys(t *testing.T) {
	if got := ClassKey("pkg.mod", "Thing"); got != "pkg.mod.Thing" {
		t.Errorf("ClassKey = %q", got)
	}
	if got := ParamKey("handle", "req"); got != "handle.req" {
		t.Errorf("ParamKey = %q", got)
	}
	if got := ReturnKey("handle"); got != "handle.__return__" {
		t.Errorf("ReturnKey = %q", got)
	}
}

func TestSpeakerIdentifiers(t *testing.T) {
	if got := ModuleSpeaker("pkg.mod", "pkg/mod.py"); got != "pkg.mod" {
		t.Errorf("ModuleSpeaker = %q", got)
	}
	if got := ModuleSpeaker("", "./pkg/mod.py"); got != "pkg/mod.py" {
		t.Errorf("ModuleSpeaker fallback = %q", got)
	}
	if got := ClassSpeaker("pkg.mod", "Thing"); got != "pkg.mod:Thing" {
		t.Errorf("ClassSpeaker = %q", got)
	}
	if got := MethodSpeaker("pkg.mod", "Thing", "run"); got != "pkg.mod:Thing.run" {
		t.Errorf("MethodSpeaker = %q", got)
	}
	if got := FunctionSpeaker("pkg.mod", "run"); got != "pkg.mod:run" {
		t.Errorf("FunctionSpeaker = %q", got)
	}
}

func TestCallerID(t *testing.T) {
	if got := callerID("pkg.mod", "Thing", "run"); got != "pkg.mod:Thing.run" {
		t.Errorf("callerID with class = %q", got)
	}
	if got := callerID("pkg.mod", "", "run"); got != "pkg.mod:run" {
		t.Errorf("callerID without class = %q", got)
	}
}
