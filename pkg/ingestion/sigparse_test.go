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

func TestParsePythonParams_Simple(t *testing.T) {
	sig := "def connect(host, port)"
	params := ParsePythonParams(sig)

	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d: %+v", len(params), params)
	}
	if params[0].Name != "host" || params[0].Annotation != "" {
		t.Errorf("param 0: got %+v, want {host}", params[0])
	}
	if params[1].Name != "port" {
		t.Errorf("param 1: got %+v, want {port}", params[1])
	}
}

func TestParsePythonParams_Annotated(t *testing.T) {
	sig := "def resize(width: int, height: int = 0) -> None"
	params := ParsePythonParams(sig)

	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d: %+v", len(params), params)
	}
	if params[0].Name != "width" || params[0].Annotation != "int" || params[0].Default != "" {
		t.Errorf("param 0: got %+v, want {width int}", params[0])
	}
	if params[1].Name != "height" || params[1].Annotation != "int" || params[1].Default != "0" {
		t.Errorf("param 1: got %+v, want {height int 0}", params[1])
	}
}

func TestParsePythonParams_NestedSubscript(t *testing.T) {
	sig := "def merge(base: dict[str, int], extra: dict[str, int])"
	params := ParsePythonParams(sig)

	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d: %+v", len(params), params)
	}
	if params[0].Annotation != "dict[str, int]" {
		t.Errorf("param 0 annotation: got %q", params[0].Annotation)
	}
	if params[1].Annotation != "dict[str, int]" {
		t.Errorf("param 1 annotation: got %q", params[1].Annotation)
	}
}

func TestParsePythonParams_Variadic(t *testing.T) {
	sig := "def call(fn, *args, **kwargs)"
	params := ParsePythonParams(sig)

	if len(params) != 3 {
		t.Fatalf("expected 3 params, got %d: %+v", len(params), params)
	}
	if params[1].Name != "*args" {
		t.Errorf("param 1: got %+v, want {*args}", params[1])
	}
	if params[2].Name != "**kwargs" {
		t.Errorf("param 2: got %+v, want {**kwargs}", params[2])
	}
}

func TestParsePythonParams_SeparatorsDropped(t *testing.T) {
	sig := "def f(a, /, b, *, c)"
	params := ParsePythonParams(sig)

	if len(params) != 3 {
		t.Fatalf("expected 3 params, got %d: %+v", len(params), params)
	}
	for i, want := range []string{"a", "b", "c"} {
		if params[i].Name != want {
			t.Errorf("param %d: got %q, want %q", i, params[i].Name, want)
		}
	}
}

func TestParsePythonParams_LambdaDefault(t *testing.T) {
	sig := "def apply(items, key=lambda x: x, sep=',')"
	params := ParsePythonParams(sig)

	if len(params) != 3 {
		t.Fatalf("expected 3 params, got %d: %+v", len(params), params)
	}
	if params[1].Name != "key" || params[1].Default != "lambda x: x" {
		t.Errorf("param 1: got %+v, want {key lambda x: x}", params[1])
	}
	if params[1].Annotation != "" {
		t.Errorf("lambda colon must not become an annotation: %+v", params[1])
	}
	if params[2].Name != "sep" || params[2].Default != "','" {
		t.Errorf("param 2: got %+v, want {sep ','}", params[2])
	}
}

func TestParsePythonParams_Empty(t *testing.T) {
	if params := ParsePythonParams(""); len(params) != 0 {
		t.Errorf("expected 0 params for empty signature, got %d", len(params))
	}
	if params := ParsePythonParams("def ping()"); len(params) != 0 {
		t.Errorf("expected 0 params for no-arg function, got %d", len(params))
	}
}

func TestExtractPythonParamString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"def foo(a, b) -> str", "a, b"},
		{"async def bar(x: int)", "x: int"},
		{"def baz()", ""},
		{"", ""},
		{"def q(d=dict(a=1))", "d=dict(a=1)"},
	}
	for _, tt := range tests {
		got := ExtractParamString(tt.input)
		if got != tt.want {
			t.Errorf("ExtractParamString(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizePythonType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"int", "int"},
		{"Optional[int]", "Optional"},
		{"dict[str, int]", "dict"},
		{"t.Mapping[str, Any]", "Mapping"},
		{"'User'", "User"},
		{"  List[str] ", "List"},
		{"", ""},
	}
	for _, tt := range tests {
		got := NormalizePythonType(tt.input)
		if got != tt.want {
			t.Errorf("NormalizePythonType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
