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

// FileKind classifies a discovered file for downstream processing.
type FileKind string

const (
	// KindSource is a Python source file, parsed by the structural extractor.
	KindSource FileKind = "source"

	// KindDocumentation is a prose file (.md, .rst, .txt) indexed verbatim.
	KindDocumentation FileKind = "documentation"

	// KindConfiguration is a well-known project configuration file.
	KindConfiguration FileKind = "configuration"
)

// FileRecord is a single file selected by repository discovery.
type FileRecord struct {
	// Path is the repository-relative path with forward slashes.
	Path string

	// AbsPath is the absolute filesystem path used for reads.
	AbsPath string

	// Kind classifies the file. Files matching none of the discovery
	// tables are never recorded.
	Kind FileKind

	// Size is the file size in bytes at discovery time.
	Size int64
}

// FunctionEntity is one function or method definition extracted from source.
type FunctionEntity struct {
	// Name is the bare definition name.
	Name string

	// Docstring is the cleaned leading string literal, empty when absent.
	Docstring string

	// Signature is the canonical rendering:
	// "[async ]def name(params...)[ -> annotation]".
	Signature string

	// Decorators are dotted decorator names in source order, with call
	// arguments dropped.
	Decorators []string

	// Parameters are parameter names in source order. Variadic parameters
	// keep their "*"/"**" prefix; a bare keyword-only separator renders
	// as "*".
	Parameters []string

	// ReturnAnnotation is the declared return annotation text, empty when
	// the definition declares none.
	ReturnAnnotation string

	// CodeText is the verbatim definition text, hard-truncated at the
	// body cap with a truncation marker.
	CodeText string

	// StartLine and EndLine are 1-indexed; zero means unknown.
	StartLine int
	EndLine   int
}

// ClassEntity is one class definition together with the function
// definitions lexically nested directly inside it. Deeper nesting is not
// walked; a function inside a method stays invisible.
type ClassEntity struct {
	Name      string
	Docstring string

	// Bases are the superclass expressions rendered as dotted names,
	// best-effort for anything more complex.
	Bases []string

	// Decorators are dotted decorator names, call arguments dropped.
	Decorators []string

	// Methods are the class's one-level nested function definitions.
	Methods []FunctionEntity

	// CodeText is the verbatim class text, truncated at the body cap.
	CodeText string

	StartLine int
	EndLine   int
}

// CallsEdge records a call expression observed inside a tracked function.
// Calls at module level or inside unparsed constructs are dropped.
type CallsEdge struct {
	// CallerID is the qualified symbol path of the enclosing function:
	// "module:Class.method" or "module:function".
	CallerID string

	// CalleeText is the callee as written (a name or dotted attribute).
	CalleeText string

	// Line is the 1-indexed line of the call expression.
	Line int
}

// SourceUnit is the parsed representation of one Python source file. It is
// owned by the run that created it and never mutated after extraction.
type SourceUnit struct {
	// Path is the repository-relative file path.
	Path string

	// ModulePath is the dotted symbolic path derived from directory
	// nesting, with package-marker filenames flattened away.
	ModulePath string

	// Docstring is the module docstring, cleaned, empty when absent.
	Docstring string

	// Imports are canonical single-line import renderings in encounter
	// order.
	Imports []string

	// Classes and Functions hold the module-scope definitions.
	Classes   []ClassEntity
	Functions []FunctionEntity

	// Calls are the call edges observed inside tracked functions.
	Calls []CallsEdge

	// SourceText is the full module source.
	SourceText string
}

// SymbolCount returns the number of module-scope classes and functions.
// Methods count through their class, not individually.
func (u *SourceUnit) SymbolCount() int {
	return len(u.Classes) + len(u.Functions)
}

// FileFailure records a non-fatal per-file fault. Failures accumulate on
// the run result; they never abort the run.
type FileFailure struct {
	Path   string
	Reason string
}

// DefinitionFact is one binding site of a symbol.
type DefinitionFact struct {
	// Name is the bare symbol name.
	Name string

	// Kind is the binding category: "module", "class", "function",
	// "param" or "statement".
	Kind string

	// FullName is the dotted module-qualified name when resolvable,
	// otherwise equal to Name.
	FullName string

	Line   int
	Column int
}

// TypeFact is a declared or inferred type observation for one symbol key.
type TypeFact struct {
	// DeclaredType is the declared category or annotation ("class",
	// "parameter", or a return annotation's text).
	DeclaredType string

	// InferredTypes are best-effort type names, often a single entry.
	InferredTypes []string

	Line   int
	Column int
}

// ReferenceFact is one usage site of a symbol.
type ReferenceFact struct {
	Line   int
	Column int

	// Context is the text of the source line containing the reference.
	Context string
}

// EnrichmentResult carries the symbol facts recovered for one source file
// by the type enricher. Keys are best-effort, not globally unique;
// same-named symbols in different scopes may collide and the last
// observation wins.
//
// A nil *EnrichmentResult means enrichment was unavailable for the file.
// Consumers treat that as "no additional facts", never as an error.
type EnrichmentResult struct {
	// Definitions maps symbol keys to their binding sites.
	Definitions map[string]DefinitionFact

	// TypeAnnotations maps symbol keys to type facts. Function parameters
	// appear under "func.param" and declared returns under
	// "func.__return__".
	TypeAnnotations map[string]TypeFact

	// References maps symbol keys to their usage sites.
	References map[string][]ReferenceFact
}

// TypeFactFor looks up a type fact by symbol key. Safe on a nil receiver.
func (e *EnrichmentResult) TypeFactFor(key string) (TypeFact, bool) {
	if e == nil {
		return TypeFact{}, false
	}
	f, ok := e.TypeAnnotations[key]
	return f, ok
}

// ReferencesFor looks up reference facts by symbol key. Safe on a nil
// receiver.
func (e *EnrichmentResult) ReferencesFor(key string) []ReferenceFact {
	if e == nil {
		return nil
	}
	return e.References[key]
}
