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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/pylore/pkg/knowledge"
)

// languageTag labels every chunk this pipeline produces.
const languageTag = "python"

// Assembler converts extracted source units and their enrichment facts
// into knowledge chunks ready for indexing.
type Assembler struct {
	logger    *slog.Logger
	moduleCap int
}

// NewAssembler creates an Assembler with the default module cap. A nil
// logger falls back to slog.Default().
func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger, moduleCap: DefaultModuleCapChars}
}

// SetModuleCap overrides the module and text-file truncation threshold.
// Non-positive values are ignored.
func (a *Assembler) SetModuleCap(n int) {
	if n > 0 {
		a.moduleCap = n
	}
}

// Assemble builds the chunks for one source unit: the module chunk, then
// each class followed by its methods, then the top-level functions. A nil
// enrichment means the type pass was skipped for this file; chunks are
// built from syntactic information alone.
func (a *Assembler) Assemble(unit *SourceUnit, enrichment *EnrichmentResult, projectName string) []knowledge.Chunk {
	chunks := make([]knowledge.Chunk, 0, 1+unit.SymbolCount())

	if c, ok := a.moduleChunk(unit, projectName); ok {
		chunks = append(chunks, c)
	}

	for i := range unit.Classes {
		cls := &unit.Classes[i]
		if c, ok := a.classChunk(unit, cls, enrichment); ok {
			chunks = append(chunks, c)
		}
		for j := range cls.Methods {
			if c, ok := a.methodChunk(unit, cls, &cls.Methods[j], enrichment); ok {
				chunks = append(chunks, c)
			}
		}
	}

	for i := range unit.Functions {
		if c, ok := a.functionChunk(unit, &unit.Functions[i], enrichment); ok {
			chunks = append(chunks, c)
		}
	}

	return chunks
}

// AssembleTextFile builds the single chunk for a documentation or
// configuration file. It returns nil for unreadable or all-whitespace
// files; neither case aborts the run.
func (a *Assembler) AssembleTextFile(record FileRecord) *knowledge.Chunk {
	content, err := os.ReadFile(record.AbsPath)
	if err != nil {
		a.logger.Warn("assemble.text_file.unreadable", "file", record.Path, "error", err)
		return nil
	}

	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	return &knowledge.Chunk{
		TextSegments: []string{truncateAt(text, a.moduleCap)},
		SpeakerID:    record.Path,
		Tags:         []string{string(record.Kind), strings.ToLower(filepath.Ext(record.Path)), record.Path},
	}
}

func (a *Assembler) moduleChunk(unit *SourceUnit, projectName string) (knowledge.Chunk, bool) {
	summary := "Module docstring: (none provided)"
	if doc := strings.TrimSpace(unit.Docstring); doc != "" {
		summary = "Module docstring:\n" + doc
	}

	var sections []string
	if len(unit.Imports) > 0 {
		sections = append(sections, "Imports:\n"+strings.Join(unit.Imports, "\n"))
	}
	var overview []string
	if names := classNames(unit); len(names) > 0 {
		overview = append(overview, "Classes: "+strings.Join(names, ", "))
	}
	if names := functionNames(unit); len(names) > 0 {
		overview = append(overview, "Functions: "+strings.Join(names, ", "))
	}
	if len(overview) > 0 {
		sections = append(sections, "Overview:\n"+strings.Join(overview, "\n"))
	}
	detail := "No imports or symbol overview available."
	if len(sections) > 0 {
		detail = strings.Join(sections, "\n\n")
	}

	code := "Module source unavailable."
	if strings.TrimSpace(unit.SourceText) != "" {
		code = truncateAt(unit.SourceText, a.moduleCap)
	}

	return newChunk(
		[]string{summary, detail, code},
		ModuleSpeaker(unit.ModulePath, unit.Path),
		[]string{"module", languageTag, projectName},
	)
}

func (a *Assembler) classChunk(unit *SourceUnit, cls *ClassEntity, enrichment *EnrichmentResult) (knowledge.Chunk, bool) {
	key := ClassKey(unit.ModulePath, cls.Name)

	var bits []string
	if doc := strings.TrimSpace(cls.Docstring); doc != "" {
		bits = append(bits, doc)
	}
	if fact, ok := enrichment.TypeFactFor(key); ok && len(fact.InferredTypes) > 0 {
		bits = append(bits, "Type hints: "+strings.Join(fact.InferredTypes, ", "))
	}
	if refs := enrichment.ReferencesFor(key); len(refs) > 0 {
		bits = append(bits, fmt.Sprintf("Referenced %d time(s) in codebase", len(refs)))
	}
	if len(cls.Decorators) > 0 {
		bits = append(bits, "Decorators: "+strings.Join(cls.Decorators, ", "))
	}
	summary := fmt.Sprintf("Class %s summary unavailable.", cls.Name)
	if len(bits) > 0 {
		summary = strings.Join(bits, "\n\n")
	}

	signature := "class " + cls.Name
	if len(cls.Bases) > 0 {
		signature += "(" + strings.Join(cls.Bases, ", ") + ")"
	}

	body := fmt.Sprintf("class %s body unavailable.", cls.Name)
	if strings.TrimSpace(cls.CodeText) != "" {
		body = cls.CodeText
	}

	return newChunk(
		[]string{summary, signature, body},
		ClassSpeaker(unit.ModulePath, cls.Name),
		[]string{"class", languageTag, cls.Name, unit.ModulePath},
	)
}

func (a *Assembler) methodChunk(unit *SourceUnit, cls *ClassEntity, m *FunctionEntity, enrichment *EnrichmentResult) (knowledge.Chunk, bool) {
	var bits []string
	if doc := strings.TrimSpace(m.Docstring); doc != "" {
		bits = append(bits, doc)
	}
	if lines := paramTypeLines(m, enrichment); len(lines) > 0 {
		bits = append(bits, "Inferred parameter types:\n"+strings.Join(lines, "\n"))
	}
	summary := fmt.Sprintf("Method %s summary unavailable.", m.Name)
	if len(bits) > 0 {
		summary = strings.Join(bits, "\n\n")
	}

	signature := m.Name
	if m.Signature != "" {
		signature = m.Signature
	}

	body := fmt.Sprintf("Method %s body unavailable.", m.Name)
	if strings.TrimSpace(m.CodeText) != "" {
		body = m.CodeText
	}

	return newChunk(
		[]string{summary, signature, body},
		MethodSpeaker(unit.ModulePath, cls.Name, m.Name),
		[]string{"method", languageTag, m.Name, cls.Name},
	)
}

func (a *Assembler) functionChunk(unit *SourceUnit, fn *FunctionEntity, enrichment *EnrichmentResult) (knowledge.Chunk, bool) {
	var bits []string
	if doc := strings.TrimSpace(fn.Docstring); doc != "" {
		bits = append(bits, doc)
	}
	if lines := paramTypeLines(fn, enrichment); len(lines) > 0 {
		bits = append(bits, "Inferred parameter types:\n"+strings.Join(lines, "\n"))
	}
	if fact, ok := enrichment.TypeFactFor(ReturnKey(fn.Name)); ok && fact.DeclaredType != "" {
		bits = append(bits, "Return type: "+fact.DeclaredType)
	}
	summary := fmt.Sprintf("Function %s summary unavailable.", fn.Name)
	if len(bits) > 0 {
		summary = strings.Join(bits, "\n\n")
	}

	signature := fn.Name
	if fn.Signature != "" {
		signature = fn.Signature
	}

	body := fmt.Sprintf("Function %s body unavailable.", fn.Name)
	if strings.TrimSpace(fn.CodeText) != "" {
		body = fn.CodeText
	}

	return newChunk(
		[]string{summary, signature, body},
		FunctionSpeaker(unit.ModulePath, fn.Name),
		[]string{"function", languageTag, fn.Name, unit.ModulePath},
	)
}

// paramTypeLines renders one line per parameter that has inferred types.
// Lookup keys are unqualified and bare; separator entries resolve to an
// empty name and are skipped.
func paramTypeLines(fn *FunctionEntity, enrichment *EnrichmentResult) []string {
	var lines []string
	for _, param := range fn.Parameters {
		bare := strings.TrimLeft(param, "*")
		if bare == "" {
			continue
		}
		fact, ok := enrichment.TypeFactFor(ParamKey(fn.Name, bare))
		if !ok || len(fact.InferredTypes) == 0 {
			continue
		}
		lines = append(lines, param+": "+strings.Join(fact.InferredTypes, ", "))
	}
	return lines
}

// newChunk drops empty segments and reports whether anything is left.
func newChunk(segments []string, speaker string, tags []string) (knowledge.Chunk, bool) {
	kept := segments[:0]
	for _, s := range segments {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return knowledge.Chunk{}, false
	}
	return knowledge.Chunk{TextSegments: kept, SpeakerID: speaker, Tags: tags}, true
}

func classNames(unit *SourceUnit) []string {
	names := make([]string, 0, len(unit.Classes))
	for i := range unit.Classes {
		names = append(names, unit.Classes[i].Name)
	}
	return names
}

func functionNames(unit *SourceUnit) []string {
	names := make([]string, 0, len(unit.Functions))
	for i := range unit.Functions {
		names = append(names, unit.Functions[i].Name)
	}
	return names
}
