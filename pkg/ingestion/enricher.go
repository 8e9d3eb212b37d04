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
	"context"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Enricher runs the independent symbol-resolution pass that layers type
// and reference facts onto extracted entities. Like the Extractor it is
// not safe for concurrent use; create one per goroutine.
type Enricher struct {
	parser *sitter.Parser
	logger *slog.Logger
}

// NewEnricher creates an Enricher. A nil logger falls back to
// slog.Default().
func NewEnricher(logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Enricher{parser: parser, logger: logger}
}

// Enrich analyzes one source file and returns its symbol facts, or nil
// when the file cannot be analyzed. Callers treat nil as "no additional
// facts", never as an error.
func (en *Enricher) Enrich(content []byte, unit *SourceUnit) *EnrichmentResult {
	tree, err := en.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		en.logger.Debug("enrich.parse_failed", "file", unit.Path, "error", err)
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		en.logger.Debug("enrich.unavailable", "file", unit.Path)
		return nil
	}

	res := &EnrichmentResult{
		Definitions:     make(map[string]DefinitionFact),
		TypeAnnotations: make(map[string]TypeFact),
		References:      make(map[string][]ReferenceFact),
	}

	w := &symbolWalk{
		content: content,
		lines:   strings.Split(string(content), "\n"),
		res:     res,
		bound:   make(map[uint32]bool),
		table:   make(map[string]string),
		sigs:    make(map[defSite]signatureInfo),
	}
	w.collectBindings(root, unit.ModulePath)
	w.collectReferences(root)
	w.addSignatureFacts(unit)

	return res
}

// defSite identifies a function definition by name and the line its def
// keyword starts on. Decorated definitions span from their first
// decorator, so their entities miss this lookup and keep only the facts
// the binding walk and the declared annotation produce.
type defSite struct {
	name string
	line int
}

type signatureInfo struct {
	paramsText string
}

// symbolWalk accumulates binding and reference facts over one tree.
type symbolWalk struct {
	content []byte
	lines   []string
	res     *EnrichmentResult

	// bound marks identifier byte offsets that are binding sites, so the
	// reference pass does not count them as usages.
	bound map[uint32]bool

	// table resolves a bare name to its qualified key, last binding wins.
	table map[string]string

	sigs map[defSite]signatureInfo
}

// collectBindings walks the whole tree recording binding sites. prefix is
// the dotted qualification for names bound at this level; an empty prefix
// means names here are function-local and keyed bare.
func (w *symbolWalk) collectBindings(node *sitter.Node, prefix string) {
	switch node.Type() {
	case "import_statement", "import_from_statement":
		w.bindImports(node, prefix)
		return

	case "class_definition":
		name := w.bindName(fieldOrChild(node, "name", "identifier"), "class", prefix)
		childPrefix := ""
		if prefix != "" && name != "" {
			childPrefix = prefix + "." + name
		}
		if body := fieldOrChild(node, "body", "block"); body != nil {
			w.collectBindings(body, childPrefix)
		}
		return

	case "function_definition":
		name := w.bindName(fieldOrChild(node, "name", "identifier"), "function", prefix)
		if params := node.ChildByFieldName("parameters"); params != nil {
			w.bindParameters(params)
			if name != "" {
				site := defSite{name: name, line: int(node.StartPoint().Row) + 1}
				w.sigs[site] = signatureInfo{paramsText: nodeText(params, w.content)}
			}
		}
		// Names in a function body are local and keyed bare.
		if body := fieldOrChild(node, "body", "block"); body != nil {
			w.collectBindings(body, "")
		}
		return

	case "assignment", "augmented_assignment":
		if left := node.ChildByFieldName("left"); left != nil {
			w.bindPattern(left, prefix)
		}

	case "named_expression":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil && nameNode.Type() == "identifier" {
			w.bind(nameNode, "statement", prefix)
		}

	case "for_statement":
		if left := node.ChildByFieldName("left"); left != nil {
			w.bindPattern(left, prefix)
		}

	case "as_pattern":
		if alias := node.ChildByFieldName("alias"); alias != nil {
			w.bindPattern(alias, prefix)
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.collectBindings(node.NamedChild(i), prefix)
	}
}

// bindImports records module bindings for one import statement and marks
// every identifier inside it, so the reference pass skips the whole
// statement.
func (w *symbolWalk) bindImports(node *sitter.Node, prefix string) {
	defer w.markIdentifiers(node)

	switch node.Type() {
	case "import_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				w.bindModule(nodeText(child, w.content), firstSegment(nodeText(child, w.content)), child)
			case "aliased_import":
				nameNode := fieldOrChild(child, "name", "dotted_name")
				aliasNode := fieldOrChild(child, "alias", "identifier")
				if nameNode == nil || aliasNode == nil {
					continue
				}
				w.bindModule(nodeText(nameNode, w.content), nodeText(aliasNode, w.content), aliasNode)
			}
		}

	case "import_from_statement":
		moduleNode := node.ChildByFieldName("module_name")
		if moduleNode == nil {
			moduleNode = node.NamedChild(0)
		}
		if moduleNode == nil {
			return
		}
		modText := nodeText(moduleNode, w.content)
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
				continue
			}
			switch child.Type() {
			case "dotted_name":
				name := nodeText(child, w.content)
				w.bindModule(modText+"."+name, name, child)
			case "aliased_import":
				nameNode := fieldOrChild(child, "name", "dotted_name")
				aliasNode := fieldOrChild(child, "alias", "identifier")
				if nameNode == nil || aliasNode == nil {
					continue
				}
				w.bindModule(modText+"."+nodeText(nameNode, w.content), nodeText(aliasNode, w.content), aliasNode)
			}
		}
	}
}

func (w *symbolWalk) bindModule(key, localName string, at *sitter.Node) {
	if localName == "" {
		return
	}
	w.table[localName] = key
	fact := DefinitionFact{
		Name:     localName,
		Kind:     "module",
		FullName: key,
		Line:     int(at.StartPoint().Row) + 1,
		Column:   int(at.StartPoint().Column) + 1,
	}
	w.res.Definitions[key] = fact
	w.res.TypeAnnotations[key] = TypeFact{
		DeclaredType:  "module",
		InferredTypes: []string{"module"},
		Line:          fact.Line,
		Column:        fact.Column,
	}
}

// bindName records a binding for a definition's name node and returns the
// bare name.
func (w *symbolWalk) bindName(nameNode *sitter.Node, kind, prefix string) string {
	if nameNode == nil || nameNode.Type() != "identifier" {
		return ""
	}
	w.bind(nameNode, kind, prefix)
	return nodeText(nameNode, w.content)
}

func (w *symbolWalk) bind(nameNode *sitter.Node, kind, prefix string) {
	name := nodeText(nameNode, w.content)
	key := name
	if prefix != "" {
		key = prefix + "." + name
	}

	w.bound[nameNode.StartByte()] = true
	w.table[name] = key

	fact := DefinitionFact{
		Name:     name,
		Kind:     kind,
		FullName: key,
		Line:     int(nameNode.StartPoint().Row) + 1,
		Column:   int(nameNode.StartPoint().Column) + 1,
	}
	w.res.Definitions[key] = fact
	w.res.TypeAnnotations[key] = TypeFact{
		DeclaredType:  kind,
		InferredTypes: []string{kind},
		Line:          fact.Line,
		Column:        fact.Column,
	}
}

// bindParameters binds the name of each parameter; annotations and
// defaults stay unbound so the reference pass sees them as usages.
func (w *symbolWalk) bindParameters(params *sitter.Node) {
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		switch child.Type() {
		case "identifier":
			w.bind(child, "param", "")
		case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			if inner := childOfType(child, "identifier"); inner != nil {
				w.bind(inner, "param", "")
			} else if splat := childOfType(child, "list_splat_pattern"); splat != nil {
				if id := childOfType(splat, "identifier"); id != nil {
					w.bind(id, "param", "")
				}
			} else if splat := childOfType(child, "dictionary_splat_pattern"); splat != nil {
				if id := childOfType(splat, "identifier"); id != nil {
					w.bind(id, "param", "")
				}
			}
		case "default_parameter", "typed_default_parameter":
			if nameNode := fieldOrChild(child, "name", "identifier"); nameNode != nil && nameNode.Type() == "identifier" {
				w.bind(nameNode, "param", "")
			}
		}
	}
}

// bindPattern binds the identifiers of an assignment target, descending
// through tuple and list unpacking. Attribute and subscript targets are
// left alone; their names read as references.
func (w *symbolWalk) bindPattern(node *sitter.Node, prefix string) {
	switch node.Type() {
	case "identifier":
		w.bind(node, "statement", prefix)
	case "tuple_pattern", "list_pattern", "pattern_list", "list_splat_pattern":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			w.bindPattern(node.NamedChild(i), prefix)
		}
	}
}

// markIdentifiers marks every identifier in a subtree as non-referencing.
func (w *symbolWalk) markIdentifiers(node *sitter.Node) {
	if node.Type() == "identifier" {
		w.bound[node.StartByte()] = true
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.markIdentifiers(node.NamedChild(i))
	}
}

// collectReferences records a usage fact for every identifier that is not
// a binding site, an attribute tail, or a keyword-argument name. Keys
// resolve through the binding table when possible and stay bare
// otherwise.
func (w *symbolWalk) collectReferences(node *sitter.Node) {
	switch node.Type() {
	case "import_statement", "import_from_statement":
		return
	case "identifier":
		if w.bound[node.StartByte()] || isAttributeTail(node) || isKeywordArgumentName(node) {
			return
		}
		name := nodeText(node, w.content)
		key := name
		if resolved, ok := w.table[name]; ok {
			key = resolved
		}
		line := int(node.StartPoint().Row) + 1
		context := ""
		if line-1 >= 0 && line-1 < len(w.lines) {
			context = w.lines[line-1]
		}
		w.res.References[key] = append(w.res.References[key], ReferenceFact{
			Line:    line,
			Column:  int(node.StartPoint().Column) + 1,
			Context: context,
		})
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.collectReferences(node.NamedChild(i))
	}
}

// addSignatureFacts stores per-parameter and return facts for each
// extracted function and method, keyed unqualified the way the assembler
// looks them up.
func (w *symbolWalk) addSignatureFacts(unit *SourceUnit) {
	for i := range unit.Functions {
		w.addFunctionFacts(&unit.Functions[i])
	}
	for i := range unit.Classes {
		for j := range unit.Classes[i].Methods {
			w.addFunctionFacts(&unit.Classes[i].Methods[j])
		}
	}
}

func (w *symbolWalk) addFunctionFacts(fn *FunctionEntity) {
	if info, ok := w.sigs[defSite{name: fn.Name, line: fn.StartLine}]; ok {
		for _, p := range ParsePythonParams(info.paramsText) {
			bare := strings.TrimLeft(p.Name, "*")
			if bare == "" {
				continue
			}
			var inferred []string
			if p.Annotation != "" {
				inferred = []string{NormalizePythonType(p.Annotation)}
			}
			w.res.TypeAnnotations[ParamKey(fn.Name, bare)] = TypeFact{
				DeclaredType:  "parameter",
				InferredTypes: inferred,
				Line:          fn.StartLine,
			}
		}
	}

	// Decorated definitions start at the first decorator line, so the
	// def-site lookup above misses them; the declared annotation still
	// carries the return fact.
	if fn.ReturnAnnotation != "" {
		w.res.TypeAnnotations[ReturnKey(fn.Name)] = TypeFact{
			DeclaredType: fn.ReturnAnnotation,
			Line:         fn.StartLine,
		}
	}
}

func isAttributeTail(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil || parent.Type() != "attribute" {
		return false
	}
	attr := parent.ChildByFieldName("attribute")
	return attr != nil && attr.StartByte() == node.StartByte()
}

func isKeywordArgumentName(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil || parent.Type() != "keyword_argument" {
		return false
	}
	nameNode := parent.ChildByFieldName("name")
	return nameNode != nil && nameNode.StartByte() == node.StartByte()
}

func firstSegment(dotted string) string {
	if idx := strings.IndexByte(dotted, '.'); idx >= 0 {
		return dotted[:idx]
	}
	return dotted
}
