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
	"fmt"
	"log/slog"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

const (
	// DefaultBodyCapChars caps the verbatim text kept per class or
	// function entity.
	DefaultBodyCapChars = 10000

	// DefaultModuleCapChars caps the verbatim text kept per whole module
	// or text file.
	DefaultModuleCapChars = 50000
)

// truncationMarker is appended wherever text is cut at a cap.
const truncationMarker = "\n... (truncated)"

// Extractor parses Python source into SourceUnits using tree-sitter.
// An Extractor is not safe for concurrent use; create one per goroutine.
type Extractor struct {
	parser  *sitter.Parser
	logger  *slog.Logger
	bodyCap int

	truncatedCount int
}

// NewExtractor creates an Extractor with the default body cap. A nil
// logger falls back to slog.Default().
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Extractor{
		parser:  parser,
		logger:  logger,
		bodyCap: DefaultBodyCapChars,
	}
}

// SetBodyCap overrides the per-entity body truncation cap in bytes.
// Non-positive values are ignored.
func (e *Extractor) SetBodyCap(n int) {
	if n > 0 {
		e.bodyCap = n
	}
}

// GetTruncatedCount returns how many entity bodies were truncated since
// the last reset.
func (e *Extractor) GetTruncatedCount() int { return e.truncatedCount }

// ResetTruncatedCount resets the truncation counter.
func (e *Extractor) ResetTruncatedCount() { e.truncatedCount = 0 }

// ExtractFile reads and parses one discovered source file.
func (e *Extractor) ExtractFile(record FileRecord) (*SourceUnit, error) {
	content, err := os.ReadFile(record.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", record.Path, err)
	}
	return e.Extract(content, record.Path)
}

// Extract parses source content into a SourceUnit. A file that does not
// parse cleanly fails as a whole; the caller records the failure and
// moves on.
func (e *Extractor) Extract(content []byte, relPath string) (*SourceUnit, error) {
	tree, err := e.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("parse: no syntax tree produced")
	}
	if root.HasError() {
		line := firstErrorLine(root)
		e.logger.Warn("extract.syntax_error",
			"file", relPath,
			"line", line)
		return nil, fmt.Errorf("syntax error near line %d", line)
	}

	unit := &SourceUnit{
		Path:       normalizePath(relPath),
		ModulePath: ModulePathFor(relPath),
		Docstring:  pythonStringValue(leadingStringLiteral(root, content)),
		SourceText: string(content),
	}

	e.collectDefinitions(root, content, unit, nil)
	e.collectCallsAndImports(root, content, unit)

	return unit, nil
}

// collectDefinitions walks one statement container for class and function
// definitions. Class bodies are descended so nested classes surface and
// methods attach to their innermost class; function bodies are not, so a
// definition inside a function never becomes an entity.
func (e *Extractor) collectDefinitions(container *sitter.Node, content []byte, unit *SourceUnit, cls *ClassEntity) {
	for i := 0; i < int(container.NamedChildCount()); i++ {
		child := container.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			e.addFunction(child, child, nil, content, unit, cls)
		case "class_definition":
			e.addClass(child, child, nil, content, unit)
		case "decorated_definition":
			decorators := e.renderDecorators(child, content)
			def := definitionOf(child)
			if def == nil {
				continue
			}
			// Decorated text and span include the decorator lines.
			switch def.Type() {
			case "function_definition":
				e.addFunction(def, child, decorators, content, unit, cls)
			case "class_definition":
				e.addClass(def, child, decorators, content, unit)
			}
		}
	}
}

func (e *Extractor) addFunction(def, textNode *sitter.Node, decorators []string, content []byte, unit *SourceUnit, cls *ClassEntity) {
	fn := e.extractFunction(def, textNode, decorators, content)
	if fn.Name == "" {
		return
	}
	if cls != nil {
		cls.Methods = append(cls.Methods, fn)
	} else {
		unit.Functions = append(unit.Functions, fn)
	}
}

func (e *Extractor) addClass(def, textNode *sitter.Node, decorators []string, content []byte, unit *SourceUnit) {
	cls := e.extractClass(def, textNode, decorators, content)
	if cls.Name == "" {
		return
	}

	// Reserve the slot first so classes stay in document order even when
	// the body introduces nested classes.
	idx := len(unit.Classes)
	unit.Classes = append(unit.Classes, cls)

	if body := fieldOrChild(def, "body", "block"); body != nil {
		e.collectDefinitions(body, content, unit, &cls)
	}
	unit.Classes[idx].Methods = cls.Methods
}

func (e *Extractor) extractClass(def, textNode *sitter.Node, decorators []string, content []byte) ClassEntity {
	cls := ClassEntity{
		Decorators: decorators,
		CodeText:   e.truncateBody(nodeText(textNode, content)),
		StartLine:  int(textNode.StartPoint().Row) + 1,
		EndLine:    int(textNode.EndPoint().Row) + 1,
	}

	if nameNode := fieldOrChild(def, "name", "identifier"); nameNode != nil {
		cls.Name = nodeText(nameNode, content)
	}

	if supers := def.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			arg := supers.NamedChild(i)
			switch arg.Type() {
			case "keyword_argument", "comment":
				// class C(Base, metaclass=M): keywords are not bases.
			case "identifier":
				cls.Bases = append(cls.Bases, nodeText(arg, content))
			case "attribute":
				cls.Bases = append(cls.Bases, renderAttributeChain(arg, content))
			default:
				cls.Bases = append(cls.Bases, strings.TrimSpace(nodeText(arg, content)))
			}
		}
	}

	if body := fieldOrChild(def, "body", "block"); body != nil {
		cls.Docstring = cleanDocstring(leadingStringLiteral(body, content))
	}

	return cls
}

func (e *Extractor) extractFunction(def, textNode *sitter.Node, decorators []string, content []byte) FunctionEntity {
	fn := FunctionEntity{
		Decorators: decorators,
		CodeText:   e.truncateBody(nodeText(textNode, content)),
		StartLine:  int(textNode.StartPoint().Row) + 1,
		EndLine:    int(textNode.EndPoint().Row) + 1,
	}

	if nameNode := fieldOrChild(def, "name", "identifier"); nameNode != nil {
		fn.Name = nodeText(nameNode, content)
	}

	if params := def.ChildByFieldName("parameters"); params != nil {
		fn.Parameters = renderParameters(params, content)
	}

	if ret := def.ChildByFieldName("return_type"); ret != nil {
		fn.ReturnAnnotation = strings.TrimSpace(nodeText(ret, content))
	}

	if body := fieldOrChild(def, "body", "block"); body != nil {
		fn.Docstring = cleanDocstring(leadingStringLiteral(body, content))
	}

	var sig strings.Builder
	if isAsyncDef(def) {
		sig.WriteString("async ")
	}
	sig.WriteString("def ")
	sig.WriteString(fn.Name)
	sig.WriteString("(")
	sig.WriteString(strings.Join(fn.Parameters, ", "))
	sig.WriteString(")")
	if fn.ReturnAnnotation != "" {
		sig.WriteString(" -> ")
		sig.WriteString(fn.ReturnAnnotation)
	}
	fn.Signature = sig.String()

	return fn
}

// renderParameters renders parameter names in source order. Variadic
// parameters keep their star prefix, a bare keyword-only separator
// renders as "*", and the positional-only separator is dropped.
func renderParameters(params *sitter.Node, content []byte) []string {
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		switch child.Type() {
		case "identifier":
			names = append(names, nodeText(child, content))
		case "typed_parameter":
			// The name is the first named child: a plain identifier or a
			// splat pattern whose text carries its stars.
			for j := 0; j < int(child.NamedChildCount()); j++ {
				sub := child.NamedChild(j)
				if sub.Type() == "identifier" || sub.Type() == "list_splat_pattern" || sub.Type() == "dictionary_splat_pattern" {
					names = append(names, nodeText(sub, content))
					break
				}
			}
		case "default_parameter", "typed_default_parameter":
			if nameNode := fieldOrChild(child, "name", "identifier"); nameNode != nil {
				names = append(names, nodeText(nameNode, content))
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			names = append(names, nodeText(child, content))
		case "keyword_separator":
			names = append(names, "*")
		case "positional_separator", "comment":
			// dropped
		}
	}
	return names
}

// renderDecorators renders the decorator list of a decorated_definition.
// A decorator written as a call keeps only its callee name.
func (e *Extractor) renderDecorators(decorated *sitter.Node, content []byte) []string {
	var decorators []string
	for i := 0; i < int(decorated.NamedChildCount()); i++ {
		dec := decorated.NamedChild(i)
		if dec.Type() != "decorator" {
			continue
		}
		expr := dec.NamedChild(0)
		if expr == nil {
			continue
		}
		switch expr.Type() {
		case "identifier":
			decorators = append(decorators, nodeText(expr, content))
		case "attribute":
			decorators = append(decorators, renderAttributeChain(expr, content))
		case "call":
			fnNode := expr.ChildByFieldName("function")
			if fnNode == nil {
				continue
			}
			switch fnNode.Type() {
			case "identifier":
				decorators = append(decorators, nodeText(fnNode, content))
			case "attribute":
				decorators = append(decorators, renderAttributeChain(fnNode, content))
			}
		default:
			decorators = append(decorators, strings.TrimSpace(nodeText(expr, content)))
		}
	}
	return decorators
}

// callWalkContext tracks the class and function context stacks during the
// call/import pass. Both stacks are empty once the walk returns.
type callWalkContext struct {
	content    []byte
	modulePath string
	classStack []string
	funcStack  []string
	imports    []string
	calls      []CallsEdge
}

// collectCallsAndImports runs the second full-depth pass. Unlike the
// definition pass this one descends into every construct, so imports
// inside functions and calls in nested scopes are still observed.
func (e *Extractor) collectCallsAndImports(root *sitter.Node, content []byte, unit *SourceUnit) {
	ctx := &callWalkContext{content: content, modulePath: unit.ModulePath}
	walkCalls(root, ctx)
	unit.Imports = ctx.imports
	unit.Calls = ctx.calls
}

func walkCalls(node *sitter.Node, ctx *callWalkContext) {
	switch node.Type() {
	case "import_statement":
		ctx.imports = append(ctx.imports, renderImports(node, ctx.content)...)
		return

	case "import_from_statement":
		if text := renderFromImport(node, ctx.content); text != "" {
			ctx.imports = append(ctx.imports, text)
		}
		return

	case "function_definition":
		name := ""
		if nameNode := fieldOrChild(node, "name", "identifier"); nameNode != nil {
			name = nodeText(nameNode, ctx.content)
		}
		ctx.funcStack = append(ctx.funcStack, name)
		walkNamedChildren(node, ctx)
		ctx.funcStack = ctx.funcStack[:len(ctx.funcStack)-1]
		return

	case "class_definition":
		name := ""
		if nameNode := fieldOrChild(node, "name", "identifier"); nameNode != nil {
			name = nodeText(nameNode, ctx.content)
		}
		ctx.classStack = append(ctx.classStack, name)
		walkNamedChildren(node, ctx)
		ctx.classStack = ctx.classStack[:len(ctx.classStack)-1]
		return

	case "decorated_definition":
		// Decorator expressions evaluate in the context of the definition
		// they annotate, so calls inside them attribute to it.
		def := definitionOf(node)
		defName := ""
		if def != nil {
			if nameNode := fieldOrChild(def, "name", "identifier"); nameNode != nil {
				defName = nodeText(nameNode, ctx.content)
			}
		}
		pushedFunc := def != nil && def.Type() == "function_definition"
		pushedClass := def != nil && def.Type() == "class_definition"
		if pushedFunc {
			ctx.funcStack = append(ctx.funcStack, defName)
		}
		if pushedClass {
			ctx.classStack = append(ctx.classStack, defName)
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "decorator" {
				walkCalls(child, ctx)
			}
		}
		if pushedFunc {
			ctx.funcStack = ctx.funcStack[:len(ctx.funcStack)-1]
		}
		if pushedClass {
			ctx.classStack = ctx.classStack[:len(ctx.classStack)-1]
		}
		if def != nil {
			walkCalls(def, ctx)
		}
		return

	case "call":
		callee := renderCallee(node.ChildByFieldName("function"), ctx.content)
		if callee != "" && len(ctx.funcStack) > 0 {
			className := ""
			if len(ctx.classStack) > 0 {
				className = ctx.classStack[len(ctx.classStack)-1]
			}
			ctx.calls = append(ctx.calls, CallsEdge{
				CallerID:   callerID(ctx.modulePath, className, ctx.funcStack[len(ctx.funcStack)-1]),
				CalleeText: callee,
				Line:       int(node.StartPoint().Row) + 1,
			})
		}
		// Keep walking: arguments may contain further calls.
	}

	walkNamedChildren(node, ctx)
}

func walkNamedChildren(node *sitter.Node, ctx *callWalkContext) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkCalls(node.NamedChild(i), ctx)
	}
}

// renderImports renders "import a.b" / "import a.b as c", one line per
// imported name.
func renderImports(node *sitter.Node, content []byte) []string {
	var out []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			out = append(out, "import "+nodeText(child, content))
		case "aliased_import":
			nameNode := fieldOrChild(child, "name", "dotted_name")
			aliasNode := fieldOrChild(child, "alias", "identifier")
			if nameNode == nil {
				continue
			}
			line := "import " + nodeText(nameNode, content)
			if aliasNode != nil {
				line += " as " + nodeText(aliasNode, content)
			}
			out = append(out, line)
		}
	}
	return out
}

// renderFromImport renders one "from x import a, b as c" line. The module
// part keeps its relative dots; wildcard imports render as "import *".
func renderFromImport(node *sitter.Node, content []byte) string {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		moduleNode = node.NamedChild(0)
	}
	if moduleNode == nil {
		return ""
	}
	modText := nodeText(moduleNode, content)

	if wildcard := childOfType(node, "wildcard_import"); wildcard != nil {
		return "from " + modText + " import *"
	}

	var names []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			names = append(names, nodeText(child, content))
		case "aliased_import":
			nameNode := fieldOrChild(child, "name", "dotted_name")
			aliasNode := fieldOrChild(child, "alias", "identifier")
			if nameNode == nil {
				continue
			}
			entry := nodeText(nameNode, content)
			if aliasNode != nil {
				entry += " as " + nodeText(aliasNode, content)
			}
			names = append(names, entry)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "from " + modText + " import " + strings.Join(names, ", ")
}

// renderCallee renders a call's callee: a bare name or a dotted attribute
// chain. Anything else (subscripts, call results) keeps only the trailing
// attribute names it can resolve.
func renderCallee(fnNode *sitter.Node, content []byte) string {
	if fnNode == nil {
		return ""
	}
	switch fnNode.Type() {
	case "identifier":
		return nodeText(fnNode, content)
	case "attribute":
		return renderAttributeChain(fnNode, content)
	}
	return ""
}

// renderAttributeChain renders "a.b.c" from nested attribute nodes. A
// non-name head (a call or subscript) is dropped, keeping the resolvable
// tail.
func renderAttributeChain(node *sitter.Node, content []byte) string {
	var parts []string
	if attr := node.ChildByFieldName("attribute"); attr != nil {
		parts = append(parts, nodeText(attr, content))
	}
	current := node.ChildByFieldName("object")
	for current != nil && current.Type() == "attribute" {
		if attr := current.ChildByFieldName("attribute"); attr != nil {
			parts = append([]string{nodeText(attr, content)}, parts...)
		}
		current = current.ChildByFieldName("object")
	}
	if current != nil && current.Type() == "identifier" {
		parts = append([]string{nodeText(current, content)}, parts...)
	}
	return strings.Join(parts, ".")
}

// leadingStringLiteral returns the raw text of the container's first
// statement when that statement is a standalone string literal.
func leadingStringLiteral(container *sitter.Node, content []byte) string {
	for i := 0; i < int(container.NamedChildCount()); i++ {
		child := container.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		if child.Type() != "expression_statement" || child.NamedChildCount() != 1 {
			return ""
		}
		str := child.NamedChild(0)
		if str.Type() != "string" {
			return ""
		}
		return nodeText(str, content)
	}
	return ""
}

func (e *Extractor) truncateBody(text string) string {
	cut, over := runeCut(text, e.bodyCap)
	if !over {
		return text
	}
	e.truncatedCount++
	return text[:cut] + truncationMarker
}

// truncateAt caps text at n characters with the shared marker. Used by
// the assembler for module and text-file chunks.
func truncateAt(text string, n int) string {
	if n <= 0 {
		return text
	}
	cut, over := runeCut(text, n)
	if !over {
		return text
	}
	return text[:cut] + truncationMarker
}

// runeCut returns the byte offset after the nth character and whether
// text holds more than n characters. Caps count characters, not bytes,
// so multi-byte text keeps its full budget.
func runeCut(text string, n int) (int, bool) {
	if len(text) <= n {
		return len(text), false
	}
	seen := 0
	for i := range text {
		if seen == n {
			return i, true
		}
		seen++
	}
	return len(text), false
}

func isAsyncDef(def *sitter.Node) bool {
	for i := 0; i < int(def.ChildCount()); i++ {
		if def.Child(i).Type() == "async" {
			return true
		}
	}
	return false
}

func definitionOf(decorated *sitter.Node) *sitter.Node {
	if def := decorated.ChildByFieldName("definition"); def != nil {
		return def
	}
	for i := 0; i < int(decorated.NamedChildCount()); i++ {
		child := decorated.NamedChild(i)
		if child.Type() == "function_definition" || child.Type() == "class_definition" {
			return child
		}
	}
	return nil
}

// fieldOrChild resolves a node by field name, falling back to the first
// named child of the given type when the field is absent.
func fieldOrChild(node *sitter.Node, field, childType string) *sitter.Node {
	if found := node.ChildByFieldName(field); found != nil {
		return found
	}
	return childOfType(node, childType)
}

func childOfType(node *sitter.Node, childType string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == childType {
			return child
		}
	}
	return nil
}

func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

func firstErrorLine(node *sitter.Node) int {
	if node.Type() == "ERROR" {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() {
			return firstErrorLine(child)
		}
	}
	return int(node.StartPoint().Row) + 1
}

// pythonStringValue strips a string literal's prefix letters and quote
// delimiters. Escape sequences are left as written.
func pythonStringValue(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	trimmed := strings.TrimLeft(s, "rRbBuUfF")
	if len(s)-len(trimmed) <= 2 && (strings.HasPrefix(trimmed, `"`) || strings.HasPrefix(trimmed, `'`)) {
		s = trimmed
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// cleanDocstring strips quotes and normalizes indentation the way
// inspect.cleandoc does: the first line loses its leading whitespace, the
// remaining lines lose their common margin, and surrounding blank lines
// drop.
func cleanDocstring(raw string) string {
	value := pythonStringValue(raw)
	if value == "" {
		return ""
	}

	lines := strings.Split(value, "\n")
	margin := -1
	for _, line := range lines[1:] {
		stripped := strings.TrimLeft(line, " \t")
		if stripped == "" {
			continue
		}
		indent := len(line) - len(stripped)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}

	lines[0] = strings.TrimLeft(lines[0], " \t")
	if margin > 0 {
		for i, line := range lines[1:] {
			if len(line) >= margin {
				lines[i+1] = line[margin:]
			} else {
				lines[i+1] = strings.TrimLeft(line, " \t")
			}
		}
	}

	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
