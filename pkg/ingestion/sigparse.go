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

import "strings"

// ParamInfo holds one parsed Python parameter declaration.
type ParamInfo struct {
	// Name is the parameter name as written; "*"/"**" prefixes on
	// variadic parameters are kept.
	Name string

	// Annotation is the annotation text, empty when absent.
	Annotation string

	// Default is the default-value expression text, empty when absent.
	Default string
}

// ParsePythonParams parses the parameter list of a Python declaration
// such as "def f(a: int, b=2, *args, **kw) -> str" into per-parameter
// records. Separator-only entries ("*" and "/") carry no name and are
// dropped. Nested brackets and string literals inside annotations or
// defaults do not split parameters.
func ParsePythonParams(signature string) []ParamInfo {
	raw := ExtractParamString(signature)
	if raw == "" {
		return nil
	}

	var params []ParamInfo
	for _, part := range splitTopLevel(raw) {
		p, ok := parsePythonParam(part)
		if !ok {
			continue
		}
		params = append(params, p)
	}
	return params
}

// ExtractParamString returns the text inside the first balanced
// parenthesis group, or "" when the signature has none.
func ExtractParamString(signature string) string {
	start := strings.IndexByte(signature, '(')
	if start < 0 {
		return ""
	}

	depth := 0
	var quote byte
	for i := start; i < len(signature); i++ {
		c := signature[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return signature[start+1 : i]
			}
		}
	}
	return ""
}

// splitTopLevel splits on commas outside any bracket nesting or string
// literal.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// parsePythonParam parses one "name[: annotation][= default]" entry. The
// default split runs first so a lambda default's colon is never mistaken
// for an annotation.
func parsePythonParam(text string) (ParamInfo, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text == "*" || text == "/" {
		return ParamInfo{}, false
	}

	var p ParamInfo
	if idx := indexTopLevel(text, '='); idx >= 0 {
		p.Default = strings.TrimSpace(text[idx+1:])
		text = strings.TrimSpace(text[:idx])
	}
	if idx := indexTopLevel(text, ':'); idx >= 0 {
		p.Annotation = strings.TrimSpace(text[idx+1:])
		text = strings.TrimSpace(text[:idx])
	}
	p.Name = text
	if p.Name == "" {
		return ParamInfo{}, false
	}
	return p, true
}

// indexTopLevel finds the first occurrence of sep outside brackets and
// string literals, or -1.
func indexTopLevel(s string, sep byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		default:
			if c == sep && depth == 0 {
				return i
			}
		}
	}
	return -1
}

// NormalizePythonType reduces an annotation to its base type name:
// subscripts drop, dotted prefixes drop, forward-reference quotes strip.
//
//	Optional[int]   -> Optional
//	t.Mapping[K, V] -> Mapping
//	'User'          -> User
func NormalizePythonType(annotation string) string {
	t := strings.TrimSpace(annotation)
	t = strings.Trim(t, "'\"")
	if idx := strings.IndexByte(t, '['); idx >= 0 {
		t = t[:idx]
	}
	if idx := strings.LastIndexByte(t, '.'); idx >= 0 {
		t = t[idx+1:]
	}
	return strings.TrimSpace(t)
}
