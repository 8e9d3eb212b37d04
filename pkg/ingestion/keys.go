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
	"strings"
)

// packageMarker is the filename stem that marks a directory as a Python
// package. A marker file's module path names the directory, not the file.
const packageMarker = "__init__"

// normalizePath produces a canonical repository-relative path: "./" prefix
// stripped, cleaned, forward slashes, no leading slash.
func normalizePath(path string) string {
	normalized := strings.TrimPrefix(path, "./")
	normalized = filepath.Clean(normalized)
	normalized = filepath.ToSlash(normalized)
	normalized = strings.TrimPrefix(normalized, "/")
	return normalized
}

// ModulePathFor derives the dotted symbolic module path for a source file
// from its repository-relative path. The extension is dropped, directory
// separators become dots, and a package-marker stem drops its filename
// segment so the path names the directory. A marker file at the repository
// root has no directory to name and falls back to its own stem.
//
//	pkg/mod.py      -> "pkg.mod"
//	pkg/__init__.py -> "pkg"
//	__init__.py     -> "__init__"
func ModulePathFor(relPath string) string {
	rel := normalizePath(relPath)

	stem := filepath.Base(rel)
	if ext := filepath.Ext(stem); ext != "" {
		stem = strings.TrimSuffix(stem, ext)
	}

	var parts []string
	if dir := filepath.ToSlash(filepath.Dir(rel)); dir != "." && dir != "" {
		parts = strings.Split(dir, "/")
	}
	if stem != packageMarker {
		parts = append(parts, stem)
	}

	if len(parts) == 0 {
		return stem
	}
	return strings.Join(parts, ".")
}

// ClassKey is the symbol key the enricher and assembler share for a
// module-scope class: "module_path.ClassName".
func ClassKey(modulePath, className string) string {
	return modulePath + "." + className
}

// ParamKey is the symbol key for one function parameter. The function name
// is unqualified, so same-named functions in one file collide; the last
// observation wins.
func ParamKey(funcName, paramName string) string {
	return funcName + "." + paramName
}

// ReturnKey is the synthetic symbol key for a function's declared return
// annotation.
func ReturnKey(funcName string) string {
	return funcName + ".__return__"
}

// ModuleSpeaker returns the stable speaker identifier for a module chunk.
// Falls back to the file path when the module path is empty.
func ModuleSpeaker(modulePath, filePath string) string {
	if modulePath != "" {
		return modulePath
	}
	return normalizePath(filePath)
}

// ClassSpeaker returns the speaker identifier "module:ClassName".
func ClassSpeaker(modulePath, className string) string {
	return modulePath + ":" + className
}

// MethodSpeaker returns the speaker identifier "module:Class.method".
func MethodSpeaker(modulePath, className, methodName string) string {
	return modulePath + ":" + className + "." + methodName
}

// FunctionSpeaker returns the speaker identifier "module:function".
func FunctionSpeaker(modulePath, funcName string) string {
	return modulePath + ":" + funcName
}

// callerID qualifies the function a call was observed in. Methods carry
// their innermost class; the rendering matches the speaker identifiers so
// call edges and chunks name entities identically.
func callerID(modulePath, className, funcName string) string {
	if className != "" {
		return MethodSpeaker(modulePath, className, funcName)
	}
	return FunctionSpeaker(modulePath, funcName)
}
