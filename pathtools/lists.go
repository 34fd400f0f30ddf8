// Copyright 2014 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pathtools contains helpers for the slash-separated paths that appear in compilation
// databases.
package pathtools

import (
	"path"
	"path/filepath"
	"strings"
)

// PrefixPaths returns a list of paths consisting of prefix joined with each
// element of paths.  The resulting paths are "clean" in the path.Clean
// sense and always use forward slashes.
func PrefixPaths(paths []string, prefix string) []string {
	result := make([]string, len(paths))
	for i, p := range paths {
		result[i] = path.Join(filepath.ToSlash(prefix), filepath.ToSlash(p))
	}
	return result
}

// ReplaceExtension replaces the extension of path, or appends one if it has none.  Only the base
// name is considered, a dot in a directory name is not an extension.
func ReplaceExtension(p string, extension string) string {
	dot := strings.LastIndex(p, ".")
	if dot == -1 || dot < strings.LastIndex(p, "/") {
		return p + "." + extension
	}
	return p[:dot+1] + extension
}

// ExecRoot returns the slash-separated execution root of a workspace,
// <outputBase>/execroot/<workspaceName>.
func ExecRoot(outputBase, workspaceName string) string {
	base := strings.TrimRight(filepath.ToSlash(outputBase), "/")
	return base + "/execroot/" + workspaceName
}

// Ext returns the extension of the base name of p, including the leading dot.
func Ext(p string) string {
	return path.Ext(filepath.ToSlash(p))
}
