// Copyright 2021 Google Inc. All rights reserved.
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

// Package deptools writes gcc-style depfiles, so that a build system invoking the generator knows
// to rerun it when one of its input manifests changes.
package deptools

import (
	"fmt"
	"os"
	"strings"
)

// WriteDepFile creates a new gcc-style depfile and populates it with content
// indicating that target depends on deps.  Duplicate deps are written once, in
// the order they first appear.
func WriteDepFile(filename, target string, deps []string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(f, DepFileContents(target, deps))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// DepFileContents returns the text of a depfile for target and deps.
func DepFileContents(target string, deps []string) string {
	seen := make(map[string]bool, len(deps))
	escaped := make([]string, 0, len(deps))
	for _, dep := range deps {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		escaped = append(escaped, escapeDep(dep))
	}

	if len(escaped) == 0 {
		return escapeDep(target) + ":\n"
	}
	return fmt.Sprintf("%s: \\\n %s\n", escapeDep(target), strings.Join(escaped, " \\\n "))
}

var depEscaper = strings.NewReplacer(
	" ", `\ `,
	"#", `\#`,
	"$", "$$")

func escapeDep(s string) string {
	return depEscaper.Replace(s)
}
