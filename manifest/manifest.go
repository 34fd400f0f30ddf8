// Copyright 2022 Google Inc. All rights reserved.
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

// Package manifest reads the YAML files that describe the targets of a workspace and the
// compilation database to generate from them.
//
//	workspace: main
//	targets:
//	  - name: //lib:lib
//	    package: lib
//	    srcs: [lib.cc]
//	    hdrs: [lib.h]
//	    includes: [include]
//	  - name: //app:app
//	    package: app
//	    srcs: ["*.c"]
//	    deps: [//lib:lib]
//	    compile_commands:
//	      - file: app/gen.c
//	        arguments: [clang, -c, app/gen.c]
//	compilation_database:
//	  targets: [//app:app]
//	  output_base: ${HOME}/.cache/build
//	  unique: true
package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/scanner"

	compdb "github.com/wuranjia/bazel-compilation-database"
	"github.com/wuranjia/bazel-compilation-database/pathtools"
	"github.com/wuranjia/bazel-compilation-database/proptools"
)

// An Error is a problem in a manifest, reported at the position of the offending node.
type Error struct {
	Err error
	Pos scanner.Position
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// A Manifest is the contents of one or more merged manifest files.
type Manifest struct {
	Workspace    string
	WorkspacePos scanner.Position

	Targets []*compdb.Target

	// CompilationDatabase is nil if no file had a compilation_database block.
	CompilationDatabase *RuleBlock
}

// RuleBlock is the compilation_database block of a manifest.  Unset options are left to the
// defaults or to the other layers of configuration.
type RuleBlock struct {
	Pos scanner.Position

	Targets    []string
	OutputBase string
	Unique     *bool
	Disable    *bool
	Filename   string
}

// Apply copies the options set in the block into props.
func (b *RuleBlock) Apply(props *compdb.CompilationDatabaseProperties) {
	if b == nil {
		return
	}
	if b.Targets != nil {
		props.Targets = append([]string(nil), b.Targets...)
	}
	if b.OutputBase != "" {
		props.OutputBase = b.OutputBase
	}
	props.Unique = proptools.BoolDefault(b.Unique, props.Unique)
	props.Disable = proptools.BoolDefault(b.Disable, props.Disable)
	if b.Filename != "" {
		props.Filename = b.Filename
	}
}

// ParseFile reads and parses the manifest at filename.
func ParseFile(filename string) (*Manifest, []error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, []error{err}
	}
	defer f.Close()

	return Parse(filename, f)
}

// Parse parses a manifest.  filename is only used in error positions.
func Parse(filename string, r io.Reader) (*Manifest, []error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, []error{err}
	}

	d := &decoder{filename: filename}
	m := d.decode(data)
	if len(d.errs) > 0 {
		return nil, d.errs
	}
	return m, nil
}

// Merge combines manifests into one.  Target names must be unique across all of them, the
// workspace names must agree, and at most one may contain a compilation_database block.
func Merge(manifests ...*Manifest) (*Manifest, []error) {
	var errs []error
	merged := &Manifest{}
	defined := make(map[string]*compdb.Target)

	for _, m := range manifests {
		if m.Workspace != "" {
			if merged.Workspace == "" {
				merged.Workspace = m.Workspace
				merged.WorkspacePos = m.WorkspacePos
			} else if merged.Workspace != m.Workspace {
				errs = append(errs, &Error{
					Err: fmt.Errorf("workspace %q conflicts with workspace %q defined at %s",
						m.Workspace, merged.Workspace, merged.WorkspacePos),
					Pos: m.WorkspacePos,
				})
			}
		}

		for _, t := range m.Targets {
			if first, ok := defined[t.Name]; ok {
				errs = append(errs, &Error{
					Err: fmt.Errorf("target %q already defined at %s", t.Name, first.Pos),
					Pos: t.Pos,
				})
				continue
			}
			defined[t.Name] = t
			merged.Targets = append(merged.Targets, t)
		}

		if m.CompilationDatabase != nil {
			if merged.CompilationDatabase != nil {
				errs = append(errs, &Error{
					Err: fmt.Errorf("compilation_database already defined at %s",
						merged.CompilationDatabase.Pos),
					Pos: m.CompilationDatabase.Pos,
				})
				continue
			}
			merged.CompilationDatabase = m.CompilationDatabase
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return merged, nil
}

// Register adds the targets of the manifest to ctx.
func (m *Manifest) Register(ctx *compdb.Context) []error {
	var errs []error
	for _, t := range m.Targets {
		if err := ctx.RegisterTarget(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ExpandGlobs replaces the glob patterns in the srcs and hdrs of every target with the files they
// match.  Patterns are relative to the package of the target under root.  The directories that
// were searched are returned; adding or removing files in them can change the expansion.
func (m *Manifest) ExpandGlobs(fs pathtools.FileSystem, root string) (dirs []string, errs []error) {
	for _, t := range m.Targets {
		pkgDir := filepath.Join(root, filepath.FromSlash(t.Properties.Package))
		for _, list := range []*[]string{&t.Properties.Srcs, &t.Properties.Hdrs} {
			expanded, searched, err := pathtools.GlobPatternList(fs, *list, pkgDir)
			if err != nil {
				errs = append(errs, &Error{
					Err: fmt.Errorf("target %q: %w", t.Name, err),
					Pos: t.Pos,
				})
				continue
			}
			*list = expanded
			dirs = append(dirs, searched...)
		}
	}
	return dirs, errs
}
