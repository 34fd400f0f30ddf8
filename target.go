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

package compdb

import (
	"fmt"
	"strings"
	"text/scanner"

	"github.com/wuranjia/bazel-compilation-database/jsonenc"
)

// A Target is a node of the build graph: a named set of sources compiled with the same flags.
type Target struct {
	Name       string
	Pos        scanner.Position
	Properties TargetProperties

	// set during ResolveDependencies
	deps []*Target

	// set by aspects and rules, indexed by provider id
	providers []interface{}
	frozen    bool
}

// TargetProperties are the properties of a target read from a manifest.  Paths in Srcs, Hdrs,
// Includes and SystemIncludes are relative to Package.
type TargetProperties struct {
	Package        string
	Srcs           []string
	Hdrs           []string
	Copts          []string
	Defines        []string
	Includes       []string
	SystemIncludes []string
	Deps           []string

	// Compiler overrides the compiler chosen from the extension of each source.
	Compiler string

	// CompileCommands are precomputed compilation entries for the target, for example
	// fragments written by an aspect of another build system.  They are added to the entries
	// generated from Srcs.
	CompileCommands []CompilationEntry
}

func (t *Target) String() string {
	return fmt.Sprintf("%q", t.Name)
}

// ShortName returns the part of the target name after the last ':' or '/'.
func (t *Target) ShortName() string {
	name := t.Name
	if i := strings.LastIndexAny(name, ":/"); i != -1 {
		name = name[i+1:]
	}
	return name
}

// A CompilationEntry is one compiler invocation for one source file.  Entries are compared by
// identity when they are collected into Depsets, so implementations are expected to be pointers.
type CompilationEntry interface {
	jsonenc.Fielder

	// File returns the path of the source file, the key used to deduplicate entries.
	File() string
}

// A CompileCommand is a CompilationEntry generated from the properties of a target.
type CompileCommand struct {
	Directory string
	// Command is the shell-escaped command line.  If it is empty, Arguments is used instead.
	Command   string
	Arguments []string
	Filename  string
	Output    string
}

var _ CompilationEntry = (*CompileCommand)(nil)

func (c *CompileCommand) File() string {
	return c.Filename
}

func (c *CompileCommand) Fields() []jsonenc.Field {
	fields := []jsonenc.Field{
		{Name: "directory", Value: c.Directory},
	}
	if c.Command != "" {
		fields = append(fields, jsonenc.Field{Name: "command", Value: c.Command})
	} else {
		fields = append(fields, jsonenc.Field{Name: "arguments", Value: c.Arguments})
	}
	fields = append(fields, jsonenc.Field{Name: "file", Value: c.Filename})
	if c.Output != "" {
		fields = append(fields, jsonenc.Field{Name: "output", Value: c.Output})
	}
	return fields
}

// A RecordEntry is a CompilationEntry with an arbitrary set of fields, encoded verbatim in their
// original order.
type RecordEntry struct {
	Record jsonenc.Record
}

var _ CompilationEntry = (*RecordEntry)(nil)

func (e *RecordEntry) Fields() []jsonenc.Field {
	return e.Record
}

// File returns the value of the "file" field, or an empty string if the record has none.
func (e *RecordEntry) File() string {
	for _, f := range e.Record {
		if f.Name != "file" {
			continue
		}
		switch v := f.Value.(type) {
		case string:
			return v
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}
