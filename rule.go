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
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wuranjia/bazel-compilation-database/jsonenc"
	"github.com/wuranjia/bazel-compilation-database/pathtools"
)

const (
	// DefaultFilename is the name of the generated document if none is configured.
	DefaultFilename = "compile_commands.json"

	// HeaderFilesOutputGroup is the output group holding the header files of the aggregated
	// targets.
	HeaderFilesOutputGroup = "header_files"

	// xcodeSysrootFlag is injected for Apple platforms, where the SDK root cannot be resolved
	// outside of a build action.  It is removed from the document.
	xcodeSysrootFlag = "-isysroot __BAZEL_XCODE_SDKROOT__"
)

// disabledDocument is the document written by a disabled CompilationDatabase.
var disabledDocument = []byte("[]\n")

// CompilationDatabaseProperties configure a CompilationDatabase.
type CompilationDatabaseProperties struct {
	// Targets are the names of the targets to aggregate, in order.
	Targets []string
	// OutputBase is the output base of the workspace.  References to environment variables in
	// the form $VAR or ${VAR} are expanded when the document is generated.
	OutputBase string
	// WorkspaceName is the name of the workspace directory under <OutputBase>/execroot.
	WorkspaceName string
	// Disable writes an empty document without visiting any target.
	Disable bool
	// Unique keeps only the last entry for every file.
	Unique bool
	// Filename is the path of the generated document, DefaultFilename if empty.
	Filename string
}

// A CompilationDatabase aggregates the CompilationInfo providers of a set of targets into a
// compile_commands.json document.
type CompilationDatabase struct {
	Properties CompilationDatabaseProperties
}

// OutputGroupInfo holds the named secondary outputs of a rule.
type OutputGroupInfo map[string]*Depset[string]

// A ConfigurationError is reported for a target that cannot contribute to the compilation
// database.  The target is skipped, the rest of the database is still generated.
type ConfigurationError struct {
	Target string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("target %q: %s", e.Target, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// A Document is the result of rendering a CompilationDatabase.
type Document struct {
	// Text is the JSON document, ending in a newline.
	Text []byte
	// Entries is the number of compilation entries in Text.
	Entries int
	// HeaderFiles holds the header files of all aggregated targets.
	HeaderFiles *Depset[string]
	// Skipped holds a ConfigurationError for every target that was skipped.
	Skipped []error
}

// Filename returns the configured output path, or DefaultFilename.
func (r *CompilationDatabase) Filename() string {
	if r.Properties.Filename == "" {
		return DefaultFilename
	}
	return r.Properties.Filename
}

// ExecRoot returns the directory that replaces ExecRootPlaceholder, with the output base
// expanded from the environment.
func (r *CompilationDatabase) ExecRoot() string {
	return pathtools.ExecRoot(os.ExpandEnv(r.Properties.OutputBase), r.Properties.WorkspaceName)
}

// Render builds the document for the configured targets without writing it.  The targets must
// have been analyzed by ApplyCompilationAspect.
func (r *CompilationDatabase) Render(ctx *Context) *Document {
	if r.Properties.Disable {
		return &Document{
			Text:        append([]byte(nil), disabledDocument...),
			HeaderFiles: EmptyDepset[string](compilationOrder),
		}
	}

	var skipped []error
	var entrySets []*Depset[CompilationEntry]
	var headerSets []*Depset[string]
	for _, name := range r.Properties.Targets {
		t, ok := ctx.Target(name)
		if !ok {
			skipped = append(skipped, &ConfigurationError{
				Target: name,
				Err:    fmt.Errorf("no such target"),
			})
			continue
		}
		info, ok := OtherTargetProvider(t, CompilationInfoProvider)
		if !ok || info == nil {
			skipped = append(skipped, &ConfigurationError{
				Target: name,
				Err:    fmt.Errorf("target has no compilation info"),
			})
			continue
		}
		entrySets = append(entrySets, info.CompilationEntries)
		headerSets = append(headerSets, info.HeaderFiles)
	}

	entries := UnionDepsets(compilationOrder, entrySets...).ToList()
	if r.Properties.Unique {
		entries = uniqueByFile(entries)
	}

	text := jsonenc.EncodeIndent(entries, "")
	text = strings.ReplaceAll(text, ExecRootPlaceholder, jsonenc.Escape(r.ExecRoot()))
	text = strings.ReplaceAll(text, xcodeSysrootFlag, "")

	headers := UnionDepsets(compilationOrder, headerSets...)
	if headers.IsEmpty() {
		headers = EmptyDepset[string](compilationOrder)
	}

	return &Document{
		Text:        []byte(text + "\n"),
		Entries:     len(entries),
		HeaderFiles: headers,
		Skipped:     skipped,
	}
}

// Generate renders the document and writes it to the configured file.  Skipped targets are
// logged and do not cause an error; failing to write the file does.  The header files of the
// aggregated targets are returned in the HeaderFilesOutputGroup output group.
func (r *CompilationDatabase) Generate(ctx *Context) (OutputGroupInfo, error) {
	doc := r.Render(ctx)
	for _, err := range doc.Skipped {
		ctx.Logger().Warn("skipping target", zap.Error(err))
	}

	filename := r.Filename()
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	const outFilePermissions = 0666
	if err := os.WriteFile(filename, doc.Text, outFilePermissions); err != nil {
		return nil, fmt.Errorf("writing compilation database: %w", err)
	}

	ctx.Logger().Info("wrote compilation database",
		zap.String("file", filename),
		zap.Int("entries", doc.Entries),
		zap.Bool("disabled", r.Properties.Disable))

	return OutputGroupInfo{
		HeaderFilesOutputGroup: doc.HeaderFiles,
	}, nil
}

// uniqueByFile returns one entry per file.  The entry kept for a file is the last one in entries,
// at the position where the file first appeared.
func uniqueByFile(entries []CompilationEntry) []CompilationEntry {
	index := make(map[string]int, len(entries))
	unique := make([]CompilationEntry, 0, len(entries))
	for _, e := range entries {
		file := e.File()
		if i, ok := index[file]; ok {
			unique[i] = e
			continue
		}
		index[file] = len(unique)
		unique = append(unique, e)
	}
	return unique
}
