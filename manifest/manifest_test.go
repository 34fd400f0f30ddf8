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

package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/scanner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	compdb "github.com/wuranjia/bazel-compilation-database"
	"github.com/wuranjia/bazel-compilation-database/jsonenc"
	"github.com/wuranjia/bazel-compilation-database/pathtools"
	"github.com/wuranjia/bazel-compilation-database/proptools"
)

const testManifest = `workspace: main
targets:
  - name: //lib:lib
    package: lib
    srcs: [lib.cc]
    hdrs: [lib.h]
    includes: [include]
  - name: //app:app
    package: app
    srcs:
      - main.c
    deps: ["//lib:lib"]
    copts: [-O2]
    compile_commands:
      - file: app/gen.c
        arguments: [clang, -c, app/gen.c]
        directory: __EXEC_ROOT__
        extra:
          z: 1
          a: 2.5
          flag: true
          none: null
compilation_database:
  targets: ["//app:app"]
  output_base: /ob
  unique: true
  filename: out/compile_commands.json
`

func errorStrings(errs []error) []string {
	var s []string
	for _, err := range errs {
		s = append(s, err.Error())
	}
	return s
}

func TestParse(t *testing.T) {
	m, errs := Parse("BUILD.yaml", strings.NewReader(testManifest))
	require.Empty(t, errorStrings(errs))

	assert.Equal(t, "main", m.Workspace)
	assert.Equal(t, scanner.Position{Filename: "BUILD.yaml", Line: 1, Column: 12}, m.WorkspacePos)

	require.Len(t, m.Targets, 2)

	lib := m.Targets[0]
	assert.Equal(t, "//lib:lib", lib.Name)
	assert.Equal(t, scanner.Position{Filename: "BUILD.yaml", Line: 3, Column: 5}, lib.Pos)
	assert.Equal(t, compdb.TargetProperties{
		Package:  "lib",
		Srcs:     []string{"lib.cc"},
		Hdrs:     []string{"lib.h"},
		Includes: []string{"include"},
	}, lib.Properties)

	app := m.Targets[1]
	assert.Equal(t, "//app:app", app.Name)
	assert.Equal(t, 8, app.Pos.Line)
	assert.Equal(t, []string{"main.c"}, app.Properties.Srcs)
	assert.Equal(t, []string{"//lib:lib"}, app.Properties.Deps)
	assert.Equal(t, []string{"-O2"}, app.Properties.Copts)

	require.Len(t, app.Properties.CompileCommands, 1)
	entry := app.Properties.CompileCommands[0]
	assert.Equal(t, "app/gen.c", entry.File())
	assert.Equal(t, &compdb.RecordEntry{Record: jsonenc.Record{
		{Name: "file", Value: "app/gen.c"},
		{Name: "arguments", Value: []interface{}{"clang", "-c", "app/gen.c"}},
		{Name: "directory", Value: "__EXEC_ROOT__"},
		{Name: "extra", Value: jsonenc.Map{
			{Name: "z", Value: int64(1)},
			{Name: "a", Value: 2.5},
			{Name: "flag", Value: true},
			{Name: "none", Value: nil},
		}},
	}}, entry)
	assert.Equal(t,
		`{"file": "app/gen.c", "arguments": ["clang", "-c", "app/gen.c"], "directory": "__EXEC_ROOT__", "extra": {"z": 1, "a": 2.5, "flag": true, "none": null}}`,
		jsonenc.Encode(entry))

	rule := m.CompilationDatabase
	require.NotNil(t, rule)
	assert.Equal(t, scanner.Position{Filename: "BUILD.yaml", Line: 24, Column: 3}, rule.Pos)
	assert.Equal(t, []string{"//app:app"}, rule.Targets)
	assert.Equal(t, "/ob", rule.OutputBase)
	require.NotNil(t, rule.Unique)
	assert.True(t, *rule.Unique)
	assert.Nil(t, rule.Disable)
	assert.Equal(t, "out/compile_commands.json", rule.Filename)
}

func TestParseEmpty(t *testing.T) {
	m, errs := Parse("empty.yaml", strings.NewReader(""))
	require.Empty(t, errs)
	assert.Empty(t, m.Targets)
	assert.Nil(t, m.CompilationDatabase)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		errs  []string
	}{
		{
			name:  "not a mapping",
			input: "- a\n",
			errs:  []string{`m.yaml:1:1: manifest must be a mapping`},
		},
		{
			name:  "unknown key",
			input: "foo: 1\n",
			errs:  []string{`m.yaml:1:1: unrecognized manifest key "foo"`},
		},
		{
			name:  "duplicate key",
			input: "workspace: a\nworkspace: b\n",
			errs:  []string{`m.yaml:2:1: key "workspace" already defined at m.yaml:1:1`},
		},
		{
			name: "unknown target property",
			input: `targets:
  - name: a
    sources: [a.c]
`,
			errs: []string{`m.yaml:3:5: unrecognized target property "sources"`},
		},
		{
			name: "missing name",
			input: `targets:
  - package: a
`,
			errs: []string{`m.yaml:2:5: target has no name`},
		},
		{
			name: "not a list",
			input: `targets:
  - name: a
    srcs: a.c
`,
			errs: []string{`m.yaml:3:11: expected a list of strings`},
		},
		{
			name: "entry without file",
			input: `targets:
  - name: a
    compile_commands:
      - arguments: [cc]
`,
			errs: []string{`m.yaml:4:9: compilation entry has no file`},
		},
		{
			name: "unknown rule option",
			input: `compilation_database:
  uniq: true
`,
			errs: []string{`m.yaml:2:3: unrecognized compilation_database option "uniq"`},
		},
		{
			name: "bad bool",
			input: `compilation_database:
  unique: maybe
`,
			errs: []string{`m.yaml:2:11: expected true or false`},
		},
		{
			name: "multiple errors",
			input: `targets:
  - name: a
    sources: [a.c]
  - name: b
    hdr: [b.h]
`,
			errs: []string{
				`m.yaml:3:5: unrecognized target property "sources"`,
				`m.yaml:5:5: unrecognized target property "hdr"`,
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			m, errs := Parse("m.yaml", strings.NewReader(testCase.input))
			assert.Nil(t, m)
			assert.Equal(t, testCase.errs, errorStrings(errs))
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, errs := Parse("m.yaml", strings.NewReader("targets: [\n"))
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0].Error(), "m.yaml: yaml: "), errs[0].Error())
}

func mustParse(t *testing.T, filename, input string) *Manifest {
	t.Helper()
	m, errs := Parse(filename, strings.NewReader(input))
	require.Empty(t, errorStrings(errs))
	return m
}

func TestMerge(t *testing.T) {
	a := mustParse(t, "a.yaml", `workspace: main
targets:
  - name: a
`)
	b := mustParse(t, "b.yaml", `targets:
  - name: b
compilation_database:
  targets: [a, b]
`)

	m, errs := Merge(a, b)
	require.Empty(t, errs)
	assert.Equal(t, "main", m.Workspace)
	require.Len(t, m.Targets, 2)
	assert.Equal(t, "a", m.Targets[0].Name)
	assert.Equal(t, "b", m.Targets[1].Name)
	require.NotNil(t, m.CompilationDatabase)
	assert.Equal(t, []string{"a", "b"}, m.CompilationDatabase.Targets)
}

func TestMergeErrors(t *testing.T) {
	a := mustParse(t, "a.yaml", `workspace: main
targets:
  - name: a
compilation_database:
  unique: true
`)
	b := mustParse(t, "b.yaml", `workspace: other
targets:
  - name: a
compilation_database:
  disable: true
`)

	m, errs := Merge(a, b)
	assert.Nil(t, m)
	assert.Equal(t, []string{
		`b.yaml:1:12: workspace "other" conflicts with workspace "main" defined at a.yaml:1:12`,
		`b.yaml:3:5: target "a" already defined at a.yaml:3:5`,
		`b.yaml:5:3: compilation_database already defined at a.yaml:5:3`,
	}, errorStrings(errs))
}

func TestRuleBlockApply(t *testing.T) {
	props := compdb.CompilationDatabaseProperties{
		Targets:    []string{"x"},
		OutputBase: "/default",
		Unique:     true,
		Filename:   "default.json",
	}

	block := &RuleBlock{
		Targets: []string{"a"},
		Unique:  proptools.BoolPtr(false),
		Disable: proptools.BoolPtr(true),
	}
	block.Apply(&props)

	assert.Equal(t, compdb.CompilationDatabaseProperties{
		Targets:    []string{"a"},
		OutputBase: "/default",
		Unique:     false,
		Disable:    true,
		Filename:   "default.json",
	}, props)

	var nilBlock *RuleBlock
	nilBlock.Apply(&props)
	assert.True(t, props.Disable)
}

func TestParseFileAndRegister(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "BUILD.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(testManifest), 0666))

	m, errs := ParseFile(filename)
	require.Empty(t, errorStrings(errs))
	assert.Equal(t, filename, m.Targets[0].Pos.Filename)

	ctx := compdb.NewContext()
	require.Empty(t, m.Register(ctx))
	require.NoError(t, ctx.ResolveDependencies())
	compdb.ApplyCompilationAspect(ctx, compdb.AspectConfig{})

	rule := &compdb.CompilationDatabase{}
	m.CompilationDatabase.Apply(&rule.Properties)
	rule.Properties.WorkspaceName = m.Workspace

	doc := rule.Render(ctx)
	assert.Equal(t, 3, doc.Entries)
	assert.Contains(t, string(doc.Text), `"directory": "/ob/execroot/main"`)
	assert.NotContains(t, string(doc.Text), compdb.ExecRootPlaceholder)
	assert.Equal(t, []string{"lib/lib.h"}, doc.HeaderFiles.ToList())
}

func TestRegisterDuplicates(t *testing.T) {
	m := mustParse(t, "m.yaml", testManifest)

	ctx := compdb.NewContext()
	require.Empty(t, m.Register(ctx))
	assert.Len(t, m.Register(ctx), 2)
}

func TestParseFileMissing(t *testing.T) {
	_, errs := ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Len(t, errs, 1)
	assert.True(t, os.IsNotExist(errs[0]))
}

func TestExpandGlobs(t *testing.T) {
	fs := pathtools.MockFs(map[string][]byte{
		"ws/lib/a.cc":       nil,
		"ws/lib/b.cc":       nil,
		"ws/lib/a.h":        nil,
		"ws/lib/impl/c.cc":  nil,
		"ws/app/main.c":     nil,
		"ws/app/README.txt": nil,
	})

	m := mustParse(t, "BUILD.yaml", `targets:
  - name: lib
    package: lib
    srcs: ["*.cc", "impl/*.cc", generated.cc]
    hdrs: ["*.h"]
  - name: app
    package: app
    srcs: [main.c]
`)

	dirs, errs := m.ExpandGlobs(fs, "ws")
	require.Empty(t, errs)

	assert.Equal(t, []string{"a.cc", "b.cc", "impl/c.cc", "generated.cc"}, m.Targets[0].Properties.Srcs)
	assert.Equal(t, []string{"a.h"}, m.Targets[0].Properties.Hdrs)
	assert.Equal(t, []string{"main.c"}, m.Targets[1].Properties.Srcs)
	assert.Equal(t, []string{"ws/lib", "ws/lib/impl", "ws/lib"}, dirs)
}

func TestExpandGlobsNoMatch(t *testing.T) {
	fs := pathtools.MockFs(map[string][]byte{"lib/a.cc": nil})
	m := mustParse(t, "BUILD.yaml", `targets:
  - name: lib
    package: lib
    srcs: ["*.c"]
`)

	_, errs := m.ExpandGlobs(fs, ".")
	assert.Equal(t, []string{`BUILD.yaml:2:5: target "lib": glob pattern "*.c" matches no files`},
		errorStrings(errs))
}
