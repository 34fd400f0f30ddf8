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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	compdb "github.com/wuranjia/bazel-compilation-database"
	"github.com/wuranjia/bazel-compilation-database/manifest"
)

const cliTestManifest = `workspace: main
targets:
  - name: //lib:lib
    package: lib
    srcs: [lib.cc]
    hdrs: [lib.h]
  - name: //app:app
    package: app
    srcs: [main.c]
    deps: ["//lib:lib"]
compilation_database:
  output_base: /manifest
`

// clearEnv unsets the COMPDB_* variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{envOutputBase, envWorkspace, envFilename, envUnique, envDisable, envTargets} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	file := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(file, []byte(contents), 0666))
	return file
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCommand(zap.NewNop())
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func readEntries(t *testing.T, file string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entries), string(data))
	return entries
}

func TestGenerate(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	manifestFile := writeFile(t, dir, "BUILD.yaml", cliTestManifest)
	out := filepath.Join(dir, "compile_commands.json")
	depFile := filepath.Join(dir, "compile_commands.json.d")
	headersOut := filepath.Join(dir, "headers.txt")

	err := runCommand(t, "-o", out, "-d", depFile, "--headers_out", headersOut, manifestFile)
	require.NoError(t, err)

	entries := readEntries(t, out)
	require.Len(t, entries, 2)
	assert.Equal(t, "lib/lib.cc", entries[0]["file"])
	assert.Equal(t, "app/main.c", entries[1]["file"])
	assert.Equal(t, "/manifest/execroot/main", entries[1]["directory"])
	assert.Equal(t, []interface{}{"clang", "-c", "app/main.c", "-o", "app/_objs/app/main.o"},
		entries[1]["arguments"])

	headers, err := os.ReadFile(headersOut)
	require.NoError(t, err)
	assert.Equal(t, "lib/lib.h\n", string(headers))

	dep, err := os.ReadFile(depFile)
	require.NoError(t, err)
	assert.Equal(t, out+": \\\n "+manifestFile+"\n", string(dep))
}

func TestGenerateCommandForm(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	manifestFile := writeFile(t, dir, "BUILD.yaml", cliTestManifest)
	out := filepath.Join(dir, "out.json")

	err := runCommand(t, "-o", out, "--command", "--cc", "gcc", "--targets", "//app:app", "--unique",
		manifestFile)
	require.NoError(t, err)

	entries := readEntries(t, out)
	require.Len(t, entries, 2)
	assert.Equal(t, "gcc -c app/main.c -o app/_objs/app/main.o", entries[1]["command"])
	assert.NotContains(t, entries[1], "arguments")
}

func TestGenerateDisabled(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	manifestFile := writeFile(t, dir, "BUILD.yaml", `targets:
  - name: a
    srcs: [a.c]
`)
	out := filepath.Join(dir, "compile_commands.json")

	t.Setenv(envDisable, "true")
	require.NoError(t, runCommand(t, "-o", out, manifestFile))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestGenerateErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	testCases := []struct {
		name     string
		manifest string
		args     []string
		err      string
	}{
		{
			name:     "manifest error",
			manifest: "targets: 3\n",
			err:      "expected a list of targets",
		},
		{
			name: "undefined dependency",
			manifest: `workspace: w
targets:
  - name: a
    deps: [b]
`,
			args: []string{"--output_base", "/ob"},
			err:  `depends on undefined target "b"`,
		},
		{
			name: "no output base",
			manifest: `workspace: w
targets:
  - name: a
`,
			err: "no output base",
		},
		{
			name: "no workspace",
			manifest: `targets:
  - name: a
`,
			args: []string{"--output_base", "/ob"},
			err:  "no workspace name",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			manifestFile := writeFile(t, dir, strings.ReplaceAll(testCase.name, " ", "_")+".yaml",
				testCase.manifest)
			args := append([]string{"-o", filepath.Join(dir, "out.json")}, testCase.args...)
			err := runCommand(t, append(args, manifestFile)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.err)
		})
	}

	assert.Error(t, runCommand(t), "expected an error without manifests")
}

func TestPropertyPrecedence(t *testing.T) {
	m, errs := manifest.Parse("BUILD.yaml", strings.NewReader(cliTestManifest+`  unique: true
  filename: manifest.json
`))
	require.Empty(t, errs)

	testCases := []struct {
		name  string
		env   map[string]string
		args  []string
		check func(t *testing.T, props compdb.CompilationDatabaseProperties)
	}{
		{
			name: "manifest",
			check: func(t *testing.T, props compdb.CompilationDatabaseProperties) {
				assert.Equal(t, "/manifest", props.OutputBase)
				assert.Equal(t, "main", props.WorkspaceName)
				assert.Equal(t, "manifest.json", props.Filename)
				assert.True(t, props.Unique)
				assert.Equal(t, []string{"//lib:lib", "//app:app"}, props.Targets)
			},
		},
		{
			name: "environment",
			env: map[string]string{
				envOutputBase: "/env",
				envWorkspace:  "envws",
				envUnique:     "false",
				envTargets:    "//app:app, //lib:lib",
			},
			check: func(t *testing.T, props compdb.CompilationDatabaseProperties) {
				assert.Equal(t, "/env", props.OutputBase)
				assert.Equal(t, "envws", props.WorkspaceName)
				assert.Equal(t, "manifest.json", props.Filename)
				assert.False(t, props.Unique)
				assert.Equal(t, []string{"//app:app", "//lib:lib"}, props.Targets)
			},
		},
		{
			name: "flags",
			env: map[string]string{
				envOutputBase: "/env",
				envFilename:   "env.json",
				envDisable:    "true",
			},
			args: []string{"--output_base", "/flag", "-o", "flag.json", "--disable=false",
				"--targets", "//lib:lib"},
			check: func(t *testing.T, props compdb.CompilationDatabaseProperties) {
				assert.Equal(t, "/flag", props.OutputBase)
				assert.Equal(t, "flag.json", props.Filename)
				assert.False(t, props.Disable)
				assert.Equal(t, []string{"//lib:lib"}, props.Targets)
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range testCase.env {
				t.Setenv(k, v)
			}

			o := &options{logger: zap.NewNop()}
			cmd := o.command()
			require.NoError(t, cmd.ParseFlags(testCase.args))

			props, err := o.properties(cmd.Flags(), m, os.Getenv)
			require.NoError(t, err)
			testCase.check(t, props)
		})
	}
}

func TestInvalidEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(envUnique, "sometimes")

	props := compdb.CompilationDatabaseProperties{}
	err := applyEnv(&props, os.Getenv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), envUnique)
}

func TestEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	manifestFile := writeFile(t, dir, "BUILD.yaml", `targets:
  - name: a
    srcs: [a.c]
`)
	envFile := writeFile(t, dir, "compdb.env", "COMPDB_OUTPUT_BASE=/from_env_file\nCOMPDB_WORKSPACE=ws\n")
	out := filepath.Join(dir, "out.json")

	require.NoError(t, runCommand(t, "-o", out, "--env_file", envFile, manifestFile))

	entries := readEntries(t, out)
	require.Len(t, entries, 1)
	assert.Equal(t, "/from_env_file/execroot/ws", entries[0]["directory"])

	assert.Error(t, runCommand(t, "-o", out, "--env_file", filepath.Join(dir, "missing.env"), manifestFile))
}

const envTestManifest = `workspace: ws
targets:
  - name: a
    srcs: [a.c]
`

func TestEnvFileRereadOnRegeneration(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	manifestFile := writeFile(t, dir, "BUILD.yaml", envTestManifest)
	envFile := writeFile(t, dir, "compdb.env", "COMPDB_OUTPUT_BASE=/first\n")
	out := filepath.Join(dir, "out.json")

	o := &options{logger: zap.NewNop()}
	cmd := o.command()
	require.NoError(t, cmd.ParseFlags([]string{"-o", out, "--env_file", envFile}))

	deps, err := o.generate(cmd.Flags(), []string{manifestFile})
	require.NoError(t, err)
	assert.Equal(t, []string{manifestFile, envFile}, deps)
	assert.Equal(t, "/first/execroot/ws", readEntries(t, out)[0]["directory"])

	_, set := os.LookupEnv(envOutputBase)
	assert.False(t, set, "the env file must not leak into the process environment")

	writeFile(t, dir, "compdb.env", "COMPDB_OUTPUT_BASE=/second\n")
	_, err = o.generate(cmd.Flags(), []string{manifestFile})
	require.NoError(t, err)
	assert.Equal(t, "/second/execroot/ws", readEntries(t, out)[0]["directory"])

	// The process environment takes priority over the file.
	t.Setenv(envOutputBase, "/process")
	_, err = o.generate(cmd.Flags(), []string{manifestFile})
	require.NoError(t, err)
	assert.Equal(t, "/process/execroot/ws", readEntries(t, out)[0]["directory"])
}

func TestImplicitEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	manifestFile := writeFile(t, dir, "BUILD.yaml", envTestManifest)
	writeFile(t, dir, ".env", "COMPDB_OUTPUT_BASE=/dotenv\n")
	out := filepath.Join(dir, "out.json")

	o := &options{logger: zap.NewNop()}
	cmd := o.command()
	require.NoError(t, cmd.ParseFlags([]string{"-o", out}))

	deps, err := o.generate(cmd.Flags(), []string{manifestFile})
	require.NoError(t, err)
	assert.Equal(t, []string{manifestFile, defaultEnvFile}, deps)
	assert.Equal(t, "/dotenv/execroot/ws", readEntries(t, out)[0]["directory"])
}

func TestManifestWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	watched := writeFile(t, dir, "BUILD.yaml", "targets: []\n")

	w, err := newManifestWatcher([]string{watched}, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	var calls int32
	regenerated := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- w.run(ctx, func() error {
			atomic.AddInt32(&calls, 1)
			regenerated <- struct{}{}
			return nil
		})
	}()

	// Changes to other files in the directory are ignored.
	writeFile(t, dir, "other.txt", "x")
	writeFile(t, dir, "BUILD.yaml", "targets: []\nworkspace: w\n")

	select {
	case <-regenerated:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for regeneration")
	}

	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestManifestWatcherUpdate(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	manifestFile := writeFile(t, dir, "BUILD.yaml", "targets: []\n")
	srcDir := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(srcDir, 0777))

	w, err := newManifestWatcher([]string{manifestFile}, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	created := fsnotify.Event{Name: filepath.Join(srcDir, "new.c"), Op: fsnotify.Create}
	written := fsnotify.Event{Name: manifestFile, Op: fsnotify.Write}
	assert.False(t, w.relevant(created))
	assert.NotContains(t, w.watcher.WatchList(), srcDir)

	require.NoError(t, w.watch([]string{manifestFile, srcDir}))
	assert.True(t, w.relevant(created))
	assert.True(t, w.relevant(written))
	assert.Contains(t, w.watcher.WatchList(), srcDir)

	require.NoError(t, w.watch([]string{manifestFile}))
	assert.False(t, w.relevant(created))
	assert.True(t, w.relevant(written))
	assert.NotContains(t, w.watcher.WatchList(), srcDir)
	assert.Contains(t, w.watcher.WatchList(), dir)
}

func TestGenerateGlobs(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0777))
	writeFile(t, dir, "src/b.c", "")
	writeFile(t, dir, "src/a.c", "")
	writeFile(t, dir, "src/a.h", "")
	manifestFile := writeFile(t, dir, "BUILD.yaml", `workspace: w
targets:
  - name: src
    package: src
    srcs: ["*.c"]
    hdrs: ["*.h"]
`)
	out := filepath.Join(dir, "out.json")
	depFile := filepath.Join(dir, "out.json.d")

	require.NoError(t, runCommand(t, "-o", out, "-d", depFile, "--output_base", "/ob", manifestFile))

	entries := readEntries(t, out)
	require.Len(t, entries, 2)
	assert.Equal(t, "src/a.c", entries[0]["file"])
	assert.Equal(t, "src/b.c", entries[1]["file"])

	dep, err := os.ReadFile(depFile)
	require.NoError(t, err)
	assert.Equal(t, out+": \\\n "+manifestFile+" \\\n "+filepath.Join(dir, "src")+"\n", string(dep))

	// With an explicit root the pattern is looked up elsewhere.
	err = runCommand(t, "-o", out, "--output_base", "/ob", "--root", t.TempDir(), manifestFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `glob pattern "*.c" matches no files`)
}

func TestManifestWatcherGlobDir(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := t.TempDir()
	manifestFile := writeFile(t, dir, "BUILD.yaml", "targets: []\n")
	srcDir := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(srcDir, 0777))

	w, err := newManifestWatcher([]string{manifestFile, srcDir}, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	regenerated := make(chan struct{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.run(ctx, func() error {
			regenerated <- struct{}{}
			return nil
		})
	}()
	defer func() {
		cancel()
		<-done
	}()

	writeFile(t, srcDir, "new.c", "")

	select {
	case <-regenerated:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for regeneration")
	}
}
