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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	compdb "github.com/wuranjia/bazel-compilation-database"
	"github.com/wuranjia/bazel-compilation-database/manifest"
)

// Environment variables read by compdb.  They override the manifests and are overridden by flags.
const (
	envOutputBase = "COMPDB_OUTPUT_BASE"
	envWorkspace  = "COMPDB_WORKSPACE"
	envFilename   = "COMPDB_FILENAME"
	envUnique     = "COMPDB_UNIQUE"
	envDisable    = "COMPDB_DISABLE"
	envTargets    = "COMPDB_TARGETS"
)

// defaultEnvFile is read when --env_file is not given, if it exists.
const defaultEnvFile = ".env"

// readEnvFile reads the --env_file, or .env if it exists.  It returns the variables and the name
// of the file that was read, if any.  The file is read again on every call, so edits between two
// regenerations take effect.
func (o *options) readEnvFile() (map[string]string, string, error) {
	file := o.envFile
	if file == "" {
		if _, err := os.Stat(defaultEnvFile); err != nil {
			return nil, "", nil
		}
		file = defaultEnvFile
	}

	env, err := godotenv.Read(file)
	if err != nil {
		return nil, file, fmt.Errorf("loading env file: %w", err)
	}
	return env, file, nil
}

// lookupEnv returns a function that looks a variable up in the process environment, and then in
// fileEnv.  Variables set to the empty string count as unset.
func lookupEnv(fileEnv map[string]string) func(string) string {
	return func(name string) string {
		if v := os.Getenv(name); v != "" {
			return v
		}
		return fileEnv[name]
	}
}

// properties resolves the options of the compilation database from the defaults, the manifest,
// the environment and the flags, each layer overriding the previous one.
func (o *options) properties(flags *pflag.FlagSet, m *manifest.Manifest,
	getenv func(string) string) (compdb.CompilationDatabaseProperties, error) {
	props := compdb.CompilationDatabaseProperties{
		Filename:      compdb.DefaultFilename,
		WorkspaceName: m.Workspace,
	}
	m.CompilationDatabase.Apply(&props)

	if err := applyEnv(&props, getenv); err != nil {
		return props, err
	}

	if flags.Changed("filename") {
		props.Filename = o.filename
	}
	if flags.Changed("output_base") {
		props.OutputBase = o.outputBase
	}
	if flags.Changed("workspace") {
		props.WorkspaceName = o.workspace
	}
	if flags.Changed("unique") {
		props.Unique = o.unique
	}
	if flags.Changed("disable") {
		props.Disable = o.disable
	}
	if flags.Changed("targets") {
		props.Targets = append([]string(nil), o.targets...)
	}

	if props.Targets == nil {
		for _, t := range m.Targets {
			props.Targets = append(props.Targets, t.Name)
		}
	}

	if !props.Disable {
		if props.OutputBase == "" {
			return props, fmt.Errorf("no output base, use --output_base, %s or output_base in the manifest",
				envOutputBase)
		}
		if props.WorkspaceName == "" {
			return props, fmt.Errorf("no workspace name, use --workspace, %s or workspace in the manifest",
				envWorkspace)
		}
	}

	return props, nil
}

func applyEnv(props *compdb.CompilationDatabaseProperties, getenv func(string) string) error {
	if v := getenv(envOutputBase); v != "" {
		props.OutputBase = v
	}
	if v := getenv(envWorkspace); v != "" {
		props.WorkspaceName = v
	}
	if v := getenv(envFilename); v != "" {
		props.Filename = v
	}
	if v := getenv(envTargets); v != "" {
		props.Targets = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				props.Targets = append(props.Targets, t)
			}
		}
	}

	for _, b := range []struct {
		name string
		dst  *bool
	}{
		{envUnique, &props.Unique},
		{envDisable, &props.Disable},
	} {
		v := getenv(b.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid value %q for %s: %w", v, b.name, err)
		}
		*b.dst = parsed
	}

	return nil
}
