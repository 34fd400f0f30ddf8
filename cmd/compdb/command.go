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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	compdb "github.com/wuranjia/bazel-compilation-database"
)

type options struct {
	filename    string
	outputBase  string
	workspace   string
	unique      bool
	disable     bool
	targets     []string
	commandForm bool
	cCompiler   string
	cxxCompiler string
	depFile     string
	headersOut  string
	watch       bool
	verbose     bool
	envFile     string
	root        string

	logger *zap.Logger
}

// newRootCommand returns the compdb command.  If logger is nil one is built from the --verbose
// flag.
func newRootCommand(logger *zap.Logger) *cobra.Command {
	o := &options{logger: logger}
	return o.command()
}

func (o *options) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compdb [flags] MANIFEST...",
		Short: "Generate a compile_commands.json compilation database",
		Long: `compdb reads one or more manifests describing the targets of a workspace and writes
the compilation database for the selected targets and all of their dependencies.

Options are taken from the command line, then from the COMPDB_* environment variables,
then from the compilation_database block of the manifests.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.logger != nil {
				return nil
			}
			config := zap.NewProductionConfig()
			if o.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			o.logger, err = config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.watch {
				return o.runWatch(cmd, args)
			}
			_, err := o.generate(cmd.Flags(), args)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.filename, "filename", "o", compdb.DefaultFilename, "the compilation database to output")
	flags.StringVar(&o.outputBase, "output_base", "", "the output base of the workspace (or set COMPDB_OUTPUT_BASE)")
	flags.StringVar(&o.workspace, "workspace", "", "the workspace name (or set COMPDB_WORKSPACE)")
	flags.BoolVar(&o.unique, "unique", false, "keep only the last entry for each file (or set COMPDB_UNIQUE)")
	flags.BoolVar(&o.disable, "disable", false, "write an empty compilation database (or set COMPDB_DISABLE)")
	flags.StringSliceVar(&o.targets, "targets", nil, "the targets to aggregate (default: all targets)")
	flags.BoolVar(&o.commandForm, "command", false, "record each invocation as a single command string")
	flags.StringVar(&o.cCompiler, "cc", "clang", "the compiler for C and assembly sources")
	flags.StringVar(&o.cxxCompiler, "cxx", "clang++", "the compiler for C++ sources")
	flags.StringVarP(&o.depFile, "depfile", "d", "", "the dependency file to output")
	flags.StringVar(&o.headersOut, "headers_out", "", "file to write the header_files output group to")
	flags.BoolVar(&o.watch, "watch", false, "regenerate whenever a manifest changes")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "enable verbose logging")
	flags.StringVar(&o.root, "root", "", "the workspace root that packages are relative to (default: the directory of the first manifest)")
	flags.StringVar(&o.envFile, "env_file", "", "file of COMPDB_* variables to load (default: .env if present)")

	return cmd
}
