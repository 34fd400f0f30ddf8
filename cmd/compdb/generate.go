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
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	compdb "github.com/wuranjia/bazel-compilation-database"
	"github.com/wuranjia/bazel-compilation-database/deptools"
	"github.com/wuranjia/bazel-compilation-database/manifest"
	"github.com/wuranjia/bazel-compilation-database/pathtools"
)

// generate runs one complete cycle: it reads the manifests, analyzes their targets and writes the
// compilation database and the optional depfile and header list.  It returns the files and
// directories the output depends on.
func (o *options) generate(flags *pflag.FlagSet, manifestFiles []string) ([]string, error) {
	deps := append([]string(nil), manifestFiles...)
	fileEnv, envFile, err := o.readEnvFile()
	if envFile != "" {
		deps = append(deps, envFile)
	}
	if err != nil {
		return deps, err
	}

	m, err := readManifests(manifestFiles)
	if err != nil {
		return deps, err
	}

	root := o.root
	if root == "" {
		root = filepath.Dir(manifestFiles[0])
	}
	globDirs, errs := m.ExpandGlobs(pathtools.OsFs, root)
	deps = append(deps, globDirs...)
	if len(errs) > 0 {
		return deps, multierr.Combine(errs...)
	}

	props, err := o.properties(flags, m, lookupEnv(fileEnv))
	if err != nil {
		return deps, err
	}

	ctx := compdb.NewContext()
	ctx.SetLogger(o.logger)

	if errs := m.Register(ctx); len(errs) > 0 {
		return deps, multierr.Combine(errs...)
	}
	if err := ctx.ResolveDependencies(); err != nil {
		return deps, err
	}

	if !props.Disable {
		compdb.ApplyCompilationAspect(ctx, compdb.AspectConfig{
			CCompiler:   o.cCompiler,
			CxxCompiler: o.cxxCompiler,
			CommandForm: o.commandForm,
		})
	}
	ctx.FreezeTargets()

	rule := &compdb.CompilationDatabase{Properties: props}
	groups, err := rule.Generate(ctx)
	if err != nil {
		return deps, err
	}

	if o.headersOut != "" {
		headers := groups[compdb.HeaderFilesOutputGroup].ToList()
		var text string
		if len(headers) > 0 {
			text = strings.Join(headers, "\n") + "\n"
		}
		if err := os.WriteFile(o.headersOut, []byte(text), 0666); err != nil {
			return deps, fmt.Errorf("writing header files: %w", err)
		}
	}

	if o.depFile != "" {
		if err := deptools.WriteDepFile(o.depFile, rule.Filename(), deps); err != nil {
			return deps, fmt.Errorf("writing depfile: %w", err)
		}
		o.logger.Debug("wrote depfile", zap.String("file", o.depFile), zap.Int("deps", len(deps)))
	}

	return deps, nil
}

// readManifests parses and merges the manifest files.  All errors found in all files are
// returned together.
func readManifests(files []string) (*manifest.Manifest, error) {
	var errs []error
	var manifests []*manifest.Manifest
	for _, file := range files {
		m, fileErrs := manifest.ParseFile(file)
		if len(fileErrs) > 0 {
			errs = append(errs, fileErrs...)
			continue
		}
		manifests = append(manifests, m)
	}
	if len(errs) > 0 {
		return nil, multierr.Combine(errs...)
	}

	merged, errs := manifest.Merge(manifests...)
	if len(errs) > 0 {
		return nil, multierr.Combine(errs...)
	}
	return merged, nil
}
