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
	"path"

	"go.uber.org/zap"

	"github.com/wuranjia/bazel-compilation-database/pathtools"
	"github.com/wuranjia/bazel-compilation-database/proptools"
)

// ExecRootPlaceholder is the directory recorded in compilation entries.  The CompilationDatabase
// rule replaces it with the real execution root when the document is written.
const ExecRootPlaceholder = "__EXEC_ROOT__"

// compilationOrder is the order of every depset in CompilationInfo: entries of dependencies come
// before the entries of the targets that depend on them.
const compilationOrder = POSTORDER

// CompilationInfo is attached to every target by ApplyCompilationAspect.
type CompilationInfo struct {
	// CompilationEntries holds the entries of the target and all of its dependencies.
	CompilationEntries *Depset[CompilationEntry]
	// HeaderFiles holds the headers of the target and all of its dependencies.
	HeaderFiles *Depset[string]
}

var CompilationInfoProvider = NewProvider[*CompilationInfo]()

// ccInfo holds the flags a target exports to the targets that depend on it.
type ccInfo struct {
	includes       *Depset[string]
	systemIncludes *Depset[string]
	defines        *Depset[string]
}

var ccInfoProvider = NewProvider[*ccInfo]()

// AspectConfig configures ApplyCompilationAspect.
type AspectConfig struct {
	// CCompiler compiles C and assembly sources, "clang" if empty.
	CCompiler string
	// CxxCompiler compiles C++ and Objective-C++ sources, "clang++" if empty.
	CxxCompiler string
	// CommandForm records each invocation as a single shell-escaped command string instead of
	// an argument list.
	CommandForm bool
}

type sourceKind int

const (
	unknownSource sourceKind = iota
	cSource
	cxxSource
	asmSource
	headerSource
	objectSource
)

var sourceKinds = map[string]sourceKind{
	".c":   cSource,
	".m":   cSource,
	".cc":  cxxSource,
	".cpp": cxxSource,
	".cxx": cxxSource,
	".c++": cxxSource,
	".C":   cxxSource,
	".mm":  cxxSource,
	".S":   asmSource,
	".s":   asmSource,
	".asm": asmSource,
	".h":   headerSource,
	".hh":  headerSource,
	".hpp": headerSource,
	".hxx": headerSource,
	".inc": headerSource,
	".inl": headerSource,
	".ipp": headerSource,
	".o":   objectSource,
	".a":   objectSource,
	".so":  objectSource,
	".lo":  objectSource,
}

// ApplyCompilationAspect attaches a CompilationInfo provider to every target in the context,
// visiting dependencies first so that each target can share the depsets of its dependencies.
// Targets that already have a CompilationInfo are left unchanged.
func ApplyCompilationAspect(ctx *Context, config AspectConfig) {
	if config.CCompiler == "" {
		config.CCompiler = "clang"
	}
	if config.CxxCompiler == "" {
		config.CxxCompiler = "clang++"
	}

	ctx.VisitAllTargets(func(t *Target) {
		if _, ok := OtherTargetProvider(t, CompilationInfoProvider); ok {
			return
		}

		var depEntries []*Depset[CompilationEntry]
		var depHeaders []*Depset[string]
		var depIncludes, depSystemIncludes, depDefines []*Depset[string]
		ctx.VisitDirectDeps(t, func(dep *Target) {
			if info, ok := OtherTargetProvider(dep, CompilationInfoProvider); ok {
				depEntries = append(depEntries, info.CompilationEntries)
				depHeaders = append(depHeaders, info.HeaderFiles)
			}
			if cc, ok := OtherTargetProvider(dep, ccInfoProvider); ok {
				depIncludes = append(depIncludes, cc.includes)
				depSystemIncludes = append(depSystemIncludes, cc.systemIncludes)
				depDefines = append(depDefines, cc.defines)
			}
		})

		props := &t.Properties
		cc := &ccInfo{
			includes: NewDepset(PREORDER,
				pathtools.PrefixPaths(props.Includes, props.Package), depIncludes),
			systemIncludes: NewDepset(PREORDER,
				pathtools.PrefixPaths(props.SystemIncludes, props.Package), depSystemIncludes),
			defines: NewDepset(PREORDER, props.Defines, depDefines),
		}
		SetProvider(t, ccInfoProvider, cc)

		headers := pathtools.PrefixPaths(props.Hdrs, props.Package)
		var entries []CompilationEntry
		if len(props.Srcs) > 0 {
			flags := compileFlags(props.Copts, cc)
			for _, src := range pathtools.PrefixPaths(props.Srcs, props.Package) {
				kind := sourceKinds[pathtools.Ext(src)]
				var compiler string
				switch kind {
				case cSource, asmSource:
					compiler = config.CCompiler
				case cxxSource:
					compiler = config.CxxCompiler
				case headerSource:
					headers = append(headers, src)
					continue
				case objectSource:
					continue
				default:
					ctx.Logger().Warn("skipping source with unknown extension",
						zap.String("target", t.Name), zap.String("src", src))
					continue
				}
				if props.Compiler != "" {
					compiler = props.Compiler
				}
				entries = append(entries, newCompileCommand(t, config, compiler, flags, src))
			}
		}
		entries = append(entries, props.CompileCommands...)

		ctx.Logger().Debug("analyzed target",
			zap.String("target", t.Name),
			zap.Int("entries", len(entries)),
			zap.Int("headers", len(headers)))

		SetProvider(t, CompilationInfoProvider, &CompilationInfo{
			CompilationEntries: NewDepset(compilationOrder, entries, depEntries),
			HeaderFiles:        NewDepset(compilationOrder, headers, depHeaders),
		})
	})
}

// compileFlags returns the flags shared by every source of a target: its own copts followed by
// the defines and include directories of the target and its dependencies.
func compileFlags(copts []string, cc *ccInfo) []string {
	flags := append([]string(nil), copts...)
	for _, define := range cc.defines.ToList() {
		flags = append(flags, "-D"+define)
	}
	for _, include := range cc.includes.ToList() {
		flags = append(flags, "-I"+include)
	}
	for _, include := range cc.systemIncludes.ToList() {
		flags = append(flags, "-isystem", include)
	}
	return flags
}

func newCompileCommand(t *Target, config AspectConfig, compiler string, flags []string,
	src string) *CompileCommand {

	output := pathtools.ReplaceExtension(path.Join(t.Properties.Package, "_objs", t.ShortName(), path.Base(src)), "o")

	args := make([]string, 0, len(flags)+6)
	args = append(args, compiler)
	args = append(args, flags...)
	args = append(args, "-c", src, "-o", output)

	cmd := &CompileCommand{
		Directory: ExecRootPlaceholder,
		Filename:  src,
		Output:    output,
	}
	if config.CommandForm {
		cmd.Command = proptools.ShellJoin(args)
	} else {
		cmd.Arguments = args
	}
	return cmd
}
