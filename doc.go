// Copyright 2015 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package compdb generates a compilation database, the compile_commands.json file read by clangd,
// clang-tidy and other tools that need to know how each source file in a workspace is compiled.
//
// Targets are registered with a Context, usually by the manifest package from a YAML workspace
// manifest such as:
//
//	workspace: my_workspace
//	targets:
//	  - name: //lib:util
//	    package: lib
//	    srcs: ["util.c"]
//	    hdrs: ["util.h"]
//	    copts: ["-Wall"]
//	  - name: //app:main
//	    package: app
//	    srcs: ["main.cc"]
//	    deps: ["//lib:util"]
//	compilation_database:
//	  targets: ["//app:main"]
//	  unique: true
//
// Once dependencies are resolved, the compilation aspect visits every target with its
// dependencies first and attaches a CompilationInfo provider to it.  The provider holds two
// transitive collections, Depsets of compilation entries and of header files, that share
// structure with the providers of the target's dependencies so that building them is cheap even
// for large graphs.
//
// The CompilationDatabase rule then unions the providers of the targets it names, flattens the
// entries exactly once, optionally keeps only the last entry for every file, encodes the result
// with the jsonenc package and writes it.  Compiler invocations are recorded relative to the
// placeholder __EXEC_ROOT__, which the rule resolves to <output_base>/execroot/<workspace> when
// the document is written.  The header files are returned to the caller as the "header_files"
// output group.
package compdb
