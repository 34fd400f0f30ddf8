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
	"fmt"
	"text/scanner"

	"gopkg.in/yaml.v3"

	compdb "github.com/wuranjia/bazel-compilation-database"
	"github.com/wuranjia/bazel-compilation-database/jsonenc"
	"github.com/wuranjia/bazel-compilation-database/proptools"
)

type decoder struct {
	filename string
	errs     []error
}

func (d *decoder) pos(n *yaml.Node) scanner.Position {
	return scanner.Position{
		Filename: d.filename,
		Line:     n.Line,
		Column:   n.Column,
	}
}

func (d *decoder) errorf(n *yaml.Node, format string, args ...interface{}) {
	d.errs = append(d.errs, &Error{
		Err: fmt.Errorf(format, args...),
		Pos: d.pos(n),
	})
}

func (d *decoder) decode(data []byte) *Manifest {
	m := &Manifest{}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		d.errs = append(d.errs, &Error{Err: err, Pos: scanner.Position{Filename: d.filename}})
		return nil
	}

	// An empty file has no content.
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return m
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		d.errorf(root, "manifest must be a mapping")
		return nil
	}

	d.mapping(root, func(key string, keyNode, value *yaml.Node) {
		switch key {
		case "workspace":
			m.Workspace = d.stringValue(value)
			m.WorkspacePos = d.pos(value)
		case "targets":
			if !d.expectKind(value, yaml.SequenceNode, "a list of targets") {
				return
			}
			for _, n := range value.Content {
				if t := d.target(n); t != nil {
					m.Targets = append(m.Targets, t)
				}
			}
		case "compilation_database":
			m.CompilationDatabase = d.ruleBlock(value)
		default:
			d.errorf(keyNode, "unrecognized manifest key %q", key)
		}
	})

	return m
}

// mapping calls f for every key of a mapping node, in order.  Duplicate keys are reported.
func (d *decoder) mapping(n *yaml.Node, f func(key string, keyNode, value *yaml.Node)) {
	seen := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, value := n.Content[i], n.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			d.errorf(keyNode, "mapping keys must be scalars")
			continue
		}
		key := keyNode.Value
		if first, ok := seen[key]; ok {
			d.errorf(keyNode, "key %q already defined at %s", key, d.pos(first))
			continue
		}
		seen[key] = keyNode
		f(key, keyNode, value)
	}
}

func (d *decoder) expectKind(n *yaml.Node, kind yaml.Kind, what string) bool {
	if n.Kind != kind {
		d.errorf(n, "expected %s", what)
		return false
	}
	return true
}

func (d *decoder) stringValue(n *yaml.Node) string {
	if !d.expectKind(n, yaml.ScalarNode, "a string") {
		return ""
	}
	if n.ShortTag() == "!!null" {
		return ""
	}
	return n.Value
}

func (d *decoder) stringList(n *yaml.Node) []string {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
		return nil
	}
	if !d.expectKind(n, yaml.SequenceNode, "a list of strings") {
		return nil
	}
	list := make([]string, 0, len(n.Content))
	for _, elem := range n.Content {
		list = append(list, d.stringValue(elem))
	}
	return list
}

func (d *decoder) boolValue(n *yaml.Node) *bool {
	var b bool
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!bool" || n.Decode(&b) != nil {
		d.errorf(n, "expected true or false")
		return nil
	}
	return proptools.BoolPtr(b)
}

func (d *decoder) target(n *yaml.Node) *compdb.Target {
	if !d.expectKind(n, yaml.MappingNode, "a target") {
		return nil
	}

	t := &compdb.Target{Pos: d.pos(n)}
	props := &t.Properties
	d.mapping(n, func(key string, keyNode, value *yaml.Node) {
		switch key {
		case "name":
			t.Name = d.stringValue(value)
		case "package":
			props.Package = d.stringValue(value)
		case "srcs":
			props.Srcs = d.stringList(value)
		case "hdrs":
			props.Hdrs = d.stringList(value)
		case "copts":
			props.Copts = d.stringList(value)
		case "defines":
			props.Defines = d.stringList(value)
		case "includes":
			props.Includes = d.stringList(value)
		case "system_includes":
			props.SystemIncludes = d.stringList(value)
		case "deps":
			props.Deps = d.stringList(value)
		case "compiler":
			props.Compiler = d.stringValue(value)
		case "compile_commands":
			if !d.expectKind(value, yaml.SequenceNode, "a list of compilation entries") {
				return
			}
			for _, entry := range value.Content {
				if e := d.compilationEntry(entry); e != nil {
					props.CompileCommands = append(props.CompileCommands, e)
				}
			}
		default:
			d.errorf(keyNode, "unrecognized target property %q", key)
		}
	})

	if t.Name == "" {
		d.errorf(n, "target has no name")
		return nil
	}
	return t
}

func (d *decoder) ruleBlock(n *yaml.Node) *RuleBlock {
	if !d.expectKind(n, yaml.MappingNode, "a compilation_database block") {
		return nil
	}

	b := &RuleBlock{Pos: d.pos(n)}
	d.mapping(n, func(key string, keyNode, value *yaml.Node) {
		switch key {
		case "targets":
			b.Targets = d.stringList(value)
		case "output_base":
			b.OutputBase = d.stringValue(value)
		case "unique":
			b.Unique = d.boolValue(value)
		case "disable":
			b.Disable = d.boolValue(value)
		case "filename":
			b.Filename = d.stringValue(value)
		default:
			d.errorf(keyNode, "unrecognized compilation_database option %q", key)
		}
	})
	return b
}

// compilationEntry converts a precomputed entry to a RecordEntry, keeping its keys in the order
// they were written.
func (d *decoder) compilationEntry(n *yaml.Node) compdb.CompilationEntry {
	if !d.expectKind(n, yaml.MappingNode, "a compilation entry") {
		return nil
	}

	rec := jsonenc.Record{}
	hasFile := false
	d.mapping(n, func(key string, keyNode, value *yaml.Node) {
		if key == "file" {
			if value.Kind != yaml.ScalarNode || value.ShortTag() != "!!str" {
				d.errorf(value, "file must be a string")
				return
			}
			hasFile = true
		}
		rec = append(rec, jsonenc.Field{Name: key, Value: d.value(value)})
	})

	if !hasFile {
		d.errorf(n, "compilation entry has no file")
		return nil
	}
	return &compdb.RecordEntry{Record: rec}
}

// value converts a node to a value with the same JSON encoding: mappings keep their key order
// and scalars keep their resolved type.
func (d *decoder) value(n *yaml.Node) interface{} {
	switch n.Kind {
	case yaml.AliasNode:
		return d.value(n.Alias)
	case yaml.SequenceNode:
		seq := make([]interface{}, 0, len(n.Content))
		for _, elem := range n.Content {
			seq = append(seq, d.value(elem))
		}
		return seq
	case yaml.MappingNode:
		m := jsonenc.Map{}
		d.mapping(n, func(key string, keyNode, value *yaml.Node) {
			m = append(m, jsonenc.Field{Name: key, Value: d.value(value)})
		})
		return m
	case yaml.ScalarNode:
		return d.scalar(n)
	}

	d.errorf(n, "unsupported value")
	return nil
}

func (d *decoder) scalar(n *yaml.Node) interface{} {
	switch n.ShortTag() {
	case "!!null":
		return nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return b
		}
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return i
		}
		var u uint64
		if err := n.Decode(&u); err == nil {
			return u
		}
	case "!!float":
		var f float64
		if err := n.Decode(&f); err == nil {
			return f
		}
	}
	return n.Value
}
