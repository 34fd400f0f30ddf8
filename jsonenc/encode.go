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

package jsonenc

import (
	"fmt"
	"reflect"
	"strings"
)

const (
	indentStep = "  "

	// maxDepth bounds the recursion for values that produce new nested values on every call,
	// which the cycle check cannot see.
	maxDepth = 1000
)

// Encode returns the compact JSON text for v.  Object members and array elements are separated
// by ", " on a single line.
func Encode(v interface{}) string {
	e := newEncoder(false)
	e.encode(v, "")
	return e.buf.String()
}

// EncodeIndent returns the JSON text for v with one object member or array element per line.
// indent is the prefix of the current nesting level, each level adds two spaces to it.  The
// first line is not prefixed with indent.
func EncodeIndent(v interface{}, indent string) string {
	e := newEncoder(true)
	e.encode(v, indent)
	return e.buf.String()
}

type visitKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

type encoder struct {
	buf    strings.Builder
	pretty bool
	depth  int

	// visiting holds the pointers, maps and slices that are currently being encoded.
	visiting map[visitKey]bool
}

func newEncoder(pretty bool) *encoder {
	return &encoder{
		pretty:   pretty,
		visiting: make(map[visitKey]bool),
	}
}

func (e *encoder) encode(v interface{}, indent string) {
	if e.depth >= maxDepth {
		e.buf.WriteString(Quote(fmt.Sprintf("%T", v)))
		return
	}

	if key, ok := referenceKey(v); ok {
		if e.visiting[key] {
			e.buf.WriteString(Quote(fmt.Sprintf("%T(%#x)", v, key.ptr)))
			return
		}
		e.visiting[key] = true
		defer delete(e.visiting, key)
	}

	e.depth++
	defer func() { e.depth-- }()

	switch x := Classify(v).(type) {
	case Record:
		e.object(x, indent)
	case Map:
		e.object(x, indent)
	case Sequence:
		e.array(x, indent)
	case Bool:
		if x {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
	case Null:
		e.buf.WriteString("null")
	case Number:
		e.buf.WriteString(x.String())
	case Raw:
		e.buf.WriteString(string(x))
	case Text:
		e.buf.WriteString(Quote(string(x)))
	}
}

func (e *encoder) object(fields []Field, indent string) {
	if len(fields) == 0 {
		e.buf.WriteString("{}")
		return
	}

	inner := indent + indentStep
	e.buf.WriteByte('{')
	for i, f := range fields {
		e.separator(i, inner)
		e.buf.WriteString(Quote(f.Name))
		e.buf.WriteString(": ")
		e.encode(f.Value, inner)
	}
	e.closing(indent)
	e.buf.WriteByte('}')
}

func (e *encoder) array(elems Sequence, indent string) {
	if len(elems) == 0 {
		e.buf.WriteString("[]")
		return
	}

	inner := indent + indentStep
	e.buf.WriteByte('[')
	for i, elem := range elems {
		e.separator(i, inner)
		e.encode(elem, inner)
	}
	e.closing(indent)
	e.buf.WriteByte(']')
}

func (e *encoder) separator(i int, inner string) {
	if e.pretty {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.buf.WriteByte('\n')
		e.buf.WriteString(inner)
	} else if i > 0 {
		e.buf.WriteString(", ")
	}
}

func (e *encoder) closing(indent string) {
	if e.pretty {
		e.buf.WriteByte('\n')
		e.buf.WriteString(indent)
	}
}

// referenceKey returns a key identifying the memory v refers to, if v is a non-nil pointer, map
// or slice.
func referenceKey(v interface{}) (visitKey, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map:
		if !rv.IsNil() {
			return visitKey{typ: rv.Type(), ptr: rv.Pointer()}, true
		}
	case reflect.Slice:
		if !rv.IsNil() && rv.Len() > 0 {
			return visitKey{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}, true
		}
	}
	return visitKey{}, false
}
