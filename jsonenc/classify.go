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
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/wuranjia/bazel-compilation-database/proptools"
)

// Classify returns the Value variant for v.  A value that satisfies more than one of the checks
// below takes the first one that matches:
//
//   - a Value is returned unchanged
//   - a Mapper is converted with Mapping
//   - a json.Marshaler becomes Raw, an encoding.TextMarshaler becomes Text
//   - a Fielder, or any other struct, becomes a Record
//   - a Go map becomes a Map with its keys sorted, a nil map is an empty Map
//   - a slice or array becomes a Sequence, a nil slice is an empty Sequence
//   - a bool becomes Bool
//   - nil, including nil pointers and interfaces, becomes Null
//   - an integer or floating point kind becomes a Number
//   - everything else becomes Text
//
// Classify never panics.  If a conversion method panics or fails the value is classified as the
// Text of its type name.
func Classify(v interface{}) (ret Value) {
	defer func() {
		if r := recover(); r != nil {
			ret = Text(fmt.Sprintf("%T", v))
		}
	}()

	return classify(v)
}

func classify(v interface{}) Value {
	if v == nil {
		return Null{}
	}

	if isNilPointer(v) {
		return Null{}
	}

	switch x := v.(type) {
	case Value:
		return x
	case Mapper:
		return x.Mapping()
	case json.Marshaler:
		b, err := x.MarshalJSON()
		if err != nil || !json.Valid(b) {
			return Text(fmt.Sprint(v))
		}
		return Raw(b)
	case encoding.TextMarshaler:
		b, err := x.MarshalText()
		if err != nil {
			return Text(fmt.Sprint(v))
		}
		return Text(b)
	case Fielder:
		return Record(x.Fields())
	case string:
		return Text(x)
	case bool:
		return Bool(x)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Null{}
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return structRecord(rv)
	case reflect.Map:
		return mapValue(rv)
	case reflect.Slice, reflect.Array:
		return sequence(rv)
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Uint(rv.Uint())
	case reflect.Float32:
		if n := float32Number(float32(rv.Float())); n.finite() {
			return n
		}
	case reflect.Float64:
		if n := Float(rv.Float()); n.finite() {
			return n
		}
	case reflect.String:
		return Text(rv.String())
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if rv.IsNil() {
			return Null{}
		}
	}

	return Text(fmt.Sprint(v))
}

func isNilPointer(v interface{}) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

func sequence(rv reflect.Value) Sequence {
	seq := make(Sequence, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		seq = append(seq, interfaceOf(rv.Index(i)))
	}
	return seq
}

func mapValue(rv reflect.Value) Map {
	m := make(Map, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m = append(m, Field{Name: mapKey(iter.Key()), Value: interfaceOf(iter.Value())})
	}
	sort.SliceStable(m, func(i, j int) bool { return m[i].Name < m[j].Name })
	return m
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			if b, err := tm.MarshalText(); err == nil {
				return string(b)
			}
		}
		return fmt.Sprint(k.Interface())
	}
	return k.String()
}

// structRecord builds a Record from the exported fields of a struct, in declaration order.  Fields
// of embedded structs are promoted into the record unless the embedded field has a json name.
func structRecord(rv reflect.Value) Record {
	rec := Record{}
	appendStructFields(&rec, rv)
	return rec
}

func appendStructFields(rec *Record, rv reflect.Value) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := rv.Field(i)
		name, opts := parseTag(field.Tag.Get("json"))
		if name == "-" && opts == "" {
			continue
		}

		if field.Anonymous && name == "" {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				ft = ft.Elem()
				fv = fv.Elem()
			}
			if ft.Kind() == reflect.Struct {
				appendStructFields(rec, fv)
				continue
			}
		}

		if field.PkgPath != "" || !fv.CanInterface() {
			continue
		}

		switch field.Type.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue
		}

		if hasOption(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}

		if name == "" {
			name = proptools.PropertyNameForField(field.Name)
		}

		*rec = append(*rec, Field{Name: name, Value: fv.Interface()})
	}
}

func interfaceOf(v reflect.Value) interface{} {
	if !v.CanInterface() {
		return v.String()
	}
	return v.Interface()
}

func parseTag(tag string) (string, string) {
	if i := strings.Index(tag, ","); i != -1 {
		return tag[:i], tag[i+1:]
	}
	return tag, ""
}

func hasOption(opts, option string) bool {
	for _, o := range strings.Split(opts, ",") {
		if o == option {
			return true
		}
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}
