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

// Package jsonenc is a small JSON encoder for arbitrary values.  Every value is first classified
// into exactly one variant of the closed Value type and then encoded by the routine for that
// variant.  Encoding never fails: values that cannot be classified as anything more specific are
// written as strings containing their textual representation.
package jsonenc

import (
	"math"
	"strconv"
	"strings"
)

// A Value is a classified node of a JSON document.  The set of implementations is closed: Record,
// Map, Sequence, Bool, Null, Number, Text and Raw.
type Value interface {
	isValue()
}

// A Field is a named member of a Record or a Map.  Value is classified lazily when the enclosing
// value is encoded.
type Field struct {
	Name  string
	Value interface{}
}

// Record is a structured record with a fixed, declared field order.
type Record []Field

// Map is a key/value mapping, encoded in the order of its entries.
type Map []Field

// Sequence is an ordered list of values.
type Sequence []interface{}

// Bool is a JSON true or false.
type Bool bool

// Null is the JSON null literal.
type Null struct{}

// Text is a string.  It is always quoted and escaped when encoded.
type Text string

// Raw is already valid JSON text, written verbatim.
type Raw string

type numberKind int

const (
	intNumber numberKind = iota
	uintNumber
	floatNumber
)

// Number is an integer or floating point number.  Construct one with Int, Uint or Float.
type Number struct {
	kind numberKind
	bits int
	i    int64
	u    uint64
	f    float64
}

// Int returns an integer Number.
func Int(i int64) Number {
	return Number{kind: intNumber, i: i}
}

// Uint returns an unsigned integer Number.
func Uint(u uint64) Number {
	return Number{kind: uintNumber, u: u}
}

// Float returns a 64-bit floating point Number.
func Float(f float64) Number {
	return Number{kind: floatNumber, bits: 64, f: f}
}

func float32Number(f float32) Number {
	return Number{kind: floatNumber, bits: 32, f: float64(f)}
}

// finite returns false for floating point values that have no JSON representation.
func (n Number) finite() bool {
	return n.kind != floatNumber || !(math.IsNaN(n.f) || math.IsInf(n.f, 0))
}

// String returns the JSON text of the number.  Floats without a fractional part are written
// without a decimal point or exponent.
func (n Number) String() string {
	switch n.kind {
	case intNumber:
		return strconv.FormatInt(n.i, 10)
	case uintNumber:
		return strconv.FormatUint(n.u, 10)
	}

	bits := n.bits
	if bits == 0 {
		bits = 64
	}
	format := byte('f')
	if abs := math.Abs(n.f); abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	s := strconv.FormatFloat(n.f, format, -1, bits)
	if format == 'e' {
		// clean up e-09 to e-9
		if i := strings.Index(s, "e-0"); i != -1 {
			s = s[:i+2] + s[i+3:]
		} else if i := strings.Index(s, "e+0"); i != -1 {
			s = s[:i+2] + s[i+3:]
		}
	}
	return s
}

func (Record) isValue()   {}
func (Map) isValue()      {}
func (Sequence) isValue() {}
func (Bool) isValue()     {}
func (Null) isValue()     {}
func (Number) isValue()   {}
func (Text) isValue()     {}
func (Raw) isValue()      {}

// Fielder is implemented by structured records that enumerate their own fields.  The returned
// order is the order the fields are encoded in.
type Fielder interface {
	Fields() []Field
}

// Mapper is implemented by values that convert themselves to a mapping before encoding.
type Mapper interface {
	Mapping() Map
}
