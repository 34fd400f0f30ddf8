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

// Package proptools holds helpers shared by the manifest and the encoder: conversions between Go
// field names and the names used in generated documents, optional booleans and shell escaping
// of command lines.
package proptools

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// PropertyNameForField converts the name of an exported struct field to the name used for it in a
// generated document.  It lower cases the first rune in the field name unless the field name
// contains an uppercase rune after the first rune (which is always uppercase), and no lowercase
// runes.
func PropertyNameForField(fieldName string) string {
	r, size := utf8.DecodeRuneInString(fieldName)
	propertyName := string(unicode.ToLower(r))
	if size == len(fieldName) {
		return propertyName
	}
	if strings.IndexFunc(fieldName[size:], unicode.IsLower) == -1 &&
		strings.IndexFunc(fieldName[size:], unicode.IsUpper) != -1 {
		return fieldName
	}
	return propertyName + fieldName[size:]
}

// BoolPtr returns a pointer to a new bool containing the given value.
func BoolPtr(b bool) *bool {
	return &b
}

// BoolDefault takes a pointer to a bool and returns the value pointed to by the pointer if it is non-nil,
// or def if the pointer is nil.
func BoolDefault(b *bool, def bool) bool {
	if b != nil {
		return *b
	}
	return def
}
