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
	"strings"
	"unicode/utf8"
)

// Escape escapes backslashes, double quotes, newlines, carriage returns, tabs and the remaining
// control characters in s so that it can be placed between double quotes in a JSON document.
// The replacement is done in a single pass, so an escaped backslash is never escaped again.
// Invalid UTF-8 sequences are replaced with \ufffd.
func Escape(s string) string {
	escaped := stringEscaper.Replace(s)
	if utf8.ValidString(escaped) {
		return escaped
	}
	return strings.ToValidUTF8(escaped, `\ufffd`)
}

// Quote returns s escaped and wrapped in double quotes.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}

var stringEscaper = newStringEscaper()

func newStringEscaper() *strings.Replacer {
	oldnew := []string{
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	}
	for c := 0; c < 0x20; c++ {
		switch c {
		case '\n', '\r', '\t':
			continue
		}
		oldnew = append(oldnew, string(rune(c)), fmt.Sprintf(`\u%04x`, c))
	}
	return strings.NewReplacer(oldnew...)
}
