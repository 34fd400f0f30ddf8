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

package proptools

import "strings"

// ShellEscapeList takes a slice of strings that may contain characters that are meaningful to bash and
// escapes them if necessary by wrapping them in single quotes, and replacing internal single quotes with
// '\'' (one single quote to end the quoting, a shell-escaped single quote to insert a real single
// quote, and then a single quote to restarting quoting.  A new slice containing the escaped strings
// is returned.
func ShellEscapeList(slice []string) []string {
	slice = append([]string(nil), slice...)

	for i, s := range slice {
		slice[i] = ShellEscape(s)
	}
	return slice
}

func shellUnsafeChar(r rune) bool {
	switch {
	case 'A' <= r && r <= 'Z',
		'a' <= r && r <= 'z',
		'0' <= r && r <= '9',
		r == '_',
		r == '+',
		r == '-',
		r == '=',
		r == '.',
		r == ',',
		r == '/',
		r == ':',
		r == '@',
		r == '%':
		return false
	default:
		return true
	}
}

// ShellEscape takes a single command line argument and escapes it if necessary by wrapping it in
// single quotes, and replacing internal single quotes with '\''.  Spaces are meaningful, an
// argument containing a space is always quoted.  The empty string is quoted so that it survives
// word splitting.
func ShellEscape(s string) string {
	if s == "" {
		return `''`
	}

	if strings.IndexFunc(s, shellUnsafeChar) == -1 {
		// No escaping necessary
		return s
	}

	return `'` + singleQuoteReplacer.Replace(s) + `'`
}

// ShellJoin escapes each argument and joins them with spaces into a single command line, the
// inverse of the word splitting a POSIX shell performs.
func ShellJoin(args []string) string {
	return strings.Join(ShellEscapeList(args), " ")
}

var singleQuoteReplacer = strings.NewReplacer(`'`, `'\''`)
