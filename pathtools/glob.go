// Copyright 2015 Google Inc. All rights reserved.
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

package pathtools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Glob returns the list of files that match the given pattern along with the
// list of directories that were searched to construct the file list.  A file
// added to or removed from one of the directories can change the result.
func Glob(fs FileSystem, pattern string) (matches, dirs []string, err error) {
	pattern = filepath.Clean(pattern)
	if !isWild(pattern) {
		exists, _, err := fs.Exists(pattern)
		if err != nil {
			return nil, nil, err
		}
		if exists {
			matches = []string{pattern}
		}
		return matches, nil, nil
	}

	dir, file := saneSplit(pattern)
	dirMatches, dirs, err := Glob(fs, dir)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range dirMatches {
		_, isDir, err := fs.Exists(m)
		if err != nil {
			return nil, nil, err
		}
		if !isDir {
			continue
		}
		dirs = append(dirs, m)
		newMatches, err := fs.glob(filepath.Join(m, file))
		if err != nil {
			return nil, nil, err
		}
		matches = append(matches, newMatches...)
	}

	return matches, dirs, nil
}

// Faster version of dir, file := filepath.Dir(path), filepath.File(path)
// Similar to filepath.Split, but returns "." if dir is empty and trims trailing slash if dir is
// not "/"
func saneSplit(path string) (dir, file string) {
	dir, file = filepath.Split(path)
	switch dir {
	case "":
		dir = "."
	case "/":
		// Nothing
	default:
		dir = dir[:len(dir)-1]
	}
	return dir, file
}

func isWild(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// IsGlob returns true if pattern contains glob metacharacters.
func IsGlob(pattern string) bool {
	return isWild(pattern)
}

// GlobPatternList expands the glob patterns in patterns, which are relative to
// prefix.  The matches are returned relative to prefix as slash-separated
// paths, in place of their pattern.  Patterns without metacharacters are
// returned unchanged whether or not the file exists.  A pattern that matches
// nothing is an error.
func GlobPatternList(fs FileSystem, patterns []string, prefix string) (globbedList []string, depDirs []string, err error) {
	for _, pattern := range patterns {
		if !isWild(pattern) {
			globbedList = append(globbedList, pattern)
			continue
		}

		matches, dirs, err := Glob(fs, filepath.Join(prefix, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, nil, err
		}
		depDirs = append(depDirs, dirs...)

		var files []string
		for _, match := range matches {
			if _, isDir, err := fs.Exists(match); err != nil {
				return nil, nil, err
			} else if isDir {
				continue
			}
			rel, err := filepath.Rel(prefix, match)
			if err != nil {
				return nil, nil, err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		if len(files) == 0 {
			return nil, nil, fmt.Errorf("glob pattern %q matches no files", pattern)
		}
		globbedList = append(globbedList, files...)
	}
	return globbedList, depDirs, nil
}
