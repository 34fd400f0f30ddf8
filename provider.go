// Copyright 2020 Google Inc. All rights reserved.
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
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"strings"
)

// This file implements Providers, modelled after Bazel
// (https://docs.bazel.build/versions/master/skylark/rules.html#providers).
// The value of a provider for a target can only be set while the target is being analyzed, by the
// aspect or rule that owns the provider, and can be read by anything that runs afterwards.
//
// Providers are globally registered during init() and given a unique ID.  The value of a provider
// for a target is stored in an []interface{} indexed by the ID.  If the value of a provider has
// not been set, the value in the []interface{} will be nil.
//
// Values passed to providers should be treated as immutable by callers to both the getters and
// setters.  Go doesn't provide any way to enforce immutability on arbitrary types, which is why the
// transitive collections held by providers are Depsets.

type providerKey struct {
	id  int
	typ string
}

func (p *providerKey) String() string {
	return p.typ
}

// ProviderKey identifies a provider whose values have type K.
type ProviderKey[K any] struct {
	*providerKey
}

var providerRegistry []*providerKey

// NewProvider returns a ProviderKey for values of type K.  It must be called from an init func or
// a package level variable initializer.
func NewProvider[K any]() ProviderKey[K] {
	checkCalledFromInit()

	var zero K
	p := &providerKey{
		id:  len(providerRegistry),
		typ: fmt.Sprintf("%T", zero),
	}
	if p.typ == "<nil>" {
		p.typ = reflect.TypeOf((*K)(nil)).Elem().String()
	}

	providerRegistry = append(providerRegistry, p)

	return ProviderKey[K]{p}
}

// SetProvider sets the value for a provider on a target.  It panics if the target has already been
// frozen, or if the value was already set.  The value should not be modified after being passed to
// SetProvider.
func SetProvider[K any](t *Target, provider ProviderKey[K], value K) {
	if t.frozen {
		panic(fmt.Sprintf("Can't set value of provider %s on %s after analysis finished",
			provider, t))
	}

	if t.providers == nil {
		t.providers = make([]interface{}, len(providerRegistry))
	}

	if t.providers[provider.id] != nil {
		panic(fmt.Sprintf("Value of provider %s is already set on %s", provider, t))
	}

	t.providers[provider.id] = value
}

// OtherTargetProvider returns the value, if any, for a given provider for a target.  If the value
// for the provider was not set it returns the zero value of the type of the provider and false.
// The return value should always be considered read-only.
func OtherTargetProvider[K any](t *Target, provider ProviderKey[K]) (K, bool) {
	if len(t.providers) > provider.id {
		if p := t.providers[provider.id]; p != nil {
			return p.(K), true
		}
	}

	var zero K
	return zero, false
}

// checkCalledFromInit panics if a call to checkCalledFromInit does not have
// init as a caller.
func checkCalledFromInit() {
	for skip := 3; ; skip++ {
		_, funcName, ok := callerName(skip)
		if !ok {
			panic("not called from an init func")
		}

		if funcName == "init" || strings.HasPrefix(funcName, "init.") ||
			funcName == "init.ializers" {
			return
		}
	}
}

// A regex to find a package path within a function name. It finds the shortest string that is
// followed by '.' and doesn't have any '/'s left.
var pkgPathRe = regexp.MustCompile(`^(.*?)\.([^/]+)$`)

// callerName returns the package path and function name of the calling
// function.  The skip argument has the same meaning as the skip argument of
// runtime.Callers.
func callerName(skip int) (pkgPath, funcName string, ok bool) {
	var pc [1]uintptr
	n := runtime.Callers(skip+1, pc[:])
	if n != 1 {
		return "", "", false
	}

	frames := runtime.CallersFrames(pc[:])
	frame, _ := frames.Next()
	f := frame.Function
	s := pkgPathRe.FindStringSubmatch(f)
	if len(s) < 3 {
		panic(fmt.Errorf("failed to extract package path and function name from %q", f))
	}

	return s[1], s[2], true
}
