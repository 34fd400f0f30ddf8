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

package compdb

import (
	"fmt"
	"reflect"
)

// DepsetOrder is the order in which the elements of a Depset are returned by ToList.
type DepsetOrder int

const (
	// PREORDER returns the direct elements of a depset before the elements of its transitive
	// depsets.
	PREORDER DepsetOrder = iota
	// POSTORDER returns the elements of the transitive depsets before the direct elements, so
	// that dependencies come before the targets that depend on them.
	POSTORDER
)

func (o DepsetOrder) String() string {
	switch o {
	case PREORDER:
		return "PREORDER"
	case POSTORDER:
		return "POSTORDER"
	default:
		panic(fmt.Errorf("unknown DepsetOrder %d", int(o)))
	}
}

// A Depset is an immutable collection of elements contributed by a target and all of its
// transitive dependencies, modelled after Bazel depsets.  Creating a depset only stores
// references to its transitive depsets, so merging is proportional to the number of depsets
// being merged and not to the number of elements they hold.  The elements are materialized by
// ToList, which visits each shared depset once and returns each element once.
type Depset[T comparable] struct {
	order      DepsetOrder
	direct     []T
	transitive []*Depset[T]
}

// NewDepset returns a Depset containing direct and the elements of the transitive depsets.  All
// non-empty transitive depsets must have the given order.  Neither slice is retained.
func NewDepset[T comparable](order DepsetOrder, direct []T, transitive []*Depset[T]) *Depset[T] {
	var nonEmpty []*Depset[T]
	for _, t := range transitive {
		if t.IsEmpty() {
			continue
		}
		if t.order != order {
			panic(fmt.Errorf("incompatible order, new depset is %s but transitive depset is %s",
				order, t.order))
		}
		nonEmpty = append(nonEmpty, t)
	}

	if len(direct) == 0 && len(nonEmpty) == 1 {
		// The new depset would be indistinguishable from its only child.
		return nonEmpty[0]
	}

	return &Depset[T]{
		order:      order,
		direct:     append([]T(nil), direct...),
		transitive: nonEmpty,
	}
}

// UnionDepsets returns a Depset containing the elements of all of the given depsets.
func UnionDepsets[T comparable](order DepsetOrder, depsets ...*Depset[T]) *Depset[T] {
	return NewDepset(order, nil, depsets)
}

// EmptyDepset returns a Depset with no elements.
func EmptyDepset[T comparable](order DepsetOrder) *Depset[T] {
	return &Depset[T]{order: order}
}

// IsEmpty returns true if the depset has no elements.  A nil *Depset is empty.
func (d *Depset[T]) IsEmpty() bool {
	return d == nil || (len(d.direct) == 0 && len(d.transitive) == 0)
}

// walk calls visit with the direct elements of d and every depset reachable from it, in the
// order of d.  Depsets reachable through more than one path are visited once.
func (d *Depset[T]) walk(visit func([]T)) {
	visited := make(map[*Depset[T]]bool)

	var dfs func(depset *Depset[T])
	dfs = func(depset *Depset[T]) {
		visited[depset] = true
		if depset.order == PREORDER {
			visit(depset.direct)
		}
		for _, dep := range depset.transitive {
			if !visited[dep] {
				dfs(dep)
			}
		}
		if depset.order == POSTORDER {
			visit(depset.direct)
		}
	}

	dfs(d)
}

// ToList returns the elements of the depset in its order.  An element that was added more than
// once is returned at its first position.  Elements that cannot be compared, such as an interface
// holding a struct with a slice field, are never treated as duplicates and are returned at every
// position they were added at.
func (d *Depset[T]) ToList() []T {
	if d.IsEmpty() {
		return nil
	}

	seen := make(map[T]bool)
	var list []T
	d.walk(func(elems []T) {
		for _, e := range elems {
			if !hashable(e) {
				list = append(list, e)
				continue
			}
			if !seen[e] {
				seen[e] = true
				list = append(list, e)
			}
		}
	})
	return list
}

// hashable returns false if using e as a map key would panic.
func hashable(e interface{}) bool {
	if e == nil {
		return true
	}
	return reflect.ValueOf(e).Comparable()
}
