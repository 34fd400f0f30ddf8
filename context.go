// Copyright 2014 Google Inc. All rights reserved.
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
	"text/scanner"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// A Context contains all the state needed to analyze a set of targets.  Targets are registered with
// RegisterTarget, their dependencies are resolved by ResolveDependencies, and afterwards aspects and
// rules visit the graph, dependencies before the targets that depend on them.
type Context struct {
	logger *zap.Logger

	targets     map[string]*Target
	targetOrder []*Target

	// set during ResolveDependencies
	sorted   []*Target
	resolved bool
}

// A PosError describes a problem that was encountered that is related to a
// particular location in a manifest.
type PosError struct {
	Err error            // the error that occurred
	Pos scanner.Position // the relevant manifest location
}

// A TargetError describes a problem that was encountered that is related to a
// particular target in a manifest.
type TargetError struct {
	PosError
	target *Target
}

func (e *PosError) Error() string {
	if !e.Pos.IsValid() {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Err)
}

func (e *PosError) Unwrap() error {
	return e.Err
}

func (e *TargetError) Error() string {
	if !e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s", e.target, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.target, e.Err)
}

// NewContext creates a new Context object.  The created context initially has
// no targets and logs nothing.
func NewContext() *Context {
	return &Context{
		logger:  zap.NewNop(),
		targets: make(map[string]*Target),
	}
}

// SetLogger sets the logger used by the context and the aspects and rules that run in it.
func (c *Context) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
}

// Logger returns the logger of the context.
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// RegisterTarget adds a target to the context.  Target names must be unique.
func (c *Context) RegisterTarget(t *Target) error {
	if c.resolved {
		panic("RegisterTarget called after ResolveDependencies")
	}

	if t.Name == "" {
		return &PosError{
			Err: fmt.Errorf("target has no name"),
			Pos: t.Pos,
		}
	}

	if first, exists := c.targets[t.Name]; exists {
		return &TargetError{
			PosError: PosError{
				Err: fmt.Errorf("target name already defined at %s", first.Pos),
				Pos: t.Pos,
			},
			target: t,
		}
	}

	c.targets[t.Name] = t
	c.targetOrder = append(c.targetOrder, t)
	return nil
}

// Target returns the target registered with the given name.
func (c *Context) Target(name string) (*Target, bool) {
	t, ok := c.targets[name]
	return t, ok
}

// ResolveDependencies links every target to the targets named by its Deps property and checks
// that the dependency graph has no cycles.  All problems found are returned, combined into one
// error; the individual errors can be retrieved with multierr.Errors.
func (c *Context) ResolveDependencies() error {
	if c.resolved {
		return nil
	}

	var errs error
	for _, t := range c.targetOrder {
		t.deps = t.deps[:0]
		seen := make(map[*Target]bool)
		for _, name := range t.Properties.Deps {
			dep, ok := c.targets[name]
			if !ok {
				errs = multierr.Append(errs, &TargetError{
					PosError: PosError{
						Err: fmt.Errorf("depends on undefined target %q", name),
						Pos: t.Pos,
					},
					target: t,
				})
				continue
			}
			if dep == t {
				errs = multierr.Append(errs, &TargetError{
					PosError: PosError{
						Err: fmt.Errorf("depends on itself"),
						Pos: t.Pos,
					},
					target: t,
				})
				continue
			}
			if !seen[dep] {
				seen[dep] = true
				t.deps = append(t.deps, dep)
			}
		}
	}

	if errs != nil {
		return errs
	}

	if err := c.updateDependencies(); err != nil {
		return err
	}

	c.resolved = true
	return nil
}

// updateDependencies sorts the targets so that every target comes after its dependencies, and
// reports any dependency cycles.
func (c *Context) updateDependencies() (errs error) {
	visited := make(map[*Target]bool)  // targets that were already checked
	checking := make(map[*Target]bool) // targets actively being checked

	sorted := make([]*Target, 0, len(c.targetOrder))

	var check func(t *Target) []*Target

	cycleError := func(cycle []*Target) {
		// We are the "start" of the cycle, so we're responsible
		// for generating the errors.  The cycle list is in
		// reverse order because all the 'check' calls append
		// their own target to the list.
		errs = multierr.Append(errs, &PosError{
			Err: fmt.Errorf("encountered dependency cycle:"),
			Pos: cycle[len(cycle)-1].Pos,
		})

		// Iterate backwards through the cycle list.
		cur := cycle[0]
		for i := len(cycle) - 1; i >= 0; i-- {
			next := cycle[i]
			errs = multierr.Append(errs, &PosError{
				Err: fmt.Errorf("    %q depends on %q", cur.Name, next.Name),
				Pos: cur.Pos,
			})
			cur = next
		}
	}

	check = func(t *Target) []*Target {
		visited[t] = true
		checking[t] = true
		defer delete(checking, t)

		for _, dep := range t.deps {
			if checking[dep] {
				// This is a cycle.
				return []*Target{dep, t}
			}

			if !visited[dep] {
				cycle := check(dep)
				if cycle != nil {
					if cycle[0] == t {
						// We are the "start" of the cycle, so we're responsible
						// for generating the errors.
						cycleError(cycle)
					} else {
						// We're not the "start" of the cycle, so we just append
						// our target to the list and return it.
						return append(cycle, t)
					}
				}
			}
		}

		sorted = append(sorted, t)

		return nil
	}

	for _, t := range c.targetOrder {
		if !visited[t] {
			cycle := check(t)
			if cycle != nil {
				if cycle[len(cycle)-1] != t {
					panic(fmt.Errorf("inconsistent cycle detection starting at %s", t))
				}
				cycleError(cycle)
			}
		}
	}

	c.sorted = sorted

	return errs
}

// VisitAllTargets calls visit for every target, each target after all of its dependencies.
// Targets that do not depend on each other are visited in registration order.
func (c *Context) VisitAllTargets(visit func(*Target)) {
	c.checkResolved()
	for _, t := range c.sorted {
		visit(t)
	}
}

// VisitDirectDeps calls visit for each direct dependency of t, in the order they were listed.
func (c *Context) VisitDirectDeps(t *Target, visit func(*Target)) {
	c.checkResolved()
	for _, dep := range t.deps {
		visit(dep)
	}
}

// VisitDepsDepthFirst calls visit for each transitive dependency of t, each dependency after its
// own dependencies.  A dependency reachable through more than one path is visited once.
func (c *Context) VisitDepsDepthFirst(t *Target, visit func(*Target)) {
	c.checkResolved()
	visited := make(map[*Target]bool)

	var walk func(*Target)
	walk = func(target *Target) {
		for _, dep := range target.deps {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			walk(dep)
			visit(dep)
		}
	}

	walk(t)
}

// FreezeTargets marks analysis as finished; providers can no longer be set afterwards.
func (c *Context) FreezeTargets() {
	for _, t := range c.targetOrder {
		t.frozen = true
	}
}

func (c *Context) checkResolved() {
	if !c.resolved {
		panic("targets visited before ResolveDependencies")
	}
}
