// Copyright 2024 The Forge Authors
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

package graph

import (
	"fmt"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/target"
)

// ActionGraph is an immutable DAG over BuildRule, with an index from
// target to rule (spec.md §3).
type ActionGraph struct {
	rules map[string]*BuildRule
	order []string // insertion order, for deterministic iteration
}

// NewActionGraph constructs an empty ActionGraph.
func NewActionGraph() *ActionGraph {
	return &ActionGraph{rules: make(map[string]*BuildRule)}
}

// Add inserts rule into the graph. Every dep must already exist in the
// graph (spec.md §3's acyclicity invariant, enforced incrementally here
// since enhancement runs bottom-up). Add rejects any target that is
// already registered, even with an equal rule; the Enhancer looks the
// target up first and skips re-registering an equal rule itself.
func (g *ActionGraph) Add(rule *BuildRule) error {
	key := rule.Target.String()
	if _, exists := g.rules[key]; exists {
		return fmt.Errorf("graph: rule %s already registered", key)
	}
	for _, dep := range rule.AllDeps() {
		if _, ok := g.rules[dep.String()]; !ok {
			return fmt.Errorf("graph: rule %s depends on %s, which is not yet in the action graph", key, dep)
		}
	}
	g.rules[key] = rule
	g.order = append(g.order, key)
	return nil
}

// Lookup returns the rule registered for t, if any.
func (g *ActionGraph) Lookup(t target.BuildTarget) (*BuildRule, bool) {
	r, ok := g.rules[t.String()]
	return r, ok
}

// Rules returns every rule in insertion (dependency-respecting) order.
func (g *ActionGraph) Rules() []*BuildRule {
	out := make([]*BuildRule, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.rules[k])
	}
	return out
}

// TopoSort returns rules of the graph rooted at targets in a dependency
// order (deps before dependents), detecting cycles. Since Add already
// enforces deps-exist-first, the graph is acyclic by construction; TopoSort
// exists for the general case (e.g. validating a graph assembled out of
// order) and to produce spec.md §7's Cycle error with the offending path.
func (g *ActionGraph) TopoSort(roots []target.BuildTarget) ([]*BuildRule, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.rules))
	var order []*BuildRule
	var path []string

	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case done:
			return nil
		case visiting:
			cycle := append(append([]string(nil), path...), key)
			return berrors.CycleError(cycle)
		}
		state[key] = visiting
		path = append(path, key)
		rule, ok := g.rules[key]
		if !ok {
			return fmt.Errorf("graph: unknown target %s", key)
		}
		for _, dep := range rule.AllDeps() {
			if err := visit(dep.String()); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[key] = done
		order = append(order, rule)
		return nil
	}

	for _, r := range roots {
		if err := visit(r.String()); err != nil {
			return nil, err
		}
	}
	return order, nil
}
