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
	"reflect"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/coerce"
	"github.com/mread/buck-sub000/target"
)

// CreateParams is passed as the "params" argument to every
// coerce.Description.CreateBuildRule call, following the teacher's
// BuildRuleParams convention (android/mutator.go's ModuleContext
// threading of shared build-wide state into factories).
type CreateParams struct {
	Target      target.BuildTarget
	ProjectRoot string
}

// Enhancer performs the C2 target-graph -> action-graph transform
// (spec.md §4.2), including graph enhancement: factories may register
// additional helper rules through it mid-traversal.
type Enhancer struct {
	registry    *coerce.Registry
	projectRoot string
	graph       *ActionGraph
	// nodeVisibility tracks each TargetNode's visibility patterns for
	// enforcement when a dep is declared (spec.md §3, §8 property 8).
	nodeVisibility map[string][]target.VisibilityPattern
}

// NewEnhancer constructs an Enhancer backed by registry.
func NewEnhancer(registry *coerce.Registry, projectRoot string) *Enhancer {
	return &Enhancer{
		registry:       registry,
		projectRoot:    projectRoot,
		graph:          NewActionGraph(),
		nodeVisibility: make(map[string][]target.VisibilityPattern),
	}
}

// Resolve implements coerce.Resolver: it resolves a reference attribute
// (a target string) to the already-built *BuildRule, failing for dangling
// references (spec.md §4.1).
func (e *Enhancer) Resolve(targetString string) (interface{}, error) {
	t, err := target.Parse(targetString)
	if err != nil {
		return nil, err
	}
	rule, ok := e.graph.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("dangling reference to %s", t)
	}
	return rule, nil
}

// RuleFor returns the already-constructed rule for t, used by factories
// that need a dep's rule during construction (e.g. to read its classpath
// entries).
func (e *Enhancer) RuleFor(t target.BuildTarget) (*BuildRule, bool) {
	return e.graph.Lookup(t)
}

// AddHelperRule registers a rule created by graph enhancement rather than
// directly from a TargetNode. helper.Target must share origin's base path
// and short name, with exactly one more flavor appended than origin has
// (spec.md §4.2's first enhancement rule).
func (e *Enhancer) AddHelperRule(origin target.BuildTarget, helper *BuildRule) error {
	if helper.Target.BasePath() != origin.BasePath() || helper.Target.ShortName() != origin.ShortName() {
		return fmt.Errorf("graph: helper rule %s must share base path and short name with %s", helper.Target, origin)
	}
	if len(helper.Target.Flavors()) != len(origin.Flavors())+1 {
		return fmt.Errorf("graph: helper rule %s must add exactly one flavor to %s", helper.Target, origin)
	}
	if existing, ok := e.graph.Lookup(helper.Target); ok {
		if !ruleEqual(existing, helper) {
			return fmt.Errorf("graph: re-registration of %s with a different rule is a fatal invariant violation", helper.Target)
		}
		return nil
	}
	return e.graph.Add(helper)
}

// ruleEqual is a shallow equality check used to allow idempotent
// re-registration of the same helper rule (spec.md §4.2: "unless the
// newly-constructed rule compares equal").
func ruleEqual(a, b *BuildRule) bool {
	if a.RuleType != b.RuleType {
		return false
	}
	if !targetSliceEqual(a.DeclaredDeps, b.DeclaredDeps) {
		return false
	}
	if !targetSliceEqual(a.ExtraDeps, b.ExtraDeps) {
		return false
	}
	return reflect.DeepEqual(a.Buildable, b.Buildable)
}

func targetSliceEqual(a, b []target.BuildTarget) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Transform walks nodes bottom-up (leaves first) and builds the action
// graph, calling each node's registered description factory. It returns
// the completed ActionGraph once every node has been processed.
func (e *Enhancer) Transform(nodes []TargetNode) (*ActionGraph, error) {
	byTarget := make(map[string]TargetNode, len(nodes))
	for _, n := range nodes {
		byTarget[n.Target.String()] = n
		e.nodeVisibility[n.Target.String()] = n.Visibility
	}

	order, err := topoSortNodes(nodes, byTarget)
	if err != nil {
		return nil, err
	}

	for _, node := range order {
		if err := e.processNode(node, byTarget); err != nil {
			return nil, err
		}
	}
	return e.graph, nil
}

func (e *Enhancer) processNode(node TargetNode, byTarget map[string]TargetNode) error {
	// Enforce visibility before constructing the rule (spec.md §3, §8
	// property 8): every declared dep must be visible to node.Target.
	for _, dep := range node.DeclaredDeps {
		depVis, ok := e.nodeVisibility[dep.String()]
		if !ok {
			return fmt.Errorf("graph: %s depends on %s, which was not found", node.Target, dep)
		}
		if !target.Visible(depVis, node.Target) {
			return berrors.NotVisible(node.Target, dep)
		}
	}

	desc, ok := e.registry.Lookup(node.RuleType)
	if !ok {
		return fmt.Errorf("graph: no rule description registered for type %q (target %s)", node.RuleType, node.Target)
	}

	params := CreateParams{Target: node.Target, ProjectRoot: e.projectRoot}
	built, err := desc.CreateBuildRule(params, e, node.Attributes)
	if err != nil {
		return fmt.Errorf("graph: building %s: %w", node.Target, err)
	}
	rule, ok := built.(*BuildRule)
	if !ok {
		return fmt.Errorf("graph: description for %q returned %T, want *BuildRule", node.RuleType, built)
	}
	rule.DeclaredDeps = append([]target.BuildTarget(nil), node.DeclaredDeps...)
	rule.Visibility = node.Visibility
	rule.ProjectFilesystemRef = e.projectRoot

	// Re-walk the rule's dep closure and add edges for any dep that is
	// itself flavored, so flavored helper subgraphs are captured (spec.md
	// §4.2's second enhancement rule).
	extra := e.flavoredClosure(rule.DeclaredDeps)
	rule.ExtraDeps = append(rule.ExtraDeps, extra...)

	if existing, ok := e.graph.Lookup(rule.Target); ok {
		if !ruleEqual(existing, rule) {
			return fmt.Errorf("graph: re-registration of %s with a different rule is a fatal invariant violation", rule.Target)
		}
		return nil
	}
	return e.graph.Add(rule)
}

// flavoredClosure walks the already-built dep closure of roots and
// collects every flavored target reachable, so helper subgraphs
// introduced by one dep's enhancement are visible to this rule's caching
// even when they are not directly declared.
func (e *Enhancer) flavoredClosure(roots []target.BuildTarget) []target.BuildTarget {
	seen := make(map[string]bool)
	var out []target.BuildTarget
	var walk func(t target.BuildTarget)
	walk = func(t target.BuildTarget) {
		key := t.String()
		if seen[key] {
			return
		}
		seen[key] = true
		rule, ok := e.graph.Lookup(t)
		if !ok {
			return
		}
		for _, d := range rule.AllDeps() {
			if len(d.Flavors()) > 0 {
				out = append(out, d)
			}
			walk(d)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}

// topoSortNodes orders TargetNodes leaves-first by DeclaredDeps,
// detecting cycles in the target graph (spec.md §7's Cycle kind).
func topoSortNodes(nodes []TargetNode, byTarget map[string]TargetNode) ([]TargetNode, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	var order []TargetNode
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
		node, ok := byTarget[key]
		if !ok {
			return fmt.Errorf("graph: %s has a dep with no target node", key)
		}
		state[key] = visiting
		path = append(path, key)
		for _, dep := range node.DeclaredDeps {
			if err := visit(dep.String()); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[key] = done
		order = append(order, node)
		return nil
	}

	for _, n := range nodes {
		if err := visit(n.Target.String()); err != nil {
			return nil, err
		}
	}
	return order, nil
}
