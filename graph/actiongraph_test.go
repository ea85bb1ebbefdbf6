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
	"testing"

	"github.com/mread/buck-sub000/rulekey"
	"github.com/mread/buck-sub000/target"
)

type noopBuildable struct{}

func (noopBuildable) AppendToRuleKey(b *rulekey.Builder) error { return nil }
func (noopBuildable) Steps(ctx *ExecutionContext, bctx *BuildableContext) ([]Step, error) {
	return nil, nil
}

func mustTarget(t *testing.T, s string) target.BuildTarget {
	t.Helper()
	tgt, err := target.Parse(s)
	if err != nil {
		t.Fatalf("target.Parse(%q): %v", s, err)
	}
	return tgt
}

func TestActionGraphAddRequiresDepsFirst(t *testing.T) {
	g := NewActionGraph()
	dependent := &BuildRule{
		Target:       mustTarget(t, "//app:main"),
		DeclaredDeps: []target.BuildTarget{mustTarget(t, "//lib:util")},
		Buildable:    noopBuildable{},
	}
	if err := g.Add(dependent); err == nil {
		t.Errorf("Add must reject a rule whose dep is not yet registered")
	}
}

func TestActionGraphAddAndLookup(t *testing.T) {
	g := NewActionGraph()
	lib := &BuildRule{Target: mustTarget(t, "//lib:util"), Buildable: noopBuildable{}}
	if err := g.Add(lib); err != nil {
		t.Fatalf("Add(lib): %v", err)
	}
	app := &BuildRule{
		Target:       mustTarget(t, "//app:main"),
		DeclaredDeps: []target.BuildTarget{mustTarget(t, "//lib:util")},
		Buildable:    noopBuildable{},
	}
	if err := g.Add(app); err != nil {
		t.Fatalf("Add(app): %v", err)
	}
	got, ok := g.Lookup(mustTarget(t, "//app:main"))
	if !ok || got != app {
		t.Errorf("Lookup(//app:main) = %v, %v, want app rule", got, ok)
	}
	if _, ok := g.Lookup(mustTarget(t, "//no:such")); ok {
		t.Errorf("Lookup of an unregistered target must report not-found")
	}
}

func TestActionGraphAddDuplicateErrors(t *testing.T) {
	g := NewActionGraph()
	lib := &BuildRule{Target: mustTarget(t, "//lib:util"), Buildable: noopBuildable{}}
	if err := g.Add(lib); err != nil {
		t.Fatal(err)
	}
	if err := g.Add(lib); err == nil {
		t.Errorf("Add must reject a target already registered")
	}
}

func TestTopoSortOrdersDepsBeforeDependents(t *testing.T) {
	g := NewActionGraph()
	leaf := &BuildRule{Target: mustTarget(t, "//a:leaf"), Buildable: noopBuildable{}}
	mid := &BuildRule{Target: mustTarget(t, "//a:mid"), DeclaredDeps: []target.BuildTarget{leaf.Target}, Buildable: noopBuildable{}}
	root := &BuildRule{Target: mustTarget(t, "//a:root"), DeclaredDeps: []target.BuildTarget{mid.Target}, Buildable: noopBuildable{}}
	for _, r := range []*BuildRule{leaf, mid, root} {
		if err := g.Add(r); err != nil {
			t.Fatal(err)
		}
	}
	order, err := g.TopoSort([]target.BuildTarget{root.Target})
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	if len(order) != 3 || order[0] != leaf || order[1] != mid || order[2] != root {
		t.Errorf("TopoSort order = %v, want [leaf, mid, root]", order)
	}
}

func TestAllDepsIncludesExtraDeps(t *testing.T) {
	declared := mustTarget(t, "//a:declared")
	extra := mustTarget(t, "//a:extra")
	r := &BuildRule{DeclaredDeps: []target.BuildTarget{declared}, ExtraDeps: []target.BuildTarget{extra}}
	all := r.AllDeps()
	if len(all) != 2 || !all[0].Equal(declared) || !all[1].Equal(extra) {
		t.Errorf("AllDeps() = %v, want [declared, extra]", all)
	}
}
