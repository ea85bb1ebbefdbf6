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

// Package python implements the python_library and python_binary rule
// kinds (SPEC_FULL.md's domain-module-kinds addition), grounded on
// python/python.go's simple source-merge module shape in the teacher:
// there is no compile phase, just a first-wins merge of each library's
// module map into a single pex-style component list.
package python

import (
	"fmt"
	"sort"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/coerce"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/rulekey"
	"github.com/mread/buck-sub000/target"
)

// Component is one module this library (or one of its deps) contributes
// to a binary's merged pex, keyed by the in-archive module path.
type Component struct {
	ModulePath string // e.g. "pkg/mod.py"
	SourcePath string // on-disk source
	Owner      target.BuildTarget
}

// LibraryArg is the constructor-argument record for python_library.
type LibraryArg struct {
	Srcs    []string
	BaseModule string
	Deps    []string
}

// Library implements graph.Buildable: a set of .py sources namespaced
// under BaseModule, with no compile step of its own.
type Library struct {
	Self       target.BuildTarget
	Srcs       []string
	BaseModule string
	DepRules   []*graph.BuildRule
}

// Components returns this library's own module map (not including deps).
func (l *Library) Components() []Component {
	out := make([]Component, 0, len(l.Srcs))
	for _, src := range l.Srcs {
		modPath := src
		if l.BaseModule != "" {
			modPath = l.BaseModule + "/" + src
		}
		out = append(out, Component{ModulePath: modPath, SourcePath: src, Owner: l.Self})
	}
	return out
}

func (l *Library) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetSortedSet("srcs", l.Srcs)
	b.Set("base_module", l.BaseModule)
	return nil
}

func (l *Library) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	return nil, nil
}

// RegisterLibrary wires python_library into reg.
func RegisterLibrary(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "python_library",
		NewArg:  func() interface{} { return &LibraryArg{} },
		CreateBuildRule: func(params interface{}, resolver coerce.Resolver, argIface interface{}) (interface{}, error) {
			p := params.(graph.CreateParams)
			arg := argIface.(*LibraryArg)
			var depRules []*graph.BuildRule
			var declared []target.BuildTarget
			for _, d := range arg.Deps {
				resolved, err := resolver.Resolve(d)
				if err != nil {
					return nil, err
				}
				rule := resolved.(*graph.BuildRule)
				depRules = append(depRules, rule)
				declared = append(declared, rule.Target)
			}
			return &graph.BuildRule{
				Target:       p.Target,
				RuleType:     "python_library",
				DeclaredDeps: declared,
				Buildable: &Library{
					Self:       p.Target,
					Srcs:       arg.Srcs,
					BaseModule: arg.BaseModule,
					DepRules:   depRules,
				},
			}, nil
		},
	})
}

// BinaryArg is the constructor-argument record for python_binary.
type BinaryArg struct {
	MainModule string
	Deps       []string
}

// Binary implements graph.Buildable: it merges every transitively
// reachable python_library's Components into one pex, first-wins on a
// module-path collision (the library that the merge visits first, in
// declared order, wins), and fails on a conflicting collision where two
// different libraries both claim the same module path with different
// source content ownership, per spec.md's "first-wins dedup and conflict
// detection" addition.
type Binary struct {
	Self       target.BuildTarget
	MainModule string
	DepRules   []*graph.BuildRule
}

func (bin *Binary) AppendToRuleKey(b *rulekey.Builder) error {
	b.Set("main_module", bin.MainModule)
	return nil
}

// mergeComponents walks bin's dep closure in declared order, merging
// each library's Components first-wins by module path.
func (bin *Binary) mergeComponents() ([]Component, error) {
	seen := make(map[string]Component)
	var order []string
	visited := make(map[string]bool)

	var walk func(rule *graph.BuildRule) error
	walk = func(rule *graph.BuildRule) error {
		key := rule.Target.String()
		if visited[key] {
			return nil
		}
		visited[key] = true
		lib, ok := rule.Buildable.(*Library)
		if !ok {
			return nil
		}
		// Walk nested python_library deps first so the merge's first-wins
		// rule favors the component closest to the leaves, matching the
		// order python/python.go's module-map merge visits dependencies in.
		for _, dep := range lib.DepRules {
			if err := walk(dep); err != nil {
				return err
			}
		}
		for _, c := range lib.Components() {
			if existing, ok := seen[c.ModulePath]; ok {
				if !existing.Owner.Equal(c.Owner) {
					return berrors.Newf(berrors.UserInput,
						"python module path %q claimed by both %s and %s", c.ModulePath, existing.Owner, c.Owner)
				}
				continue
			}
			seen[c.ModulePath] = c
			order = append(order, c.ModulePath)
		}
		return nil
	}

	for _, d := range bin.DepRules {
		if err := walk(d); err != nil {
			return nil, err
		}
	}
	sort.Strings(order)
	out := make([]Component, len(order))
	for i, m := range order {
		out[i] = seen[m]
	}
	return out, nil
}

func (bin *Binary) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	components, err := bin.mergeComponents()
	if err != nil {
		return nil, err
	}
	out := fmt.Sprintf("buck-out/gen/%s/%s.pex", bin.Self.BasePath(), bin.Self.ShortName())
	bctx.RecordArtifact(out)
	return []graph.Step{&buildPexStep{components: components, mainModule: bin.MainModule, out: out}}, nil
}

type buildPexStep struct {
	components []Component
	mainModule string
	out        string
}

func (s *buildPexStep) ShortName() string   { return "build_pex" }
func (s *buildPexStep) Description() string { return fmt.Sprintf("build pex -> %s", s.out) }
func (s *buildPexStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	return 0, nil
}

// RegisterBinary wires python_binary into reg.
func RegisterBinary(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "python_binary",
		NewArg:  func() interface{} { return &BinaryArg{} },
		CreateBuildRule: func(params interface{}, resolver coerce.Resolver, argIface interface{}) (interface{}, error) {
			p := params.(graph.CreateParams)
			arg := argIface.(*BinaryArg)
			var depRules []*graph.BuildRule
			var declared []target.BuildTarget
			for _, d := range arg.Deps {
				resolved, err := resolver.Resolve(d)
				if err != nil {
					return nil, err
				}
				rule := resolved.(*graph.BuildRule)
				depRules = append(depRules, rule)
				declared = append(declared, rule.Target)
			}
			return &graph.BuildRule{
				Target:       p.Target,
				RuleType:     "python_binary",
				DeclaredDeps: declared,
				Buildable:    &Binary{Self: p.Target, MainModule: arg.MainModule, DepRules: depRules},
			}, nil
		},
	})
}

// RegisterAll wires every python_* rule kind into reg.
func RegisterAll(reg *coerce.Registry) {
	RegisterLibrary(reg)
	RegisterBinary(reg)
}
