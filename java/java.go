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

// Package java implements the plain java_library rule kind (no Android
// packaging), grounded on java/dex.go's property-struct shape in the
// teacher with the dex-specific fields moved to the android package,
// which wraps this package's Library for its own android_library kind.
package java

import (
	"fmt"

	"github.com/mread/buck-sub000/coerce"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/rulekey"
	"github.com/mread/buck-sub000/target"
)

// ClasspathEntry names a jar one java rule contributes to a dependent's
// compile or runtime classpath.
type ClasspathEntry struct {
	Producer target.BuildTarget
	JarPath  string
}

// LibraryArg is the constructor-argument record for java_library.
type LibraryArg struct {
	Srcs          []string
	Resources     []string
	Deps          []string
	ProvidedDeps  []string // compile-time only, not on the runtime classpath
}

// Library implements graph.Buildable: it compiles Srcs into a single
// jar, exposing DeclaredClasspathEntries (its own output jar plus each
// immediate Deps entry) and TransitiveClasspathEntries (every entry
// reachable through Deps; ProvidedDeps are in neither) as memoized
// accessors, mirroring the teacher's classpath-entry-as-supplier
// convention.
type Library struct {
	Self         target.BuildTarget
	Srcs         []string
	Resources    []string
	DepRules     []*graph.BuildRule
	ProvidedDeps []*graph.BuildRule

	declaredClasspath   []ClasspathEntry
	transitiveClasspath []ClasspathEntry
	computed            bool
}

func (l *Library) outputJar() string {
	return fmt.Sprintf("buck-out/gen/%s/%s.jar", l.Self.BasePath(), l.Self.ShortName())
}

// DeclaredClasspathEntries returns this library's own jar plus its
// immediate Deps' own contributions, computed once and memoized (spec.md
// SPEC_FULL's "classpath entry tracking" addition: "transitive / declared
// / output classpath entries as memoized suppliers").
func (l *Library) DeclaredClasspathEntries() []ClasspathEntry {
	l.ensureClasspath()
	return l.declaredClasspath
}

// TransitiveClasspathEntries returns every classpath entry reachable
// through Deps (not ProvidedDeps), deduplicated, own entry last.
func (l *Library) TransitiveClasspathEntries() []ClasspathEntry {
	l.ensureClasspath()
	return l.transitiveClasspath
}

func (l *Library) ensureClasspath() {
	if l.computed {
		return
	}
	l.computed = true

	seen := make(map[string]bool)
	var trans []ClasspathEntry
	var walk func(rule *graph.BuildRule)
	walk = func(rule *graph.BuildRule) {
		lib, ok := rule.Buildable.(*Library)
		if !ok {
			return
		}
		for _, d := range lib.DepRules {
			walk(d)
		}
		jar := lib.outputJar()
		if !seen[jar] {
			seen[jar] = true
			trans = append(trans, ClasspathEntry{Producer: lib.Self, JarPath: jar})
		}
	}
	for _, d := range l.DepRules {
		walk(d)
	}
	l.transitiveClasspath = append(trans, ClasspathEntry{Producer: l.Self, JarPath: l.outputJar()})

	var declared []ClasspathEntry
	for _, d := range l.DepRules {
		if lib, ok := d.Buildable.(*Library); ok {
			declared = append(declared, ClasspathEntry{Producer: lib.Self, JarPath: lib.outputJar()})
		}
	}
	l.declaredClasspath = append(declared, ClasspathEntry{Producer: l.Self, JarPath: l.outputJar()})
}

func (l *Library) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetSortedSet("srcs", l.Srcs)
	b.SetSortedSet("resources", l.Resources)
	return nil
}

func (l *Library) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	out := l.outputJar()
	bctx.RecordArtifact(out)

	var classpath []string
	for _, e := range l.TransitiveClasspathEntries() {
		classpath = append(classpath, e.JarPath)
	}
	for _, e := range l.ProvidedDeps {
		if lib, ok := e.Buildable.(*Library); ok {
			classpath = append(classpath, lib.outputJar())
		}
	}
	return []graph.Step{&javacStep{srcs: l.Srcs, classpath: classpath, out: out}}, nil
}

type javacStep struct {
	srcs      []string
	classpath []string
	out       string
}

func (s *javacStep) ShortName() string   { return "javac" }
func (s *javacStep) Description() string { return fmt.Sprintf("javac -d %s", s.out) }
func (s *javacStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	args := []string{"-d", s.out}
	if len(s.classpath) > 0 {
		cp := s.classpath[0]
		for _, c := range s.classpath[1:] {
			cp += ":" + c
		}
		args = append(args, "-cp", cp)
	}
	args = append(args, s.srcs...)
	return graph.RunCommand("javac", "javac", args, ctx)
}

// RegisterLibrary wires java_library into reg.
func RegisterLibrary(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "java_library",
		NewArg:  func() interface{} { return &LibraryArg{} },
		CreateBuildRule: func(params interface{}, resolver coerce.Resolver, argIface interface{}) (interface{}, error) {
			p := params.(graph.CreateParams)
			arg := argIface.(*LibraryArg)
			var depRules, providedRules []*graph.BuildRule
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
			for _, d := range arg.ProvidedDeps {
				resolved, err := resolver.Resolve(d)
				if err != nil {
					return nil, err
				}
				rule := resolved.(*graph.BuildRule)
				providedRules = append(providedRules, rule)
				declared = append(declared, rule.Target)
			}
			return &graph.BuildRule{
				Target:       p.Target,
				RuleType:     "java_library",
				DeclaredDeps: declared,
				Buildable: &Library{
					Self:         p.Target,
					Srcs:         arg.Srcs,
					Resources:    arg.Resources,
					DepRules:     depRules,
					ProvidedDeps: providedRules,
				},
			}, nil
		},
	})
}

// RegisterAll wires every java_* rule kind into reg.
func RegisterAll(reg *coerce.Registry) {
	RegisterLibrary(reg)
}
