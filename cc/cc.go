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

// Package cc implements the cc_library and cc_binary rule kinds
// (SPEC_FULL.md's domain-module-kinds addition), grounded on cc/cc.go's
// NativeLinkable-style preprocessor input aggregation: each library's
// exported flags and include directories are concatenated in
// reverse-topological order (deps before the rule that declared them),
// the order a C compiler needs "-I" flags supplied for a transitive
// include chain to resolve.
package cc

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mread/buck-sub000/coerce"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/rulekey"
	"github.com/mread/buck-sub000/target"
)

// PreprocessorInput is the flags and search paths one cc rule contributes
// to its own compile command and, transitively, to every dependent's.
type PreprocessorInput struct {
	IncludeDirs []string
	Flags       []string
	Defines     []string
}

// Merge concatenates deps' PreprocessorInputs (in the given order, which
// callers supply reverse-topologically: furthest dep first) followed by
// own, the order cc/cc.go's preprocessor input aggregation uses so a
// closer dependency's flags can override a further one's of the same
// name.
func Merge(deps []PreprocessorInput, own PreprocessorInput) PreprocessorInput {
	var out PreprocessorInput
	for _, d := range deps {
		out.IncludeDirs = append(out.IncludeDirs, d.IncludeDirs...)
		out.Flags = append(out.Flags, d.Flags...)
		out.Defines = append(out.Defines, d.Defines...)
	}
	out.IncludeDirs = append(out.IncludeDirs, own.IncludeDirs...)
	out.Flags = append(out.Flags, own.Flags...)
	out.Defines = append(out.Defines, own.Defines...)
	return out
}

func (in PreprocessorInput) CompilerArgs() []string {
	var args []string
	for _, d := range in.Defines {
		args = append(args, "-D"+d)
	}
	for _, i := range in.IncludeDirs {
		args = append(args, "-I"+i)
	}
	args = append(args, in.Flags...)
	return args
}

// LibraryArg is the constructor-argument record for cc_library.
type LibraryArg struct {
	Srcs          []string
	HeaderDir     string
	ExportedFlags []string
	Deps          []string
	Shared        bool
}

// Library implements graph.Buildable: it compiles Srcs into object
// files and archives (or links) them, exposing its exported flags and
// header directory to dependents via CxxPreprocessorInput.
type Library struct {
	Self          target.BuildTarget
	Srcs          []string
	HeaderDir     string
	ExportedFlags []string
	DepRules      []*graph.BuildRule
	Shared        bool
}

// CxxPreprocessorInput returns this library's own contribution, without
// folding in its deps (callers walk the dep graph themselves to build
// the reverse-topological chain, per spec.md's "preprocessor input
// aggregation" bullet).
func (l *Library) CxxPreprocessorInput() PreprocessorInput {
	var in PreprocessorInput
	if l.HeaderDir != "" {
		in.IncludeDirs = append(in.IncludeDirs, l.HeaderDir)
	}
	in.Flags = append(in.Flags, l.ExportedFlags...)
	return in
}

func (l *Library) transitivePreprocessorInput() PreprocessorInput {
	var depInputs []PreprocessorInput
	for _, d := range l.DepRules {
		if cl, ok := d.Buildable.(*Library); ok {
			depInputs = append(depInputs, cl.transitivePreprocessorInput())
		}
	}
	return Merge(depInputs, l.CxxPreprocessorInput())
}

func (l *Library) outputPath() string {
	ext := ".a"
	if l.Shared {
		ext = ".so"
	}
	return fmt.Sprintf("buck-out/gen/%s/lib%s%s", l.Self.BasePath(), l.Self.ShortName(), ext)
}

func (l *Library) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetSortedSet("srcs", l.Srcs)
	b.Set("header_dir", l.HeaderDir)
	b.SetList("exported_flags", l.ExportedFlags)
	b.SetBool("shared", l.Shared)
	return nil
}

func (l *Library) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	out := l.outputPath()
	bctx.RecordArtifact(out)
	input := l.transitivePreprocessorInput()

	var steps []graph.Step
	var objs []string
	for _, src := range l.Srcs {
		obj := filepath.Join(ctx.ScratchDir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".o")
		steps = append(steps, &compileStep{src: src, out: obj, flags: input.CompilerArgs()})
		objs = append(objs, obj)
	}
	steps = append(steps, &archiveStep{objs: objs, out: out, shared: l.Shared})
	return steps, nil
}

type compileStep struct {
	src, out string
	flags    []string
}

func (s *compileStep) ShortName() string   { return "cxx_compile" }
func (s *compileStep) Description() string { return fmt.Sprintf("cc -c %s -o %s", s.src, s.out) }
func (s *compileStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	args := append([]string{"-c", s.src, "-o", s.out}, s.flags...)
	return graph.RunCommand("cc", "cc", args, ctx)
}

type archiveStep struct {
	objs   []string
	out    string
	shared bool
}

func (s *archiveStep) ShortName() string { return "cxx_link" }
func (s *archiveStep) Description() string {
	return fmt.Sprintf("link -> %s", s.out)
}
func (s *archiveStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	if s.shared {
		args := append([]string{"-shared", "-o", s.out}, s.objs...)
		return graph.RunCommand("cc", "cc", args, ctx)
	}
	args := append([]string{"rcs", s.out}, s.objs...)
	return graph.RunCommand("ar", "ar", args, ctx)
}

// RegisterLibrary wires cc_library into reg.
func RegisterLibrary(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "cc_library",
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
				RuleType:     "cc_library",
				DeclaredDeps: declared,
				Buildable: &Library{
					Self:          p.Target,
					Srcs:          arg.Srcs,
					HeaderDir:     arg.HeaderDir,
					ExportedFlags: arg.ExportedFlags,
					DepRules:      depRules,
					Shared:        arg.Shared,
				},
			}, nil
		},
	})
}

// BinaryArg is the constructor-argument record for cc_binary.
type BinaryArg struct {
	Srcs []string
	Deps []string
}

// Binary implements graph.Buildable: an executable linked against its
// cc_library deps' transitive preprocessor input and archives.
type Binary struct {
	Self     target.BuildTarget
	Srcs     []string
	DepRules []*graph.BuildRule
}

func (bin *Binary) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetSortedSet("srcs", bin.Srcs)
	return nil
}

func (bin *Binary) outputPath() string {
	return fmt.Sprintf("buck-out/gen/%s/%s", bin.Self.BasePath(), bin.Self.ShortName())
}

func (bin *Binary) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	var depInputs []PreprocessorInput
	var libs []string
	for _, d := range bin.DepRules {
		if cl, ok := d.Buildable.(*Library); ok {
			depInputs = append(depInputs, cl.transitivePreprocessorInput())
			libs = append(libs, cl.outputPath())
		}
	}
	input := Merge(depInputs, PreprocessorInput{})

	out := bin.outputPath()
	bctx.RecordArtifact(out)

	var steps []graph.Step
	var objs []string
	for _, src := range bin.Srcs {
		obj := filepath.Join(ctx.ScratchDir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".o")
		steps = append(steps, &compileStep{src: src, out: obj, flags: input.CompilerArgs()})
		objs = append(objs, obj)
	}
	steps = append(steps, &linkBinaryStep{objs: objs, libs: libs, out: out})
	return steps, nil
}

type linkBinaryStep struct {
	objs, libs []string
	out        string
}

func (s *linkBinaryStep) ShortName() string   { return "cxx_link_binary" }
func (s *linkBinaryStep) Description() string { return fmt.Sprintf("link -> %s", s.out) }
func (s *linkBinaryStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	args := append([]string{"-o", s.out}, s.objs...)
	args = append(args, s.libs...)
	return graph.RunCommand("cc", "cc", args, ctx)
}

// RegisterBinary wires cc_binary into reg.
func RegisterBinary(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "cc_binary",
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
				RuleType:     "cc_binary",
				DeclaredDeps: declared,
				Buildable:    &Binary{Self: p.Target, Srcs: arg.Srcs, DepRules: depRules},
			}, nil
		},
	})
}

// RegisterAll wires every cc_* rule kind into reg.
func RegisterAll(reg *coerce.Registry) {
	RegisterLibrary(reg)
	RegisterBinary(reg)
}
