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

// Package genrule implements the genrule rule kind: an arbitrary
// external-command rule that wraps a single opaque shell command as one
// Step, grounded on genrule/genrule.go's opaque-external-command
// wrapping pattern in the teacher.
package genrule

import (
	"fmt"
	"os"
	"strings"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/coerce"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/rulekey"
	"github.com/mread/buck-sub000/target"
)

// Arg is the constructor-argument record for genrule.
type Arg struct {
	Cmd     string
	Out     string
	Srcs    []string
	Deps    []string
}

// Rule implements graph.Buildable: it runs Cmd in a shell with
// $SRCS/$OUT/$DEPS substituted, producing exactly one output file named
// Out, the shape spec.md's "arbitrary external-command rule" addition
// describes.
type Rule struct {
	Self     target.BuildTarget
	Cmd      string
	Out      string
	Srcs     []string
	DepPaths []string
}

func (r *Rule) AppendToRuleKey(b *rulekey.Builder) error {
	b.Set("cmd", r.Cmd)
	b.Set("out", r.Out)
	b.SetSortedSet("srcs", r.Srcs)
	return nil
}

func (r *Rule) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	outPath := ctx.OutputDir + "/" + r.Out
	bctx.RecordArtifact(outPath)
	return []graph.Step{&shellStep{
		cmd:   r.Cmd,
		env:   r.environment(outPath),
	}}, nil
}

func (r *Rule) environment(outPath string) []string {
	return []string{
		"SRCS=" + strings.Join(r.Srcs, " "),
		"OUT=" + outPath,
		"DEPS=" + strings.Join(r.DepPaths, " "),
	}
}

type shellStep struct {
	cmd string
	env []string
}

func (s *shellStep) ShortName() string   { return "genrule_cmd" }
func (s *shellStep) Description() string { return s.cmd }
func (s *shellStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	return runShell(s.cmd, s.env, ctx)
}

func runShell(cmd string, env []string, ctx *graph.ExecutionContext) (int, error) {
	if cmd == "" {
		return 0, berrors.Newf(berrors.UserInput, "genrule: empty cmd")
	}
	fullEnv := append(os.Environ(), env...)
	return graph.RunCommandWithEnv("sh -c", "sh", []string{"-c", cmd}, fullEnv, ctx)
}

// RegisterRule wires genrule into reg.
func RegisterRule(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "genrule",
		NewArg:  func() interface{} { return &Arg{} },
		CreateBuildRule: func(params interface{}, resolver coerce.Resolver, argIface interface{}) (interface{}, error) {
			p := params.(graph.CreateParams)
			arg := argIface.(*Arg)
			if arg.Out == "" {
				return nil, berrors.Newf(berrors.UserInput, "genrule %s: 'out' must not be empty", p.Target)
			}
			var declared []target.BuildTarget
			var depPaths []string
			for _, d := range arg.Deps {
				resolved, err := resolver.Resolve(d)
				if err != nil {
					return nil, err
				}
				rule := resolved.(*graph.BuildRule)
				declared = append(declared, rule.Target)
				depPaths = append(depPaths, fmt.Sprintf("buck-out/gen/%s/%s", rule.Target.BasePath(), rule.Target.ShortName()))
			}
			return &graph.BuildRule{
				Target:       p.Target,
				RuleType:     "genrule",
				DeclaredDeps: declared,
				Buildable: &Rule{
					Self:     p.Target,
					Cmd:      arg.Cmd,
					Out:      arg.Out,
					Srcs:     arg.Srcs,
					DepPaths: depPaths,
				},
			}, nil
		},
	})
}
