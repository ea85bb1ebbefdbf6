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

package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/target"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:                "run <target> [arg...]",
		Short:              "build a single binary target and execute it",
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(flags, args[0], args[1:])
		},
	}
}

func runRun(flags *globalFlags, targetArg string, passthrough []string) error {
	s, err := newSession(flags)
	if err != nil {
		return err
	}
	defer s.close()

	targets, err := resolveTargets(s, []string{targetArg})
	if err != nil {
		return err
	}
	t := targets[0]
	if err := s.engine.Build(targets); err != nil {
		return err
	}

	binPath, ok := binaryOutput(s, t)
	if !ok {
		return berrors.Newf(berrors.UserInput, "%s does not produce a runnable output", t)
	}
	_, err = graph.RunCommand("run "+t.String(), filepath.Join(s.cfg.ProjectRoot, binPath), passthrough, &graph.ExecutionContext{ProjectRoot: s.cfg.ProjectRoot})
	return err
}

// binaryOutput re-plans t's Buildable to read the output path it would
// record, without re-executing its steps (the engine already brought it
// to DONE above).
func binaryOutput(s *session, t target.BuildTarget) (string, bool) {
	rule, ok := s.graph.Lookup(t)
	if !ok {
		return "", false
	}
	bctx := &graph.BuildableContext{}
	ctx := &graph.ExecutionContext{ProjectRoot: s.cfg.ProjectRoot}
	if _, err := rule.Buildable.Steps(ctx, bctx); err != nil || len(bctx.OutputPaths) == 0 {
		return "", false
	}
	return bctx.OutputPaths[len(bctx.OutputPaths)-1], true
}
