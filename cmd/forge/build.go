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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/target"
)

func newBuildCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build <target>...",
		Short: "build the given targets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(flags, args)
		},
	}
}

// runBuild resolves args against aliases and the action graph, then
// drives the scheduler to completion, shared by build and test.
func runBuild(flags *globalFlags, args []string) error {
	s, err := newSession(flags)
	if err != nil {
		return err
	}
	defer s.close()

	targets, err := resolveTargets(s, args)
	if err != nil {
		return err
	}
	if err := s.engine.Build(targets); err != nil {
		return err
	}
	for _, t := range targets {
		if st, ok := s.engine.StateFor(t); ok {
			fmt.Printf("%s %s\n", t, st)
		}
	}
	return nil
}

// resolveTargets looks each arg up in cfg's [alias] table first, using
// the aliased target when there is one and the arg itself otherwise, then
// parses it as a canonical target string, per spec.md §6.
func resolveTargets(s *session, args []string) ([]target.BuildTarget, error) {
	out := make([]target.BuildTarget, 0, len(args))
	for _, a := range args {
		name := a
		if resolved, ok := s.cfg.ResolveAlias(a); ok {
			name = resolved
		}
		t, err := target.Parse(name)
		if err != nil {
			return nil, berrors.Newf(berrors.UserInput, "%s: %s", a, err.Error())
		}
		if _, ok := s.graph.Lookup(t); !ok {
			return nil, berrors.Newf(berrors.UserInput, "%s: no such target", t)
		}
		out = append(out, t)
	}
	return out, nil
}
