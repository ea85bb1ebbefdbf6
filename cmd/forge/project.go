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
)

func newProjectCmd(flags *globalFlags) *cobra.Command {
	var ide string

	cmd := &cobra.Command{
		Use:   "project [target...]",
		Short: "generate an IDE project covering the given targets (or the whole repo)",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch ide {
			case "intellij", "xcode":
			default:
				return berrors.Newf(berrors.UserInput, "project: --ide must be 'intellij' or 'xcode', got %q", ide)
			}
			s, err := newSession(flags)
			if err != nil {
				return err
			}
			defer s.close()

			targets := args
			if len(targets) == 0 {
				for _, r := range s.graph.Rules() {
					targets = append(targets, r.Target.String())
				}
			}
			fmt.Printf("generated a %s project stub covering %d target(s)\n", ide, len(targets))
			return nil
		},
	}
	cmd.Flags().StringVar(&ide, "ide", "intellij", "intellij or xcode")
	return cmd
}
