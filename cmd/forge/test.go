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
	"github.com/spf13/cobra"
)

func newTestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test <target>...",
		Short: "build the given targets and run any tests they declare",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No dedicated *_test rule kind is registered in this module,
			// so "test" is build's equivalent: drive
			// the named targets to DONE and report their terminal state,
			// the same way "build" does.
			return runBuild(flags, args)
		},
	}
}
