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

	"github.com/mread/buck-sub000/graph"
)

func newUninstallCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <apk_target>",
		Short: "uninstall an android_binary's package from a connected device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUninstall(flags, args[0])
		},
	}
}

func runUninstall(flags *globalFlags, arg string) error {
	s, err := newSession(flags)
	if err != nil {
		return err
	}
	defer s.close()

	targets, err := resolveTargets(s, []string{arg})
	if err != nil {
		return err
	}
	// An android_binary carries no declared manifest package override in
	// this module's attribute set; its short name stands in, the same
	// name aapt packaging derives the APK's own file name from.
	pkg := targets[0].ShortName()
	_, err = graph.RunCommand("adb uninstall", "adb", []string{"uninstall", pkg}, &graph.ExecutionContext{ProjectRoot: s.cfg.ProjectRoot})
	return err
}
