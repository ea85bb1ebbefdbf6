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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mread/buck-sub000/android"
	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/target"
)

func newInstallCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "install <apk_target>",
		Short: "build an android_binary and install it on a connected device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(flags, args[0])
		},
	}
}

func runInstall(flags *globalFlags, arg string) error {
	s, err := newSession(flags)
	if err != nil {
		return err
	}
	defer s.close()

	targets, err := resolveTargets(s, []string{arg})
	if err != nil {
		return err
	}
	apkTarget := targets[0]
	rule, _ := s.graph.Lookup(apkTarget)
	if _, ok := rule.Buildable.(*android.Binary); !ok {
		return berrors.Newf(berrors.UserInput, "%s is not an android_binary", apkTarget)
	}
	if err := s.engine.Build(targets); err != nil {
		return err
	}
	apkPath := filepath.Join(s.cfg.ProjectRoot, apkOutputPath(apkTarget))
	_, err = graph.RunCommand("adb install", "adb", []string{"install", "-r", apkPath}, &graph.ExecutionContext{ProjectRoot: s.cfg.ProjectRoot})
	return err
}

// apkOutputPath mirrors android.Binary.Steps' own output-path
// construction ("buck-out/gen/<base_path>/<name>/<name>.aligned.apk"),
// since the aligned APK's path is not otherwise exposed by the engine.
func apkOutputPath(t target.BuildTarget) string {
	return fmt.Sprintf("buck-out/gen/%s/%s/%s.aligned.apk", t.BasePath(), t.ShortName(), t.ShortName())
}
