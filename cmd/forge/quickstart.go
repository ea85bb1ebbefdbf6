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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mread/buck-sub000/berrors"
)

const quickstartBuildConfig = `[cxx]
default_platform = "default"

[tools]
javac = "javac"

[test]
use_results_cache = true

[cache]
dir = "buck-out/cache"
`

const quickstartBuildFile = `java_library(
    name = "hello-lib",
    srcs = glob(["*.java"]),
    visibility = ["PUBLIC"],
)
`

func newQuickstartCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "scaffold a minimal .buckconfig and BUILD file in the project root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(flags.projectRoot)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(root, 0755); err != nil {
				return berrors.Wrap(berrors.FileSystem, err, "quickstart: creating %s", root)
			}
			if err := writeIfAbsent(filepath.Join(root, ".buckconfig"), quickstartBuildConfig); err != nil {
				return err
			}
			if err := writeIfAbsent(filepath.Join(root, "BUILD"), quickstartBuildFile); err != nil {
				return err
			}
			fmt.Println("wrote .buckconfig and BUILD in", root)
			return nil
		},
	}
}

func writeIfAbsent(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return berrors.Newf(berrors.UserInput, "quickstart: %s already exists", path)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return berrors.Wrap(berrors.FileSystem, err, "quickstart: writing %s", path)
	}
	return nil
}
