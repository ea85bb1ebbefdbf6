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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mread/buck-sub000/berrors"
)

func newCleanCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "remove the buck-out/ scratch and output directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectRoot, err := filepath.Abs(flags.projectRoot)
			if err != nil {
				return err
			}
			outDir := filepath.Join(projectRoot, "buck-out")
			if err := os.RemoveAll(outDir); err != nil {
				return berrors.Wrap(berrors.FileSystem, err, "clean: removing %s", outDir)
			}
			return nil
		},
	}
}
