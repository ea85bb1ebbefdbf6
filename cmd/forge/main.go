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

// Command forge is the top-level build driver (spec.md §6), generalized
// from ui/build/soong.go's top-level driver shape in the teacher: a
// small set of subcommands threading a shared Context (here, the parsed
// target graph plus a *config.Config) into the engine.
package main

import (
	"fmt"
	"os"

	"github.com/mread/buck-sub000/berrors"
)

func main() {
	root := newRootCmd()
	root.SetArgs(resolveFuzzyCommand(root, os.Args[1:]))
	if err := root.Execute(); err != nil {
		if be, ok := err.(*berrors.Error); ok {
			if msg, human := be.HumanReadable(); human {
				fmt.Fprintln(os.Stderr, msg)
				os.Exit(berrors.ExitCode(be))
			}
		}
		fmt.Fprintln(os.Stderr, "forge:", err)
		os.Exit(berrors.ExitCode(err))
	}
}
