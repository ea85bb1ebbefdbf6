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

	"github.com/spf13/cobra"
)

// globalFlags holds the persistent flags every subcommand shares, the
// generalized counterpart of ui/build/soong.go's top-level flag set in
// the teacher (project root, config file, worker count, cache overrides).
type globalFlags struct {
	projectRoot string
	buckconfig  string
	jobs        int
	cacheDir    string
	cacheURL    string
	cacheMode   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "forge",
		Short:         "forge is a polyglot, incremental, target-graph-based build tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.projectRoot, "project-root", ".", "repository root")
	root.PersistentFlags().StringVar(&flags.buckconfig, "config", ".buckconfig", "path to the project's .buckconfig-equivalent file")
	root.PersistentFlags().IntVarP(&flags.jobs, "jobs", "j", 0, "number of concurrent build workers (0 = number of CPUs)")
	root.PersistentFlags().StringVar(&flags.cacheDir, "cache-dir", "", "local artifact cache directory (overrides [cache] dir)")
	root.PersistentFlags().StringVar(&flags.cacheURL, "cache-url", "", "remote HTTP artifact cache base URL (overrides [cache] http_url)")
	root.PersistentFlags().StringVar(&flags.cacheMode, "cache-mode", "", "readwrite or readonly (overrides [cache] mode)")

	root.AddCommand(
		newBuildCmd(flags),
		newTestCmd(flags),
		newInstallCmd(flags),
		newUninstallCmd(flags),
		newCleanCmd(flags),
		newCacheCmd(flags),
		newProjectCmd(flags),
		newTargetsCmd(flags),
		newAuditCmd(flags),
		newRunCmd(flags),
		newQuickstartCmd(flags),
	)
	return root
}

// resolveFuzzyCommand implements spec.md §6's "Unknown command" recovery:
// when args[0] names no registered subcommand, it is replaced by the
// closest known name when their normalized Levenshtein distance is at
// most 0.5, after printing the same warning S6 describes. An unmatched
// first argument is left untouched; cobra itself reports "unknown
// command" and forge exits nonzero.
func resolveFuzzyCommand(root *cobra.Command, args []string) []string {
	if len(args) == 0 {
		return args
	}
	first := args[0]
	if first == "" || first[0] == '-' {
		return args
	}
	if cmd, _, err := root.Find(args); err == nil && cmd != root {
		return args
	}

	known := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		known = append(known, c.Name())
	}
	match, ok := closestCommand(first, known)
	if !ok {
		return args
	}
	fmt.Fprintf(os.Stderr, "(Cannot find command '%s', assuming command '%s'.)\n", first, match)
	out := append([]string(nil), args...)
	out[0] = match
	return out
}
