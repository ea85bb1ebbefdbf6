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

	"github.com/mread/buck-sub000/android"
)

func newAuditCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "run the neverallow policy over every rule in the repo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(flags)
			if err != nil {
				return err
			}
			defer s.close()

			policy := defaultNeverallowPolicy()
			var violations int
			for _, r := range s.graph.Rules() {
				if err := policy.Check(r.Target, r.RuleType, r.AllDeps()); err != nil {
					violations++
					fmt.Println(err)
				}
			}
			if violations > 0 {
				return fmt.Errorf("audit: %d neverallow violation(s)", violations)
			}
			fmt.Println("audit: no violations")
			return nil
		},
	}
}

// defaultNeverallowPolicy is a starter policy: no rule type restrictions
// are declared by default since SPEC_FULL.md leaves rule-specific
// neverallow declarations to the project's own build files (not yet
// loadable through a dedicated top-level declaration in this module), so
// "audit" reports a clean pass until the project registers rules via
// android.NeverallowPolicy itself.
func defaultNeverallowPolicy() *android.NeverallowPolicy {
	return &android.NeverallowPolicy{}
}
