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
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/cache"
	"github.com/mread/buck-sub000/rulekey"
)

func newCacheCmd(flags *globalFlags) *cobra.Command {
	var fetch, store bool

	cmd := &cobra.Command{
		Use:   "cache [--fetch|--store] <key>",
		Short: "inspect or populate the artifact cache directly by rule key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fetch == store {
				return berrors.Newf(berrors.UserInput, "cache: exactly one of --fetch or --store is required")
			}
			rk, err := parseRuleKey(args[0])
			if err != nil {
				return err
			}
			s, err := newSession(flags)
			if err != nil {
				return err
			}
			defer s.close()

			if fetch {
				entry, err := s.cache.Fetch(rk)
				if err != nil {
					if err == cache.ErrMiss {
						fmt.Println("miss")
						return nil
					}
					return err
				}
				fmt.Printf("hit: %d file(s)\n", len(entry.Files))
				return nil
			}
			return s.cache.Store(rk, &cache.Entry{})
		},
	}
	cmd.Flags().BoolVar(&fetch, "fetch", false, "fetch the artifact for <key>")
	cmd.Flags().BoolVar(&store, "store", false, "store an empty placeholder artifact under <key>")
	return cmd
}

func parseRuleKey(s string) (rulekey.RuleKey, error) {
	var rk rulekey.RuleKey
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(rk) {
		return rk, berrors.Newf(berrors.UserInput, "cache: %q is not a valid rule key", s)
	}
	copy(rk[:], b)
	return rk, nil
}
