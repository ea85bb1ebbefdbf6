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

package cache

import "github.com/mread/buck-sub000/rulekey"

// MultiCache chains a local cache ahead of a remote one: Fetch tries each
// tier in order and backfills earlier tiers on a later hit; Store writes
// to every tier (spec.md §4's "local or remote artifact cache").
type MultiCache struct {
	tiers []ArtifactCache
}

// NewMultiCache constructs a MultiCache trying tiers in the given order.
func NewMultiCache(tiers ...ArtifactCache) *MultiCache {
	return &MultiCache{tiers: tiers}
}

// Fetch implements ArtifactCache.
func (m *MultiCache) Fetch(rk rulekey.RuleKey) (*Entry, error) {
	for i, tier := range m.tiers {
		entry, err := tier.Fetch(rk)
		if err == nil {
			// Backfill earlier (faster) tiers so the next fetch on this
			// host is local.
			for j := 0; j < i; j++ {
				_ = m.tiers[j].Store(rk, entry)
			}
			return entry, nil
		}
	}
	return nil, ErrMiss
}

// Store implements ArtifactCache, writing to every tier.
func (m *MultiCache) Store(rk rulekey.RuleKey, entry *Entry) error {
	var firstErr error
	for _, tier := range m.tiers {
		if err := tier.Store(rk, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close implements ArtifactCache, closing every tier and summing their
// failure counts.
func (m *MultiCache) Close() (int, error) {
	total := 0
	var firstErr error
	for _, tier := range m.tiers {
		n, err := tier.Close()
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}
