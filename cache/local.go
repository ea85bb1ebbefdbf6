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

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mread/buck-sub000/rulekey"
)

// LocalCache is a directory of gzipped-tar archives indexed by rule key
// (spec.md §4.4's "Local" realization).
type LocalCache struct {
	dir      string
	readOnly bool
}

// NewLocalCache constructs a LocalCache rooted at dir, creating it if
// necessary unless readOnly is set.
func NewLocalCache(dir string, readOnly bool) (*LocalCache, error) {
	if !readOnly {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("cache: creating %s: %w", dir, err)
		}
	}
	return &LocalCache{dir: dir, readOnly: readOnly}, nil
}

func (c *LocalCache) path(rk rulekey.RuleKey) string {
	return filepath.Join(c.dir, rk.String()+".tar.gz")
}

// Fetch implements ArtifactCache.
func (c *LocalCache) Fetch(rk rulekey.RuleKey) (*Entry, error) {
	data, err := os.ReadFile(c.path(rk))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMiss
		}
		return nil, ErrMiss
	}
	entry, err := Unarchive(data)
	if err != nil {
		// Partial/corrupt archive: treat as a miss rather than surfacing
		// a read error (spec.md §4.4).
		return nil, ErrMiss
	}
	return entry, nil
}

// Store implements ArtifactCache. It writes to a temp file in the same
// directory and renames into place, so concurrent fetches never observe a
// partially written archive, and repeated stores of the same key are
// idempotent (spec.md §4.4).
func (c *LocalCache) Store(rk rulekey.RuleKey, entry *Entry) error {
	if c.readOnly {
		return nil
	}
	data, err := Archive(entry)
	if err != nil {
		return fmt.Errorf("cache: archiving %s: %w", rk, err)
	}
	tmp, err := os.CreateTemp(c.dir, "store-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cache: writing %s: %w", rk, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: closing %s: %w", rk, err)
	}
	if err := os.Rename(tmpName, c.path(rk)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: renaming into place for %s: %w", rk, err)
	}
	return nil
}

// Close implements ArtifactCache; the local cache has no pending
// background work to flush.
func (c *LocalCache) Close() (int, error) { return 0, nil }
