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
	"reflect"
	"testing"

	"github.com/mread/buck-sub000/rulekey"
)

func TestArchiveUnarchiveRoundTrip(t *testing.T) {
	entry := &Entry{
		Files: map[string][]byte{
			"out/a.class": []byte("classfile bytes"),
			"out/b.txt":   []byte("hello"),
		},
		Metadata: map[string]string{"rule_type": "java_library"},
	}
	data, err := Archive(entry)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := Unarchive(data)
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if !reflect.DeepEqual(got.Files, entry.Files) {
		t.Errorf("Unarchive(Archive(entry)).Files = %v, want %v", got.Files, entry.Files)
	}
	if !reflect.DeepEqual(got.Metadata, entry.Metadata) {
		t.Errorf("Unarchive(Archive(entry)).Metadata = %v, want %v", got.Metadata, entry.Metadata)
	}
}

func TestUnarchiveCorruptDataErrors(t *testing.T) {
	if _, err := Unarchive([]byte("not a gzip stream")); err == nil {
		t.Errorf("Unarchive of garbage data must return an error")
	}
}

func TestLocalCacheStoreThenFetch(t *testing.T) {
	dir := t.TempDir()
	c, err := NewLocalCache(dir, false)
	if err != nil {
		t.Fatal(err)
	}

	var rk rulekey.RuleKey
	rk[0] = 0xAB
	entry := &Entry{Files: map[string][]byte{"f": []byte("data")}, Metadata: map[string]string{"k": "v"}}

	if err := c.Store(rk, entry); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := c.Fetch(rk)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !reflect.DeepEqual(got.Files, entry.Files) {
		t.Errorf("Fetch().Files = %v, want %v", got.Files, entry.Files)
	}
}

func TestLocalCacheFetchMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := NewLocalCache(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	var rk rulekey.RuleKey
	rk[0] = 0xCD
	if _, err := c.Fetch(rk); err != ErrMiss {
		t.Errorf("Fetch on an empty cache = %v, want ErrMiss", err)
	}
}

func TestLocalCacheReadOnlyStoreIsNoop(t *testing.T) {
	dir := t.TempDir()
	c, err := NewLocalCache(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	var rk rulekey.RuleKey
	rk[0] = 0xEF
	if err := c.Store(rk, &Entry{Files: map[string][]byte{"f": []byte("x")}}); err != nil {
		t.Fatalf("Store on a read-only cache must not error: %v", err)
	}
	if _, err := c.Fetch(rk); err != ErrMiss {
		t.Errorf("a read-only cache's Store must be a no-op, so Fetch should still miss, got %v", err)
	}
}

func TestMultiCacheLocalFirstAndRemoteBackfill(t *testing.T) {
	dirLocal := t.TempDir()
	local, err := NewLocalCache(dirLocal, false)
	if err != nil {
		t.Fatal(err)
	}
	remote := newFakeCache()

	var rk rulekey.RuleKey
	rk[0] = 0x11
	entry := &Entry{Files: map[string][]byte{"f": []byte("from-remote")}}
	if err := remote.Store(rk, entry); err != nil {
		t.Fatal(err)
	}

	mc := NewMultiCache(local, remote)
	got, err := mc.Fetch(rk)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got.Files["f"]) != "from-remote" {
		t.Errorf("Fetch() = %v, want entry from the remote tier", got.Files)
	}

	// The local tier should now be backfilled with the remote hit.
	localGot, err := local.Fetch(rk)
	if err != nil {
		t.Fatalf("expected MultiCache to backfill the local tier, Fetch: %v", err)
	}
	if string(localGot.Files["f"]) != "from-remote" {
		t.Errorf("local tier backfill = %v, want from-remote", localGot.Files)
	}
}

// fakeCache is an in-memory ArtifactCache used to exercise MultiCache
// without a network-backed remote tier.
type fakeCache struct {
	entries map[rulekey.RuleKey]*Entry
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[rulekey.RuleKey]*Entry)}
}

func (f *fakeCache) Fetch(rk rulekey.RuleKey) (*Entry, error) {
	e, ok := f.entries[rk]
	if !ok {
		return nil, ErrMiss
	}
	return e, nil
}

func (f *fakeCache) Store(rk rulekey.RuleKey, entry *Entry) error {
	f.entries[rk] = entry
	return nil
}

func (f *fakeCache) Close() (int, error) { return 0, nil }
