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

package filehash

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetMemoizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := New(false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	h1, err := c.Get(path)
	if err != nil {
		t.Fatal(err)
	}

	// Change the file on disk without invalidating: Get must return the
	// memoized hash, not recompute.
	if err := os.WriteFile(path, []byte("goodbye"), 0644); err != nil {
		t.Fatal(err)
	}
	h2, err := c.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("Get must return the memoized hash until Invalidate is called")
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := New(false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	h1, err := c.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("goodbye"), 0644); err != nil {
		t.Fatal(err)
	}
	c.Invalidate(path)
	h2, err := c.Get(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Errorf("Invalidate must force Get to recompute a changed file's hash")
	}
}

func TestGetDifferentContentDifferentHash(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(pathA, []byte("aaa"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pathB, []byte("bbb"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := New(false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ha, err := c.Get(pathA)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := c.Get(pathB)
	if err != nil {
		t.Fatal(err)
	}
	if ha == hb {
		t.Errorf("different file contents must hash differently")
	}
}

func TestGetMissingFile(t *testing.T) {
	c, err := New(false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Get(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Errorf("Get on a missing file must return an error")
	}
}
