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

package rulekey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mread/buck-sub000/filehash"
)

func TestBuildDeterministic(t *testing.T) {
	build := func() RuleKey {
		b := NewBuilder("//foo:bar", nil)
		b.Set("name", "bar").SetInt("flag", 1).SetSortedSet("srcs", []string{"b.go", "a.go"})
		return b.Build()
	}
	k1, k2 := build(), build()
	if k1 != k2 {
		t.Errorf("Build() is not deterministic: %s != %s", k1, k2)
	}
}

func TestFieldOrderChangesKey(t *testing.T) {
	b1 := NewBuilder("//foo:bar", nil)
	b1.Set("a", "1").Set("b", "2")
	k1 := b1.Build()

	b2 := NewBuilder("//foo:bar", nil)
	b2.Set("b", "2").Set("a", "1")
	k2 := b2.Build()

	if k1 == k2 {
		t.Errorf("reordering Set calls must change the rule key")
	}
}

func TestSetSortedSetCanonicalizes(t *testing.T) {
	b1 := NewBuilder("//foo:bar", nil)
	b1.SetSortedSet("srcs", []string{"a", "b", "c"})

	b2 := NewBuilder("//foo:bar", nil)
	b2.SetSortedSet("srcs", []string{"c", "a", "b"})

	if b1.Build() != b2.Build() {
		t.Errorf("SetSortedSet must canonicalize input order before hashing")
	}
}

func TestSetListPreservesOrder(t *testing.T) {
	b1 := NewBuilder("//foo:bar", nil)
	b1.SetList("srcs", []string{"a", "b"})

	b2 := NewBuilder("//foo:bar", nil)
	b2.SetList("srcs", []string{"b", "a"})

	if b1.Build() == b2.Build() {
		t.Errorf("SetList must be order-sensitive, unlike SetSortedSet")
	}
}

func TestDuplicateFieldNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("setting the same field name twice must panic")
		}
	}()
	b := NewBuilder("//foo:bar", nil)
	b.Set("name", "x").Set("name", "y")
}

func TestBuildWithoutDepsExcludesRuleNames(t *testing.T) {
	depKey := RuleKey{1, 2, 3}

	withDeps := NewBuilder("//foo:bar", nil)
	withDeps.Set("name", "bar").SetRuleNames("deps", []RuleKey{depKey})

	withoutDepsOnly := NewBuilder("//foo:bar", nil)
	withoutDepsOnly.Set("name", "bar")

	if withDeps.BuildWithoutDeps() != withoutDepsOnly.Build() {
		t.Errorf("BuildWithoutDeps must equal a key built from only the non-dep fields")
	}
	if withDeps.Build() == withDeps.BuildWithoutDeps() {
		t.Errorf("Build (total) must differ from BuildWithoutDeps when deps are set")
	}
}

func TestSetSourcePathsUsesFileHashCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	if err := os.WriteFile(path, []byte("package a"), 0644); err != nil {
		t.Fatal(err)
	}

	fhc, err := filehash.New(false)
	if err != nil {
		t.Fatal(err)
	}
	defer fhc.Close()

	b := NewBuilder("//foo:bar", nil).WithFileHashCache(fhc)
	if _, err := b.SetSourcePaths("srcs", []SourcePath{{LogicalName: "a.go", DiskPath: path}}); err != nil {
		t.Fatalf("SetSourcePaths: %v", err)
	}
	k1 := b.Build()

	if err := os.WriteFile(path, []byte("package a // changed"), 0644); err != nil {
		t.Fatal(err)
	}
	fhc.Invalidate(path)

	b2 := NewBuilder("//foo:bar", nil).WithFileHashCache(fhc)
	if _, err := b2.SetSourcePaths("srcs", []SourcePath{{LogicalName: "a.go", DiskPath: path}}); err != nil {
		t.Fatalf("SetSourcePaths: %v", err)
	}
	k2 := b2.Build()

	if k1 == k2 {
		t.Errorf("changing a hashed source file's content must change the rule key")
	}
}

func TestSetSourcePathsRequiresFileHashCache(t *testing.T) {
	b := NewBuilder("//foo:bar", nil)
	if _, err := b.SetSourcePaths("srcs", []SourcePath{{LogicalName: "a.go", DiskPath: "a.go"}}); err == nil {
		t.Errorf("SetSourcePaths without an attached FileHashCache must return an error")
	}
}

func TestAbiKeyOrderIndependent(t *testing.T) {
	k1 := AbiKey(map[string]string{"A": "1", "B": "2"})
	k2 := AbiKey(map[string]string{"B": "2", "A": "1"})
	if k1 != k2 {
		t.Errorf("AbiKey must be independent of map iteration order")
	}
}

func TestAbiKeyDiffersOnContent(t *testing.T) {
	k1 := AbiKey(map[string]string{"A": "1"})
	k2 := AbiKey(map[string]string{"A": "2"})
	if k1 == k2 {
		t.Errorf("AbiKey must change when a class's hash changes")
	}
}

func TestRuleKeyStringAndIsZero(t *testing.T) {
	var zero RuleKey
	if !zero.IsZero() {
		t.Errorf("zero value RuleKey.IsZero() = false, want true")
	}
	if len(zero.String()) != 40 {
		t.Errorf("RuleKey.String() length = %d, want 40 hex chars", len(zero.String()))
	}
}
