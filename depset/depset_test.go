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

package depset

import (
	"reflect"
	"testing"
)

func TestAddDedups(t *testing.T) {
	b := NewBuilder[string]()
	b.Add("a", "b", "a", "c")
	if got, want := b.Values(Postorder), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Values(Postorder) = %v, want %v", got, want)
	}
	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}
}

func TestAddDepsMergesPostorder(t *testing.T) {
	leaf := NewBuilder[string]()
	leaf.Add("leaf")

	mid := NewBuilder[string]()
	mid.AddDeps([]*Builder[string]{leaf})
	mid.Add("mid")

	root := NewBuilder[string]()
	root.AddDeps([]*Builder[string]{mid})
	root.Add("root")

	want := []string{"leaf", "mid", "root"}
	if got := root.Values(Postorder); !reflect.DeepEqual(got, want) {
		t.Errorf("Values(Postorder) = %v, want %v", got, want)
	}
}

func TestTopologicalReversedIsReverseOfPostorder(t *testing.T) {
	b := NewBuilder[string]()
	b.Add("a", "b", "c")
	post := b.Values(Postorder)
	rev := b.Values(TopologicalReversed)
	if len(rev) != len(post) {
		t.Fatalf("len mismatch: %d vs %d", len(rev), len(post))
	}
	for i := range post {
		if rev[len(rev)-1-i] != post[i] {
			t.Errorf("TopologicalReversed is not the reverse of Postorder: %v vs %v", rev, post)
		}
	}
}

func TestAddDepsDedupsAcrossSharedDeps(t *testing.T) {
	shared := NewBuilder[string]()
	shared.Add("shared")

	a := NewBuilder[string]()
	a.AddDeps([]*Builder[string]{shared})
	a.Add("a")

	b := NewBuilder[string]()
	b.AddDeps([]*Builder[string]{shared})
	b.Add("b")

	root := NewBuilder[string]()
	root.AddDeps([]*Builder[string]{a, b})
	root.Add("root")

	want := []string{"shared", "a", "b", "root"}
	if got := root.Values(Postorder); !reflect.DeepEqual(got, want) {
		t.Errorf("Values(Postorder) = %v, want %v (diamond dep must be deduped, first-wins)", got, want)
	}
}
