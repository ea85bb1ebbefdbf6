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

package android

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
)

// The linearAlloc* constants feed linearAllocEstimate, which approximates
// the Dalvik LinearAlloc cost of loading one class, grounded on
// java/dex_int_from_proguard_config-adjacent heuristics in the teacher's
// dex splitting logic: a fixed per-class overhead plus a per-byte term
// over the class name's length, since the real estimate
// requires parsing the .class file we do not have available at graph
// enhancement time.
const (
	linearAllocClassOverhead  = 500
	linearAllocPerNameByte    = 2
	defaultLinearAllocLimit   = 4 * 1024 * 1024 // 4 MiB, dex_splitter's historical default.
)

// DexInput is a single class contributed to the dex splitter, grounded on
// spec.md §4.2's "dex splitting" bullet.
type DexInput struct {
	ClassName string // fully-qualified, dot-separated
	Hash      string // sha1 of the compiled class bytes, for smart dexing
}

// linearAllocEstimate approximates the LinearAlloc cost of a class from its
// name length, a deterministic, hash-independent stand-in for parsing the
// class file's method/field table.
func linearAllocEstimate(className string) int {
	return linearAllocClassOverhead + linearAllocPerNameByte*len(className)
}

// DexStore is one produced dex shard.
type DexStore struct {
	Name      string // "classes.dex", "classes2.dex", ...
	Classes   []string
	Secondary bool
}

// SplitDexes buckets classes into a primary dex store (never split) plus
// zero or more secondary stores, each bounded by limitBytes of estimated
// LinearAlloc usage (spec.md §4.2: "the dex splitter limits each secondary
// dex store to a LinearAlloc budget"). Input order does not matter: classes
// are sorted by name first so the split is a deterministic function of the
// input set (spec.md §8 property: determinism).
//
// primaryClasses names classes that must be forced into classes.dex
// (entry points, Application subclasses, and their requires).
func SplitDexes(inputs []DexInput, primaryClasses map[string]bool, limitBytes int) []DexStore {
	if limitBytes <= 0 {
		limitBytes = defaultLinearAllocLimit
	}
	sorted := append([]DexInput(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ClassName < sorted[j].ClassName })

	primary := DexStore{Name: "classes.dex"}
	var secondaryInputs []DexInput
	for _, in := range sorted {
		if primaryClasses[in.ClassName] {
			primary.Classes = append(primary.Classes, in.ClassName)
		} else {
			secondaryInputs = append(secondaryInputs, in)
		}
	}

	stores := []DexStore{primary}
	if len(secondaryInputs) == 0 {
		return stores
	}

	current := DexStore{Name: "classes2.dex", Secondary: true}
	currentSize := 0
	storeIndex := 2
	for _, in := range secondaryInputs {
		size := linearAllocEstimate(in.ClassName)
		if currentSize > 0 && currentSize+size > limitBytes {
			stores = append(stores, current)
			storeIndex++
			current = DexStore{Name: fmt.Sprintf("classes%d.dex", storeIndex), Secondary: true}
			currentSize = 0
		}
		current.Classes = append(current.Classes, in.ClassName)
		currentSize += size
	}
	stores = append(stores, current)
	return stores
}

// SecondaryDexMetadata renders the "metadata.txt" manifest bundled
// alongside secondary dex jars: one line per secondary store, numbered
// in build order starting at 1, giving the produced jar's sha1 and a
// representative ("canary") class name, per spec.md §8 S5: each line is
// "secondary-<N>.dex.jar <sha1> <canary class, dot-separated>".
func SecondaryDexMetadata(stores []DexStore, jarBytes map[string][]byte, canaryClasses map[string]string) string {
	var b []byte
	n := 0
	for _, s := range stores {
		if !s.Secondary {
			continue
		}
		n++
		sum := sha1.Sum(jarBytes[s.Name])
		line := fmt.Sprintf("secondary-%d.dex.jar %s %s\n", n, hex.EncodeToString(sum[:]), canaryClasses[s.Name])
		b = append(b, line...)
	}
	return string(b)
}

// NeedsRedex reports whether a library's classes changed since the last
// smart-dexing run by comparing each class's recorded hash against the
// previous run's map, the "Smart dexing" shortcut spec.md §4.2 describes:
// a secondary dex store is only rebuilt if at least one contributing
// class's hash changed.
func NeedsRedex(current, previous map[string]string) bool {
	if len(current) != len(previous) {
		return true
	}
	for name, hash := range current {
		if previous[name] != hash {
			return true
		}
	}
	return false
}

// CombinedHash computes the sidecar ".hash" file contents smart dexing
// writes next to each produced dex store: the sha1 of the sorted,
// newline-joined "className hash" pairs, so a byte-identical input set
// (regardless of original traversal order) yields a byte-identical
// combined hash (spec.md §4.2's determinism requirement).
func CombinedHash(classHashes map[string]string) string {
	names := make([]string, 0, len(classHashes))
	for n := range classHashes {
		names = append(names, n)
	}
	sort.Strings(names)
	h := sha1.New()
	for _, n := range names {
		fmt.Fprintf(h, "%s %s\n", n, classHashes[n])
	}
	return hex.EncodeToString(h.Sum(nil))
}
