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

// Package rulekey implements the C3 component: the 160-bit content hash
// assigned to every rule, computed from its own inputs plus (for the
// "total" flavor) its transitive deps' rule keys. See spec.md §4.3 for the
// hashing contract this package must satisfy exactly.
package rulekey

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strconv"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/filehash"
)

// RuleKey is the opaque 160-bit identifier spec.md §3 defines.
type RuleKey [sha1.Size]byte

func (k RuleKey) String() string { return fmt.Sprintf("%x", [sha1.Size]byte(k)) }

// IsZero reports whether k is the zero value (never computed).
func (k RuleKey) IsZero() bool { return k == RuleKey{} }

// entry is one named field recorded by a Builder, in call order.
type entry struct {
	name     string
	data     []byte
	isDepKey bool // true for fields added via SetRuleNames
}

// Builder accumulates named field entries for one rule. Field names are
// part of the hash, so reordering two Set calls (spec.md §8 property 3)
// or appending the same name twice (a programmer error, spec.md §7)
// changes or rejects the result respectively.
type Builder struct {
	ruleName string
	entries  []entry
	seen     map[string]bool
	fhc      *filehash.Cache
}

// NewBuilder constructs a Builder for the rule named ruleName (used only
// for diagnostics), consulting fhc to hash source paths.
func NewBuilder(ruleName string, fhc *filehash.Cache) *Builder {
	return &Builder{ruleName: ruleName, seen: make(map[string]bool), fhc: fhc}
}

// WithFileHashCache attaches the FileHashCache used by SetSourcePath.
func (b *Builder) WithFileHashCache(fhc *filehash.Cache) *Builder {
	b.fhc = fhc
	return b
}

func (b *Builder) recordName(name string) {
	if b.seen[name] {
		berrors.HashingBug("rulekey: field %q set twice while building key for %s", name, b.ruleName)
	}
	b.seen[name] = true
}

// Set records a scalar value by its stable textual form (spec.md §4.3:
// "Scalar values ... are hashed by their stable textual form").
func (b *Builder) Set(name string, value string) *Builder {
	b.recordName(name)
	b.entries = append(b.entries, entry{name: name, data: []byte(value)})
	return b
}

// SetBool records a boolean field.
func (b *Builder) SetBool(name string, value bool) *Builder {
	return b.Set(name, strconv.FormatBool(value))
}

// SetInt records an integer field.
func (b *Builder) SetInt(name string, value int64) *Builder {
	return b.Set(name, strconv.FormatInt(value, 10))
}

// SetList records a container value, hashed element by element in
// iteration order (spec.md §4.3).
func (b *Builder) SetList(name string, values []string) *Builder {
	b.recordName(name)
	data := encodeList(values)
	b.entries = append(b.entries, entry{name: name, data: data})
	return b
}

// SetSortedSet records an unordered container, canonicalized by sorting
// before hashing (spec.md §4.3: "unordered containers must be
// canonicalized (sorted) before hashing").
func (b *Builder) SetSortedSet(name string, values []string) *Builder {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return b.SetList(name, sorted)
}

// SourcePath is a repo-relative path plus the logical name under which it
// is referenced, the pair spec.md §4.3 says source paths hash as.
type SourcePath struct {
	LogicalName string
	DiskPath    string
}

// SetSourcePaths records a list of source paths, each hashed as
// (logical_name, file_content_hash) via the attached FileHashCache.
func (b *Builder) SetSourcePaths(name string, paths []SourcePath) (*Builder, error) {
	b.recordName(name)
	var buf []byte
	for _, p := range paths {
		if b.fhc == nil {
			return nil, fmt.Errorf("rulekey: no FileHashCache attached, cannot hash source path %s", p.DiskPath)
		}
		h, err := b.fhc.Get(p.DiskPath)
		if err != nil {
			return nil, fmt.Errorf("rulekey: hashing source %s: %w", p.DiskPath, err)
		}
		buf = appendLenPrefixed(buf, []byte(p.LogicalName))
		buf = appendLenPrefixed(buf, h[:])
	}
	b.entries = append(b.entries, entry{name: name, data: buf})
	return b, nil
}

// SetRuleNames records a field contributed by a rule's dependencies: each
// dep's own without-deps rule key, concatenated in the order given by
// depKeys. Callers are responsible for canonical ordering (topological
// where required, lexicographic by target otherwise, per spec.md §4.3).
func (b *Builder) SetRuleNames(name string, depKeys []RuleKey) *Builder {
	b.recordName(name)
	var buf []byte
	for _, k := range depKeys {
		buf = append(buf, k[:]...)
	}
	b.entries = append(b.entries, entry{name: name, data: buf, isDepKey: true})
	return b
}

// SetReflectively records value using a best-effort textual encoding
// (fmt.Sprintf("%#v", ...)), for ad-hoc attribute types that don't have a
// dedicated Set* helper. Prefer the typed Set* methods where available;
// this exists for the same "reflective fallback" role
// RuleKey.Builder.setReflectively plays in spec.md §4.3.
func (b *Builder) SetReflectively(name string, value interface{}) *Builder {
	return b.Set(name, fmt.Sprintf("%#v", value))
}

func encodeList(values []string) []byte {
	var buf []byte
	for _, v := range values {
		buf = appendLenPrefixed(buf, []byte(v))
	}
	return buf
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenBuf [8]byte
	n := len(data)
	for i := 0; i < 8; i++ {
		lenBuf[i] = byte(n >> (8 * i))
	}
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

// digest hashes entries in call order, each as (name, data), both
// length-prefixed so that "foo"+"bar" never collides with "foobar"+"".
func digest(entries []entry) RuleKey {
	h := sha1.New()
	for _, e := range entries {
		nameData := appendLenPrefixed(nil, []byte(e.name))
		h.Write(nameData)
		lenData := appendLenPrefixed(nil, e.data)
		h.Write(lenData)
	}
	var out RuleKey
	copy(out[:], h.Sum(nil))
	return out
}

// Build computes the "total" rule key: every recorded field, in call
// order, including SetRuleNames contributions.
func (b *Builder) Build() RuleKey {
	return digest(b.entries)
}

// BuildWithoutDeps computes the "without-deps" rule key: every recorded
// field except those added via SetRuleNames, in their original relative
// order. This is the flavor spec.md §4.3 says is "used inside recursive
// hashes of dependents".
func (b *Builder) BuildWithoutDeps() RuleKey {
	filtered := make([]entry, 0, len(b.entries))
	for _, e := range b.entries {
		if !e.isDepKey {
			filtered = append(filtered, e)
		}
	}
	return digest(filtered)
}

// AbiKey computes a secondary hash over a rule's outward-visible interface
// only (spec.md §4.3's ABI key), e.g. a sorted list of "className:hash"
// pairs for a Java library's public classes.
func AbiKey(classNameToHash map[string]string) RuleKey {
	names := make([]string, 0, len(classNameToHash))
	for n := range classNameToHash {
		names = append(names, n)
	}
	sort.Strings(names)
	h := sha1.New()
	for _, n := range names {
		h.Write(appendLenPrefixed(nil, []byte(n)))
		h.Write(appendLenPrefixed(nil, []byte(classNameToHash[n])))
	}
	var out RuleKey
	copy(out[:], h.Sum(nil))
	return out
}
