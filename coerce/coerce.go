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

// Package coerce is the C1 component: it turns raw parsed attribute
// values (strings, lists, maps, as a build-file parser would hand them
// over) into the typed, validated constructor-argument fields a rule
// description declares. See spec.md §4.1 for the coercion contract.
package coerce

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/mread/buck-sub000/berrors"
)

// Value is a raw, parser-produced attribute value: nil, bool, int64,
// float64, string, []Value, or map[string]Value.
type Value interface{}

// String coerces v to a string.
func String(v Value) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", berrors.Newf(berrors.UserInput, "expected string, got %T", v)
	}
	return s, nil
}

// Int coerces v to an integer.
func Int(v Value) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, berrors.Newf(berrors.UserInput, "expected integer, got %T", v)
	}
}

// Bool coerces v to a boolean.
func Bool(v Value) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, berrors.Newf(berrors.UserInput, "expected boolean, got %T", v)
	}
	return b, nil
}

// FileExists is overridable in tests; defaults to os.Stat.
var FileExists = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Path coerces v to a project-relative path, failing with InvalidPath on
// an empty string and MissingFile when the file does not exist on disk
// (spec.md §4.1).
func Path(v Value, projectRoot string) (string, error) {
	s, err := String(v)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", berrors.Newf(berrors.UserInput, "InvalidPath: path must not be empty")
	}
	full := s
	if projectRoot != "" {
		full = projectRoot + "/" + s
	}
	if !FileExists(full) {
		return "", berrors.Newf(berrors.UserInput, "MissingFile: %s does not exist", s)
	}
	return s, nil
}

// isDefaultPrimitive reports whether v is the zero-ish default value of a
// primitive: "", 0, false, or nil, per spec.md §4.1's Optional<T> rule.
func isDefaultPrimitive(v Value) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int64:
		return x == 0
	case int:
		return x == 0
	case float64:
		return x == 0
	case bool:
		return !x
	}
	return false
}

// Optional coerces v into *T: absent or a default-primitive value yields
// nil ("none"); otherwise elem coerces the value and the result is
// wrapped.
func Optional[T any](v Value, elem func(Value) (T, error)) (*T, error) {
	if isDefaultPrimitive(v) {
		return nil, nil
	}
	t, err := elem(v)
	if err != nil {
		// Container coercers must expose the innermost error's message
		// verbatim (spec.md §4.1).
		return nil, err
	}
	return &t, nil
}

func asList(v Value) ([]Value, error) {
	if v == nil {
		return nil, nil
	}
	l, ok := v.([]Value)
	if !ok {
		return nil, berrors.Newf(berrors.UserInput, "expected list, got %T", v)
	}
	return l, nil
}

// List coerces v into a []T, coercing each element with elem.
func List[T any](v Value, elem func(Value) (T, error)) ([]T, error) {
	raw, err := asList(v)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, rv := range raw {
		t, err := elem(rv)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Set coerces v into a []T, like List, with no uniqueness requirement
// (ordering is the declaration's iteration order; spec.md §4.1 only
// requires SortedSet to reject duplicates).
func Set[T any](v Value, elem func(Value) (T, error)) ([]T, error) {
	return List(v, elem)
}

// SortedSet coerces v into a sorted []T, rejecting duplicate elements
// with DuplicateElement (spec.md §4.1).
func SortedSet[T fmt.Stringer](v Value, elem func(Value) (T, error), less func(a, b T) bool) ([]T, error) {
	out, err := List(v, elem)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	for i := 1; i < len(out); i++ {
		if out[i].String() == out[i-1].String() {
			return nil, berrors.Newf(berrors.UserInput, "DuplicateElement: %s", out[i].String())
		}
	}
	return out, nil
}

// Pair coerces v into an (A, B) pair; the source must be a 2-element list
// (spec.md §4.1).
func Pair[A, B any](v Value, coerceA func(Value) (A, error), coerceB func(Value) (B, error)) (A, B, error) {
	var a A
	var b B
	raw, err := asList(v)
	if err != nil {
		return a, b, err
	}
	if len(raw) != 2 {
		return a, b, berrors.Newf(berrors.UserInput, "expected a 2-element list, got %d elements", len(raw))
	}
	a, err = coerceA(raw[0])
	if err != nil {
		return a, b, err
	}
	b, err = coerceB(raw[1])
	if err != nil {
		return a, b, err
	}
	return a, b, nil
}

// Either coerces v as L, falling back to R on failure. Per spec.md §4.1:
// "try L first, on failure try R; propagate the L error if both fail and
// input shape clearly matches L's structure." shapeMatchesL reports
// whether v's raw shape (e.g. a map for a record-shaped L) is
// unambiguously L's, even though decoding L failed on content.
type Either[L, R any] struct {
	Left    *L
	Right   *R
	IsRight bool
}

// CoerceEither implements the Either<L,R> coercer.
func CoerceEither[L, R any](
	v Value,
	coerceL func(Value) (L, error),
	coerceR func(Value) (R, error),
	shapeMatchesL func(Value) bool,
) (Either[L, R], error) {
	l, errL := coerceL(v)
	if errL == nil {
		return Either[L, R]{Left: &l}, nil
	}
	r, errR := coerceR(v)
	if errR == nil {
		return Either[L, R]{Right: &r, IsRight: true}, nil
	}
	if shapeMatchesL(v) {
		return Either[L, R]{}, errL
	}
	return Either[L, R]{}, errR
}

// Map coerces v into a map[K]V. Per spec.md §4.1, K must be a
// non-optional coerced type, which the type system already enforces since
// coerceK returns a bare K, not a pointer.
func Map[K comparable, V any](v Value, coerceK func(Value) (K, error), coerceV func(Value) (V, error)) (map[K]V, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.(map[string]Value)
	if !ok {
		return nil, berrors.Newf(berrors.UserInput, "expected mapping, got %T", v)
	}
	out := make(map[K]V, len(raw))
	for k, rv := range raw {
		key, err := coerceK(k)
		if err != nil {
			return nil, err
		}
		val, err := coerceV(rv)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

// Enum coerces v to one of variants, matching case-insensitively with
// locale-independent lowercasing. Go's strings.ToLower operates on
// Unicode case folding without locale data, so it already sidesteps the
// classic Turkish-I bug (spec.md §4.1's explicit callout) without extra
// handling.
func Enum(v Value, variants []string) (string, error) {
	s, err := String(v)
	if err != nil {
		return "", err
	}
	lower := foldLower(s)
	for _, variant := range variants {
		if foldLower(variant) == lower {
			return variant, nil
		}
	}
	return "", berrors.Newf(berrors.UserInput, "invalid enum value %q, must be one of %s", s, strings.Join(variants, ", "))
}

func foldLower(s string) string {
	return strings.Map(unicode.ToLower, s)
}

// Resolver resolves a reference-typed attribute value (a target string) to
// a dependency. Dangling references must fail (spec.md §4.1).
type Resolver interface {
	Resolve(targetString string) (interface{}, error)
}

// Reference coerces v (a target string) via resolver.
func Reference(v Value, resolver Resolver) (interface{}, error) {
	s, err := String(v)
	if err != nil {
		return nil, err
	}
	dep, err := resolver.Resolve(s)
	if err != nil {
		return nil, berrors.Newf(berrors.UserInput, "%s: %s", s, err.Error())
	}
	return dep, nil
}

// FieldName derives the python-style attribute name for a Go struct field
// name, converting lowerCamel/UpperCamel to lower_underscore, matching the
// teacher's proptools field-name convention (spec.md §4.1: "derivable from
// the record-field name via lower-camel -> lower-underscore unless the
// field carries a hint override").
func FieldName(goFieldName string) string {
	var b strings.Builder
	runes := []rune(goFieldName)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
