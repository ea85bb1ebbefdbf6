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

package coerce

import (
	"os"
	"testing"
)

func TestStringAndBoolAndInt(t *testing.T) {
	if s, err := String("hi"); err != nil || s != "hi" {
		t.Errorf("String(%q) = %q, %v", "hi", s, err)
	}
	if _, err := String(42); err == nil {
		t.Errorf("String(42) should error")
	}
	if b, err := Bool(true); err != nil || !b {
		t.Errorf("Bool(true) = %v, %v", b, err)
	}
	if n, err := Int(int64(7)); err != nil || n != 7 {
		t.Errorf("Int(int64(7)) = %d, %v", n, err)
	}
	if n, err := Int(float64(7)); err != nil || n != 7 {
		t.Errorf("Int(float64(7)) = %d, %v", n, err)
	}
}

func TestPath(t *testing.T) {
	old := FileExists
	defer func() { FileExists = old }()
	FileExists = func(path string) bool { return path == "root/ok.txt" }

	if p, err := Path("ok.txt", "root"); err != nil || p != "ok.txt" {
		t.Errorf("Path(ok.txt) = %q, %v", p, err)
	}
	if _, err := Path("missing.txt", "root"); err == nil {
		t.Errorf("Path(missing.txt) should error")
	}
	if _, err := Path("", "root"); err == nil {
		t.Errorf("Path(\"\") should error")
	}
}

func TestPathDefaultFileExists(t *testing.T) {
	dir := t.TempDir()
	f, err := os.CreateTemp(dir, "f*.txt")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	name := f.Name()[len(dir)+1:]
	if p, err := Path(name, dir); err != nil || p != name {
		t.Errorf("Path(%q, %q) = %q, %v", name, dir, p, err)
	}
}

func TestOptional(t *testing.T) {
	p, err := Optional[string](nil, String)
	if err != nil || p != nil {
		t.Errorf("Optional(nil) = %v, %v, want nil, nil", p, err)
	}
	p, err = Optional[string]("", String)
	if err != nil || p != nil {
		t.Errorf("Optional(\"\") = %v, %v, want nil, nil (default-primitive)", p, err)
	}
	p, err = Optional[string]("x", String)
	if err != nil || p == nil || *p != "x" {
		t.Errorf("Optional(\"x\") = %v, %v, want pointer to \"x\"", p, err)
	}
}

func TestList(t *testing.T) {
	raw := []Value{"a", "b", "c"}
	out, err := List[string](raw, String)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 3 || out[0] != "a" || out[2] != "c" {
		t.Errorf("List() = %v", out)
	}
}

func TestListNilIsNilSlice(t *testing.T) {
	out, err := List[string](nil, String)
	if err != nil {
		t.Fatalf("List(nil): %v", err)
	}
	if len(out) != 0 {
		t.Errorf("List(nil) = %v, want empty", out)
	}
}

func TestListWrongShapeErrors(t *testing.T) {
	if _, err := List[string]("not a list", String); err == nil {
		t.Errorf("List of a non-list value should error")
	}
}

func TestSortedSetRejectsDuplicates(t *testing.T) {
	raw := []Value{"b", "a", "a"}
	_, err := SortedSet[stringerString](raw, coerceStringerString, lessStringerString)
	if err == nil {
		t.Errorf("SortedSet with duplicate elements should error")
	}
}

func TestSortedSetSorts(t *testing.T) {
	raw := []Value{"c", "a", "b"}
	out, err := SortedSet[stringerString](raw, coerceStringerString, lessStringerString)
	if err != nil {
		t.Fatalf("SortedSet: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, s := range want {
		if string(out[i]) != s {
			t.Errorf("SortedSet()[%d] = %q, want %q", i, out[i], s)
		}
	}
}

type stringerString string

func (s stringerString) String() string { return string(s) }

func coerceStringerString(v Value) (stringerString, error) {
	s, err := String(v)
	return stringerString(s), err
}

func lessStringerString(a, b stringerString) bool { return a < b }

func TestPair(t *testing.T) {
	raw := []Value{"k", int64(3)}
	a, b, err := Pair[string, int64](raw, String, Int)
	if err != nil || a != "k" || b != 3 {
		t.Errorf("Pair() = %v, %v, %v", a, b, err)
	}
}

func TestPairWrongLengthErrors(t *testing.T) {
	raw := []Value{"only-one"}
	if _, _, err := Pair[string, int64](raw, String, Int); err == nil {
		t.Errorf("Pair with one element should error")
	}
}

func TestCoerceEitherPrefersLeft(t *testing.T) {
	result, err := CoerceEither[string, int64](
		"hello",
		String,
		Int,
		func(Value) bool { return false },
	)
	if err != nil || result.IsRight || result.Left == nil || *result.Left != "hello" {
		t.Errorf("CoerceEither(%q) = %+v, %v", "hello", result, err)
	}
}

func TestCoerceEitherFallsBackToRight(t *testing.T) {
	result, err := CoerceEither[string, int64](
		int64(5),
		func(v Value) (string, error) { return "", Int64AsStringShouldFail(v) },
		Int,
		func(Value) bool { return false },
	)
	if err != nil || !result.IsRight || result.Right == nil || *result.Right != 5 {
		t.Errorf("CoerceEither(5) = %+v, %v", result, err)
	}
}

func Int64AsStringShouldFail(v Value) error {
	_, err := String(v)
	return err
}

func TestMap(t *testing.T) {
	raw := map[string]Value{"a": int64(1), "b": int64(2)}
	out, err := Map[string, int64](raw, String, Int)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if out["a"] != 1 || out["b"] != 2 {
		t.Errorf("Map() = %v", out)
	}
}

func TestEnumCaseInsensitive(t *testing.T) {
	got, err := Enum("RELEASE", []string{"debug", "release"})
	if err != nil || got != "release" {
		t.Errorf("Enum(RELEASE) = %q, %v, want %q", got, err, "release")
	}
	if _, err := Enum("bogus", []string{"debug", "release"}); err == nil {
		t.Errorf("Enum(bogus) should error")
	}
}

func TestFieldName(t *testing.T) {
	cases := map[string]string{
		"Srcs":       "srcs",
		"PackageName": "package_name",
		"ABIKey":      "abi_key",
		"srcs":        "srcs",
		"R8Flags":     "r8_flags",
	}
	for in, want := range cases {
		if got := FieldName(in); got != want {
			t.Errorf("FieldName(%q) = %q, want %q", in, got, want)
		}
	}
}
