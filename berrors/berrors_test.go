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

package berrors

import (
	"errors"
	"testing"
)

func TestHumanReadableByKind(t *testing.T) {
	cases := []struct {
		kind   Kind
		human  bool
	}{
		{UserInput, true},
		{StepFailure, true},
		{Cycle, true},
		{FileSystem, true},
		{Hashing, false},
		{CacheUnavailable, false},
		{Cancelled, false},
	}
	for _, c := range cases {
		e := Newf(c.kind, "boom")
		_, human := e.HumanReadable()
		if human != c.human {
			t.Errorf("Kind %s: HumanReadable() human = %v, want %v", c.kind, human, c.human)
		}
	}
}

func TestExitCodeStepFailurePropagates(t *testing.T) {
	err := StepFailed("compile //foo:bar", "syntax error", 42)
	if got := ExitCode(err); got != 42 {
		t.Errorf("ExitCode() = %d, want 42", got)
	}
}

func TestExitCodeGenericFailureIsOne(t *testing.T) {
	if got := ExitCode(Newf(UserInput, "bad target")); got != 1 {
		t.Errorf("ExitCode() = %d, want 1", got)
	}
	if got := ExitCode(errors.New("not a berrors.Error")); got != 1 {
		t.Errorf("ExitCode() = %d, want 1", got)
	}
}

func TestExitCodeNilIsZero(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(FileSystem, cause, "writing %s", "out.txt")
	if !errors.Is(wrapped, cause) {
		t.Errorf("Wrap must preserve the cause for errors.Is/Unwrap")
	}
	if wrapped.Error() == "" {
		t.Errorf("Wrap must produce a non-empty message")
	}
}

func TestHashingBugPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("HashingBug must panic")
		}
		e, ok := r.(*Error)
		if !ok {
			t.Fatalf("panic value is %T, want *Error", r)
		}
		if e.Kind != Hashing {
			t.Errorf("panic Error.Kind = %s, want Hashing", e.Kind)
		}
	}()
	HashingBug("duplicate field %q", "name")
}

func TestNotVisibleMessage(t *testing.T) {
	dependent := fakeStringer("//app:main")
	dependency := fakeStringer("//lib:secret")
	err := NotVisible(dependent, dependency)
	want := "//app:main depends on //lib:secret, which is not visible"
	if err.Error() != want {
		t.Errorf("NotVisible().Error() = %q, want %q", err.Error(), want)
	}
}

type fakeStringer string

func (f fakeStringer) String() string { return string(f) }
