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

// Package berrors is the structured error taxonomy described in spec.md
// §7. It replaces exceptions-for-control-flow with a small Kind enum plus
// a pre-formatted, human-readable message, matching the rearchitecting
// note in spec.md §9 ("a structured error enum with a user_message arm").
package berrors

import "fmt"

// Kind classifies a Error by how the top-level driver should react to it.
type Kind int

const (
	// UserInput covers missing targets, invalid attributes, unknown enum
	// values, invisible deps, duplicate build_config packages. Reported as
	// exit 1 with a human-readable message; never stack-traced.
	UserInput Kind = iota
	// FileSystem covers a missing path or an I/O failure during a step.
	FileSystem
	// Hashing covers programmer errors in the rule-key builder (duplicate
	// field name). These are fatal with a stack trace, not user-facing.
	Hashing
	// StepFailure covers a non-zero exit from a build step.
	StepFailure
	// CacheUnavailable is downgraded silently to a cache miss; log-only.
	CacheUnavailable
	// Cycle covers a cycle detected in the target graph.
	Cycle
	// Cancelled is downstream of a failure elsewhere in the build; never
	// itself reported to the user.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case UserInput:
		return "UserInput"
	case FileSystem:
		return "FileSystem"
	case Hashing:
		return "Hashing"
	case StepFailure:
		return "StepFailure"
	case CacheUnavailable:
		return "CacheUnavailable"
	case Cycle:
		return "Cycle"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is the taxonomy's single error type. Message is already formatted
// for the reader: the top-level driver does not re-derive text from Kind.
type Error struct {
	Kind    Kind
	Message string
	// StepExitCode is set for StepFailure and propagates to the process
	// exit code per spec.md §6.
	StepExitCode int
	cause        error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// HumanReadable reports the message to show a user directly, without
// internal type names or a stack trace, and whether Kind supports that
// treatment at all (Hashing is a programmer error and is never considered
// human-readable).
func (e *Error) HumanReadable() (string, bool) {
	switch e.Kind {
	case UserInput, StepFailure, Cycle, FileSystem:
		return e.Message, true
	default:
		return "", false
	}
}

// ExitCode computes the process exit code spec.md §6/§7 prescribes: the
// step's own exit code when known, 1 for any other generic failure, 0 for
// nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var be *Error
	if e, ok := err.(*Error); ok {
		be = e
	}
	if be != nil && be.Kind == StepFailure && be.StepExitCode != 0 {
		return be.StepExitCode
	}
	return 1
}

// Newf builds a Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a Error of the given kind wrapping cause, formatting message
// with cause's text appended.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, cause.Error())
	}
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// StepFailed builds the StepFailure error spec.md §7/§8 describes:
// the step's description and captured stderr, with its exit code
// propagated.
func StepFailed(stepDescription, stderr string, exitCode int) *Error {
	return &Error{
		Kind:         StepFailure,
		Message:      fmt.Sprintf("%s failed with exit code %d\n%s", stepDescription, exitCode, stderr),
		StepExitCode: exitCode,
	}
}

// HashingBug panics with a Hashing-kind error: a duplicate field name in a
// RuleKey.Builder indicates an internal bug, not a user-facing condition
// (spec.md §7, §8 property 3).
func HashingBug(format string, args ...interface{}) {
	panic(Newf(Hashing, format, args...))
}

// NotVisible builds the UserInput error spec.md §8 property 8 requires,
// in the exact message form the property test checks for.
func NotVisible(dependent, dependency fmt.Stringer) *Error {
	return Newf(UserInput, "%s depends on %s, which is not visible", dependent, dependency)
}

// DuplicateBuildConfigPackage builds the UserInput error for spec.md S4.
func DuplicateBuildConfigPackage(pkg string, owner fmt.Stringer) *Error {
	return Newf(UserInput,
		"Multiple android_build_config() rules with the same package %s in the transitive deps of %s.",
		pkg, owner)
}

// CycleError builds the Cycle error, listing the cycle's targets in the
// order they were discovered.
func CycleError(cycle []string) *Error {
	return Newf(Cycle, "cycle detected in target graph: %s", joinArrow(cycle))
}

func joinArrow(s []string) string {
	out := ""
	for i, v := range s {
		if i > 0 {
			out += " -> "
		}
		out += v
	}
	return out
}
