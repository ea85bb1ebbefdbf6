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
	"archive/zip"
	"fmt"
	"os"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/graph"
)

// EnsureOutputJarsExist creates an empty, valid zip archive at each path
// in paths that does not already exist. ProGuard only writes an -outjar
// when given at least one -injar with content; an android_library with
// no Java sources still needs a (syntactically valid, empty) output jar
// downstream so the dex step has something to merge. This is a
// deliberate quirk preserved from the original ahead-of-ProGuard
// behavior (see DESIGN.md's Open Question decision) rather than a
// general-purpose utility, so it lives next to ProguardStep rather than
// in a shared archive-handling package.
func EnsureOutputJarsExist(paths []string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return berrors.Wrap(berrors.FileSystem, err, "stat %s", p)
		}
		if err := createEmptyZip(p); err != nil {
			return err
		}
	}
	return nil
}

// EnsureOutputJarsStep wraps EnsureOutputJarsExist as a graph.Step so it
// can be scheduled directly after a ProguardStep, unconditionally, rather
// than left as a library call nothing invokes.
type EnsureOutputJarsStep struct {
	Paths []string
}

func (s *EnsureOutputJarsStep) ShortName() string { return "ensure_output_jars" }
func (s *EnsureOutputJarsStep) Description() string {
	return fmt.Sprintf("ensure %d proguard output jar(s) exist", len(s.Paths))
}
func (s *EnsureOutputJarsStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	if err := EnsureOutputJarsExist(s.Paths); err != nil {
		return 1, err
	}
	return 0, nil
}

// createEmptyZip writes a zero-entry, but structurally valid, zip
// archive (an "end of central directory" record and nothing else) at
// path.
func createEmptyZip(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return berrors.Wrap(berrors.FileSystem, err, "creating empty jar %s", path)
	}
	w := zip.NewWriter(f)
	if err := w.Close(); err != nil {
		f.Close()
		return berrors.Wrap(berrors.FileSystem, err, "finalizing empty jar %s", path)
	}
	return f.Close()
}
