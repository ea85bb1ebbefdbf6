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

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mread/buck-sub000/coerce"
	"github.com/mread/buck-sub000/genrule"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTreeBasicDecl(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "gen", BuildFileName), `genrule(
    name = "thing",
    cmd = "echo hi > $OUT",
    out = "thing.txt",
    srcs = ["a.txt"],
)
`)

	reg := coerce.NewRegistry()
	genrule.RegisterRule(reg)

	nodes, err := LoadTree(root, reg)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("LoadTree() returned %d nodes, want 1", len(nodes))
	}
	n := nodes[0]
	if n.RuleType != "genrule" {
		t.Errorf("RuleType = %q, want genrule", n.RuleType)
	}
	if got, want := n.Target.String(), "//gen:thing"; got != want {
		t.Errorf("Target = %q, want %q", got, want)
	}
	arg, ok := n.Attributes.(*genrule.Arg)
	if !ok {
		t.Fatalf("Attributes is %T, want *genrule.Arg", n.Attributes)
	}
	if arg.Out != "thing.txt" || arg.Cmd != "echo hi > $OUT" {
		t.Errorf("decoded Arg = %+v", arg)
	}
	if len(arg.Srcs) != 1 || arg.Srcs[0] != "a.txt" {
		t.Errorf("decoded Arg.Srcs = %v, want [a.txt]", arg.Srcs)
	}
}

func TestLoadTreeDepsResolveAcrossTargets(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lib", BuildFileName), `genrule(
    name = "base",
    cmd = "echo base > $OUT",
    out = "base.txt",
)
`)
	writeFile(t, filepath.Join(root, "app", BuildFileName), `genrule(
    name = "main",
    cmd = "echo main > $OUT",
    out = "main.txt",
    deps = ["//lib:base"],
)
`)

	reg := coerce.NewRegistry()
	genrule.RegisterRule(reg)

	nodes, err := LoadTree(root, reg)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	found := false
	for _, n := range nodes {
		if n.Target.ShortName() != "main" {
			continue
		}
		found = true
		if len(n.DeclaredDeps) != 1 || n.DeclaredDeps[0].String() != "//lib:base" {
			t.Errorf("DeclaredDeps = %v, want [//lib:base]", n.DeclaredDeps)
		}
	}
	if !found {
		t.Fatal("did not find //app:main in loaded nodes")
	}
}

func TestLoadTreeVisibilityPublic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lib", BuildFileName), `genrule(
    name = "base",
    cmd = "echo base > $OUT",
    out = "base.txt",
    visibility = ["PUBLIC"],
)
`)
	reg := coerce.NewRegistry()
	genrule.RegisterRule(reg)

	nodes, err := LoadTree(root, reg)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	if len(nodes[0].Visibility) != 1 {
		t.Fatalf("Visibility = %v, want one PUBLIC pattern", nodes[0].Visibility)
	}
}

func TestLoadTreeEmptyVisibilityIsPrivate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "lib", BuildFileName), `genrule(
    name = "base",
    cmd = "echo base > $OUT",
    out = "base.txt",
)
`)
	reg := coerce.NewRegistry()
	genrule.RegisterRule(reg)

	nodes, err := LoadTree(root, reg)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	if len(nodes[0].Visibility) != 0 {
		t.Errorf("Visibility = %v, want empty (fully private)", nodes[0].Visibility)
	}
}

func TestLoadTreeGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "a.txt"), "a")
	writeFile(t, filepath.Join(root, "pkg", "b.txt"), "b")
	writeFile(t, filepath.Join(root, "pkg", BuildFileName), `genrule(
    name = "gen",
    cmd = "cat $SRCS > $OUT",
    out = "out.txt",
    srcs = glob(["*.txt"]),
)
`)
	reg := coerce.NewRegistry()
	genrule.RegisterRule(reg)

	nodes, err := LoadTree(root, reg)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	arg := nodes[0].Attributes.(*genrule.Arg)
	if len(arg.Srcs) != 2 || arg.Srcs[0] != "a.txt" || arg.Srcs[1] != "b.txt" {
		t.Errorf("glob()-expanded Srcs = %v, want [a.txt b.txt]", arg.Srcs)
	}
}

func TestLoadTreeUnknownRuleTypeErrorsAtParseTime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", BuildFileName), `unregistered_rule_kind(name = "x")
`)
	reg := coerce.NewRegistry()
	genrule.RegisterRule(reg)

	if _, err := LoadTree(root, reg); err == nil {
		t.Errorf("LoadTree must error when a build file calls an unregistered rule-type builtin")
	}
}

func TestLoadTreeMissingOutDefersValidation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", BuildFileName), `genrule(
    name = "bad",
    cmd = "true",
)
`)
	reg := coerce.NewRegistry()
	genrule.RegisterRule(reg)

	// LoadTree itself only decodes attributes; genrule's own "out must not
	// be empty" validation runs later, in CreateBuildRule during graph
	// enhancement, so this should load successfully with an empty Out.
	nodes, err := LoadTree(root, reg)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	arg := nodes[0].Attributes.(*genrule.Arg)
	if arg.Out != "" {
		t.Errorf("Out = %q, want empty (validated later by CreateBuildRule)", arg.Out)
	}
}
