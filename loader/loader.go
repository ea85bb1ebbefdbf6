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

// Package loader reads build files (named BUILD, one per directory) and
// turns their rule declarations into graph.TargetNode values, the step
// that precedes C2's target-graph -> action-graph transform. Build files
// are Starlark, mirroring config.go's use of go.starlark.net for
// .buckconfig computed values and the teacher's bp2build reliance on the
// same engine for Android.bp-equivalent declarations.
package loader

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/coerce"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/target"
)

// BuildFileName is the file every directory's rule declarations live in,
// analogous to a BUCK/Android.bp file in the teacher.
const BuildFileName = "BUILD"

// decl is one rule declaration collected while executing a build file's
// Starlark program, before it is turned into a graph.TargetNode.
type decl struct {
	ruleType string
	name     string
	attrs    map[string]coerce.Value
	vis      []string
}

// LoadTree walks projectRoot for BuildFileName files and returns every
// declared rule as a graph.TargetNode, coerced against reg's registered
// descriptions.
func LoadTree(projectRoot string, reg *coerce.Registry) ([]graph.TargetNode, error) {
	var buildFiles []string
	err := filepath.WalkDir(projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == BuildFileName {
			buildFiles = append(buildFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, berrors.Wrap(berrors.FileSystem, err, "loader: walking %s", projectRoot)
	}
	sort.Strings(buildFiles)

	var nodes []graph.TargetNode
	for _, bf := range buildFiles {
		basePath, err := filepath.Rel(projectRoot, filepath.Dir(bf))
		if err != nil {
			return nil, err
		}
		if basePath == "." {
			basePath = ""
		}
		fileNodes, err := loadFile(bf, basePath, projectRoot, reg)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, fileNodes...)
	}
	return nodes, nil
}

// loadFile evaluates a single build file and decodes its declarations.
func loadFile(path, basePath, projectRoot string, reg *coerce.Registry) ([]graph.TargetNode, error) {
	var decls []decl

	thread := &starlark.Thread{Name: path}
	predeclared := starlark.StringDict{
		"glob": starlark.NewBuiltin("glob", globBuiltin(filepath.Join(projectRoot, basePath))),
	}
	for _, typeTag := range reg.TypeTags() {
		typeTag := typeTag
		predeclared[typeTag] = starlark.NewBuiltin(typeTag, ruleBuiltin(typeTag, &decls))
	}

	if _, err := starlark.ExecFile(thread, path, nil, predeclared); err != nil {
		return nil, berrors.Wrap(berrors.UserInput, err, "loader: evaluating %s", path)
	}

	nodes := make([]graph.TargetNode, 0, len(decls))
	for _, d := range decls {
		node, err := toTargetNode(d, basePath, projectRoot, reg)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// ruleBuiltin returns a Starlark builtin that records one declaration of
// ruleType into *decls each time a build file calls it.
func ruleBuiltin(ruleType string, decls *[]decl) func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: only keyword arguments are accepted", ruleType)
		}
		attrs := make(map[string]coerce.Value, len(kwargs))
		for _, kv := range kwargs {
			key := string(kv[0].(starlark.String))
			attrs[key] = fromStarlark(kv[1])
		}
		name, _ := attrs["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("%s: 'name' must be a non-empty string", ruleType)
		}
		vis := stringListAttr(attrs, "visibility")
		*decls = append(*decls, decl{ruleType: ruleType, name: name, attrs: attrs, vis: vis})
		return starlark.None, nil
	}
}

func stringListAttr(attrs map[string]coerce.Value, key string) []string {
	raw, ok := attrs[key]
	if !ok {
		return nil
	}
	list, ok := raw.([]coerce.Value)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// globBuiltin implements a minimal glob(["pattern", ...]) matching the
// teacher's build-file convenience function, resolving patterns relative
// to dir.
func globBuiltin(dir string) func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("glob: expected a single list-of-patterns argument")
		}
		patterns, ok := args[0].(*starlark.List)
		if !ok {
			return nil, fmt.Errorf("glob: argument must be a list of strings")
		}
		var matches []string
		for i := 0; i < patterns.Len(); i++ {
			p, ok := patterns.Index(i).(starlark.String)
			if !ok {
				return nil, fmt.Errorf("glob: pattern %d is not a string", i)
			}
			found, err := filepath.Glob(filepath.Join(dir, string(p)))
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				rel, err := filepath.Rel(dir, f)
				if err != nil {
					return nil, err
				}
				matches = append(matches, rel)
			}
		}
		sort.Strings(matches)
		out := make([]starlark.Value, len(matches))
		for i, m := range matches {
			out[i] = starlark.String(m)
		}
		return starlark.NewList(out), nil
	}
}

// fromStarlark converts a Starlark value to a coerce.Value, the reverse
// of what a real parser would hand coerce for any of string/bool/int/
// float/list/dict shaped attribute literals.
func fromStarlark(v starlark.Value) coerce.Value {
	switch x := v.(type) {
	case starlark.String:
		return string(x)
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		n, _ := x.Int64()
		return n
	case starlark.Float:
		return float64(x)
	case starlark.NoneType:
		return nil
	case *starlark.List:
		out := make([]coerce.Value, x.Len())
		for i := 0; i < x.Len(); i++ {
			out[i] = fromStarlark(x.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]coerce.Value, len(x))
		for i, e := range x {
			out[i] = fromStarlark(e)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]coerce.Value, x.Len())
		for _, item := range x.Items() {
			k, _ := starlark.AsString(item[0])
			out[k] = fromStarlark(item[1])
		}
		return out
	default:
		return v.String()
	}
}

// toTargetNode decodes d's raw attributes into reg's registered
// constructor-argument record via reflection, then builds a
// graph.TargetNode from the result.
func toTargetNode(d decl, basePath, projectRoot string, reg *coerce.Registry) (graph.TargetNode, error) {
	desc, ok := reg.Lookup(d.ruleType)
	if !ok {
		return graph.TargetNode{}, berrors.Newf(berrors.UserInput, "loader: no rule description registered for type %q", d.ruleType)
	}
	t, err := target.New(basePath, d.name)
	if err != nil {
		return graph.TargetNode{}, err
	}

	arg := desc.NewArg()
	declaredDeps, err := fillArg(arg, d.attrs, projectRoot)
	if err != nil {
		return graph.TargetNode{}, berrors.Wrap(berrors.UserInput, err, "loader: %s", t)
	}

	// Not every "...Deps"-suffixed field names actual target references
	// (android_manifest's Deps is a list of manifest file paths to merge,
	// not targets); silently skip anything that doesn't parse as a
	// canonical "//base:name" target instead of failing the whole load.
	var deps []target.BuildTarget
	seen := make(map[string]bool)
	for _, raw := range declaredDeps {
		dt, err := target.Parse(raw)
		if err != nil {
			continue
		}
		if seen[dt.String()] {
			continue
		}
		seen[dt.String()] = true
		deps = append(deps, dt)
	}

	vis, err := parseVisibility(d.vis)
	if err != nil {
		return graph.TargetNode{}, err
	}

	return graph.TargetNode{
		Target:       t,
		RuleType:     d.ruleType,
		Attributes:   arg,
		DeclaredDeps: deps,
		Visibility:   vis,
	}, nil
}

// fillArg populates arg's exported fields from attrs by name (via
// coerce.FieldName) and reports every field whose Go name ends in "Deps"
// so the caller can fold it into the TargetNode's DeclaredDeps, the
// convention every rule kind in this module's registries follows (see
// e.g. android/rules.go's LibraryArg.Deps / .ResourceDeps).
func fillArg(arg interface{}, attrs map[string]coerce.Value, projectRoot string) ([]string, error) {
	v := reflect.ValueOf(arg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rule description's NewArg must return a struct pointer, got %T", arg)
	}
	s := v.Elem()
	st := s.Type()

	var declaredDeps []string
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if !field.IsExported() {
			continue
		}
		attrName := coerce.FieldName(field.Name)
		raw, present := attrs[attrName]

		switch field.Type.Kind() {
		case reflect.String:
			if present {
				str, err := coerce.String(raw)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", attrName, err)
				}
				s.Field(i).SetString(str)
			}
		case reflect.Bool:
			if present {
				b, err := coerce.Bool(raw)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", attrName, err)
				}
				s.Field(i).SetBool(b)
			}
		case reflect.Int64, reflect.Int:
			if present {
				n, err := coerce.Int(raw)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", attrName, err)
				}
				s.Field(i).SetInt(n)
			}
		case reflect.Slice:
			if field.Type.Elem().Kind() != reflect.String {
				return nil, fmt.Errorf("%s: unsupported slice element type %s", attrName, field.Type.Elem())
			}
			var list []string
			if present {
				l, err := coerce.List(raw, coerce.String)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", attrName, err)
				}
				list = l
			}
			s.Field(i).Set(reflect.ValueOf(list))
			if strings.HasSuffix(field.Name, "Deps") {
				declaredDeps = append(declaredDeps, list...)
			}
		default:
			return nil, fmt.Errorf("%s: unsupported field type %s", attrName, field.Type)
		}
	}
	return declaredDeps, nil
}

// parseVisibility turns the raw "visibility" attribute's string forms
// ("PUBLIC", "//base/path/...", or an exact target string) into
// target.VisibilityPattern values. An empty declaration means no pattern
// matches at all, i.e. fully private (spec.md §3's visibility-pattern
// semantics: a rule with no patterns admits no dependent).
func parseVisibility(raw []string) ([]target.VisibilityPattern, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]target.VisibilityPattern, 0, len(raw))
	for _, v := range raw {
		switch {
		case v == "PUBLIC" || v == "//visibility:public":
			out = append(out, target.Public())
		case strings.HasSuffix(v, "/..."):
			out = append(out, target.Subdirectory(strings.TrimSuffix(v, "/...")))
		default:
			t, err := target.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("visibility: %w", err)
			}
			out = append(out, target.Exact(t))
		}
	}
	return out, nil
}
