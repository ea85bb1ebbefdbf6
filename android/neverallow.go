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

// neverallow.go implements a declarative policy check over the target
// graph, supplementing spec.md's target-graph section with a feature the
// original carries but the distillation dropped: a small set of rules
// that reject otherwise-valid targets by base path, rule type, or a
// forbidden dependency, grounded on android/neverallow.go in the teacher.
package android

import (
	"fmt"
	"strings"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/target"
)

// NeverallowRule is one declarative policy clause: a target matching
// every non-empty predicate field is rejected, with Reason shown to the
// user.
type NeverallowRule struct {
	// InBasePath restricts the rule to targets whose base path has this
	// prefix. Empty matches any base path.
	InBasePath string
	// RuleTypes restricts the rule to these rule types. Empty matches any
	// rule type.
	RuleTypes []string
	// ForbiddenDep rejects any target that declares a dependency on this
	// exact target.
	ForbiddenDep target.BuildTarget
	// HasForbiddenDep toggles whether ForbiddenDep is checked, since the
	// zero BuildTarget is itself a meaningful (if degenerate) value.
	HasForbiddenDep bool
	Reason          string
}

func (r NeverallowRule) matchesBasePath(t target.BuildTarget) bool {
	if r.InBasePath == "" {
		return true
	}
	return t.BasePath() == r.InBasePath || strings.HasPrefix(t.BasePath(), r.InBasePath+"/")
}

func (r NeverallowRule) matchesRuleType(ruleType string) bool {
	if len(r.RuleTypes) == 0 {
		return true
	}
	for _, rt := range r.RuleTypes {
		if rt == ruleType {
			return true
		}
	}
	return false
}

// NeverallowPolicy is an ordered collection of NeverallowRules, applied
// to every target in the graph.
type NeverallowPolicy struct {
	Rules []NeverallowRule
}

// Check evaluates every rule against (t, ruleType, deps), returning a
// UserInput berrors.Error for the first rule that matches, or nil if
// none do.
func (p NeverallowPolicy) Check(t target.BuildTarget, ruleType string, deps []target.BuildTarget) error {
	for _, r := range p.Rules {
		if !r.matchesBasePath(t) || !r.matchesRuleType(ruleType) {
			continue
		}
		if r.HasForbiddenDep {
			found := false
			for _, d := range deps {
				if d.Equal(r.ForbiddenDep) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		return berrors.Newf(berrors.UserInput, "%s violates neverallow policy: %s", t, r.Reason)
	}
	return nil
}

// String renders a rule the way it would appear in an audit report.
func (r NeverallowRule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "neverallow(")
	if r.InBasePath != "" {
		fmt.Fprintf(&b, "in_base_path=%s ", r.InBasePath)
	}
	if len(r.RuleTypes) > 0 {
		fmt.Fprintf(&b, "rule_types=%v ", r.RuleTypes)
	}
	if r.HasForbiddenDep {
		fmt.Fprintf(&b, "forbidden_dep=%s ", r.ForbiddenDep)
	}
	fmt.Fprintf(&b, "reason=%q)", r.Reason)
	return b.String()
}
