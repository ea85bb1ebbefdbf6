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
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/rulekey"
)

// Phony is a Buildable with no outputs of its own: an alias that groups
// other targets under one name, grounded on android/phony.go's "phony
// rule" concept in the teacher. It never contributes files to the
// action graph; it exists purely so a single target can name a build of
// several others.
type Phony struct {
	GroupName string
}

// AppendToRuleKey implements graph.Buildable. A phony rule's own key is
// just its name: its deps (the targets it groups) already participate
// in the enclosing BuildRule's SetRuleNames contribution.
func (p *Phony) AppendToRuleKey(b *rulekey.Builder) error {
	b.Set("phony_group", p.GroupName)
	return nil
}

// Steps implements graph.Buildable. A phony rule has nothing to build:
// its deps are what actually produce artifacts.
func (p *Phony) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	return nil, nil
}
