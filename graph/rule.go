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

// Package graph holds the data model spec.md §3 defines (TargetNode,
// BuildRule, ActionGraph) and the C2 target-graph -> action-graph
// transformer (spec.md §4.2).
package graph

import (
	"github.com/mread/buck-sub000/rulekey"
	"github.com/mread/buck-sub000/target"
)

// TargetNode is the typed, immutable, post-coercion description of a rule
// before graph enhancement (spec.md §3).
type TargetNode struct {
	Target       target.BuildTarget
	RuleType     string
	Attributes   interface{}
	DeclaredDeps []target.BuildTarget
	Visibility   []target.VisibilityPattern
}

// Step is a single side-effecting unit of a rule's build action (spec.md
// §4.5, GLOSSARY). Execute must be idempotent-safe to retry only insofar
// as the runner never calls it twice for the same invocation; the runner
// stops at the first non-zero exit code.
type Step interface {
	ShortName() string
	Description() string
	Execute(ctx *ExecutionContext) (exitCode int, err error)
}

// ExecutionContext is threaded through a rule's Steps during BUILDING.
type ExecutionContext struct {
	ProjectRoot string
	OutputDir   string // buck-out/gen/<base_path>/<name> equivalent
	ScratchDir  string // buck-out/bin/<base_path>/<name> equivalent
}

// BuildableContext records a rule's produced artifact paths and string
// metadata during RECORDING (spec.md §4.5 step 5), ahead of being written
// to the cache.
type BuildableContext struct {
	OutputPaths []string
	Metadata    map[string]string
}

// RecordArtifact registers a produced output path.
func (c *BuildableContext) RecordArtifact(path string) {
	c.OutputPaths = append(c.OutputPaths, path)
}

// RecordMetadata stores a string metadata key, used to restore properties
// that aren't re-derivable from outputs alone (spec.md §3's
// ArtifactCacheEntry, e.g. a linear-alloc estimate for dex splitting).
func (c *BuildableContext) RecordMetadata(key, value string) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	c.Metadata[key] = value
}

// Buildable is the operational aspect of a BuildRule (GLOSSARY): it
// contributes the rule's own fields to a RuleKey.Builder and, on a cache
// miss, produces the ordered sequence of Steps that reconstruct its
// outputs.
type Buildable interface {
	// AppendToRuleKey contributes this rule's own inputs (not its deps)
	// to b, ahead of SetRuleNames being called by the C3 hasher.
	AppendToRuleKey(b *rulekey.Builder) error
	// Steps returns the ordered build actions to run on a cache miss.
	Steps(ctx *ExecutionContext, bctx *BuildableContext) ([]Step, error)
}

// InitializableFromDisk is implemented by a Buildable whose in-memory
// build output (e.g. a classpath entry list) must be reconstructed from
// recorded metadata after a cache hit, without re-running Steps (spec.md
// §4.5 step 4).
type InitializableFromDisk interface {
	InitFromDisk(metadata map[string]string) error
}

// AbiKeyed is implemented by a Buildable that exposes a narrower ABI key
// in addition to its full rule key (spec.md §4.3).
type AbiKeyed interface {
	AbiKey() rulekey.RuleKey
	AbiKeyForDeps() rulekey.RuleKey
}

// BuildRule is a node in the action graph (spec.md §3).
type BuildRule struct {
	Target       target.BuildTarget
	RuleType     string
	DeclaredDeps []target.BuildTarget
	// ExtraDeps are dependencies introduced by graph enhancement and not
	// visible to the user; they affect caching but not classpath
	// semantics (spec.md §3).
	ExtraDeps           []target.BuildTarget
	Visibility          []target.VisibilityPattern
	ProjectFilesystemRef string
	Buildable            Buildable
}

// AllDeps returns DeclaredDeps followed by ExtraDeps.
func (r *BuildRule) AllDeps() []target.BuildTarget {
	out := make([]target.BuildTarget, 0, len(r.DeclaredDeps)+len(r.ExtraDeps))
	out = append(out, r.DeclaredDeps...)
	out = append(out, r.ExtraDeps...)
	return out
}
