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

import "sync"

// Description is what spec.md §4.1 calls a rule type's "description": a
// type tag, a constructor-argument record type, and a factory that turns
// coerced attributes into a build rule. CreateBuildRule's return type is
// left as interface{} here since this package does not know about
// graph.BuildRule (coerce sits below graph in the dependency order).
type Description struct {
	TypeTag string
	// NewArg returns a fresh, zero-valued constructor-argument record for
	// this rule type. Coercion fills its fields in place.
	NewArg func() interface{}
	// CreateBuildRule is called once per target node of this type during
	// graph enhancement (C2).
	CreateBuildRule func(params interface{}, resolver Resolver, arg interface{}) (interface{}, error)
}

// Registry maps a rule type's tag to its Description. Duplicate
// registration is last-wins, per spec.md §4.1.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]Description
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{descs: make(map[string]Description)}
}

// Register adds or replaces the Description for desc.TypeTag.
func (r *Registry) Register(desc Description) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descs[desc.TypeTag] = desc
}

// Lookup returns the Description registered for typeTag, if any.
func (r *Registry) Lookup(typeTag string) (Description, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descs[typeTag]
	return d, ok
}

// TypeTags returns every registered type tag, for diagnostics (e.g. `targets
// --type` in spec.md §6).
func (r *Registry) TypeTags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.descs))
	for t := range r.descs {
		out = append(out, t)
	}
	return out
}
