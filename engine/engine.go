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

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/cache"
	"github.com/mread/buck-sub000/eventlog"
	"github.com/mread/buck-sub000/filehash"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/metrics"
	"github.com/mread/buck-sub000/rulekey"
	"github.com/mread/buck-sub000/target"
)

// Engine is the C5 build engine / scheduler (spec.md §4.5).
type Engine struct {
	Graph   *graph.ActionGraph
	Cache   cache.ArtifactCache
	FileHashCache *filehash.Cache
	Bus     *eventlog.Bus
	Metrics *metrics.Recorder
	BuildID string

	projectRoot string
	outDir      string

	sem chan struct{} // bounds concurrent BUILDING/cache-fetch workers

	mu       sync.Mutex
	futures  map[string]*ruleFuture
}

// ruleFuture is the scheduler's bookkeeping for one BuildRule across this
// invocation. Exactly one goroutine drives a given future from
// INITIALIZED to a terminal state; every other caller just waits on done.
type ruleFuture struct {
	done chan struct{}

	mu            sync.Mutex
	state         State
	ruleKey       rulekey.RuleKey
	ruleKeyNoDeps rulekey.RuleKey
	err           error
}

func (f *ruleFuture) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *ruleFuture) getState() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *ruleFuture) setErr(s State, err error) {
	f.mu.Lock()
	f.state = s
	f.err = err
	f.mu.Unlock()
}

func (f *ruleFuture) setRuleKeys(total, withoutDeps rulekey.RuleKey) {
	f.mu.Lock()
	f.ruleKey = total
	f.ruleKeyNoDeps = withoutDeps
	f.mu.Unlock()
}

func (f *ruleFuture) getRuleKey() rulekey.RuleKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ruleKey
}

func (f *ruleFuture) getRuleKeyNoDeps() rulekey.RuleKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ruleKeyNoDeps
}

// New constructs an Engine. numWorkers bounds per-rule concurrency (spec.md
// §5: "Parallel execution across rules on a worker pool sized by user
// option").
func New(g *graph.ActionGraph, artifactCache cache.ArtifactCache, fhc *filehash.Cache, bus *eventlog.Bus, projectRoot, outDir string, numWorkers int) *Engine {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	buildID := uuid.New().String()
	return &Engine{
		Graph:         g,
		Cache:         artifactCache,
		FileHashCache: fhc,
		Bus:           bus,
		Metrics:       metrics.NewRecorder(buildID),
		BuildID:       buildID,
		projectRoot:   projectRoot,
		outDir:        outDir,
		sem:           make(chan struct{}, numWorkers),
		futures:       make(map[string]*ruleFuture),
	}
}

// Build builds every target in targets (and their transitive deps),
// returning the first terminal error encountered. Independent targets
// build concurrently; sibling execution order is otherwise unspecified
// (spec.md §5).
func (e *Engine) Build(targets []target.BuildTarget) error {
	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target.BuildTarget) {
			defer wg.Done()
			f := e.ensureFuture(t)
			<-f.done
			if s := f.getState(); s == Failed || s == Cancelled {
				errs[i] = f.err
			}
		}(i, t)
	}
	wg.Wait()

	if merr := e.Metrics.WriteTo(e.outDir); merr != nil {
		e.Bus.Warnf(fmt.Sprintf("metrics: failed to write %s/log/metrics.pb: %v", e.outDir, merr))
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ensureFuture returns the (possibly still-running) future for t,
// starting its build goroutine on first request. Concurrent callers for
// the same target share one future and one execution, so a rule's steps
// never run twice for one invocation.
func (e *Engine) ensureFuture(t target.BuildTarget) *ruleFuture {
	key := t.String()

	e.mu.Lock()
	if f, ok := e.futures[key]; ok {
		e.mu.Unlock()
		return f
	}
	f := &ruleFuture{done: make(chan struct{}), state: Initialized}
	e.futures[key] = f
	e.mu.Unlock()

	go e.run(t, f)
	return f
}

func (e *Engine) run(t target.BuildTarget, f *ruleFuture) {
	defer close(f.done)

	rule, ok := e.Graph.Lookup(t)
	if !ok {
		f.setErr(Failed, berrors.Newf(berrors.UserInput, "no such build rule: %s", t))
		e.Metrics.RecordFailed()
		return
	}

	// WAITING_FOR_DEPS -> DEPS_READY: build every dep, strictly before
	// this rule's own key computation (spec.md §5's ordering guarantee).
	f.setState(WaitingForDeps)
	depFutures := make([]*ruleFuture, 0, len(rule.AllDeps()))
	for _, dep := range rule.AllDeps() {
		depFutures = append(depFutures, e.ensureFuture(dep))
	}
	for _, df := range depFutures {
		<-df.done
	}
	for _, df := range depFutures {
		if s := df.getState(); s == Failed || s == Cancelled {
			// A dep failed (or was itself cancelled): this rule's steps
			// never run. Per spec.md §8 property 10, a rule transitively
			// downstream of a failure reaches CANCELLED, not FAILED.
			f.setErr(Cancelled, berrors.Newf(berrors.Cancelled, "cancelled: dependency of %s did not complete", t))
			e.Metrics.RecordCancelled()
			return
		}
	}
	f.setState(DepsReady)

	// DEPS_READY -> KEY_COMPUTED.
	ruleKey, ruleKeyNoDeps, err := e.computeRuleKey(rule, depFutures, rule.AllDeps())
	if err != nil {
		f.setErr(Failed, err)
		e.Metrics.RecordFailed()
		return
	}
	f.setRuleKeys(ruleKey, ruleKeyNoDeps)
	f.setState(KeyComputed)

	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	// KEY_COMPUTED: consult the artifact cache.
	if entry, err := e.Cache.Fetch(ruleKey); err == nil {
		f.setState(CacheHit)
		if ferr := e.materialize(rule, entry); ferr != nil {
			// I/O errors during cache fetch are treated as a miss
			// (spec.md §4.5 step "on miss").
			e.Bus.Warnf(fmt.Sprintf("cache: materializing %s failed, rebuilding: %v", t, ferr))
		} else {
			if init, ok := rule.Buildable.(graph.InitializableFromDisk); ok {
				if err := init.InitFromDisk(entry.Metadata); err != nil {
					f.setErr(Failed, err)
					e.Metrics.RecordFailed()
					return
				}
			}
			f.setState(Fetched)
			e.Metrics.RecordCacheHit()
			f.setState(Recording)
			f.setState(Done)
			e.Metrics.RecordDone()
			return
		}
	}
	e.Metrics.RecordCacheMiss()

	// CACHE_MISS -> BUILDING -> BUILT.
	f.setState(CacheMiss)
	f.setState(Building)
	if err := e.build(t, rule); err != nil {
		f.setErr(Failed, err)
		e.Metrics.RecordFailed()
		return
	}
	f.setState(Built)

	f.setState(Recording)
	f.setState(Done)
	e.Metrics.RecordDone()
}

// computeRuleKey runs the C3 hasher over rule's own inputs plus its deps'
// without-deps rule keys, ordered lexicographically by target (spec.md
// §4.3's canonical order). A without-deps key covers only that dep's own
// inputs, not the keys of the dep's own deps.
func (e *Engine) computeRuleKey(rule *graph.BuildRule, depFutures []*ruleFuture, deps []target.BuildTarget) (total, withoutDeps rulekey.RuleKey, err error) {
	b := rulekey.NewBuilder(rule.Target.String(), e.FileHashCache)
	if err := rule.Buildable.AppendToRuleKey(b); err != nil {
		return rulekey.RuleKey{}, rulekey.RuleKey{}, err
	}
	withoutDeps = b.BuildWithoutDeps()

	type depKey struct {
		t target.BuildTarget
		k rulekey.RuleKey
	}
	ordered := make([]depKey, 0, len(deps))
	byTarget := make(map[string]rulekey.RuleKey, len(deps))
	for i, d := range deps {
		byTarget[d.String()] = depFutures[i].getRuleKeyNoDeps()
	}
	sortedDeps := append([]target.BuildTarget(nil), deps...)
	target.SortTargets(sortedDeps)
	for _, d := range sortedDeps {
		ordered = append(ordered, depKey{t: d, k: byTarget[d.String()]})
	}
	keys := make([]rulekey.RuleKey, len(ordered))
	for i, dk := range ordered {
		keys[i] = dk.k
	}
	b.SetRuleNames("deps", keys)
	total = b.Build()
	return total, withoutDeps, nil
}

func (e *Engine) build(t target.BuildTarget, rule *graph.BuildRule) error {
	execCtx := &graph.ExecutionContext{
		ProjectRoot: e.projectRoot,
		OutputDir:   filepath.Join(e.outDir, "gen", rule.Target.BasePath(), rule.Target.ShortName()),
		ScratchDir:  filepath.Join(e.outDir, "bin", rule.Target.BasePath(), rule.Target.ShortName()),
	}
	if err := os.MkdirAll(execCtx.OutputDir, 0755); err != nil {
		return berrors.Wrap(berrors.FileSystem, err, "creating output dir for %s", t)
	}
	if err := os.MkdirAll(execCtx.ScratchDir, 0755); err != nil {
		return berrors.Wrap(berrors.FileSystem, err, "creating scratch dir for %s", t)
	}

	bctx := &graph.BuildableContext{}
	steps, err := rule.Buildable.Steps(execCtx, bctx)
	if err != nil {
		return berrors.Wrap(berrors.FileSystem, err, "preparing steps for %s", t)
	}

	for _, step := range steps {
		e.Bus.PostRule(t, step.Description())
		exitCode, err := step.Execute(execCtx)
		if err != nil {
			if be, ok := err.(*berrors.Error); ok && be.Kind == berrors.StepFailure {
				return be
			}
			return berrors.Wrap(berrors.FileSystem, err, "running step %s for %s", step.ShortName(), t)
		}
		if exitCode != 0 {
			return berrors.StepFailed(fmt.Sprintf("%s (%s)", step.Description(), t), "", exitCode)
		}
	}

	// RECORDING: write outputs + metadata to the cache.
	entry := &cache.Entry{Files: make(map[string][]byte), Metadata: bctx.Metadata}
	for _, p := range bctx.OutputPaths {
		data, rerr := os.ReadFile(p)
		if rerr != nil {
			continue
		}
		rel, rerr := filepath.Rel(execCtx.OutputDir, p)
		if rerr != nil {
			rel = filepath.Base(p)
		}
		entry.Files[rel] = data
	}
	future := e.lookupFuture(t)
	if future != nil {
		if err := e.Cache.Store(future.getRuleKey(), entry); err != nil {
			// Cache store errors: warn and continue; never fail the build
			// (spec.md §4.5).
			e.Bus.Warnf(fmt.Sprintf("cache: storing %s failed: %v", t, err))
		}
	}
	return nil
}

func (e *Engine) lookupFuture(t target.BuildTarget) *ruleFuture {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.futures[t.String()]
}

// materialize writes a fetched cache entry's files under rule's output
// directory, atomically: any write failure before all files land leaves
// no partial output under OutputDir, since materialize writes to a
// sibling temp directory first and renames it into place.
func (e *Engine) materialize(rule *graph.BuildRule, entry *cache.Entry) error {
	outDir := filepath.Join(e.outDir, "gen", rule.Target.BasePath(), rule.Target.ShortName())
	tmpDir := outDir + ".fetch-tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return err
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return err
	}
	for rel, data := range entry.Files {
		full := filepath.Join(tmpDir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			os.RemoveAll(tmpDir)
			return err
		}
		if err := os.WriteFile(full, data, 0644); err != nil {
			os.RemoveAll(tmpDir)
			return err
		}
	}
	if err := os.RemoveAll(outDir); err != nil {
		os.RemoveAll(tmpDir)
		return err
	}
	if err := os.Rename(tmpDir, outDir); err != nil {
		os.RemoveAll(tmpDir)
		return err
	}
	return nil
}

// RuleKeyFor returns the memoized total rule key for t, if its build has
// reached KEY_COMPUTED or later this invocation.
func (e *Engine) RuleKeyFor(t target.BuildTarget) (rulekey.RuleKey, bool) {
	f := e.lookupFuture(t)
	if f == nil {
		return rulekey.RuleKey{}, false
	}
	rk := f.getRuleKey()
	if rk.IsZero() {
		return rulekey.RuleKey{}, false
	}
	return rk, true
}

// StateFor returns t's current scheduler state this invocation.
func (e *Engine) StateFor(t target.BuildTarget) (State, bool) {
	f := e.lookupFuture(t)
	if f == nil {
		return Initialized, false
	}
	return f.getState(), true
}
