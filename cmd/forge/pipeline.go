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

package main

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/mread/buck-sub000/android"
	"github.com/mread/buck-sub000/cache"
	"github.com/mread/buck-sub000/cc"
	"github.com/mread/buck-sub000/coerce"
	"github.com/mread/buck-sub000/config"
	"github.com/mread/buck-sub000/engine"
	"github.com/mread/buck-sub000/eventlog"
	"github.com/mread/buck-sub000/filehash"
	"github.com/mread/buck-sub000/genrule"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/java"
	"github.com/mread/buck-sub000/loader"
	"github.com/mread/buck-sub000/python"
)

// session bundles everything a subcommand needs to resolve targets and
// run the engine, assembled once per invocation from globalFlags, the
// generalized counterpart of the single BuildConfig handle spec.md §9
// calls for threading through the scheduler rather than reading from
// package-level globals.
type session struct {
	cfg     config.Config
	graph   *graph.ActionGraph
	engine  *engine.Engine
	bus     *eventlog.Bus
	cache   cache.ArtifactCache
	fhc     *filehash.Cache
	outDir  string
}

// newRegistry wires every rule kind this module implements into one
// coerce.Registry, the union of android.RegisterAll, cc.RegisterAll,
// python.RegisterAll, java.RegisterAll, and genrule.RegisterRule.
func newRegistry() *coerce.Registry {
	reg := coerce.NewRegistry()
	android.RegisterAll(reg)
	cc.RegisterAll(reg)
	python.RegisterAll(reg)
	java.RegisterAll(reg)
	genrule.RegisterRule(reg)
	return reg
}

// newSession reads configuration, loads and enhances the target graph,
// and constructs the engine and its caches, ready for Build.
func newSession(flags *globalFlags) (*session, error) {
	projectRoot, err := filepath.Abs(flags.projectRoot)
	if err != nil {
		return nil, err
	}

	numWorkers := flags.jobs
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	cfg, err := config.New(projectRoot, filepath.Join(projectRoot, flags.buckconfig), numWorkers)
	if err != nil {
		return nil, err
	}

	reg := newRegistry()
	nodes, err := loader.LoadTree(projectRoot, reg)
	if err != nil {
		return nil, err
	}
	enhancer := graph.NewEnhancer(reg, projectRoot)
	actionGraph, err := enhancer.Transform(nodes)
	if err != nil {
		return nil, err
	}

	artifactCache, err := buildCache(cfg, flags, projectRoot)
	if err != nil {
		return nil, err
	}

	fhc, err := filehash.New(true)
	if err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	bus := eventlog.New(logger)

	outDir := filepath.Join(projectRoot, "buck-out")
	eng := engine.New(actionGraph, artifactCache, fhc, bus, projectRoot, outDir, numWorkers)

	return &session{
		cfg:    cfg,
		graph:  actionGraph,
		engine: eng,
		bus:    bus,
		cache:  artifactCache,
		fhc:    fhc,
		outDir: outDir,
	}, nil
}

// buildCache assembles the C4 multi-tier cache (spec.md §4.4): a local
// tier backed by cfg's [cache] dir, an optional remote HTTP tier, both
// wrapped in an AsyncCache so stores never block the engine worker that
// produced the artifact, and combined behind a MultiCache that reads
// local-first and backfills a hit from the remote tier.
func buildCache(cfg config.Config, flags *globalFlags, projectRoot string) (cache.ArtifactCache, error) {
	dir := filepath.Join(projectRoot, cfg.CacheDir())
	if flags.cacheDir != "" {
		dir = flags.cacheDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(projectRoot, dir)
		}
	}
	readOnly := cfg.CacheReadOnly()
	if flags.cacheMode != "" {
		readOnly = flags.cacheMode == "readonly"
	}

	var tiers []cache.ArtifactCache
	local, err := cache.NewLocalCache(dir, readOnly)
	if err != nil {
		return nil, err
	}
	tiers = append(tiers, cache.NewAsyncCache(local, 2, 64))

	httpURL := cfg.CacheHTTPURL()
	if flags.cacheURL != "" {
		httpURL = flags.cacheURL
	}
	if httpURL != "" {
		timeout := time.Duration(cfg.CacheTimeoutSeconds()) * time.Second
		remote := cache.NewRemoteHTTPCache(httpURL, timeout, readOnly, nil)
		tiers = append(tiers, cache.NewAsyncCache(remote, 4, 256))
	}

	return cache.NewMultiCache(tiers...), nil
}

// close releases the session's background resources (event bus, file
// hash watcher, async cache stores), reporting the aggregate store
// failure count the way spec.md §4.4 describes for a clean shutdown.
func (s *session) close() {
	n, err := s.cache.Close()
	if err != nil {
		s.bus.Warnf(fmt.Sprintf("cache: closing: %v", err))
	}
	if n > 0 {
		s.bus.Warnf(fmt.Sprintf("cache: %d artifact store(s) failed", n))
	}
	s.fhc.Close()
	s.bus.Close()
}
