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

// Package android holds the Android-specific graph-enhancement logic
// spec.md §4.2 describes: packageable collection, dex splitting, and APK
// assembly. Grounded on android/packaging.go's PackagingSpec/gob-snapshot
// shape and java/dex.go's dex property surface in the teacher.
package android

import (
	"fmt"
	"sort"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/depset"
	"github.com/mread/buck-sub000/target"
)

// ClasspathEntry is a single jar contributed to a binary's classpath,
// named by the rule that produced it.
type ClasspathEntry struct {
	Producer target.BuildTarget
	JarPath  string
}

// Packageable is implemented by any rule kind that contributes artifacts
// to an Android package (spec.md §4.2's "every rule that is
// AndroidPackageable").
type Packageable interface {
	Target() target.BuildTarget
	RequiredPackageables() []target.BuildTarget
	AddToCollector(c *Collector)
}

// Collector accumulates an AndroidPackageableCollection via a depth-first
// post-order traversal (spec.md §3, §4.2).
type Collector struct {
	visited map[string]bool

	resourceDirs  *depset.Builder[string]
	nativeLibDirs *depset.Builder[string]
	assetDirs     *depset.Builder[string]
	manifests     *depset.Builder[string]
	proguardConfs *depset.Builder[string]

	classpathToDex    *depset.Builder[ClasspathEntry]
	noDxClasspath     *depset.Builder[ClasspathEntry]

	buildConfigs     map[string][]string // java package -> constants, dup detection
	buildConfigOwner map[string]target.BuildTarget

	classHashesByLibrary map[string]map[string]string // library target -> class name -> hash

	excludeFromDex   map[string]bool
	excludeResources map[string]bool

	// apkTarget names the android_binary this Collector is gathering for,
	// used only to phrase the DuplicateBuildConfigPackage error the way
	// spec.md §8 S4 expects.
	apkTarget target.BuildTarget
	// err records the first error raised by an Add* call (currently only
	// AddBuildConfig can fail); Visit keeps walking after an error so the
	// full duplicate set can still be collected for the build, but Build
	// on a Collector with a pending error should not be trusted by the
	// caller, which must check Err first.
	err error
}

// NewCollector constructs an empty Collector for apkTarget's assembly.
// excludeFromDex and excludeResources name targets whose
// classpath/resource contributions are diverted or dropped per spec.md
// §4.2's collector rules.
func NewCollector(apkTarget target.BuildTarget, excludeFromDex, excludeResources []target.BuildTarget) *Collector {
	exDex := make(map[string]bool, len(excludeFromDex))
	for _, t := range excludeFromDex {
		exDex[t.String()] = true
	}
	exRes := make(map[string]bool, len(excludeResources))
	for _, t := range excludeResources {
		exRes[t.String()] = true
	}
	return &Collector{
		visited:              make(map[string]bool),
		resourceDirs:         depset.NewBuilder[string](),
		nativeLibDirs:        depset.NewBuilder[string](),
		assetDirs:            depset.NewBuilder[string](),
		manifests:            depset.NewBuilder[string](),
		proguardConfs:        depset.NewBuilder[string](),
		classpathToDex:       depset.NewBuilder[ClasspathEntry](),
		noDxClasspath:        depset.NewBuilder[ClasspathEntry](),
		buildConfigs:         make(map[string][]string),
		buildConfigOwner:     make(map[string]target.BuildTarget),
		classHashesByLibrary: make(map[string]map[string]string),
		excludeFromDex:       exDex,
		excludeResources:     exRes,
		apkTarget:            apkTarget,
	}
}

// Err returns the first error raised while populating the Collector, if
// any (spec.md §8 S4's duplicate android_build_config detection).
func (c *Collector) Err() error { return c.err }

// Visit runs the depth-first post-order traversal rooted at root,
// guarded by Collector's own visited set so add_to_collector is invoked
// exactly once per packageable (spec.md §4.2).
func Visit(root Packageable, lookup func(target.BuildTarget) (Packageable, bool), c *Collector) {
	key := root.Target().String()
	if c.visited[key] {
		return
	}
	c.visited[key] = true
	for _, depTarget := range root.RequiredPackageables() {
		dep, ok := lookup(depTarget)
		if !ok {
			continue
		}
		Visit(dep, lookup, c)
	}
	root.AddToCollector(c)
}

// AddResourceDir records a resource directory contributed by owner,
// unless owner is in the exclude-resources set (spec.md §4.2: "A target
// in the 'exclude resources' set contributes nothing").
func (c *Collector) AddResourceDir(owner target.BuildTarget, dir string) {
	if c.excludeResources[owner.String()] {
		return
	}
	c.resourceDirs.Add(dir)
}

// AddNativeLibDir records a native library directory.
func (c *Collector) AddNativeLibDir(owner target.BuildTarget, dir string) {
	if c.excludeResources[owner.String()] {
		return
	}
	c.nativeLibDirs.Add(dir)
}

// AddAssetDir records an asset directory.
func (c *Collector) AddAssetDir(owner target.BuildTarget, dir string) {
	if c.excludeResources[owner.String()] {
		return
	}
	c.assetDirs.Add(dir)
}

// AddManifest records a manifest file.
func (c *Collector) AddManifest(owner target.BuildTarget, path string) {
	if c.excludeResources[owner.String()] {
		return
	}
	c.manifests.Add(path)
}

// AddProguardConfig records a ProGuard config file.
func (c *Collector) AddProguardConfig(path string) {
	c.proguardConfs.Add(path)
}

// AddClasspathEntry routes owner's jar into the dex or no-dx bucket,
// per spec.md §4.2: "A target in the 'exclude-from-dex' set contributes
// its classpath entries to a no-dx bucket instead of the dex bucket."
func (c *Collector) AddClasspathEntry(owner target.BuildTarget, jarPath string) {
	entry := ClasspathEntry{Producer: owner, JarPath: jarPath}
	if c.excludeFromDex[owner.String()] {
		c.noDxClasspath.Add(entry)
		return
	}
	c.classpathToDex.Add(entry)
}

// AddBuildConfig records a java_package's generated constants. If pkg
// was already added by a different owner, it records (but does not
// raise) a DuplicateBuildConfigPackage error on the Collector, retrieved
// via Err after the traversal completes (spec.md §4.2, §8 S4).
func (c *Collector) AddBuildConfig(owner target.BuildTarget, pkg string, constants []string) {
	if existingOwner, ok := c.buildConfigOwner[pkg]; ok && !existingOwner.Equal(owner) {
		if c.err == nil {
			c.err = berrors.DuplicateBuildConfigPackage(pkg, c.apkTarget)
		}
		return
	}
	c.buildConfigs[pkg] = constants
	c.buildConfigOwner[pkg] = owner
}

// AddClassHashes records a library's per-class ABI hash map, used by the
// smart-dexing hash comparison (spec.md §4.2's "Smart dexing").
func (c *Collector) AddClassHashes(owner target.BuildTarget, classHashes map[string]string) {
	c.classHashesByLibrary[owner.String()] = classHashes
}

// Collection is the finished AndroidPackageableCollection (spec.md §3),
// rendered in root-to-leaf order (spec.md §4.2, §8 property 4).
type Collection struct {
	ResourceDirs          []string
	NativeLibDirs         []string
	AssetDirs             []string
	Manifests             []string
	ProguardConfigs       []string
	ClasspathEntriesToDex []ClasspathEntry
	NoDxClasspathEntries  []ClasspathEntry
	BuildConfigs          map[string][]string
	ClassHashesByLibrary  map[string]map[string]string
}

// Build renders the accumulated Collector state into a Collection,
// reversing the post-order aggregation so consumers see root-to-leaf
// order (spec.md §4.2's last bullet).
func (c *Collector) Build() Collection {
	bc := make(map[string][]string, len(c.buildConfigs))
	for k, v := range c.buildConfigs {
		bc[k] = v
	}
	chashes := make(map[string]map[string]string, len(c.classHashesByLibrary))
	for k, v := range c.classHashesByLibrary {
		chashes[k] = v
	}
	return Collection{
		ResourceDirs:          c.resourceDirs.Values(depset.TopologicalReversed),
		NativeLibDirs:         c.nativeLibDirs.Values(depset.TopologicalReversed),
		AssetDirs:             c.assetDirs.Values(depset.TopologicalReversed),
		Manifests:             c.manifests.Values(depset.TopologicalReversed),
		ProguardConfigs:       c.proguardConfs.Values(depset.TopologicalReversed),
		ClasspathEntriesToDex: c.classpathToDex.Values(depset.TopologicalReversed),
		NoDxClasspathEntries:  c.noDxClasspath.Values(depset.TopologicalReversed),
		BuildConfigs:          bc,
		ClassHashesByLibrary:  chashes,
	}
}

// SortedBuildConfigPackages returns the Collection's build_config java
// packages in sorted order, for deterministic generation order.
func (col Collection) SortedBuildConfigPackages() []string {
	pkgs := make([]string, 0, len(col.BuildConfigs))
	for p := range col.BuildConfigs {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs
}

// DescribeNoDx renders the no-dx classpath entries the way `buck audit`
// would list "no_dx_classpath_entries" (spec.md S3's worked scenario).
func (col Collection) DescribeNoDx() []string {
	out := make([]string, 0, len(col.NoDxClasspathEntries))
	for _, e := range col.NoDxClasspathEntries {
		out = append(out, fmt.Sprintf("%s -> %s", e.Producer, e.JarPath))
	}
	return out
}
