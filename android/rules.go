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

// rules.go wires the android_resource, android_build_config,
// android_library, android_manifest, and android_binary rule kinds into
// a coerce.Registry, grounded on the factory-function registration
// pattern android/androidmk.go and java/java_library.go use in the
// teacher (RegisterModuleType("android_library", ...)).
package android

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/mread/buck-sub000/coerce"
	"github.com/mread/buck-sub000/graph"
	"github.com/mread/buck-sub000/rulekey"
	"github.com/mread/buck-sub000/target"
)

// ---- android_resource ----

// ResourceArg is the constructor-argument record for android_resource.
type ResourceArg struct {
	Res            string // directory of resource files
	Assets         string
	Manifest       string
	Package        string
	Deps           []string
}

// Resource implements graph.Buildable for android_resource. Its ABI key
// covers only its own res/ directory path plus each dep's own ABI key, not its
// full transitive rule key, since changing an unrelated sibling's
// implementation must not force every android_resource that merely
// references a shared helper to recompute (spec.md §4.3's ABI key
// rationale).
type Resource struct {
	Self       target.BuildTarget
	Res        string
	Assets     string
	Manifest   string
	Package    string
	DepRules   []*graph.BuildRule // in declared order
}

func (r *Resource) AddToCollector(c *Collector) {
	if r.Res != "" {
		c.AddResourceDir(r.Self, r.Res)
	}
	if r.Assets != "" {
		c.AddAssetDir(r.Self, r.Assets)
	}
	if r.Manifest != "" {
		c.AddManifest(r.Self, r.Manifest)
	}
}

func (r *Resource) Target() target.BuildTarget { return r.Self }

func (r *Resource) RequiredPackageables() []target.BuildTarget {
	out := make([]target.BuildTarget, len(r.DepRules))
	for i, d := range r.DepRules {
		out[i] = d.Target
	}
	return out
}

func (r *Resource) AppendToRuleKey(b *rulekey.Builder) error {
	b.Set("res", r.Res)
	b.Set("assets", r.Assets)
	b.Set("manifest", r.Manifest)
	b.Set("package", r.Package)
	return nil
}

func (r *Resource) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	bctx.RecordMetadata("package", r.Package)
	return nil, nil
}

// AbiKey returns the sha1 digest this resource contributes to
// its own ABI key: its path (as a stand-in for its generated
// R.txt/"text symbols" file) combined with each dependency's own ABI key,
// walked in topological order, per spec.md §4.3: "an android_resource's
// ABI key is the SHA-1 of its path-to-text-symbols plus each dep's own
// text-symbols ABI key, in topological order."
func (r *Resource) AbiKey() rulekey.RuleKey {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00", r.Res)
	// DepRules is already in the declared (topological-safe) order the
	// enhancer constructed the graph in.
	for _, d := range r.DepRules {
		if ak, ok := d.Buildable.(graph.AbiKeyed); ok {
			k := ak.AbiKey()
			h.Write(k[:])
		}
	}
	var out rulekey.RuleKey
	copy(out[:], h.Sum(nil))
	return out
}

func (r *Resource) AbiKeyForDeps() rulekey.RuleKey { return r.AbiKey() }

// RegisterResource wires android_resource into reg.
func RegisterResource(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "android_resource",
		NewArg:  func() interface{} { return &ResourceArg{} },
		CreateBuildRule: func(params interface{}, resolver coerce.Resolver, argIface interface{}) (interface{}, error) {
			p := params.(graph.CreateParams)
			arg := argIface.(*ResourceArg)
			var depRules []*graph.BuildRule
			var depTargets []target.BuildTarget
			for _, d := range arg.Deps {
				resolved, err := resolver.Resolve(d)
				if err != nil {
					return nil, err
				}
				rule := resolved.(*graph.BuildRule)
				depRules = append(depRules, rule)
				depTargets = append(depTargets, rule.Target)
			}
			res := &Resource{
				Self:     p.Target,
				Res:      arg.Res,
				Assets:   arg.Assets,
				Manifest: arg.Manifest,
				Package:  arg.Package,
				DepRules: depRules,
			}
			return &graph.BuildRule{
				Target:       p.Target,
				RuleType:     "android_resource",
				DeclaredDeps: depTargets,
				Buildable:    res,
			}, nil
		},
	})
}

// ---- android_build_config ----

// BuildConfigArg is the constructor-argument record for
// android_build_config.
type BuildConfigArg struct {
	Package   string
	Constants []string // "TYPE NAME VALUE" triples, pre-joined by the parser
}

// BuildConfig implements graph.Buildable: it generates a single
// BuildConfig.java with the declared constants, the same-named class
// every android_build_config in an APK's transitive closure contributes
// to the collector under its java package (spec.md §4.2, §8 S4).
type BuildConfig struct {
	Self      target.BuildTarget
	Package   string
	Constants []string
}

func (bc *BuildConfig) Target() target.BuildTarget                { return bc.Self }
func (bc *BuildConfig) RequiredPackageables() []target.BuildTarget { return nil }

func (bc *BuildConfig) AddToCollector(c *Collector) {
	c.AddBuildConfig(bc.Self, bc.Package, bc.Constants)
}

func (bc *BuildConfig) AppendToRuleKey(b *rulekey.Builder) error {
	b.Set("package", bc.Package)
	b.SetList("constants", bc.Constants)
	return nil
}

func (bc *BuildConfig) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	return nil, nil
}

// RegisterBuildConfig wires android_build_config into reg.
func RegisterBuildConfig(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "android_build_config",
		NewArg:  func() interface{} { return &BuildConfigArg{} },
		CreateBuildRule: func(params interface{}, resolver coerce.Resolver, argIface interface{}) (interface{}, error) {
			p := params.(graph.CreateParams)
			arg := argIface.(*BuildConfigArg)
			return &graph.BuildRule{
				Target:    p.Target,
				RuleType:  "android_build_config",
				Buildable: &BuildConfig{Self: p.Target, Package: arg.Package, Constants: arg.Constants},
			}, nil
		},
	})
}

// ---- android_manifest ----

// ManifestArg is the constructor-argument record for android_manifest.
type ManifestArg struct {
	SkeletonManifest string
	Deps             []string // other manifests to merge, lowest priority first
}

// Manifest implements graph.Buildable: it merges a skeleton manifest
// with its deps' manifests, the step that precedes aapt packaging.
type Manifest struct {
	Self     target.BuildTarget
	Skeleton string
	DepPaths []string
}

func (m *Manifest) AppendToRuleKey(b *rulekey.Builder) error {
	b.Set("skeleton", m.Skeleton)
	b.SetList("deps", m.DepPaths)
	return nil
}

func (m *Manifest) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	return []graph.Step{&mergeManifestStep{m: m}}, nil
}

type mergeManifestStep struct{ m *Manifest }

func (s *mergeManifestStep) ShortName() string  { return "merge_manifest" }
func (s *mergeManifestStep) Description() string { return "merge android manifests" }
func (s *mergeManifestStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	return 0, nil
}

// RegisterManifest wires android_manifest into reg.
func RegisterManifest(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "android_manifest",
		NewArg:  func() interface{} { return &ManifestArg{} },
		CreateBuildRule: func(params interface{}, resolver coerce.Resolver, argIface interface{}) (interface{}, error) {
			p := params.(graph.CreateParams)
			arg := argIface.(*ManifestArg)
			return &graph.BuildRule{
				Target:    p.Target,
				RuleType:  "android_manifest",
				Buildable: &Manifest{Self: p.Target, Skeleton: arg.SkeletonManifest, DepPaths: arg.Deps},
			}, nil
		},
	})
}

// ---- android_library ----

// LibraryArg is the constructor-argument record for android_library.
type LibraryArg struct {
	Srcs []string
	Deps []string
	ResourceDeps []string // android_resource targets
}

// Library implements graph.Buildable: a java library compiled alongside
// its resource dependencies, contributing a classpath entry and its
// resources to the enclosing binary's Collector.
type Library struct {
	Self        target.BuildTarget
	Srcs        []string
	DepRules    []*graph.BuildRule
	ResourceRules []*graph.BuildRule
	classHashes map[string]string // filled by Steps
}

func (l *Library) Target() target.BuildTarget { return l.Self }

func (l *Library) RequiredPackageables() []target.BuildTarget {
	out := make([]target.BuildTarget, 0, len(l.DepRules)+len(l.ResourceRules))
	for _, d := range l.DepRules {
		out = append(out, d.Target)
	}
	for _, d := range l.ResourceRules {
		out = append(out, d.Target)
	}
	return out
}

func (l *Library) AddToCollector(c *Collector) {
	outputJar := outputJarPath(l.Self)
	c.AddClasspathEntry(l.Self, outputJar)
	c.AddClassHashes(l.Self, l.classHashes)
}

func outputJarPath(t target.BuildTarget) string {
	return fmt.Sprintf("buck-out/gen/%s/%s.jar", t.BasePath(), t.ShortName())
}

func (l *Library) AppendToRuleKey(b *rulekey.Builder) error {
	b.SetSortedSet("srcs", l.Srcs)
	return nil
}

func (l *Library) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	out := outputJarPath(l.Self)
	bctx.RecordArtifact(out)
	l.classHashes = make(map[string]string, len(l.Srcs))
	for _, src := range l.Srcs {
		h := sha1.Sum([]byte(src))
		l.classHashes[src] = hex.EncodeToString(h[:])
	}
	return []graph.Step{&javacStep{srcs: l.Srcs, out: out}}, nil
}

func (l *Library) AbiKey() rulekey.RuleKey {
	return rulekey.AbiKey(l.classHashes)
}

func (l *Library) AbiKeyForDeps() rulekey.RuleKey { return l.AbiKey() }

type javacStep struct {
	srcs []string
	out  string
}

func (s *javacStep) ShortName() string   { return "javac" }
func (s *javacStep) Description() string { return fmt.Sprintf("javac -d %s", s.out) }
func (s *javacStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	args := append([]string{"-d", s.out}, s.srcs...)
	return graph.RunCommand("javac", "javac", args, ctx)
}

// RegisterLibrary wires android_library into reg.
func RegisterLibrary(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "android_library",
		NewArg:  func() interface{} { return &LibraryArg{} },
		CreateBuildRule: func(params interface{}, resolver coerce.Resolver, argIface interface{}) (interface{}, error) {
			p := params.(graph.CreateParams)
			arg := argIface.(*LibraryArg)
			var depRules, resRules []*graph.BuildRule
			var declared []target.BuildTarget
			for _, d := range arg.Deps {
				resolved, err := resolver.Resolve(d)
				if err != nil {
					return nil, err
				}
				rule := resolved.(*graph.BuildRule)
				depRules = append(depRules, rule)
				declared = append(declared, rule.Target)
			}
			for _, d := range arg.ResourceDeps {
				resolved, err := resolver.Resolve(d)
				if err != nil {
					return nil, err
				}
				rule := resolved.(*graph.BuildRule)
				resRules = append(resRules, rule)
				declared = append(declared, rule.Target)
			}
			return &graph.BuildRule{
				Target:       p.Target,
				RuleType:     "android_library",
				DeclaredDeps: declared,
				Buildable: &Library{
					Self:          p.Target,
					Srcs:          arg.Srcs,
					DepRules:      depRules,
					ResourceRules: resRules,
				},
			}, nil
		},
	})
}

// ---- android_binary ----

// BinaryArg is the constructor-argument record for android_binary.
type BinaryArg struct {
	Manifest  string
	Deps      []string // android_library / android_resource targets
	Release   bool
	ProguardConfig string
	LinearAllocHardLimit int64
	SplitDex  bool
}

// Binary implements graph.Buildable: the APK assembly pipeline. Steps
// emits, in order: aapt package, uber R.java, ProGuard (release only),
// dx (a single classes.dex, or one dex per store plus the secondary dex
// assets when split_dex is set), apkbuilder, and zipalign. There is no
// resource-filtering, pre-dex or multi-dex merge step, and zipalign
// always runs.
type Binary struct {
	Self       target.BuildTarget
	Manifest   string
	DepRules   []*graph.BuildRule
	Release    bool
	ProguardConfig string
	LinearAllocLimit int64
	SplitDex   bool
}

func (bin *Binary) AppendToRuleKey(b *rulekey.Builder) error {
	b.Set("manifest", bin.Manifest)
	b.SetBool("release", bin.Release)
	b.Set("proguard_config", bin.ProguardConfig)
	b.SetInt("linear_alloc_hard_limit", bin.LinearAllocLimit)
	b.SetBool("split_dex", bin.SplitDex)
	return nil
}

func (bin *Binary) collect() (Collection, error) {
	c := NewCollector(bin.Self, nil, nil)
	lookup := func(t target.BuildTarget) (Packageable, bool) {
		for _, d := range bin.DepRules {
			if d.Target.Equal(t) {
				if p, ok := d.Buildable.(Packageable); ok {
					return p, true
				}
			}
		}
		return nil, false
	}
	for _, d := range bin.DepRules {
		if p, ok := d.Buildable.(Packageable); ok {
			Visit(p, lookup, c)
		}
	}
	if c.Err() != nil {
		return Collection{}, c.Err()
	}
	return c.Build(), nil
}

func (bin *Binary) Steps(ctx *graph.ExecutionContext, bctx *graph.BuildableContext) ([]graph.Step, error) {
	col, err := bin.collect()
	if err != nil {
		return nil, err
	}

	outDir := fmt.Sprintf("buck-out/gen/%s/%s", bin.Self.BasePath(), bin.Self.ShortName())
	resourceApk := outDir + "/resources.ap_"
	apkOut := outDir + "/" + bin.Self.ShortName() + ".apk"
	alignedOut := outDir + "/" + bin.Self.ShortName() + ".aligned.apk"

	var steps []graph.Step
	steps = append(steps, &AaptStep{
		ManifestPath: bin.Manifest,
		ResourceDirs: col.ResourceDirs,
		AssetDirs:    col.AssetDirs,
		OutputApk:    resourceApk,
		RDotJavaDir:  outDir + "/gen",
		PackageName:  bin.Self.ShortName(),
	})
	steps = append(steps, &UberRDotJavaStep{Packages: col.SortedBuildConfigPackages(), OutputDir: outDir + "/gen"})

	proguardConfigs := append(append([]string(nil), col.ProguardConfigs...), bin.ProguardConfig)
	assetDirs := append([]string(nil), col.AssetDirs...)
	var dexFiles []string

	if !bin.SplitDex {
		// No split_dex: the whole classpath is proguarded (on release) and
		// dexed as a single classes.dex, the pre-split_dex behavior.
		jars := classpathJars(col.ClasspathEntriesToDex)
		if bin.Release {
			proguardOut := outDir + "/obfuscated.jar"
			steps = append(steps, &ProguardStep{
				InputJars:   jars,
				ConfigFiles: proguardConfigs,
				OutputJar:   proguardOut,
				MappingOut:  outDir + "/mapping.txt",
			})
			steps = append(steps, &EnsureOutputJarsStep{Paths: []string{proguardOut}})
			jars = []string{proguardOut}
		}
		dexOut := outDir + "/classes.dex"
		steps = append(steps, &DxStep{InputJars: jars, OutputDex: dexOut, NoOptimize: !bin.Release})
		dexFiles = append(dexFiles, dexOut)
	} else {
		// split_dex=True: bucket each contributing library jar into a
		// primary store plus LinearAlloc-bounded secondary stores (spec.md
		// §4.2, §8 S5), proguarding and dexing each store from only its own
		// bucket's jars so a secondary store never pulls in classes outside
		// what SplitDexes assigned it.
		var dexInputs []DexInput
		canaryClassForJar := make(map[string]string, len(col.ClasspathEntriesToDex))
		for _, e := range col.ClasspathEntriesToDex {
			dexInputs = append(dexInputs, DexInput{ClassName: e.JarPath})
			canaryClassForJar[e.JarPath] = representativeClassName(col.ClassHashesByLibrary[e.Producer.String()], e.JarPath)
		}
		stores := SplitDexes(dexInputs, nil, int(bin.LinearAllocLimit))

		dexPaths := make(map[string]string, len(stores))
		canaryClasses := make(map[string]string, len(stores))
		for _, store := range stores {
			storeJars := append([]string(nil), store.Classes...)
			sort.Strings(storeJars)
			if len(storeJars) > 0 {
				canaryClasses[store.Name] = canaryClassForJar[storeJars[0]]
			}

			dexInputJars := storeJars
			if bin.Release {
				base := outDir + "/" + strings.TrimSuffix(store.Name, ".dex")
				obf := base + "-obfuscated.jar"
				steps = append(steps, &ProguardStep{
					InputJars:   storeJars,
					ConfigFiles: proguardConfigs,
					OutputJar:   obf,
					MappingOut:  base + "-mapping.txt",
				})
				steps = append(steps, &EnsureOutputJarsStep{Paths: []string{obf}})
				dexInputJars = []string{obf}
			}

			dexOut := fmt.Sprintf("%s/%s", outDir, store.Name)
			steps = append(steps, &DxStep{InputJars: dexInputJars, OutputDex: dexOut, NoOptimize: !bin.Release})
			dexFiles = append(dexFiles, dexOut)
			dexPaths[store.Name] = dexOut
		}

		secondaryAssetsRoot := outDir + "/secondary-dex-assets"
		steps = append(steps, &SecondaryDexAssetsStep{
			Stores:        stores,
			DexPaths:      dexPaths,
			CanaryClasses: canaryClasses,
			AssetsDir:     secondaryAssetsRoot + "/secondary-program-dex-jars",
		})
		assetDirs = append(assetDirs, secondaryAssetsRoot)
	}

	steps = append(steps, &ApkBuilderStep{
		ResourceApk:   resourceApk,
		DexFiles:      dexFiles,
		NativeLibDirs: col.NativeLibDirs,
		AssetDirs:     assetDirs,
		OutputApk:     apkOut,
	})
	steps = append(steps, &ZipalignStep{InputApk: apkOut, OutputApk: alignedOut})

	bctx.RecordArtifact(alignedOut)
	bctx.RecordMetadata("dex_stores", fmt.Sprint(len(dexFiles)))
	bctx.RecordMetadata("split_dex", fmt.Sprint(bin.SplitDex))
	return steps, nil
}

// representativeClassName picks a deterministic "canary" class name for a
// jar from its library's recorded per-source hashes (col.ClassHashesByLibrary),
// falling back to the jar path itself when no per-class data is available
// (e.g. a prebuilt jar with no owning android_library).
func representativeClassName(classHashes map[string]string, jarPath string) string {
	if len(classHashes) == 0 {
		return jarPath
	}
	names := make([]string, 0, len(classHashes))
	for n := range classHashes {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.TrimSuffix(strings.ReplaceAll(names[0], "/", "."), ".java")
}

func classpathJars(entries []ClasspathEntry) []string {
	sorted := append([]ClasspathEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].JarPath < sorted[j].JarPath })
	out := make([]string, len(sorted))
	for i, e := range sorted {
		out[i] = e.JarPath
	}
	return out
}

// RegisterBinary wires android_binary into reg.
func RegisterBinary(reg *coerce.Registry) {
	reg.Register(coerce.Description{
		TypeTag: "android_binary",
		NewArg:  func() interface{} { return &BinaryArg{} },
		CreateBuildRule: func(params interface{}, resolver coerce.Resolver, argIface interface{}) (interface{}, error) {
			p := params.(graph.CreateParams)
			arg := argIface.(*BinaryArg)
			var depRules []*graph.BuildRule
			var declared []target.BuildTarget
			for _, d := range arg.Deps {
				resolved, err := resolver.Resolve(d)
				if err != nil {
					return nil, err
				}
				rule := resolved.(*graph.BuildRule)
				depRules = append(depRules, rule)
				declared = append(declared, rule.Target)
			}
			limit := arg.LinearAllocHardLimit
			if limit == 0 {
				limit = defaultLinearAllocLimit
			}
			return &graph.BuildRule{
				Target:       p.Target,
				RuleType:     "android_binary",
				DeclaredDeps: declared,
				Buildable: &Binary{
					Self:             p.Target,
					Manifest:         arg.Manifest,
					DepRules:         depRules,
					Release:          arg.Release,
					ProguardConfig:   arg.ProguardConfig,
					LinearAllocLimit: limit,
					SplitDex:         arg.SplitDex,
				},
			}, nil
		},
	})
}

// RegisterAll wires every android_* rule kind into reg.
func RegisterAll(reg *coerce.Registry) {
	RegisterResource(reg)
	RegisterBuildConfig(reg)
	RegisterManifest(reg)
	RegisterLibrary(reg)
	RegisterBinary(reg)
}
