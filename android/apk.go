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
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mread/buck-sub000/berrors"
	"github.com/mread/buck-sub000/graph"
)

// AaptStep invokes the resource compiler to build an unsigned,
// unaligned resources.ap_ archive. Its flags are fixed by the platform
// toolchain, not user-configurable: --auto-add-overlay is always passed
// (an overlay always wins over a base resource of the same name) and
// --no-crunch is never passed (pre-crunched PNGs are not supported by
// this build, unlike some other Android build systems).
type AaptStep struct {
	ManifestPath  string
	ResourceDirs  []string
	AssetDirs     []string
	OutputApk     string
	RDotJavaDir   string
	PackageName   string
}

func (s *AaptStep) ShortName() string { return "aapt_package" }

func (s *AaptStep) Description() string {
	return fmt.Sprintf("aapt package -M %s -F %s", s.ManifestPath, s.OutputApk)
}

func (s *AaptStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	args := []string{"package", "--auto-add-overlay", "-f", "-M", s.ManifestPath, "-F", s.OutputApk}
	for _, dir := range s.ResourceDirs {
		args = append(args, "-S", dir)
	}
	for _, dir := range s.AssetDirs {
		args = append(args, "-A", dir)
	}
	if s.RDotJavaDir != "" {
		args = append(args, "-J", s.RDotJavaDir)
	}
	return runToolStep("aapt", args, ctx)
}

// UberRDotJavaStep generates a single combined R.java spanning every
// resource-contributing library's package, the "dummy R.java" /
// "uber R.java" step spec.md §4.2 names. It runs as one of
// android_binary's own steps; no "#uber_r_dot_java" helper rule is
// registered for it.
type UberRDotJavaStep struct {
	Packages    []string // one per android_resource in the transitive closure
	OutputDir   string
}

func (s *UberRDotJavaStep) ShortName() string { return "uber_r_dot_java" }
func (s *UberRDotJavaStep) Description() string {
	return fmt.Sprintf("generate uber R.java for %d packages", len(s.Packages))
}
func (s *UberRDotJavaStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	for _, pkg := range s.Packages {
		dir := filepath.Join(s.OutputDir, filepath.FromSlash(strings.ReplaceAll(pkg, ".", "/")))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 1, berrors.Wrap(berrors.FileSystem, err, "creating R.java dir for %s", pkg)
		}
		src := fmt.Sprintf("package %s;\n\npublic final class R {\n}\n", pkg)
		if err := os.WriteFile(filepath.Join(dir, "R.java"), []byte(src), 0644); err != nil {
			return 1, berrors.Wrap(berrors.FileSystem, err, "writing R.java for %s", pkg)
		}
	}
	return 0, nil
}

// ProguardStep runs the ProGuard/R8 shrink-and-obfuscate pass, only
// present on release builds (spec.md §4.2: "ProGuard only runs for
// release builds").
type ProguardStep struct {
	InputJars  []string
	ConfigFiles []string
	OutputJar  string
	MappingOut string
}

func (s *ProguardStep) ShortName() string { return "proguard" }
func (s *ProguardStep) Description() string {
	return fmt.Sprintf("proguard -> %s", s.OutputJar)
}
func (s *ProguardStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	args := []string{"-injars", joinPath(s.InputJars), "-outjar", s.OutputJar, "-printmapping", s.MappingOut}
	for _, c := range s.ConfigFiles {
		args = append(args, "-include", c)
	}
	return runToolStep("proguard", args, ctx)
}

// DxStep converts a set of .class-bearing jars into a .dex file, the
// per-store conversion smart dexing runs once per (possibly cached)
// secondary dex store.
type DxStep struct {
	InputJars []string
	OutputDex string
	NoOptimize bool
}

func (s *DxStep) ShortName() string { return "dx" }
func (s *DxStep) Description() string {
	return fmt.Sprintf("dx --dex --output=%s", s.OutputDex)
}
func (s *DxStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	args := []string{"--dex", "--output=" + s.OutputDex}
	if s.NoOptimize {
		args = append(args, "--no-optimize")
	}
	args = append(args, s.InputJars...)
	return runToolStep("dx", args, ctx)
}

// ApkBuilderStep assembles the final signed-or-unsigned APK from the
// resource archive, the dex stores, and any native library directories
// (spec.md §4.2's assembly pipeline step that precedes the zipalign
// pass).
type ApkBuilderStep struct {
	ResourceApk  string
	DexFiles     []string
	NativeLibDirs []string
	AssetDirs    []string
	OutputApk    string
}

func (s *ApkBuilderStep) ShortName() string { return "apk_builder" }
func (s *ApkBuilderStep) Description() string {
	return fmt.Sprintf("apkbuilder %s", s.OutputApk)
}
func (s *ApkBuilderStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	args := []string{s.OutputApk, "-z", s.ResourceApk}
	for _, d := range s.DexFiles {
		args = append(args, "-f", d)
	}
	for _, d := range s.NativeLibDirs {
		args = append(args, "-nf", d)
	}
	return runToolStep("apkbuilder", args, ctx)
}

// ZipalignStep 4-byte-aligns the uncompressed entries of a finished APK
// so the Android runtime can mmap resources directly. Binary.Steps always
// appends it as the final step; no android_binary attribute skips it.
type ZipalignStep struct {
	InputApk, OutputApk string
}

func (s *ZipalignStep) ShortName() string { return "zipalign" }
func (s *ZipalignStep) Description() string {
	return fmt.Sprintf("zipalign -f 4 %s %s", s.InputApk, s.OutputApk)
}
func (s *ZipalignStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	return runToolStep("zipalign", []string{"-f", "4", s.InputApk, s.OutputApk}, ctx)
}

// SecondaryDexAssetsStep packages each secondary DexStore's already-dexed
// output into a STORED (uncompressed) "secondary-<N>.dex.jar" under
// AssetsDir, plus the adjacent metadata.txt manifest, the
// assets/secondary-program-dex-jars/ layout spec.md §8 S5 requires a
// split_dex android_binary to produce.
type SecondaryDexAssetsStep struct {
	Stores        []DexStore
	DexPaths      map[string]string // store.Name -> produced .dex file path
	CanaryClasses map[string]string // store.Name -> representative class name
	AssetsDir     string
}

func (s *SecondaryDexAssetsStep) ShortName() string { return "secondary_dex_assets" }
func (s *SecondaryDexAssetsStep) Description() string {
	return fmt.Sprintf("package secondary dex jars into %s", s.AssetsDir)
}
func (s *SecondaryDexAssetsStep) Execute(ctx *graph.ExecutionContext) (int, error) {
	if err := os.MkdirAll(s.AssetsDir, 0755); err != nil {
		return 1, berrors.Wrap(berrors.FileSystem, err, "creating %s", s.AssetsDir)
	}

	jarBytes := make(map[string][]byte)
	n := 0
	for _, store := range s.Stores {
		if !store.Secondary {
			continue
		}
		n++
		dexData, err := os.ReadFile(s.DexPaths[store.Name])
		if err != nil {
			return 1, berrors.Wrap(berrors.FileSystem, err, "reading dex for %s", store.Name)
		}
		jarPath := filepath.Join(s.AssetsDir, fmt.Sprintf("secondary-%d.dex.jar", n))
		if err := writeStoredJar(jarPath, "classes.dex", dexData); err != nil {
			return 1, err
		}
		data, err := os.ReadFile(jarPath)
		if err != nil {
			return 1, berrors.Wrap(berrors.FileSystem, err, "reading back %s", jarPath)
		}
		jarBytes[store.Name] = data
	}

	metadata := SecondaryDexMetadata(s.Stores, jarBytes, s.CanaryClasses)
	metaPath := filepath.Join(s.AssetsDir, "metadata.txt")
	if err := os.WriteFile(metaPath, []byte(metadata), 0644); err != nil {
		return 1, berrors.Wrap(berrors.FileSystem, err, "writing %s", metaPath)
	}
	return 0, nil
}

// writeStoredJar writes a single-entry zip archive at path with entryName
// stored uncompressed, the layout the Android runtime expects for
// secondary-program-dex-jars entries (apkbuilder never re-compresses them).
func writeStoredJar(path, entryName string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return berrors.Wrap(berrors.FileSystem, err, "creating %s", path)
	}
	w := zip.NewWriter(f)
	hdr := &zip.FileHeader{Name: entryName, Method: zip.Store}
	entry, err := w.CreateHeader(hdr)
	if err != nil {
		f.Close()
		return berrors.Wrap(berrors.FileSystem, err, "adding %s to %s", entryName, path)
	}
	if _, err := io.Copy(entry, bytes.NewReader(data)); err != nil {
		f.Close()
		return berrors.Wrap(berrors.FileSystem, err, "writing %s into %s", entryName, path)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return berrors.Wrap(berrors.FileSystem, err, "finalizing %s", path)
	}
	return f.Close()
}

func runToolStep(name string, args []string, ctx *graph.ExecutionContext) (int, error) {
	return graph.RunCommand(name, name, args, ctx)
}

func joinPath(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += ":"
		}
		out += p
	}
	return out
}
