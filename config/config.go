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

// Package config is the primary location to read the project's
// .buckconfig-equivalent configuration (spec.md §6). It is read once at
// startup and threaded explicitly into the scheduler and hashers, never
// consulted through a package-level global (spec.md §9's BuildConfig
// rearchitecting note).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.starlark.net/starlark"
)

// Bool re-exports a pointer-default accessor in the style of the teacher's
// proptools.Bool re-export (android/config.go): nil means "unset", not
// "false".
func Bool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

// String re-exports the equivalent accessor for *string.
func String(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringDefault returns *s, or def if s is nil.
func StringDefault(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// cxxSection mirrors .buckconfig's [cxx] section.
type cxxSection struct {
	DefaultPlatform string `toml:"default_platform"`
}

// toolsSection mirrors .buckconfig's [tools] section.
type toolsSection struct {
	Javac string `toml:"javac"`
	Dx    string `toml:"dx"`
}

// testSection mirrors .buckconfig's [test] section.
type testSection struct {
	UseResultsCache bool `toml:"use_results_cache"`
}

// cacheSection configures the artifact cache realizations (spec.md §4.4).
type cacheSection struct {
	Dir        string `toml:"dir"`
	HTTPURL    string `toml:"http_url"`
	Mode       string `toml:"mode"` // "readwrite", "readonly"
	TimeoutSec int    `toml:"timeout_seconds"`
}

// fileConfig is the raw on-disk shape of .buckconfig, deserialized by toml.
type fileConfig struct {
	Cxx     cxxSection            `toml:"cxx"`
	Tools   toolsSection          `toml:"tools"`
	Test    testSection           `toml:"test"`
	Cache   cacheSection          `toml:"cache"`
	Alias   map[string]string     `toml:"alias"`
	Starlark map[string]string    `toml:"starlark"`
}

// config is the private, pointer-shared backing struct. Config wraps a
// pointer to it so copies of Config stay cheap and see the same state,
// following android/config.go's `type Config struct { *config }` shape.
type config struct {
	file fileConfig

	// NumWorkers bounds the scheduler's worker pool (spec.md §5).
	NumWorkers int

	// ProjectRoot is the absolute path of the repo root.
	ProjectRoot string

	// aliases holds the [alias] section after starlark expansion.
	aliases map[string]string
}

// Config is the handle threaded through the engine. Copying it copies only
// the pointer, matching the teacher's wrapper-pointer convention.
type Config struct {
	*config
}

// New reads buckconfigPath (a TOML-flavored .buckconfig-equivalent file)
// and evaluates any [starlark] computed values, producing a Config.
func New(projectRoot, buckconfigPath string, numWorkers int) (Config, error) {
	var fc fileConfig
	if buckconfigPath != "" {
		if _, err := os.Stat(buckconfigPath); err == nil {
			if _, err := toml.DecodeFile(buckconfigPath, &fc); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", buckconfigPath, err)
			}
		}
	}

	aliases := make(map[string]string, len(fc.Alias))
	for k, v := range fc.Alias {
		aliases[k] = v
	}
	for name, expr := range fc.Starlark {
		v, err := evalStarlarkString(expr)
		if err != nil {
			return Config{}, fmt.Errorf("config: evaluating starlark value %q: %w", name, err)
		}
		aliases[name] = v
	}

	if numWorkers <= 0 {
		numWorkers = 1
	}

	return Config{&config{
		file:        fc,
		NumWorkers:  numWorkers,
		ProjectRoot: projectRoot,
		aliases:     aliases,
	}}, nil
}

// evalStarlarkString evaluates expr as a standalone starlark expression
// that must produce a string, used for .buckconfig alias entries computed
// from other config values (mirrors Soong's bp2build use of starlark for
// config-facing computed values).
func evalStarlarkString(expr string) (string, error) {
	thread := &starlark.Thread{Name: "config"}
	v, err := starlark.Eval(thread, "<buckconfig>", expr, nil)
	if err != nil {
		return "", err
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("expression %q did not evaluate to a string", expr)
	}
	return s, nil
}

// DefaultCxxPlatform returns [cxx] default_platform, or "" if unset.
func (c Config) DefaultCxxPlatform() string { return c.file.Cxx.DefaultPlatform }

// JavacPath returns [tools] javac, or "javac" if unset.
func (c Config) JavacPath() string {
	if c.file.Tools.Javac == "" {
		return "javac"
	}
	return c.file.Tools.Javac
}

// DxPath returns [tools] dx, or "dx" if unset.
func (c Config) DxPath() string {
	if c.file.Tools.Dx == "" {
		return "dx"
	}
	return c.file.Tools.Dx
}

// UseTestResultsCache returns [test] use_results_cache.
func (c Config) UseTestResultsCache() bool { return c.file.Test.UseResultsCache }

// CacheDir returns [cache] dir, the local artifact cache directory.
func (c Config) CacheDir() string {
	if c.file.Cache.Dir == "" {
		return "buck-out/cache"
	}
	return c.file.Cache.Dir
}

// CacheHTTPURL returns [cache] http_url, or "" if no remote cache is
// configured.
func (c Config) CacheHTTPURL() string { return c.file.Cache.HTTPURL }

// CacheReadOnly reports whether [cache] mode is "readonly".
func (c Config) CacheReadOnly() bool { return c.file.Cache.Mode == "readonly" }

// CacheTimeoutSeconds returns [cache] timeout_seconds, defaulting to 9.
func (c Config) CacheTimeoutSeconds() int {
	if c.file.Cache.TimeoutSec <= 0 {
		return 9
	}
	return c.file.Cache.TimeoutSec
}

// ResolveAlias looks up a [alias] entry, supporting "targets --resolvealias"
// (spec.md §6).
func (c Config) ResolveAlias(name string) (string, bool) {
	v, ok := c.aliases[name]
	return v, ok
}

// Aliases returns a copy of the alias table.
func (c Config) Aliases() map[string]string {
	out := make(map[string]string, len(c.aliases))
	for k, v := range c.aliases {
		out[k] = v
	}
	return out
}
