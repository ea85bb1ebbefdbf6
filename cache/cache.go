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

// Package cache is the C4 component: a content-addressed artifact store
// mapping a rule key to an archived output tree plus recorded metadata
// (spec.md §3's ArtifactCacheEntry, §4.4's fetch/store/close contract).
package cache

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"

	"github.com/mread/buck-sub000/rulekey"
)

// ErrMiss is returned by Fetch when rk has no cache entry.
var ErrMiss = errors.New("cache: miss")

// metadataEntryName is the well-known tar entry holding an Entry's string
// metadata map, alongside the archived output files.
const metadataEntryName = "__forge_metadata__.json"

// Entry is a materialized ArtifactCacheEntry: the output tree's files,
// keyed by their path relative to the rule's output directory, plus
// recorded string metadata (spec.md §3).
type Entry struct {
	Files    map[string][]byte
	Metadata map[string]string
}

// ArtifactCache is the C4 contract (spec.md §4.4).
type ArtifactCache interface {
	// Fetch materializes rk's outputs, or returns ErrMiss.
	Fetch(rk rulekey.RuleKey) (*Entry, error)
	// Store is a no-op if the cache is read-only, and must be idempotent
	// otherwise.
	Store(rk rulekey.RuleKey, entry *Entry) error
	// Close flushes pending stores and reports aggregate failure counts.
	Close() (storeFailures int, err error)
}

// Archive serializes entry into a gzipped tar stream, the "archived
// output tree" spec.md §3 refers to.
func Archive(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, err
	}
	if err := writeTarEntry(tw, metadataEntryName, meta); err != nil {
		return nil, err
	}
	for path, data := range entry.Files {
		if err := writeTarEntry(tw, path, data); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0644}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// Unarchive parses a gzipped tar stream produced by Archive. Any error
// (truncated stream, bad gzip header) must be treated by the caller as a
// miss and rolled back, per spec.md §4.4 ("on partial fetch, state must be
// rolled back and reported as a miss").
func Unarchive(data []byte) (*Entry, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)

	entry := &Entry{Files: make(map[string][]byte)}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		buf, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		if hdr.Name == metadataEntryName {
			if err := json.Unmarshal(buf, &entry.Metadata); err != nil {
				return nil, err
			}
			continue
		}
		entry.Files[hdr.Name] = buf
	}
	return entry, nil
}
