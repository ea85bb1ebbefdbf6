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

// Package metrics records per-invocation build metrics: rule counts by
// terminal state, cache hit/miss counts, and wall-clock step time. This is
// the ambient observability concern SPEC_FULL.md adds, grounded on
// ui/metrics and ui/execution_metrics in the teacher.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Recorder accumulates counters for a single build invocation.
// All mutation is done with atomics so it is safe to share across the
// engine's per-rule worker goroutines.
type Recorder struct {
	BuildID string

	done      int64
	failed    int64
	cancelled int64
	cacheHit  int64
	cacheMiss int64

	mu        sync.Mutex
	stepNanos int64
	start     time.Time
}

// NewRecorder constructs a Recorder for one build invocation.
func NewRecorder(buildID string) *Recorder {
	return &Recorder{BuildID: buildID, start: time.Now()}
}

func (r *Recorder) RecordDone()      { atomic.AddInt64(&r.done, 1) }
func (r *Recorder) RecordFailed()    { atomic.AddInt64(&r.failed, 1) }
func (r *Recorder) RecordCancelled() { atomic.AddInt64(&r.cancelled, 1) }
func (r *Recorder) RecordCacheHit()  { atomic.AddInt64(&r.cacheHit, 1) }
func (r *Recorder) RecordCacheMiss() { atomic.AddInt64(&r.cacheMiss, 1) }

// RecordStepDuration adds d to the aggregate step wall-clock time.
func (r *Recorder) RecordStepDuration(d time.Duration) {
	atomic.AddInt64(&r.stepNanos, int64(d))
}

// toStruct renders the recorder's counters as a structpb.Struct, the
// well-known protobuf message type used here instead of a hand-authored
// generated message (see DESIGN.md's metrics entry).
func (r *Recorder) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"build_id":        r.BuildID,
		"rules_done":      float64(atomic.LoadInt64(&r.done)),
		"rules_failed":    float64(atomic.LoadInt64(&r.failed)),
		"rules_cancelled": float64(atomic.LoadInt64(&r.cancelled)),
		"cache_hits":      float64(atomic.LoadInt64(&r.cacheHit)),
		"cache_misses":    float64(atomic.LoadInt64(&r.cacheMiss)),
		"step_time_ms":    float64(atomic.LoadInt64(&r.stepNanos)) / 1e6,
		"wall_time_ms":    float64(time.Since(r.start).Milliseconds()),
	})
}

// WriteTo serializes the recorder as a binary protobuf message under
// outDir/log/metrics.pb, mirroring ui/metrics/execution_metrics_proto's
// role in the teacher.
func (r *Recorder) WriteTo(outDir string) error {
	s, err := r.toStruct()
	if err != nil {
		return fmt.Errorf("metrics: building message: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return fmt.Errorf("metrics: marshaling: %w", err)
	}
	logDir := filepath.Join(outDir, "log")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("metrics: creating %s: %w", logDir, err)
	}
	return os.WriteFile(filepath.Join(logDir, "metrics.pb"), data, 0644)
}

// Snapshot returns a point-in-time copy of the counters, for CLI status
// output.
type Snapshot struct {
	Done, Failed, Cancelled int64
	CacheHits, CacheMisses  int64
}

func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Done:        atomic.LoadInt64(&r.done),
		Failed:      atomic.LoadInt64(&r.failed),
		Cancelled:   atomic.LoadInt64(&r.cancelled),
		CacheHits:   atomic.LoadInt64(&r.cacheHit),
		CacheMisses: atomic.LoadInt64(&r.cacheMiss),
	}
}
