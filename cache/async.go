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

package cache

import (
	"sync"
	"sync/atomic"

	"github.com/mread/buck-sub000/rulekey"
)

// storeJob is one queued Store call.
type storeJob struct {
	rk    rulekey.RuleKey
	entry *Entry
}

// AsyncCache wraps an ArtifactCache so that Store calls are queued onto a
// bounded background executor and "fire-and-forget" from the caller's
// perspective, matching spec.md §5's "stores run on a bounded background
// executor and must drain on close()". Fetch passes straight through.
type AsyncCache struct {
	inner   ArtifactCache
	jobs    chan storeJob
	wg      sync.WaitGroup
	failed  int32 // atomic
	closeMu sync.Mutex
	closed  bool
}

// NewAsyncCache starts workers goroutines draining a bounded queue of
// Store calls against inner.
func NewAsyncCache(inner ArtifactCache, workers, queueDepth int) *AsyncCache {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	a := &AsyncCache{inner: inner, jobs: make(chan storeJob, queueDepth)}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

func (a *AsyncCache) worker() {
	defer a.wg.Done()
	for job := range a.jobs {
		if err := a.inner.Store(job.rk, job.entry); err != nil {
			// Cache store errors: warn and continue; never fail the
			// build (spec.md §4.5's failure semantics).
			atomic.AddInt32(&a.failed, 1)
		}
	}
}

// Fetch implements ArtifactCache, delegating directly to inner.
func (a *AsyncCache) Fetch(rk rulekey.RuleKey) (*Entry, error) {
	return a.inner.Fetch(rk)
}

// Store implements ArtifactCache by enqueuing the write; it never blocks
// on the underlying cache's I/O.
func (a *AsyncCache) Store(rk rulekey.RuleKey, entry *Entry) error {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	if a.closed {
		return nil
	}
	a.jobs <- storeJob{rk: rk, entry: entry}
	return nil
}

// Close implements ArtifactCache: it stops accepting new stores, drains
// the queue, and reports the aggregate store-failure count.
func (a *AsyncCache) Close() (int, error) {
	a.closeMu.Lock()
	if a.closed {
		a.closeMu.Unlock()
		return int(atomic.LoadInt32(&a.failed)), nil
	}
	a.closed = true
	close(a.jobs)
	a.closeMu.Unlock()

	a.wg.Wait()
	innerFailed, err := a.inner.Close()
	return int(atomic.LoadInt32(&a.failed)) + innerFailed, err
}
