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
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mread/buck-sub000/rulekey"
)

// MaxConnectionFailureReports bounds how many times connection failures
// are logged per build invocation (spec.md §4.4).
const MaxConnectionFailureReports = 5

// RemoteHTTPCache implements the wire contract in spec.md §4.4:
//
//	GET  /artifact/key/<rulekey>   200 -> hit, 404 -> miss, other -> miss+log
//	POST /artifact/                multipart key0=<rulekey>, data0=<archive>,
//	                                header Buck-Artifact-Count
type RemoteHTTPCache struct {
	baseURL  string
	client   *http.Client
	readOnly bool

	connFailures int32 // atomic

	logMu sync.Mutex
	log   func(format string, args ...interface{})
}

// NewRemoteHTTPCache constructs a RemoteHTTPCache against baseURL (e.g.
// "http://cache.example.com"), with a per-request timeout (spec.md §4.4:
// "Timeouts are per-request; retries are not attempted at this layer").
func NewRemoteHTTPCache(baseURL string, timeout time.Duration, readOnly bool, logf func(string, ...interface{})) *RemoteHTTPCache {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &RemoteHTTPCache{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout},
		readOnly: readOnly,
		log:      logf,
	}
}

func (c *RemoteHTTPCache) reportConnFailure(err error) {
	n := atomic.AddInt32(&c.connFailures, 1)
	if int(n) <= MaxConnectionFailureReports {
		c.log("cache: remote connection failure (%d/%d reported): %v", n, MaxConnectionFailureReports, err)
	}
}

// Fetch implements ArtifactCache.
func (c *RemoteHTTPCache) Fetch(rk rulekey.RuleKey) (*Entry, error) {
	url := fmt.Sprintf("%s/artifact/key/%s", c.baseURL, rk.String())
	resp, err := c.client.Get(url)
	if err != nil {
		c.reportConnFailure(err)
		return nil, ErrMiss
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrMiss
	}
	if resp.StatusCode != http.StatusOK {
		c.log("cache: remote fetch of %s returned status %d", rk, resp.StatusCode)
		return nil, ErrMiss
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrMiss
	}
	entry, err := Unarchive(data)
	if err != nil {
		return nil, ErrMiss
	}
	return entry, nil
}

// Store implements ArtifactCache. It must tolerate server unavailability
// silently (spec.md §4.4): connection and non-2xx errors are logged but
// never returned as a hard failure to the scheduler.
func (c *RemoteHTTPCache) Store(rk rulekey.RuleKey, entry *Entry) error {
	if c.readOnly {
		return nil
	}
	data, err := Archive(entry)
	if err != nil {
		return fmt.Errorf("cache: archiving %s: %w", rk, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("key0", rk.String()); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("data0", rk.String()+".tar.gz")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/artifact/", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Buck-Artifact-Count", strconv.Itoa(1))

	resp, err := c.client.Do(req)
	if err != nil {
		c.reportConnFailure(err)
		// Stores must tolerate server unavailability silently.
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.log("cache: remote store of %s returned status %d", rk, resp.StatusCode)
	}
	return nil
}

// Close implements ArtifactCache; the remote cache has no pending
// background work of its own (stores are synchronous HTTP calls; queuing
// them is AsyncCache's job, which cmd/forge's buildCache wraps it in).
func (c *RemoteHTTPCache) Close() (int, error) { return 0, nil }
