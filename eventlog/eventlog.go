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

// Package eventlog is the build engine's non-blocking event bus (spec.md
// §5: "logging is via an event bus whose posts are non-blocking"). Posting
// an event never blocks the calling worker; a single background goroutine
// drains the channel and writes through a structured zap.Logger.
package eventlog

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mread/buck-sub000/target"
)

// Level is the severity of a posted Event.
type Level int

const (
	Info Level = iota
	Warn
	Error
)

// Event is one posted log line, optionally scoped to the rule that
// produced it.
type Event struct {
	Level   Level
	Rule    string // canonical target string, or "" for build-wide events
	Message string
	Fields  map[string]string
}

// Bus is the async event bus. Zero value is not usable; construct with New.
type Bus struct {
	logger *zap.Logger
	data   chan Event
	stop   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	drained bool
}

// New starts a Bus backed by logger. The caller must call Close to flush
// and stop the background drain goroutine.
func New(logger *zap.Logger) *Bus {
	b := &Bus{
		logger: logger,
		data:   make(chan Event, 4096),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go b.drain()
	return b
}

func (b *Bus) drain() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.data:
			b.write(ev)
		case <-b.stop:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case ev := <-b.data:
					b.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) write(ev Event) {
	fields := make([]zap.Field, 0, len(ev.Fields)+1)
	if ev.Rule != "" {
		fields = append(fields, zap.String("rule", ev.Rule))
	}
	for k, v := range ev.Fields {
		fields = append(fields, zap.String(k, v))
	}
	switch ev.Level {
	case Warn:
		b.logger.Warn(ev.Message, fields...)
	case Error:
		b.logger.Error(ev.Message, fields...)
	default:
		b.logger.Info(ev.Message, fields...)
	}
}

// Post enqueues ev without blocking. If the internal buffer is full the
// event is dropped rather than stalling a scheduler worker, matching the
// "non-blocking" contract in spec.md §5.
func (b *Bus) Post(ev Event) {
	select {
	case b.data <- ev:
	default:
		// Buffer full: drop rather than block a worker. A dropped-events
		// counter would live in the metrics package; kept out here to avoid
		// a second shared-state path in the hot post path.
	}
}

// PostRule posts an Info-level event scoped to a rule target.
func (b *Bus) PostRule(t target.BuildTarget, message string) {
	b.Post(Event{Level: Info, Rule: t.String(), Message: message})
}

// Warnf posts a Warn-level event.
func (b *Bus) Warnf(message string) {
	b.Post(Event{Level: Warn, Message: message})
}

// Close stops the drain goroutine after flushing queued events.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drained {
		return
	}
	b.drained = true
	close(b.stop)
	<-b.done
}
