// Copyright 2025 Tom Barlow
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

// Package bus implements a topic-per-run pub/sub event bus: one topic per
// workflow run, delivering run and step lifecycle events to subscribers
// such as the SSE event stream endpoint.
package bus

import (
	"log/slog"
	"sync"
	"time"

	runnerlog "github.com/tombee/runner/internal/log"
	runnererrors "github.com/tombee/runner/pkg/errors"
)

// subscriberBufferSize bounds each subscriber's channel. A publish that
// would block on a full channel is dropped rather than waiting, so a slow
// subscriber can never delay the orchestrator.
const subscriberBufferSize = 100

// Event is a single published occurrence on a run's topic.
type Event struct {
	RunID     string         `json:"run_id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handle identifies a subscription for Unsubscribe.
type Handle struct {
	runID string
	id    uint64
}

type subscription struct {
	id uint64
	ch chan Event
}

// Bus is a process-wide, in-memory pub/sub event bus keyed by run id.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	nextID      uint64
	logger      *slog.Logger
}

// New returns an empty event bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string][]subscription),
		logger:      runnerlog.WithComponent(logger, "event_bus"),
	}
}

// Subscribe returns a channel receiving events published for runID from
// this point forward, and a Handle to later Unsubscribe. The channel is
// closed on Unsubscribe.
func (b *Bus) Subscribe(runID string) (<-chan Event, Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, ch: make(chan Event, subscriberBufferSize)}
	b.subscribers[runID] = append(b.subscribers[runID], sub)

	return sub.ch, Handle{runID: runID, id: sub.id}
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once for the same handle; subsequent calls are a no-op.
func (b *Bus) Unsubscribe(handle Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[handle.runID]
	for i, sub := range subs {
		if sub.id == handle.id {
			b.subscribers[handle.runID] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			break
		}
	}
	if len(b.subscribers[handle.runID]) == 0 {
		delete(b.subscribers, handle.runID)
	}
}

// Publish stamps an event with the current UTC instant and delivers it,
// best-effort, to every subscriber of runID. A subscriber whose buffer is
// full has the event dropped for it and a warning logged; other
// subscribers are unaffected.
func (b *Bus) Publish(runID, eventType string, data map[string]any) {
	event := Event{
		RunID:     runID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[runID]))
	copy(subs, b.subscribers[runID])
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			err := &runnererrors.SubscriberOverflowError{RunID: runID}
			b.logger.Warn(err.Error(), slog.String(runnerlog.RunIDKey, runID), slog.String(runnerlog.EventKey, eventType))
		}
	}
}

// SubscriberCount returns the number of active subscribers for a run.
func (b *Bus) SubscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[runID])
}

// TotalSubscriberCount returns the number of active subscribers across all runs.
func (b *Bus) TotalSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, subs := range b.subscribers {
		total += len(subs)
	}
	return total
}

// SubscriberMapKeyCount returns the number of runs that currently have at
// least one subscriber, for sizing the subscriber map itself.
func (b *Bus) SubscriberMapKeyCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
