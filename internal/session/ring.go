// Copyright 2025 mcpkit Authors
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

package session

import "sync"

// DefaultRingCapacity is the number of stream events retained for replay when
// no capacity is configured.
const DefaultRingCapacity = 64

// Event is one outbound stream payload with its monotonic id.
type Event struct {
	ID   uint64
	Data []byte
}

// EventRing retains the most recent outbound events of a session so a
// reconnecting stream can replay what it missed. Ids are assigned once,
// monotonically, and never reused.
type EventRing struct {
	mu     sync.Mutex
	cap    int
	nextID uint64
	events []Event
}

// NewEventRing returns a ring retaining up to capacity events. A capacity of
// zero or less falls back to DefaultRingCapacity.
func NewEventRing(capacity int) *EventRing {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &EventRing{cap: capacity}
}

// Append stores data under the next event id and returns the stored event.
// The oldest event is dropped once the ring is full.
func (r *EventRing) Append(data []byte) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e := Event{ID: r.nextID, Data: data}
	r.events = append(r.events, e)
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
	return e
}

// ReplayAfter returns every retained event with an id greater than last. A
// last id older than the oldest retained event yields everything still held;
// dropped events are not synthesized.
func (r *EventRing) ReplayAfter(last uint64) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if e.ID > last {
			out = append(out, e)
		}
	}
	return out
}

// LastID returns the most recently assigned event id, or zero if none.
func (r *EventRing) LastID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID
}
