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

import (
	"fmt"
	"testing"
)

func TestEventRingMonotonicIds(t *testing.T) {
	r := NewEventRing(4)
	for i := 0; i < 10; i++ {
		e := r.Append([]byte(fmt.Sprintf("event-%d", i)))
		if e.ID != uint64(i+1) {
			t.Fatalf("unexpected id: got %d, want %d", e.ID, i+1)
		}
	}
	if got := r.LastID(); got != 10 {
		t.Fatalf("unexpected last id: got %d, want 10", got)
	}
}

func TestEventRingReplayAfter(t *testing.T) {
	r := NewEventRing(4)
	for i := 0; i < 10; i++ {
		r.Append([]byte(fmt.Sprintf("event-%d", i)))
	}

	tcs := []struct {
		name    string
		last    uint64
		wantIds []uint64
	}{
		{
			name:    "caught up",
			last:    10,
			wantIds: nil,
		},
		{
			name:    "one behind",
			last:    9,
			wantIds: []uint64{10},
		},
		{
			name:    "within retained window",
			last:    7,
			wantIds: []uint64{8, 9, 10},
		},
		{
			name:    "older than retained window replays what is left",
			last:    2,
			wantIds: []uint64{7, 8, 9, 10},
		},
		{
			name:    "zero replays what is left",
			last:    0,
			wantIds: []uint64{7, 8, 9, 10},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got := r.ReplayAfter(tc.last)
			if len(got) != len(tc.wantIds) {
				t.Fatalf("unexpected replay length: got %d, want %d", len(got), len(tc.wantIds))
			}
			for i, e := range got {
				if e.ID != tc.wantIds[i] {
					t.Errorf("unexpected id at %d: got %d, want %d", i, e.ID, tc.wantIds[i])
				}
			}
		})
	}
}

func TestEventRingDefaultCapacity(t *testing.T) {
	r := NewEventRing(0)
	for i := 0; i < DefaultRingCapacity+5; i++ {
		r.Append([]byte("x"))
	}
	got := r.ReplayAfter(0)
	if len(got) != DefaultRingCapacity {
		t.Fatalf("unexpected retained count: got %d, want %d", len(got), DefaultRingCapacity)
	}
}
