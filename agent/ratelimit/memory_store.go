// Copyright 2025 AxonFlow
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

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store, used when no Redis is configured.
// Limits are per process, not per fleet.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string][]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string][]time.Time)}
}

// Counts implements Store.
func (s *MemoryStore) Counts(_ context.Context, userID string, now time.Time, windows []time.Duration) ([]WindowCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countWindows(s.users[userID], now, windows), nil
}

// Admit implements Store. The count and the append share one lock.
func (s *MemoryStore) Admit(_ context.Context, userID string, now time.Time, windows []Window) ([]WindowCount, error) {
	durations := make([]time.Duration, len(windows))
	var retention time.Duration
	for i, w := range windows {
		durations[i] = w.Duration
		if w.Duration > retention {
			retention = w.Duration
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := prune(s.users[userID], now.Add(-retention))
	counts := countWindows(stamps, now, durations)
	for i, w := range windows {
		if counts[i].Count >= w.Limit {
			s.users[userID] = stamps
			return counts, nil
		}
	}
	s.users[userID] = append(stamps, now)
	return counts, nil
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, userID string, now time.Time, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = append(prune(s.users[userID], now.Add(-retention)), now)
	return nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

func countWindows(stamps []time.Time, now time.Time, windows []time.Duration) []WindowCount {
	out := make([]WindowCount, len(windows))
	for i, d := range windows {
		cutoff := now.Add(-d)
		for _, ts := range stamps {
			if !ts.After(cutoff) {
				continue
			}
			if out[i].Count == 0 || ts.Before(out[i].Oldest) {
				out[i].Oldest = ts
			}
			out[i].Count++
		}
	}
	return out
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
