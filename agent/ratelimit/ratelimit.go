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

// Package ratelimit caps request frequency per user across several rolling
// windows.
//
// Counters live in a Store. When the store errors the limiter fails open:
// the request is allowed, the result is marked FailedOpen, a warning is
// logged and rate_limit_fail_open_total is incremented. Availability wins
// over enforcement during a counter-store outage.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"reportpilot/platform/shared/logger"
)

var failOpenTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reportpilot_rate_limit_fail_open_total",
		Help: "Rate limit operations that failed open because the counter store errored",
	},
	[]string{"operation"},
)

// Window is one rolling window with its request ceiling.
type Window struct {
	Name     string        `yaml:"name" json:"name"`
	Duration time.Duration `yaml:"duration" json:"duration"`
	Limit    int           `yaml:"limit" json:"limit"`
}

// DefaultWindows returns the minute/hour/day production limits.
func DefaultWindows() []Window {
	return []Window{
		{Name: "minute", Duration: time.Minute, Limit: 10},
		{Name: "hour", Duration: time.Hour, Limit: 100},
		{Name: "day", Duration: 24 * time.Hour, Limit: 500},
	}
}

// WindowCount is what a store reports for one window.
type WindowCount struct {
	Count int
	// Oldest is the earliest request still inside the window. Zero when Count is 0.
	Oldest time.Time
}

// Store holds the per-user request timestamps.
type Store interface {
	// Counts returns one WindowCount per entry in windows, in the same order.
	Counts(ctx context.Context, userID string, now time.Time, windows []time.Duration) ([]WindowCount, error)
	// Admit counts userID's requests in every window and records one at now
	// only when each count is below its window's limit. Counting and
	// recording happen as one atomic step per user. The returned counts are
	// the ones seen before the request was recorded.
	Admit(ctx context.Context, userID string, now time.Time, windows []Window) ([]WindowCount, error)
	// Record stores one request for userID unconditionally. Entries older
	// than retention may be discarded.
	Record(ctx context.Context, userID string, now time.Time, retention time.Duration) error
	// Reset removes all entries for userID.
	Reset(ctx context.Context, userID string) error
}

// Result is the outcome of CheckLimit and Admit.
type Result struct {
	Allowed bool `json:"allowed"`
	// LimitType names the violated window, empty when allowed.
	LimitType  string         `json:"limit_type,omitempty"`
	RetryAfter time.Duration  `json:"-"`
	Remaining  map[string]int `json:"remaining"`
	// FailedOpen is set when the store errored and the request was allowed anyway.
	FailedOpen bool `json:"failed_open,omitempty"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (r Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int((r.RetryAfter + time.Second - 1) / time.Second)
}

// Limiter is the process-wide rate limiter. Safe for concurrent use as long
// as the Store is.
type Limiter struct {
	store   Store
	windows []Window
	now     func() time.Time
	log     *logger.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(log *logger.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// New creates a limiter over store. An empty windows slice means DefaultWindows.
func New(store Store, windows []Window, opts ...Option) *Limiter {
	if len(windows) == 0 {
		windows = DefaultWindows()
	}
	ws := append([]Window(nil), windows...)
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].Duration < ws[j].Duration })

	l := &Limiter{
		store:   store,
		windows: ws,
		now:     time.Now,
		log:     logger.New("rate-limiter"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Windows returns the configured windows, shortest first.
func (l *Limiter) Windows() []Window {
	return append([]Window(nil), l.windows...)
}

// CheckLimit reports whether userID may make one more request. It does not
// record the request; use Admit to check and record in one step.
func (l *Limiter) CheckLimit(ctx context.Context, userID string) Result {
	now := l.now()

	durations := make([]time.Duration, len(l.windows))
	for i, w := range l.windows {
		durations[i] = w.Duration
	}

	counts, err := l.store.Counts(ctx, userID, now, durations)
	if err == nil && len(counts) != len(l.windows) {
		err = fmt.Errorf("store returned %d counts for %d windows", len(counts), len(l.windows))
	}
	if err != nil {
		l.failOpen("check", userID, err)
		return l.openResult()
	}
	return l.result(counts, now)
}

// Admit checks userID against every window and, when allowed, records the
// request in the same store operation. Concurrent callers cannot all slip
// in under the same count.
func (l *Limiter) Admit(ctx context.Context, userID string) Result {
	now := l.now()

	counts, err := l.store.Admit(ctx, userID, now, l.windows)
	if err == nil && len(counts) != len(l.windows) {
		err = fmt.Errorf("store returned %d counts for %d windows", len(counts), len(l.windows))
	}
	if err != nil {
		l.failOpen("admit", userID, err)
		return l.openResult()
	}
	return l.result(counts, now)
}

// RecordRequest counts one request against userID without checking limits.
// A store error is logged and returned, but callers are expected to carry on.
func (l *Limiter) RecordRequest(ctx context.Context, userID string) error {
	if err := l.store.Record(ctx, userID, l.now(), l.retention()); err != nil {
		l.failOpen("record", userID, err)
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

func (l *Limiter) retention() time.Duration {
	return l.windows[len(l.windows)-1].Duration
}

// result grades pre-request counts against the windows.
func (l *Limiter) result(counts []WindowCount, now time.Time) Result {
	res := Result{Allowed: true, Remaining: make(map[string]int, len(l.windows))}
	for i, w := range l.windows {
		c := counts[i]
		if c.Count >= w.Limit {
			res.Remaining[w.Name] = 0
			if res.Allowed {
				res.Allowed = false
				res.LimitType = w.Name
				res.RetryAfter = retryAfter(c, w, now)
			}
			continue
		}
		res.Remaining[w.Name] = w.Limit - c.Count - 1
	}
	return res
}

func (l *Limiter) openResult() Result {
	remaining := make(map[string]int, len(l.windows))
	for _, w := range l.windows {
		remaining[w.Name] = w.Limit
	}
	return Result{Allowed: true, Remaining: remaining, FailedOpen: true}
}

// Reset clears a user's counters (admin operation).
func (l *Limiter) Reset(ctx context.Context, userID string) error {
	if err := l.store.Reset(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", userID, err)
	}
	return nil
}

func (l *Limiter) failOpen(op, userID string, err error) {
	failOpenTotal.WithLabelValues(op).Inc()
	l.log.Warn("", "", "rate limit store error, failing open", map[string]interface{}{
		"operation": op,
		"user_id":   userID,
		"error":     err.Error(),
	})
}

func retryAfter(c WindowCount, w Window, now time.Time) time.Duration {
	if c.Oldest.IsZero() {
		return w.Duration
	}
	d := c.Oldest.Add(w.Duration).Sub(now)
	if d <= 0 {
		return time.Second
	}
	return d
}
