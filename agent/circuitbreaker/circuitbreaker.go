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

// Package circuitbreaker protects calls to the upstream LLM API from
// cascading failure.
//
// A single Breaker is constructed per process and shared by every request
// handler. The state machine is:
//
//	CLOSED    --(failureThreshold failures within failureWindow)--> OPEN
//	OPEN      --(resetTimeout elapsed, next call)-------------------> HALF_OPEN
//	HALF_OPEN --(halfOpenSuccesses successes)------------------------> CLOSED
//	HALF_OPEN --(any failure)----------------------------------------> OPEN
package circuitbreaker

import (
	"fmt"
	"sync"
	"time"
)

// State is the breaker's position in its state machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config contains circuit breaker configuration.
type Config struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	FailureWindow     time.Duration `yaml:"failure_window"`
	ResetTimeout      time.Duration `yaml:"reset_timeout"`
	HalfOpenSuccesses int           `yaml:"half_open_successes"`
	// HalfOpenMaxProbes bounds how many calls may be in flight while HALF_OPEN.
	HalfOpenMaxProbes int `yaml:"half_open_max_probes"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		FailureWindow:     60 * time.Second,
		ResetTimeout:      30 * time.Second,
		HalfOpenSuccesses: 2,
		HalfOpenMaxProbes: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = d.FailureWindow
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = d.HalfOpenSuccesses
	}
	if c.HalfOpenMaxProbes <= 0 {
		c.HalfOpenMaxProbes = d.HalfOpenMaxProbes
	}
	return c
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChangeHook registers fn to be called after every transition.
// fn runs outside the breaker's lock.
func WithStateChangeHook(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// Breaker is the process-wide circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg           Config
	now           func() time.Time
	onStateChange func(from, to State)

	mu        sync.Mutex
	state     State
	failures  []time.Time
	openedAt  time.Time
	successes int
	probes    int
	lastError string
}

// New creates a breaker in the CLOSED state.
func New(cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CanExecute reports whether a call may be made now. The first call after
// the reset timeout moves an OPEN breaker to HALF_OPEN and is let through
// as a probe.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	var (
		allowed    bool
		transition bool
	)
	switch b.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.setState(StateHalfOpen)
			b.successes = 0
			b.probes = 1
			allowed = true
			transition = true
		}
	case StateHalfOpen:
		if b.probes < b.cfg.HalfOpenMaxProbes {
			b.probes++
			allowed = true
		}
	}
	b.mu.Unlock()

	if transition {
		b.notify(StateOpen, StateHalfOpen)
	}
	return allowed
}

// RecordSuccess records a successful upstream call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	if b.state != StateHalfOpen {
		b.mu.Unlock()
		return
	}
	b.successes++
	if b.probes > 0 {
		b.probes--
	}
	if b.successes < b.cfg.HalfOpenSuccesses {
		b.mu.Unlock()
		return
	}
	b.setState(StateClosed)
	b.failures = nil
	b.successes = 0
	b.probes = 0
	b.lastError = ""
	b.mu.Unlock()

	b.notify(StateHalfOpen, StateClosed)
}

// RecordFailure records a failed upstream call. A nil err is still counted.
func (b *Breaker) RecordFailure(err error) {
	now := b.now()

	b.mu.Lock()
	if err != nil {
		b.lastError = err.Error()
	}
	from := b.state
	switch b.state {
	case StateHalfOpen:
		b.trip(now)
	case StateClosed:
		b.failures = append(b.pruneFailures(now), now)
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.trip(now)
		}
	case StateOpen:
		// A straggling call that started before the breaker opened.
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

// GetState returns the current state without triggering a transition.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetTimeUntilRetry returns how long a refused caller should wait. For an
// OPEN breaker that is the rest of the reset timeout; a HALF_OPEN breaker
// with every trial slot in flight reports a second. Otherwise it is zero.
func (b *Breaker) GetTimeUntilRetry() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeUntilRetryLocked()
}

// Snapshot is a point-in-time view of the breaker, for status endpoints.
type Snapshot struct {
	State           string    `json:"state"`
	RecentFailures  int       `json:"recent_failures"`
	OpenedAt        time.Time `json:"opened_at,omitempty"`
	RetryAfterMS    int64     `json:"retry_after_ms"`
	LastError       string    `json:"last_error,omitempty"`
	FailureWindowMS int64     `json:"failure_window_ms"`
	Threshold       int       `json:"failure_threshold"`
}

// Snapshot returns the current breaker status.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		State:           b.state.String(),
		RecentFailures:  len(b.pruneFailures(b.now())),
		RetryAfterMS:    b.timeUntilRetryLocked().Milliseconds(),
		LastError:       b.lastError,
		FailureWindowMS: b.cfg.FailureWindow.Milliseconds(),
		Threshold:       b.cfg.FailureThreshold,
	}
	if b.state != StateClosed {
		s.OpenedAt = b.openedAt
	}
	return s
}

// halfOpenRetry is reported while HALF_OPEN has no trial slot free.
const halfOpenRetry = time.Second

func (b *Breaker) timeUntilRetryLocked() time.Duration {
	switch b.state {
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenMaxProbes {
			return halfOpenRetry
		}
		return 0
	case StateClosed:
		return 0
	}
	remaining := b.cfg.ResetTimeout - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// trip moves to OPEN. Caller holds mu.
func (b *Breaker) trip(now time.Time) {
	b.setState(StateOpen)
	b.openedAt = now
	b.successes = 0
	b.probes = 0
}

func (b *Breaker) setState(s State) {
	b.state = s
}

// pruneFailures drops failures older than the window. Caller holds mu.
func (b *Breaker) pruneFailures(now time.Time) []time.Time {
	cutoff := now.Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
	return kept
}

func (b *Breaker) notify(from, to State) {
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// OpenError is returned when a call is refused because the circuit is open.
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open: retry after %s", e.RetryAfter.Round(time.Second))
}
