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

package usage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"reportpilot/platform/shared/logger"
)

// Sink accepts usage events.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// UsageRecorder handles recording usage events to the database
type UsageRecorder struct {
	db  *sql.DB
	log *logger.Logger
}

// NewUsageRecorder creates a new usage recorder with a database connection
func NewUsageRecorder(db *sql.DB) *UsageRecorder {
	return &UsageRecorder{db: db, log: logger.New("usage")}
}

// Record writes one event to ai_usage. Errors are logged and returned; callers
// are expected not to fail the request on them.
func (r *UsageRecorder) Record(ctx context.Context, event Event) error {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_usage (
			request_id, customer_id, user_id, session_id, status,
			input_tokens, output_tokens, cost_usd, latency_ms,
			turns, tool_calls, error_code, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, event.RequestID, event.CustomerID, nullString(event.UserID), nullString(event.SessionID),
		event.Status, event.InputTokens, event.OutputTokens, event.CostUSD, event.LatencyMs,
		event.Turns, event.ToolCalls, nullString(event.ErrorCode), createdAt)

	if err != nil {
		r.log.Error(event.CustomerID, event.RequestID, "Failed to record usage", map[string]interface{}{
			"status": event.Status,
			"error":  err.Error(),
		})
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// SpentSince sums cost_usd for a customer from since onwards.
func (r *UsageRecorder) SpentSince(ctx context.Context, customerID string, since time.Time) (float64, error) {
	var spent float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM ai_usage WHERE customer_id = $1 AND created_at >= $2`,
		customerID, since,
	).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}
	return spent, nil
}

// nullString converts an empty string to NULL for database insertion
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MemoryRecorder keeps events in memory. It backs development runs without a
// database and tests.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record implements Sink.
func (m *MemoryRecorder) Record(_ context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// SpentSince sums recorded cost for a customer from since onwards.
func (m *MemoryRecorder) SpentSince(_ context.Context, customerID string, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var spent float64
	for _, e := range m.events {
		if e.CustomerID == customerID && !e.CreatedAt.Before(since) {
			spent += e.CostUSD
		}
	}
	return spent, nil
}

// Events returns a copy of everything recorded so far.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
