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
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageRecorder_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ai_usage")).
		WithArgs("req-1", "cust-1", "user-1", nil, StatusSuccess, 1000, 200, 0.006, int64(850), 3, 4, nil, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r := NewUsageRecorder(db)
	err = r.Record(context.Background(), Event{
		RequestID:    "req-1",
		CustomerID:   "cust-1",
		UserID:       "user-1",
		Status:       StatusSuccess,
		InputTokens:  1000,
		OutputTokens: 200,
		CostUSD:      0.006,
		LatencyMs:    850,
		Turns:        3,
		ToolCalls:    4,
		CreatedAt:    at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRecorder_RecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ai_usage")).WillReturnError(errors.New("connection reset"))

	r := NewUsageRecorder(db)
	err = r.Record(context.Background(), Event{RequestID: "req-2", CustomerID: "cust-1", Status: StatusRejected, ErrorCode: "rate_limit_exceeded"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestUsageRecorder_SpentSince(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(cost_usd), 0) FROM ai_usage")).
		WithArgs("cust-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1.25))

	spent, err := NewUsageRecorder(db).SpentSince(context.Background(), "cust-1", since)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, spent, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	require.NotNil(t, nullString("x"))
	assert.Equal(t, "x", *nullString("x"))
}

func TestMemoryRecorder(t *testing.T) {
	m := NewMemoryRecorder()
	ctx := context.Background()
	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.Record(ctx, Event{CustomerID: "a", CostUSD: 0.5, CreatedAt: day.Add(-time.Hour)}))
	require.NoError(t, m.Record(ctx, Event{CustomerID: "a", CostUSD: 0.25, CreatedAt: day.Add(time.Hour)}))
	require.NoError(t, m.Record(ctx, Event{CustomerID: "b", CostUSD: 9, CreatedAt: day.Add(time.Hour)}))

	spent, err := m.SpentSince(ctx, "a", day)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, spent, 1e-9)
	assert.Len(t, m.Events(), 3)
	assert.Equal(t, 0, Event{}.TotalTokens())
}
