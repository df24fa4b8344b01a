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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportpilot/platform/connectors/base"
)

func TestKnowledgeRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewKnowledgeRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO customer_terminology")).
		WithArgs("cust-1", "LTL", "less than truckload", "terminology", 0.9, "conversation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpsertTerm(ctx, "cust-1", base.Learning{
		Type: base.LearningTerminology, Key: "LTL", Value: "less than truckload", Confidence: 0.9, Source: "conversation",
	}))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO customer_terminology")).
		WithArgs("cust-1", "Widget Pro", "flagship SKU", "product", 0.7, "conversation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpsertTerm(ctx, "cust-1", base.Learning{
		Type: base.LearningProduct, Key: "Widget Pro", Value: "flagship SKU", Confidence: 0.7, Source: "conversation",
	}))

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (customer_id, pref_key)")).
		WithArgs("cust-1", "chart_type", "bar", 0.5, "conversation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpsertPreference(ctx, "cust-1", base.Learning{
		Type: base.LearningPreference, Key: "chart_type", Value: "bar", Confidence: 0.5, Source: "conversation",
	}))

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, false, NOW())")).
		WithArgs("cust-1", "mode", "LTL means partial loads", 0.9, "conversation").
		WillReturnError(errors.New("deadlock"))
	err = repo.RecordCorrection(ctx, "cust-1", base.Learning{
		Type: base.LearningCorrection, Key: "mode", Value: "LTL means partial loads", Confidence: 0.9, Source: "conversation",
	})
	assert.ErrorContains(t, err, "deadlock")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_GetAISettings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewCustomerRepository(db)
	query := regexp.QuoteMeta(`SELECT ai_enabled, daily_ai_budget_usd FROM customers WHERE id = $1`)

	mock.ExpectQuery(query).WithArgs("cust-1").
		WillReturnRows(sqlmock.NewRows([]string{"ai_enabled", "daily_ai_budget_usd"}).AddRow(true, 25.0))
	s, err := repo.GetAISettings(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.True(t, s.Enabled)
	assert.Equal(t, 25.0, s.DailyCapUSD)

	mock.ExpectQuery(query).WithArgs("cust-2").
		WillReturnRows(sqlmock.NewRows([]string{"ai_enabled", "daily_ai_budget_usd"}).AddRow(false, nil))
	s, err = repo.GetAISettings(context.Background(), "cust-2")
	require.NoError(t, err)
	assert.False(t, s.Enabled)
	assert.Zero(t, s.DailyCapUSD)

	mock.ExpectQuery(query).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetAISettings(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
