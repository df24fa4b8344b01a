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
	"fmt"
)

// ErrCustomerNotFound is returned when no customers row matches.
var ErrCustomerNotFound = errors.New("customer not found")

// AISettings is the per-customer AI configuration.
type AISettings struct {
	CustomerID  string
	Enabled     bool
	DailyCapUSD float64 // 0 means no cap
}

// CustomerRepository reads customer AI settings.
type CustomerRepository struct {
	db *sql.DB
}

// NewCustomerRepository creates a repository over db.
func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// GetAISettings loads the AI flag and daily cap for a customer.
func (r *CustomerRepository) GetAISettings(ctx context.Context, customerID string) (*AISettings, error) {
	var (
		enabled  bool
		dailyCap sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT ai_enabled, daily_ai_budget_usd FROM customers WHERE id = $1`,
		customerID,
	).Scan(&enabled, &dailyCap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AI settings: %w", err)
	}

	settings := &AISettings{CustomerID: customerID, Enabled: enabled}
	if dailyCap.Valid {
		settings.DailyCapUSD = dailyCap.Float64
	}
	return settings, nil
}
