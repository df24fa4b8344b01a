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

package cost

import (
	"context"
	"fmt"
	"time"
)

// SpendSource reports how much a customer has spent since a point in time.
type SpendSource interface {
	SpentSince(ctx context.Context, customerID string, since time.Time) (float64, error)
}

// DailyCap enforces a per-customer spend ceiling per UTC day.
type DailyCap struct {
	source SpendSource
	now    func() time.Time
}

// NewDailyCap creates a daily cap checker backed by source.
func NewDailyCap(source SpendSource) *DailyCap {
	return &DailyCap{source: source, now: time.Now}
}

// WithClock replaces time.Now, for tests.
func (d *DailyCap) WithClock(now func() time.Time) *DailyCap {
	d.now = now
	return d
}

// Check compares today's spend against capUSD. A cap of zero or less means
// no cap and the source is not queried.
func (d *DailyCap) Check(ctx context.Context, customerID string, capUSD float64) (*BudgetDecision, error) {
	if capUSD <= 0 {
		return &BudgetDecision{Allowed: true, CustomerID: customerID}, nil
	}

	startOfDay := d.now().UTC().Truncate(24 * time.Hour)
	spent, err := d.source.SpentSince(ctx, customerID, startOfDay)
	if err != nil {
		return nil, fmt.Errorf("%w: daily spend lookup failed: %v", ErrDatabaseError, err)
	}

	decision := &BudgetDecision{
		Allowed:    spent < capUSD,
		CustomerID: customerID,
		UsedUSD:    spent,
		LimitUSD:   capUSD,
		Percentage: spent / capUSD * 100,
	}
	if !decision.Allowed {
		decision.Message = fmt.Sprintf("Daily AI budget of $%.2f reached ($%.2f spent today)", capUSD, spent)
	}
	return decision, nil
}
