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

// Limits are the per-request ceilings enforced by a Governor.
type Limits struct {
	MaxTurns                int     `yaml:"max_turns" json:"max_turns"`
	MaxTotalTokens          int     `yaml:"max_total_tokens" json:"max_total_tokens"`
	MaxCostUSD              float64 `yaml:"max_cost_usd" json:"max_cost_usd"`
	WarningThresholdPercent float64 `yaml:"warning_threshold_percent" json:"warning_threshold_percent"`
}

// DefaultLimits returns the production per-request ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxTurns:                10,
		MaxTotalTokens:          200000,
		MaxCostUSD:              1.00,
		WarningThresholdPercent: 80,
	}
}

// Validate checks that every ceiling is positive.
func (l Limits) Validate() error {
	if l.MaxTurns <= 0 || l.MaxTotalTokens <= 0 || l.MaxCostUSD <= 0 {
		return ErrInvalidLimits
	}
	if l.WarningThresholdPercent <= 0 || l.WarningThresholdPercent > 100 {
		return ErrInvalidLimits
	}
	return nil
}

// BudgetState is the request-local consumption so far. It never decreases.
type BudgetState struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TokensUsed   int     `json:"tokens_used"`
	CostUsed     float64 `json:"cost_usd"`
	TurnCount    int     `json:"turn_count"`
}

// Decision is the result of Governor.CanProceed.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// BudgetDecision represents the result of a daily budget check
type BudgetDecision struct {
	Allowed    bool    `json:"allowed"`
	CustomerID string  `json:"customer_id,omitempty"`
	UsedUSD    float64 `json:"used_usd"`
	LimitUSD   float64 `json:"limit_usd,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	Message    string  `json:"message,omitempty"`
}
