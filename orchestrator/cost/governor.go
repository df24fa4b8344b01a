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
	"fmt"
	"math"
)

// Share of an estimated next-call token count assumed to be input. The
// remainder is priced as output, which is the conservative side.
const projectedInputShare = 0.6

// ExhaustedMessage is the terminal status once any ceiling is reached.
const ExhaustedMessage = "I've reached the analysis budget for this request. Here's what I found so far based on the data explored."

// Governor caps turns, tokens and cost for a single request. It is not safe
// for concurrent use; each request constructs its own.
type Governor struct {
	limits  Limits
	pricing ModelPricing
	state   BudgetState
}

// NewGovernor creates a governor. Zero-valued limit fields take the defaults.
func NewGovernor(limits Limits, pricing ModelPricing) *Governor {
	d := DefaultLimits()
	if limits.MaxTurns <= 0 {
		limits.MaxTurns = d.MaxTurns
	}
	if limits.MaxTotalTokens <= 0 {
		limits.MaxTotalTokens = d.MaxTotalTokens
	}
	if limits.MaxCostUSD <= 0 {
		limits.MaxCostUSD = d.MaxCostUSD
	}
	if limits.WarningThresholdPercent <= 0 || limits.WarningThresholdPercent > 100 {
		limits.WarningThresholdPercent = d.WarningThresholdPercent
	}
	return &Governor{limits: limits, pricing: pricing}
}

// Limits returns the ceilings in force.
func (g *Governor) Limits() Limits {
	return g.limits
}

// State returns consumption so far.
func (g *Governor) State() BudgetState {
	return g.state
}

// CanProceed decides whether another LLM call may start, given an estimate
// of the tokens it will consume.
func (g *Governor) CanProceed(estimatedTokens int) Decision {
	if estimatedTokens < 0 {
		estimatedTokens = 0
	}

	if g.state.TurnCount >= g.limits.MaxTurns {
		return Decision{Reason: fmt.Sprintf("turn limit reached (%d/%d)", g.state.TurnCount, g.limits.MaxTurns)}
	}

	if projected := g.state.TokensUsed + estimatedTokens; projected > g.limits.MaxTotalTokens {
		return Decision{Reason: fmt.Sprintf("token limit would be exceeded (%d projected, limit %d)", projected, g.limits.MaxTotalTokens)}
	}

	estIn := int(math.Round(float64(estimatedTokens) * projectedInputShare))
	estOut := estimatedTokens - estIn
	if projected := g.state.CostUsed + g.pricing.Cost(estIn, estOut); projected > g.limits.MaxCostUSD {
		return Decision{Reason: fmt.Sprintf("cost limit would be exceeded ($%.4f projected, limit $%.2f)", projected, g.limits.MaxCostUSD)}
	}

	return Decision{Allowed: true}
}

// RecordUsage adds one completed call. Negative counts are ignored.
func (g *Governor) RecordUsage(inputTokens, outputTokens int) {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	g.state.TurnCount++
	g.state.InputTokens += inputTokens
	g.state.OutputTokens += outputTokens
	g.state.TokensUsed += inputTokens + outputTokens
	g.state.CostUsed += g.pricing.Cost(inputTokens, outputTokens)
}

// PercentUsed is the highest utilisation across turns, tokens and cost.
func (g *Governor) PercentUsed() float64 {
	turns := float64(g.state.TurnCount) / float64(g.limits.MaxTurns)
	tokens := float64(g.state.TokensUsed) / float64(g.limits.MaxTotalTokens)
	cost := g.state.CostUsed / g.limits.MaxCostUSD
	return math.Max(turns, math.Max(tokens, cost)) * 100
}

// Exhausted reports whether any ceiling has been reached.
func (g *Governor) Exhausted() bool {
	return g.state.TurnCount >= g.limits.MaxTurns ||
		g.state.TokensUsed >= g.limits.MaxTotalTokens ||
		g.state.CostUsed >= g.limits.MaxCostUSD
}

// Warning reports whether usage is at or above the warning threshold but
// not yet exhausted.
func (g *Governor) Warning() bool {
	return !g.Exhausted() && g.PercentUsed() >= g.limits.WarningThresholdPercent
}

// GetStatusMessage is empty below the warning threshold, a wrap-up notice
// at or above it, and a terminal message once exhausted.
func (g *Governor) GetStatusMessage() string {
	switch {
	case g.Exhausted():
		return ExhaustedMessage
	case g.PercentUsed() >= g.limits.WarningThresholdPercent:
		return fmt.Sprintf("Budget notice: %.0f%% of this request's analysis budget is used. Wrap up and finalize the report with what you have.", g.PercentUsed())
	default:
		return ""
	}
}
