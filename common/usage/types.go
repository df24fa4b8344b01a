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

import "time"

// Status values written to ai_usage.status.
const (
	StatusSuccess       = "success"
	StatusClarification = "clarification"
	StatusExhausted     = "budget_exhausted"
	StatusRejected      = "rejected"
	StatusError         = "error"
)

// Event is one usage/audit record. Every terminal request path produces
// exactly one, including pre-flight rejections with zero tokens.
type Event struct {
	RequestID    string
	CustomerID   string
	UserID       string // Optional
	SessionID    string // Optional
	Status       string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	LatencyMs    int64
	Turns        int
	ToolCalls    int
	ErrorCode    string // Empty on success
	CreatedAt    time.Time
}

// TotalTokens returns input plus output tokens.
func (e Event) TotalTokens() int {
	return e.InputTokens + e.OutputTokens
}
