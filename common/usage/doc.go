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

/*
Package usage records per-request AI usage for audit and daily spend limits.

Every request that reaches the report endpoint produces exactly one Event,
whether it succeeded, was rejected before any model call, or failed upstream.
Rejections carry zero tokens.

	recorder := usage.NewUsageRecorder(db)
	_ = recorder.Record(ctx, usage.Event{
	    RequestID:  reqID,
	    CustomerID: "cust-1",
	    Status:     usage.StatusSuccess,
	    InputTokens: 1200,
	    OutputTokens: 300,
	    CostUSD:    0.0081,
	})

SpentSince sums cost_usd and satisfies cost.SpendSource, so the same
recorder feeds the daily budget cap.

MemoryRecorder is a process-local Sink used when no database is configured.
*/
package usage
