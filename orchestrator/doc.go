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
Package orchestrator provides the report service: a bounded, multi-turn
conversation with an LLM that builds a structured report, wrapped in the
governors that keep it safe to run.

# Overview

A report request passes through the Gatekeeper, then the Engine:

	Gatekeeper: resolve role → AI enabled? → rate limit → daily cap
	Engine:     budget → circuit breaker → LLM call ⇄ tool executor
	Gatekeeper: sanitize message → drop restricted sections → usage record

Every terminal path, including pre-flight rejections, writes exactly one
usage record.

# Engine

The Engine runs one turn per LLM call. Before each call the request's
budget governor must allow it and the process-wide circuit breaker must be
closed (or probing). Tool calls returned by the model are executed by a
per-request tools.Executor and fed back as tool_result blocks. The loop
ends when the model stops asking for tools, a report passes finalize
validation, a clarification is requested, or the budget runs out.

	engine, _ := NewEngine(EngineDeps{LLM: client, Breaker: breaker, Data: data})
	res, err := engine.Run(ctx, RunInput{Prompt: "shipments by carrier", Policy: policy, UseTools: true})

# Errors

Gatekeeper failures are returned as *GateError and rendered as
{"error": code, "message": ...}:

	rate_limit_exceeded    429  retryAfterSeconds
	daily_budget_exceeded  429  spentToday, dailyCap
	ai_disabled            403
	service_unavailable    503  retryAfterSeconds (circuit open)
	invalid_request        400
	unauthorized           401
	forbidden              403
	upstream_error         500
	internal_error         500

# HTTP

	POST /api/v1/reports/generate
	GET  /api/v1/rate-limit/{userId}
	GET  /api/v1/circuit
	GET  /health
	GET  /prometheus
*/
package orchestrator
