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

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"reportpilot/platform/connectors/base"
	"reportpilot/platform/orchestrator/access"
	"reportpilot/platform/orchestrator/llm"
	"reportpilot/platform/orchestrator/report"
	"reportpilot/platform/shared/logger"
	"reportpilot/platform/shared/telemetry"
)

// DefaultParallelism bounds concurrent read-only calls within one batch.
const DefaultParallelism = 4

// Execution is the audit record of one tool invocation.
type Execution struct {
	ToolName   string          `json:"toolName"`
	Input      json.RawMessage `json:"input"`
	Result     interface{}     `json:"result"`
	Timestamp  time.Time       `json:"timestamp"`
	DurationMs int64           `json:"durationMs"`
	IsError    bool            `json:"isError,omitempty"`
}

// Outcome pairs an execution with the tool_use block it answers.
type Outcome struct {
	ToolUseID string
	Execution Execution
}

// ResultBlock renders the outcome as a tool_result content block.
func (o Outcome) ResultBlock() llm.ContentBlock {
	body, err := json.Marshal(o.Execution.Result)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return llm.ToolResultBlock(o.ToolUseID, string(body), o.Execution.IsError)
}

// Clarification is the question surfaced by ask_clarification.
type Clarification struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// Final is a report that passed finalize validation.
type Final struct {
	Report  *report.Draft
	Summary string
}

// Deps are the collaborators an executor calls into.
type Deps struct {
	Data      base.DataSource
	Knowledge base.KnowledgeStore // optional
	Now       func() time.Time
	Log       *logger.Logger
	// Observe, when set, is told about every finished call.
	Observe     func(tool string, isError bool, d time.Duration)
	Parallelism int
}

// Executor runs tool calls for one request. It owns the request's draft and
// must not be shared between requests.
type Executor struct {
	deps      Deps
	policy    access.Policy
	requestID string

	catalog       catalog
	draft         *report.Draft
	final         *Final
	clarification *Clarification
	learnings     []base.Learning
}

// NewExecutor creates an executor for one request.
func NewExecutor(deps Deps, policy access.Policy, requestID string) *Executor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logger.New("tools")
	}
	if deps.Parallelism <= 0 {
		deps.Parallelism = DefaultParallelism
	}
	return &Executor{deps: deps, policy: policy, requestID: requestID}
}

// Draft returns the current draft, or nil before create_report_draft.
func (e *Executor) Draft() *report.Draft { return e.draft }

// Final returns the validated report, if finalize_report succeeded.
func (e *Executor) Final() (*Final, bool) { return e.final, e.final != nil }

// Clarification returns the pending question, if ask_clarification ran.
func (e *Executor) Clarification() (*Clarification, bool) {
	return e.clarification, e.clarification != nil
}

// Learnings returns everything learned so far, in call order.
func (e *Executor) Learnings() []base.Learning {
	return append([]base.Learning(nil), e.learnings...)
}

// Concluded reports whether a terminal tool has run.
func (e *Executor) Concluded() bool {
	return e.final != nil || e.clarification != nil
}

// AvailableFields loads (once) and returns the fields visible to the caller.
func (e *Executor) AvailableFields(ctx context.Context) (map[string]bool, error) {
	if err := e.catalog.load(ctx, e.deps.Data, e.policy.Scope()); err != nil {
		return nil, err
	}
	return e.catalog.available(), nil
}

// Execute runs every tool_use block in uses. Read-only calls run
// concurrently; everything else runs sequentially in call order. Outcomes
// come back in the order of uses regardless.
func (e *Executor) Execute(ctx context.Context, uses []llm.ContentBlock) []Outcome {
	ctx, span := telemetry.Tracer().Start(ctx, "tools.batch")
	defer span.End()
	span.SetAttributes(attribute.Int("tools.count", len(uses)))

	outcomes := make([]Outcome, len(uses))
	calls := make([]Call, len(uses))
	var parallel, sequential []int

	for i, use := range uses {
		outcomes[i].ToolUseID = use.ID
		call, err := Decode(use.Name, use.Input)
		if err != nil {
			outcomes[i].Execution = e.failed(use.Name, use.Input, err, 0)
			continue
		}
		calls[i] = call
		if call.ReadOnly() {
			parallel = append(parallel, i)
		} else {
			sequential = append(sequential, i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.deps.Parallelism)
	for _, i := range parallel {
		i := i
		g.Go(func() error {
			outcomes[i].Execution = e.run(gctx, calls[i], uses[i].Input)
			return nil
		})
	}
	_ = g.Wait()

	for _, i := range sequential {
		if e.Concluded() {
			outcomes[i].Execution = e.failed(calls[i].ToolName(), uses[i].Input,
				fmt.Errorf("not executed: the conversation has already concluded"), 0)
			continue
		}
		outcomes[i].Execution = e.run(ctx, calls[i], uses[i].Input)
	}

	for _, o := range outcomes {
		if o.Execution.IsError {
			span.SetStatus(codes.Error, "one or more tool calls failed")
			break
		}
	}
	return outcomes
}

func (e *Executor) run(ctx context.Context, call Call, input json.RawMessage) Execution {
	start := e.deps.Now()
	result, err := call.run(ctx, e)
	elapsed := e.deps.Now().Sub(start)
	if err != nil {
		e.deps.Log.Warn(e.policy.CustomerID, e.requestID, "Tool call failed", map[string]interface{}{
			"tool":  call.ToolName(),
			"error": err.Error(),
		})
		return e.failed(call.ToolName(), input, err, elapsed)
	}

	ex := Execution{
		ToolName:   call.ToolName(),
		Input:      normalizeInput(input),
		Result:     result,
		Timestamp:  start.UTC(),
		DurationMs: elapsed.Milliseconds(),
	}
	if v, ok := result.(*finalizeResult); ok && !v.Validation.Valid {
		ex.IsError = true
	}
	e.observe(ex, elapsed)
	return ex
}

func (e *Executor) failed(tool string, input json.RawMessage, err error, elapsed time.Duration) Execution {
	ex := Execution{
		ToolName:   tool,
		Input:      normalizeInput(input),
		Result:     map[string]string{"error": err.Error()},
		Timestamp:  e.deps.Now().UTC(),
		DurationMs: elapsed.Milliseconds(),
		IsError:    true,
	}
	e.observe(ex, elapsed)
	return ex
}

func (e *Executor) observe(ex Execution, elapsed time.Duration) {
	if e.deps.Observe != nil {
		e.deps.Observe(ex.ToolName, ex.IsError, elapsed)
	}
}

func normalizeInput(input json.RawMessage) json.RawMessage {
	if len(input) == 0 || !json.Valid(input) {
		return json.RawMessage(`{}`)
	}
	return input
}
