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

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"reportpilot/platform/agent/circuitbreaker"
	"reportpilot/platform/connectors/base"
	"reportpilot/platform/orchestrator/access"
	"reportpilot/platform/orchestrator/cost"
	"reportpilot/platform/orchestrator/llm"
	"reportpilot/platform/orchestrator/report"
	"reportpilot/platform/orchestrator/tools"
	"reportpilot/platform/shared/logger"
	"reportpilot/platform/shared/telemetry"
)

// DefaultTurnEstimate is the projected token cost of the first call, before
// any real usage has been observed.
const DefaultTurnEstimate = 4000

// Outcome is how a conversation ended.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeClarification Outcome = "clarification"
	OutcomeExhausted     Outcome = "exhausted"
	OutcomeError         Outcome = "error"
)

// ConversationMessage is one prior message supplied by the caller.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunInput is one conversation to drive.
type RunInput struct {
	RequestID string
	Prompt    string
	History   []ConversationMessage
	Policy    access.Policy
	UseTools  bool
}

// RunResult is what the turn loop produced. It is returned alongside an
// error too, so callers can meter the tokens spent before the failure.
type RunResult struct {
	Outcome              Outcome
	Message              string
	Report               *report.Draft
	Summary              string
	ToolExecutions       []tools.Execution
	Learnings            []base.Learning
	ClarificationOptions []string
	Usage                cost.BudgetState
	Latency              time.Duration
}

// UpstreamError is a failed LLM call. It has already been counted by the
// circuit breaker.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// EngineDeps wires an Engine.
type EngineDeps struct {
	LLM       llm.Client
	Breaker   *circuitbreaker.Breaker
	Data      base.DataSource
	Knowledge base.KnowledgeStore
	Prompt    PromptBuilder
	Pricing   *cost.PricingConfig
	Limits    cost.Limits
	Model     string // overrides LLM.Model() when set
	MaxTokens int
	// TurnEstimate seeds the governor's projection. Defaults to DefaultTurnEstimate.
	TurnEstimate    int
	ToolParallelism int
	Log             *logger.Logger
	Now             func() time.Time
}

// Engine drives the bounded tool-calling conversation. One Engine serves
// every request; per-request state lives in the governor and executor it
// creates on each Run.
type Engine struct {
	deps EngineDeps
}

// NewEngine validates deps and fills defaults.
func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.LLM == nil {
		return nil, errors.New("engine: llm client is required")
	}
	if deps.Breaker == nil {
		return nil, errors.New("engine: circuit breaker is required")
	}
	if deps.Data == nil {
		return nil, errors.New("engine: data source is required")
	}
	if deps.Prompt == nil {
		p, err := NewTemplatePrompt("", deps.Data)
		if err != nil {
			return nil, err
		}
		deps.Prompt = p
	}
	if deps.Pricing == nil {
		deps.Pricing = cost.NewPricingConfig()
	}
	if deps.Model == "" {
		deps.Model = deps.LLM.Model()
	}
	if deps.MaxTokens <= 0 {
		deps.MaxTokens = llm.DefaultMaxTokens
	}
	if deps.TurnEstimate <= 0 {
		deps.TurnEstimate = DefaultTurnEstimate
	}
	if deps.Log == nil {
		deps.Log = logger.New("engine")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{deps: deps}, nil
}

func (e *Engine) pricing() cost.ModelPricing {
	if p, ok := e.deps.Pricing.GetModelPricing(e.deps.LLM.Name(), e.deps.Model); ok {
		return p
	}
	return cost.SonnetPricing
}

// Run drives one conversation to a terminal outcome. A non-nil error means
// the request failed: *circuitbreaker.OpenError when the breaker refused
// the call, *UpstreamError when the LLM call itself failed.
func (e *Engine) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", in.RequestID),
		attribute.String("customer.id", in.Policy.CustomerID),
		attribute.Bool("caller.admin", in.Policy.IsAdmin),
	)

	start := e.deps.Now()
	res := &RunResult{}
	gov := cost.NewGovernor(e.deps.Limits, e.pricing())
	exec := tools.NewExecutor(tools.Deps{
		Data:        e.deps.Data,
		Knowledge:   e.deps.Knowledge,
		Now:         e.deps.Now,
		Log:         e.deps.Log,
		Observe:     observeTool,
		Parallelism: e.deps.ToolParallelism,
	}, in.Policy, in.RequestID)

	defer func() {
		res.Learnings = exec.Learnings()
		res.Usage = gov.State()
		res.Latency = e.deps.Now().Sub(start)
		span.SetAttributes(
			attribute.String("outcome", string(res.Outcome)),
			attribute.Int("turns", res.Usage.TurnCount),
			attribute.Int("tokens", res.Usage.TokensUsed),
		)
	}()

	system, err := e.deps.Prompt.SystemPrompt(ctx, in.Policy)
	if err != nil {
		res.Outcome = OutcomeError
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("build system prompt: %w", err)
	}

	var defs []llm.ToolDefinition
	if in.UseTools {
		defs = tools.Definitions()
	}

	messages := transcript(in.History, in.Prompt)
	estimate := e.deps.TurnEstimate
	lastText := ""

	for {
		if d := gov.CanProceed(estimate); !d.Allowed {
			res.Outcome = OutcomeExhausted
			res.Message = exhaustedMessage(gov, lastText)
			e.deps.Log.Info(in.Policy.CustomerID, in.RequestID, "Conversation stopped by budget", map[string]interface{}{
				"reason": d.Reason,
				"turns":  gov.State().TurnCount,
			})
			return res, nil
		}

		if !e.deps.Breaker.CanExecute() {
			res.Outcome = OutcomeError
			openErr := &circuitbreaker.OpenError{RetryAfter: e.deps.Breaker.GetTimeUntilRetry()}
			span.SetStatus(codes.Error, openErr.Error())
			return res, openErr
		}

		prompt := system
		if gov.Warning() {
			prompt = system + "\n\n" + gov.GetStatusMessage()
		}

		resp, err := e.call(ctx, gov.State().TurnCount+1, llm.MessagesRequest{
			Model:     e.deps.Model,
			System:    prompt,
			Messages:  messages,
			Tools:     defs,
			MaxTokens: e.deps.MaxTokens,
		})
		if err != nil {
			res.Outcome = OutcomeError
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}

		gov.RecordUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		if total := resp.Usage.Total(); total > estimate {
			estimate = total
		}

		text := resp.Text()
		if strings.TrimSpace(text) != "" {
			lastText = text
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

		if !resp.WantsTools() {
			res.Outcome = OutcomeSuccess
			res.Message = lastText
			if final, ok := exec.Final(); ok {
				res.Report, res.Summary = final.Report, final.Summary
			}
			return res, nil
		}

		outcomes := exec.Execute(ctx, resp.ToolUses())
		results := make([]llm.ContentBlock, len(outcomes))
		for i, o := range outcomes {
			results[i] = o.ResultBlock()
			res.ToolExecutions = append(res.ToolExecutions, o.Execution)
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: results})

		if final, ok := exec.Final(); ok {
			res.Outcome = OutcomeSuccess
			res.Report, res.Summary = final.Report, final.Summary
			res.Message = firstNonEmpty(text, final.Summary, lastText)
			return res, nil
		}
		if q, ok := exec.Clarification(); ok {
			res.Outcome = OutcomeClarification
			res.Message = q.Question
			res.ClarificationOptions = q.Options
			return res, nil
		}
	}
}

// call issues one LLM request and reports its result to the breaker.
func (e *Engine) call(ctx context.Context, turn int, req llm.MessagesRequest) (*llm.MessagesResponse, error) {
	provider := e.deps.LLM.Name()
	ctx, span := telemetry.Tracer().Start(ctx, "llm.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", req.Model),
		attribute.Int("turn", turn),
	)

	resp, err := e.deps.LLM.CreateMessage(ctx, req)
	if err == nil && resp == nil {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		e.deps.Breaker.RecordFailure(err)
		llmCallsTotal.WithLabelValues(provider, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &UpstreamError{Provider: provider, Err: err}
	}

	e.deps.Breaker.RecordSuccess()
	llmCallsTotal.WithLabelValues(provider, "success").Inc()
	tokensTotal.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
	tokensTotal.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))
	span.SetAttributes(
		attribute.String("llm.stop_reason", string(resp.StopReason)),
		attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}

// transcript converts caller history into LLM messages and appends prompt.
// Messages with an unknown role or no text are skipped; a trailing user
// message is merged with the prompt so roles keep alternating.
func transcript(history []ConversationMessage, prompt string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := llm.Role(m.Role)
		if (role != llm.RoleUser && role != llm.RoleAssistant) || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, llm.TextBlock(m.Content))
			continue
		}
		messages = append(messages, llm.TextMessage(role, m.Content))
	}

	if n := len(messages); n > 0 && messages[n-1].Role == llm.RoleUser {
		messages[n-1].Content = append(messages[n-1].Content, llm.TextBlock(prompt))
		return messages
	}
	return append(messages, llm.TextMessage(llm.RoleUser, prompt))
}

// exhaustedMessage picks the terminal text when the governor stops the loop.
// Running out of turns keeps the model's last words when there are any.
func exhaustedMessage(gov *cost.Governor, lastText string) string {
	if gov.State().TurnCount >= gov.Limits().MaxTurns && lastText != "" {
		return lastText
	}
	return cost.ExhaustedMessage
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func observeTool(tool string, isError bool, _ time.Duration) {
	status := "success"
	if isError {
		status = "error"
	}
	toolCallsTotal.WithLabelValues(tool, status).Inc()
}
