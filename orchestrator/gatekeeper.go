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
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"reportpilot/platform/agent/circuitbreaker"
	"reportpilot/platform/agent/ratelimit"
	"reportpilot/platform/common/usage"
	"reportpilot/platform/connectors/base"
	"reportpilot/platform/connectors/postgres"
	"reportpilot/platform/orchestrator/access"
	"reportpilot/platform/orchestrator/cost"
	"reportpilot/platform/orchestrator/report"
	"reportpilot/platform/orchestrator/sanitizer"
	"reportpilot/platform/orchestrator/tools"
	"reportpilot/platform/shared/logger"
)

// Error codes returned in GateError.Code.
const (
	CodeRateLimited        = "rate_limit_exceeded"
	CodeDailyBudget        = "daily_budget_exceeded"
	CodeAIDisabled         = "ai_disabled"
	CodeServiceUnavailable = "service_unavailable"
	CodeInvalidRequest     = "invalid_request"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeUpstream           = "upstream_error"
	CodeInternal           = "internal_error"
)

// ReportRequest is the body of POST /api/v1/reports/generate.
type ReportRequest struct {
	Prompt              string                `json:"prompt"`
	ConversationHistory []ConversationMessage `json:"conversationHistory"`
	CustomerID          string                `json:"customerId"`
	IsAdmin             bool                  `json:"isAdmin,omitempty"`
	UserID              string                `json:"userId,omitempty"`
	SessionID           string                `json:"sessionId,omitempty"`
	// UseTools defaults to true.
	UseTools *bool `json:"useTools,omitempty"`
}

// UsageSummary is the usage block of a response.
type UsageSummary struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	TotalTokens  int     `json:"totalTokens"`
	CostUSD      float64 `json:"costUsd"`
	LatencyMs    int64   `json:"latencyMs"`
}

// ReportResponse is a successful (HTTP 200) reply. Budget exhaustion is a
// success too: the partial tool work is still returned.
type ReportResponse struct {
	RequestID            string            `json:"requestId"`
	Report               *report.Draft     `json:"report"`
	Message              string            `json:"message"`
	Summary              string            `json:"summary,omitempty"`
	ToolExecutions       []tools.Execution `json:"toolExecutions"`
	Learnings            []base.Learning   `json:"learnings,omitempty"`
	NeedsClarification   bool              `json:"needsClarification,omitempty"`
	ClarificationOptions []string          `json:"clarificationOptions,omitempty"`
	BudgetExhausted      bool              `json:"budgetExhausted,omitempty"`
	Usage                UsageSummary      `json:"usage"`
}

// GateError is a request the gatekeeper refused or could not complete.
type GateError struct {
	Status            int     `json:"-"`
	Code              string  `json:"error"`
	Message           string  `json:"message"`
	RetryAfterSeconds int     `json:"retryAfterSeconds,omitempty"`
	SpentToday        float64 `json:"spentToday,omitempty"`
	DailyCap          float64 `json:"dailyCap,omitempty"`
	RequestID         string  `json:"requestId,omitempty"`
	Err               error   `json:"-"`
}

func (e *GateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GateError) Unwrap() error { return e.Err }

// Runner drives a conversation. *Engine implements it.
type Runner interface {
	Run(ctx context.Context, in RunInput) (*RunResult, error)
}

// SettingsSource loads a customer's AI flag and daily cap.
// *postgres.CustomerRepository implements it.
type SettingsSource interface {
	GetAISettings(ctx context.Context, customerID string) (*postgres.AISettings, error)
}

// StaticSettings enables AI for every customer with one shared daily cap.
// Used when no database is configured.
type StaticSettings struct {
	Enabled     bool
	DailyCapUSD float64
}

// GetAISettings implements SettingsSource.
func (s StaticSettings) GetAISettings(_ context.Context, customerID string) (*postgres.AISettings, error) {
	return &postgres.AISettings{CustomerID: customerID, Enabled: s.Enabled, DailyCapUSD: s.DailyCapUSD}, nil
}

// GatekeeperDeps wires a Gatekeeper.
type GatekeeperDeps struct {
	Resolver  *access.Resolver
	Settings  SettingsSource
	Limiter   *ratelimit.Limiter
	DailyCap  *cost.DailyCap
	Engine    Runner
	Sanitizer *sanitizer.Sanitizer
	Usage     usage.Sink
	Log       *logger.Logger
	Now       func() time.Time
}

// Gatekeeper is the entry sequence for report requests: resolve the role,
// check the AI flag, the rate limit and the daily cap, run the
// conversation, then sanitize what goes back to the caller.
type Gatekeeper struct {
	deps GatekeeperDeps
}

// NewGatekeeper validates deps and fills defaults.
func NewGatekeeper(deps GatekeeperDeps) (*Gatekeeper, error) {
	if deps.Resolver == nil || deps.Limiter == nil || deps.Engine == nil || deps.Usage == nil {
		return nil, errors.New("gatekeeper: resolver, limiter, engine and usage sink are required")
	}
	if deps.Settings == nil {
		deps.Settings = StaticSettings{Enabled: true}
	}
	if deps.DailyCap == nil {
		if src, ok := deps.Usage.(cost.SpendSource); ok {
			deps.DailyCap = cost.NewDailyCap(src)
		}
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = sanitizer.New(sanitizer.DefaultConfig())
	}
	if deps.Log == nil {
		deps.Log = logger.New("gatekeeper")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Gatekeeper{deps: deps}, nil
}

// Handle runs one report request. Exactly one usage event is recorded
// whatever the outcome.
func (g *Gatekeeper) Handle(ctx context.Context, authHeader string, req ReportRequest) (*ReportResponse, *GateError) {
	start := g.deps.Now()
	ev := usage.Event{
		RequestID:  uuid.NewString(),
		CustomerID: req.CustomerID,
		UserID:     req.UserID,
		SessionID:  req.SessionID,
	}

	resp, gerr := g.handle(ctx, authHeader, req, &ev)

	ev.LatencyMs = g.deps.Now().Sub(start).Milliseconds()
	ev.CreatedAt = start.UTC()
	switch {
	case gerr != nil:
		gerr.RequestID = ev.RequestID
		ev.ErrorCode = gerr.Code
		if ev.Status == "" {
			ev.Status = usage.StatusRejected
		}
	case ev.Status == "":
		ev.Status = usage.StatusSuccess
	}
	if resp != nil {
		resp.Usage.LatencyMs = ev.LatencyMs
	}
	g.record(ctx, ev)

	status := ev.Status
	if ev.ErrorCode != "" {
		status = ev.ErrorCode
	}
	promRequestsTotal.WithLabelValues(status).Inc()
	promRequestDuration.WithLabelValues(ev.Status).Observe(float64(ev.LatencyMs))
	return resp, gerr
}

func (g *Gatekeeper) handle(ctx context.Context, authHeader string, req ReportRequest, ev *usage.Event) (*ReportResponse, *GateError) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &GateError{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "prompt is required"}
	}
	for i, m := range req.ConversationHistory {
		if m.Role != "user" && m.Role != "assistant" {
			return nil, &GateError{Status: http.StatusBadRequest, Code: CodeInvalidRequest,
				Message: fmt.Sprintf("conversationHistory[%d] has invalid role %q", i, m.Role)}
		}
	}

	policy, err := g.deps.Resolver.Resolve(authHeader, access.Claimed{
		CustomerID: req.CustomerID,
		UserID:     req.UserID,
		IsAdmin:    req.IsAdmin,
	})
	if err != nil {
		return nil, accessError(err)
	}
	ev.CustomerID, ev.UserID = policy.CustomerID, policy.UserID

	settings, err := g.deps.Settings.GetAISettings(ctx, policy.CustomerID)
	if errors.Is(err, postgres.ErrCustomerNotFound) {
		return nil, &GateError{Status: http.StatusForbidden, Code: CodeAIDisabled, Message: "AI reporting is not enabled for this customer", Err: err}
	}
	if err != nil {
		g.deps.Log.Error(policy.CustomerID, ev.RequestID, "Failed to load AI settings", map[string]interface{}{"error": err.Error()})
		return nil, &GateError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "failed to load customer settings", Err: err}
	}
	if !settings.Enabled {
		return nil, &GateError{Status: http.StatusForbidden, Code: CodeAIDisabled, Message: "AI reporting is not enabled for this customer"}
	}

	limitKey := rateLimitKey(policy)
	if rl := g.deps.Limiter.Admit(ctx, limitKey); !rl.Allowed {
		return nil, &GateError{
			Status:            http.StatusTooManyRequests,
			Code:              CodeRateLimited,
			Message:           fmt.Sprintf("Rate limit exceeded for the %s window", rl.LimitType),
			RetryAfterSeconds: rl.RetryAfterSeconds(),
		}
	}

	if g.deps.DailyCap != nil {
		decision, err := g.deps.DailyCap.Check(ctx, policy.CustomerID, settings.DailyCapUSD)
		switch {
		case err != nil:
			g.deps.Log.Warn(policy.CustomerID, ev.RequestID, "Daily budget check failed, allowing request", map[string]interface{}{"error": err.Error()})
		case !decision.Allowed:
			return nil, &GateError{
				Status:     http.StatusTooManyRequests,
				Code:       CodeDailyBudget,
				Message:    decision.Message,
				SpentToday: decision.UsedUSD,
				DailyCap:   decision.LimitUSD,
			}
		}
	}

	useTools := req.UseTools == nil || *req.UseTools
	res, err := g.deps.Engine.Run(ctx, RunInput{
		RequestID: ev.RequestID,
		Prompt:    req.Prompt,
		History:   req.ConversationHistory,
		Policy:    policy,
		UseTools:  useTools,
	})
	if res != nil {
		ev.InputTokens = res.Usage.InputTokens
		ev.OutputTokens = res.Usage.OutputTokens
		ev.CostUSD = res.Usage.CostUsed
		ev.Turns = res.Usage.TurnCount
		ev.ToolCalls = len(res.ToolExecutions)
	}
	if err != nil {
		return nil, g.runError(policy, ev, err)
	}

	return g.respond(policy, ev, res), nil
}

func (g *Gatekeeper) runError(policy access.Policy, ev *usage.Event, err error) *GateError {
	var openErr *circuitbreaker.OpenError
	if errors.As(err, &openErr) {
		retry := int((openErr.RetryAfter + time.Second - 1) / time.Second)
		if retry < 1 {
			retry = 1
		}
		return &GateError{
			Status:            http.StatusServiceUnavailable,
			Code:              CodeServiceUnavailable,
			Message:           "The AI service is temporarily unavailable. Please try again shortly.",
			RetryAfterSeconds: retry,
			Err:               err,
		}
	}

	ev.Status = usage.StatusError
	g.deps.Log.ErrorWithCode(policy.CustomerID, ev.RequestID, "Report generation failed", http.StatusInternalServerError, err, nil)
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return &GateError{Status: http.StatusInternalServerError, Code: CodeUpstream, Message: "The AI service returned an error", Err: err}
	}
	return &GateError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Report generation failed", Err: err}
}

// respond sanitizes the run result for the caller's role.
func (g *Gatekeeper) respond(policy access.Policy, ev *usage.Event, res *RunResult) *ReportResponse {
	msg := g.deps.Sanitizer.Validate(res.Message, policy.IsAdmin)
	if msg.Severity != sanitizer.SeverityNone {
		sanitizerFindings.WithLabelValues(string(msg.Severity)).Inc()
	}
	summary := g.deps.Sanitizer.Validate(res.Summary, policy.IsAdmin)

	rep, removed := g.deps.Sanitizer.FilterSections(res.Report, policy.IsAdmin)
	sectionsRemoved.Add(float64(len(removed)))

	execs := g.deps.Sanitizer.FilterExecutions(res.ToolExecutions, policy.IsAdmin)
	if execs == nil {
		execs = []tools.Execution{}
	}

	resp := &ReportResponse{
		RequestID:      ev.RequestID,
		Report:         rep,
		Message:        msg.SanitizedMessage,
		Summary:        summary.SanitizedMessage,
		ToolExecutions: execs,
		Learnings:      g.deps.Sanitizer.FilterLearnings(res.Learnings, policy.IsAdmin),
		Usage: UsageSummary{
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
			TotalTokens:  res.Usage.TokensUsed,
			CostUSD:      res.Usage.CostUsed,
		},
	}

	switch res.Outcome {
	case OutcomeClarification:
		ev.Status = usage.StatusClarification
		resp.NeedsClarification = true
		resp.ClarificationOptions = res.ClarificationOptions
	case OutcomeExhausted:
		ev.Status = usage.StatusExhausted
		resp.BudgetExhausted = true
	default:
		ev.Status = usage.StatusSuccess
	}
	return resp
}

func (g *Gatekeeper) record(ctx context.Context, ev usage.Event) {
	if err := g.deps.Usage.Record(context.WithoutCancel(ctx), ev); err != nil {
		g.deps.Log.Error(ev.CustomerID, ev.RequestID, "Failed to record usage", map[string]interface{}{"error": err.Error()})
	}
}

// CheckRateLimit reports a user's current limit status without recording a request.
func (g *Gatekeeper) CheckRateLimit(ctx context.Context, userID string) ratelimit.Result {
	return g.deps.Limiter.CheckLimit(ctx, userID)
}

func rateLimitKey(p access.Policy) string {
	if p.UserID != "" {
		return p.UserID
	}
	return "customer:" + p.CustomerID
}

func accessError(err error) *GateError {
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		return &GateError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "a valid bearer token is required", Err: err}
	case errors.Is(err, access.ErrForbidden):
		return &GateError{Status: http.StatusForbidden, Code: CodeForbidden, Message: "not allowed to act for this customer", Err: err}
	case errors.Is(err, access.ErrMissingCustomer):
		return &GateError{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "customerId is required", Err: err}
	default:
		return &GateError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "failed to resolve caller", Err: err}
	}
}
