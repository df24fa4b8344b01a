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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reportpilot/platform/agent/circuitbreaker"
	"reportpilot/platform/connectors/base"
	"reportpilot/platform/orchestrator/access"
	"reportpilot/platform/orchestrator/cost"
	"reportpilot/platform/orchestrator/llm"
)

// scriptedLLM replays canned replies in order and records every request.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []llm.MessagesRequest
}

type scriptedReply struct {
	resp *llm.MessagesResponse
	err  error
}

func (s *scriptedLLM) Name() string  { return "anthropic" }
func (s *scriptedLLM) Model() string { return "claude-sonnet-4" }

func (s *scriptedLLM) CreateMessage(_ context.Context, req llm.MessagesRequest) (*llm.MessagesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.resp, r.err
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedLLM) request(i int) llm.MessagesRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func script(replies ...scriptedReply) *scriptedLLM {
	return &scriptedLLM{replies: replies}
}

func textTurn(text string, in, out int) scriptedReply {
	return scriptedReply{resp: &llm.MessagesResponse{
		StopReason: llm.StopEndTurn,
		Content:    []llm.ContentBlock{llm.TextBlock(text)},
		Usage:      llm.Usage{InputTokens: in, OutputTokens: out},
	}}
}

func toolTurn(text string, in, out int, uses ...llm.ContentBlock) scriptedReply {
	var content []llm.ContentBlock
	if text != "" {
		content = append(content, llm.TextBlock(text))
	}
	content = append(content, uses...)
	return scriptedReply{resp: &llm.MessagesResponse{
		StopReason: llm.StopToolUse,
		Content:    content,
		Usage:      llm.Usage{InputTokens: in, OutputTokens: out},
	}}
}

func failTurn(err error) scriptedReply {
	return scriptedReply{err: err}
}

var useSeq int

func toolUse(name, input string) llm.ContentBlock {
	useSeq++
	return llm.ContentBlock{
		Type:  llm.BlockToolUse,
		ID:    fmt.Sprintf("toolu_%02d", useSeq),
		Name:  name,
		Input: json.RawMessage(input),
	}
}

// stubData serves one shipments table with a restricted cost column.
type stubData struct{}

var stubFields = []base.FieldInfo{
	{Name: "carrier", Type: "text"},
	{Name: "ship_date", Type: "date"},
	{Name: "weight", Type: "number"},
	{Name: "cost", Type: "number", Restricted: true},
	{Name: "carrier_pay", Type: "number", Restricted: true},
}

func (stubData) DiscoverTables(context.Context, base.Scope) ([]base.TableInfo, error) {
	return []base.TableInfo{{Name: "shipments", Description: "One row per shipment"}}, nil
}

func (stubData) DiscoverFields(_ context.Context, scope base.Scope, table string) ([]base.FieldInfo, error) {
	if table != "shipments" {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	var out []base.FieldInfo
	for _, f := range stubFields {
		if f.Restricted && !scope.IsAdmin {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (stubData) DiscoverJoins(context.Context, base.Scope, string) ([]base.JoinInfo, error) {
	return nil, nil
}

func (stubData) QueryTable(context.Context, base.Scope, base.TableQuery) (*base.QueryResult, error) {
	return &base.QueryResult{Rows: []map[string]interface{}{{"carrier": "XPO"}}, RowCount: 1}, nil
}

func (stubData) SearchText(context.Context, base.Scope, base.TextSearch) (*base.QueryResult, error) {
	return &base.QueryResult{}, nil
}

func (stubData) QueryWithJoin(context.Context, base.Scope, base.JoinQuery) (*base.QueryResult, error) {
	return &base.QueryResult{}, nil
}

func (stubData) Aggregate(context.Context, base.Scope, base.Aggregation) (*base.QueryResult, error) {
	return &base.QueryResult{}, nil
}

func (stubData) ExploreField(_ context.Context, _ base.Scope, table, field string, _ int) (*base.FieldProfile, error) {
	return &base.FieldProfile{Table: table, Field: field, Total: 10, Populated: 10, Unique: 3}, nil
}

func (stubData) PreviewGrouping(_ context.Context, _ base.Scope, q base.Aggregation) (*base.GroupingPreview, error) {
	return &base.GroupingPreview{
		Rows: []map[string]interface{}{
			{q.GroupBy: "XPO", "value": int64(60)},
			{q.GroupBy: "Estes", "value": int64(40)},
		},
		TotalGroups: 2,
	}, nil
}

var (
	restricted  = []string{"cost", "carrier_pay", "margin"}
	userPolicy  = access.Policy{CustomerID: "cust-1", UserID: "u1", RestrictedFields: restricted}
	adminPolicy = access.Policy{CustomerID: "cust-1", UserID: "a1", Role: access.RoleAdmin, IsAdmin: true, RestrictedFields: restricted}
)

var testNow = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, client llm.Client, breaker *circuitbreaker.Breaker, limits cost.Limits) *Engine {
	t.Helper()
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}
	e, err := NewEngine(EngineDeps{
		LLM:     client,
		Breaker: breaker,
		Data:    stubData{},
		Limits:  limits,
	})
	require.NoError(t, err)
	return e
}
