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

package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reportpilot/platform/orchestrator/llm"
)

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.Error(t, err)

	p, err := NewProvider(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
	assert.Equal(t, DefaultModel, p.Model())
	assert.Equal(t, DefaultBaseURL, p.baseURL)
	assert.True(t, p.IsHealthy())
}

func TestCreateMessage_ToolUse(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, DefaultAPIVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-20250514",
			"stop_reason": "tool_use",
			"content": [{"type": "tool_use", "id": "tu_1", "name": "explore_field", "input": {"field": "carrier"}}],
			"usage": {"input_tokens": 900, "output_tokens": 40}
		}`))
	}))
	defer server.Close()

	p, err := NewProvider(Config{APIKey: "sk-test", BaseURL: server.URL, MaxTokens: 2048})
	require.NoError(t, err)

	resp, err := p.CreateMessage(context.Background(), llm.MessagesRequest{
		System:   "system",
		Messages: []llm.Message{llm.TextMessage(llm.RoleUser, "volume by carrier")},
		Tools:    []llm.ToolDefinition{{Name: "explore_field", InputSchema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, captured["model"])
	assert.Equal(t, float64(2048), captured["max_tokens"])
	assert.Equal(t, "system", captured["system"])
	assert.Len(t, captured["tools"], 1)

	assert.True(t, resp.WantsTools())
	assert.Equal(t, 940, resp.Usage.Total())
	assert.Equal(t, "explore_field", resp.ToolUses()[0].Name)
}

func TestCreateMessage_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	p, err := NewProvider(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.CreateMessage(context.Background(), llm.MessagesRequest{
		Messages: []llm.Message{llm.TextMessage(llm.RoleUser, "hi")},
	})
	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 529, apiErr.StatusCode)
	assert.True(t, apiErr.IsOverloadedError())
	assert.False(t, p.IsHealthy())
}

func TestCreateMessage_UnparseableErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	p, _ := NewProvider(Config{APIKey: "sk-test", BaseURL: server.URL})
	_, err := p.CreateMessage(context.Background(), llm.MessagesRequest{})
	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad gateway", apiErr.Message)
}

type mockHTTPClient struct {
	mock.Mock
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func TestCreateMessage_TransportError(t *testing.T) {
	client := &mockHTTPClient{}
	client.On("Do", mock.Anything).Return(nil, errors.New("connection reset"))

	p, err := NewProvider(Config{APIKey: "sk-test", HTTPClient: client})
	require.NoError(t, err)

	_, err = p.CreateMessage(context.Background(), llm.MessagesRequest{})
	assert.ErrorContains(t, err, "connection reset")
	assert.False(t, p.IsHealthy())
	client.AssertExpectations(t)
}
