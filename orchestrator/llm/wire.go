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

package llm

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMaxTokens is used when a request leaves MaxTokens unset.
const DefaultMaxTokens = 4096

type wireRequest struct {
	AnthropicVersion string           `json:"anthropic_version,omitempty"`
	Model            string           `json:"model,omitempty"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []Message        `json:"messages"`
	Tools            []ToolDefinition `json:"tools,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
}

type wireResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Content    []ContentBlock `json:"content"`
	Usage      Usage          `json:"usage"`
}

// EncodeOptions controls the transport-specific parts of the body.
type EncodeOptions struct {
	// Model is written into the body. Bedrock carries it in the URL instead.
	Model string
	// AnthropicVersion is written into the body. The HTTP API uses a header instead.
	AnthropicVersion string
}

// EncodeRequest serialises req in the Anthropic messages format.
func EncodeRequest(req MessagesRequest, opts EncodeOptions) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	body, err := json.Marshal(wireRequest{
		AnthropicVersion: opts.AnthropicVersion,
		Model:            opts.Model,
		MaxTokens:        maxTokens,
		System:           req.System,
		Messages:         req.Messages,
		Tools:            req.Tools,
		Temperature:      req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

// DecodeResponse parses a messages response body.
func DecodeResponse(body []byte, latency time.Duration) (*MessagesResponse, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(wr.Content) == 0 && wr.StopReason == "" {
		return nil, ErrEmptyResponse
	}
	return &MessagesResponse{
		ID:         wr.ID,
		Model:      wr.Model,
		StopReason: StopReason(wr.StopReason),
		Content:    wr.Content,
		Usage:      wr.Usage,
		Latency:    latency,
	}, nil
}
