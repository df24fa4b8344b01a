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

// Package bedrock implements llm.Client for Claude models hosted on AWS
// Bedrock. Requests are signed with the default AWS credential chain.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"reportpilot/platform/orchestrator/llm"
)

const (
	// DefaultRegion is used when none is configured
	DefaultRegion = "us-east-1"

	// DefaultModel is the Bedrock model id used when none is configured
	DefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

	// anthropicVersion is required in the body of Claude-on-Bedrock requests
	anthropicVersion = "bedrock-2023-05-31"
)

// InvokeModelAPI is the slice of the Bedrock runtime client the provider uses.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Provider implements llm.Client using AWS Bedrock.
type Provider struct {
	client    InvokeModelAPI
	region    string
	model     string
	maxTokens int
}

var _ llm.Client = (*Provider)(nil)

// New loads the default AWS configuration for region and builds a provider.
func New(ctx context.Context, region, model string, maxTokens int) (*Provider, error) {
	if region == "" {
		region = DefaultRegion
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}
	return NewWithClient(bedrockruntime.NewFromConfig(awsCfg), region, model, maxTokens)
}

// NewWithClient builds a provider around an existing runtime client.
func NewWithClient(client InvokeModelAPI, region, model string, maxTokens int) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	if !strings.Contains(model, "anthropic.") {
		return nil, fmt.Errorf("bedrock model %q is not a Claude model; tool use requires the Anthropic family", model)
	}
	return &Provider{client: client, region: region, model: model, maxTokens: maxTokens}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "bedrock"
}

// Model returns the default model id.
func (p *Provider) Model() string {
	return p.model
}

// CreateMessage runs one InvokeModel call.
func (p *Provider) CreateMessage(ctx context.Context, req llm.MessagesRequest) (*llm.MessagesResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = p.maxTokens
	}

	body, err := llm.EncodeRequest(req, llm.EncodeOptions{AnthropicVersion: anthropicVersion})
	if err != nil {
		return nil, err
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) {
			return nil, &llm.APIError{
				Provider:   "bedrock",
				StatusCode: statusForCode(ae.ErrorCode()),
				Type:       ae.ErrorCode(),
				Message:    ae.ErrorMessage(),
			}
		}
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}

	resp, err := llm.DecodeResponse(out.Body, time.Since(start))
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp, nil
}

func statusForCode(code string) int {
	switch code {
	case "ThrottlingException":
		return 429
	case "AccessDeniedException":
		return 403
	case "ValidationException":
		return 400
	case "ServiceUnavailableException", "ModelNotReadyException":
		return 503
	default:
		return 500
	}
}
