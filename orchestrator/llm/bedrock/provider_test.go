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

package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reportpilot/platform/orchestrator/llm"
)

type mockRuntime struct {
	mock.Mock
}

func (m *mockRuntime) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*bedrockruntime.InvokeModelOutput)
	return out, args.Error(1)
}

func TestNewWithClient_RejectsNonClaude(t *testing.T) {
	_, err := NewWithClient(&mockRuntime{}, "us-east-1", "amazon.titan-text-express-v1", 0)
	assert.Error(t, err)

	p, err := NewWithClient(&mockRuntime{}, "us-east-1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.Model())
	assert.Equal(t, "bedrock", p.Name())
}

func TestCreateMessage(t *testing.T) {
	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.MatchedBy(func(in *bedrockruntime.InvokeModelInput) bool {
		var body map[string]any
		if err := json.Unmarshal(in.Body, &body); err != nil {
			return false
		}
		_, hasModel := body["model"]
		return aws.ToString(in.ModelId) == DefaultModel &&
			body["anthropic_version"] == anthropicVersion &&
			!hasModel &&
			body["max_tokens"] == float64(1024)
	})).Return(&bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"id":"msg_b","stop_reason":"end_turn","content":[{"type":"text","text":"Done."}],"usage":{"input_tokens":10,"output_tokens":3}}`),
	}, nil)

	p, err := NewWithClient(rt, "us-east-1", "", 1024)
	require.NoError(t, err)

	resp, err := p.CreateMessage(context.Background(), llm.MessagesRequest{
		Messages: []llm.Message{llm.TextMessage(llm.RoleUser, "hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", resp.Text())
	assert.Equal(t, DefaultModel, resp.Model)
	assert.False(t, resp.WantsTools())
	rt.AssertExpectations(t)
}

func TestCreateMessage_ThrottlingMapsToAPIError(t *testing.T) {
	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, &smithy.GenericAPIError{
		Code:    "ThrottlingException",
		Message: "Too many requests",
	})

	p, err := NewWithClient(rt, "us-east-1", "", 0)
	require.NoError(t, err)

	_, err = p.CreateMessage(context.Background(), llm.MessagesRequest{})
	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.StatusCode)
	assert.True(t, apiErr.IsRateLimitError())
}

func TestCreateMessage_TransportError(t *testing.T) {
	rt := &mockRuntime{}
	rt.On("InvokeModel", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: timeout"))

	p, _ := NewWithClient(rt, "us-east-1", "", 0)
	_, err := p.CreateMessage(context.Background(), llm.MessagesRequest{})
	assert.ErrorContains(t, err, "bedrock API error")
}
