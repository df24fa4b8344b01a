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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportpilot/platform/shared/logger"
)

func TestNewLimiter_Stores(t *testing.T) {
	log := logger.New("test")

	t.Run("no redis configured", func(t *testing.T) {
		app, checks := &App{}, map[string]HealthCheck{}
		l := newLimiter(context.Background(), DefaultConfig(), app, checks, log)
		require.NotNil(t, l)
		assert.NotContains(t, checks, "redis")
		assert.Empty(t, app.closers)
	})

	t.Run("redis reachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := DefaultConfig()
		cfg.Redis.URL = "redis://" + mr.Addr()
		app, checks := &App{}, map[string]HealthCheck{}

		l := newLimiter(context.Background(), cfg, app, checks, log)
		require.NoError(t, l.RecordRequest(context.Background(), "u1"))
		assert.True(t, checks["redis"](context.Background()))
		assert.NotEmpty(t, mr.Keys(), "requests land in redis")
		require.NoError(t, app.Close())
	})

	t.Run("redis unreachable falls back to memory", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		cfg := DefaultConfig()
		cfg.Redis.URL = "redis://" + addr
		app, checks := &App{}, map[string]HealthCheck{}

		l := newLimiter(context.Background(), cfg, app, checks, log)
		require.NotNil(t, l)
		assert.NotContains(t, checks, "redis")
		res := l.CheckLimit(context.Background(), "u1")
		assert.True(t, res.Allowed)
		assert.False(t, res.FailedOpen)
	})
}

func TestNewLLMClient(t *testing.T) {
	client, err := newLLMClient(context.Background(), LLMConfig{
		Provider: "anthropic",
		APIKey:   "sk-ant-test",
		Model:    "claude-sonnet-4-20250514",
	})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", client.Name())
	assert.Equal(t, "claude-sonnet-4-20250514", client.Model())

	_, err = newLLMClient(context.Background(), LLMConfig{Provider: "anthropic"})
	assert.Error(t, err)

	_, err = newLLMClient(context.Background(), LLMConfig{Provider: "openai"})
	assert.ErrorContains(t, err, "unsupported")
}
