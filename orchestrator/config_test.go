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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var configEnv = []string{
	"PORT", "ALLOWED_ORIGINS", "DATABASE_URL", "REDIS_URL", "LLM_PROVIDER", "LLM_MODEL",
	"ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY_SECRET_ARN", "BEDROCK_REGION", "LLM_MAX_TOKENS",
	"JWT_SECRET", "OTEL_EXPORTER_OTLP_ENDPOINT", "LOG_LEVEL",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reportpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sampleConfig = `
server:
  port: "9090"
  allowed_origins: ["https://app.example.com"]
database:
  url: postgres://report:hunter2@db:5432/reports?sslmode=disable
  query_timeout: 5s
llm:
  provider: anthropic
  api_key: sk-ant-test
  model: claude-sonnet-4-20250514
budget:
  max_turns: 6
circuit_breaker:
  failure_threshold: 3
  reset_timeout: 45s
rate_limit:
  - {name: minute, duration: 1m, limit: 5}
  - {name: day, duration: 24h, limit: 50}
access:
  jwt_secret: topsecret
  restricted_fields: [cost, margin]
customers:
  static: true
  daily_cap_usd: 25
data:
  tables:
    - name: loads
      fields:
        - {name: carrier, type: text, searchable: true}
        - {name: cost, type: number}
        - {name: revenue, type: number}
`

func TestLoadConfig_FromFile(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns, "unset keys keep defaults")
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Model)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens)

	assert.Equal(t, 6, cfg.Budget.MaxTurns)
	assert.Equal(t, 200000, cfg.Budget.MaxTotalTokens)
	assert.Equal(t, 3, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 45*time.Second, cfg.CircuitBreaker.ResetTimeout)

	require.Len(t, cfg.RateLimit, 2)
	assert.Equal(t, time.Minute, cfg.RateLimit[0].Duration)
	assert.Equal(t, 50, cfg.RateLimit[1].Limit)

	assert.True(t, cfg.Customers.Static)
	assert.Equal(t, 25.0, cfg.Customers.DailyCapUSD)

	assert.Equal(t, "loads", cfg.Data.DefaultTable)
	f, ok := cfg.Data.Field("loads", "cost")
	require.True(t, ok)
	assert.True(t, f.Restricted)
	f, ok = cfg.Data.Field("loads", "revenue")
	require.True(t, ok)
	assert.False(t, f.Restricted)

	assert.Equal(t, []string{"cost", "margin"}, cfg.Sanitizer.RestrictedKeywords,
		"sanitizer follows the access list when not set")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("DATABASE_URL", "postgres://env@db/reports")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("LLM_PROVIDER", "bedrock")
	t.Setenv("BEDROCK_REGION", "eu-west-1")
	t.Setenv("LLM_MAX_TOKENS", "2048")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres://env@db/reports", cfg.Database.URL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, "bedrock", cfg.LLM.Provider)
	assert.Equal(t, "eu-west-1", cfg.LLM.BedrockRegion)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/reports")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "shipments", cfg.Data.DefaultTable)
	f, ok := cfg.Data.Field("shipments", "carrier_pay")
	require.True(t, ok)
	assert.True(t, f.Restricted)
	assert.Len(t, cfg.RateLimit, 3)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		body string
	}{
		{"missing api key", map[string]string{"DATABASE_URL": "postgres://localhost/r"}, ""},
		{"missing database", map[string]string{"ANTHROPIC_API_KEY": "k"}, ""},
		{"unknown provider", map[string]string{"DATABASE_URL": "postgres://localhost/r", "LLM_PROVIDER": "openai"}, ""},
		{"bad budget", map[string]string{"DATABASE_URL": "postgres://localhost/r", "ANTHROPIC_API_KEY": "k"},
			"budget:\n  warning_threshold_percent: 150\n"},
		{"bad window", map[string]string{"DATABASE_URL": "postgres://localhost/r", "ANTHROPIC_API_KEY": "k"},
			"rate_limit:\n  - {name: minute, duration: 1m, limit: 0}\n"},
		{"bad identifier", map[string]string{"DATABASE_URL": "postgres://localhost/r", "ANTHROPIC_API_KEY": "k"},
			"data:\n  tables:\n    - name: \"loads; drop table x\"\n"},
		{"bad yaml", map[string]string{"DATABASE_URL": "postgres://localhost/r", "ANTHROPIC_API_KEY": "k"},
			"server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		clearConfigEnv(t)
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestConfig_Redacted(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	cfg.Redis.URL = "redis://:cachepass@cache:6379"

	red := cfg.Redacted()
	assert.Equal(t, "***", red.LLM.APIKey)
	assert.Equal(t, "***", red.Access.JWTSecret)
	assert.Equal(t, "postgres://report:***@db:5432/reports?sslmode=disable", red.Database.URL)
	assert.Equal(t, "redis://:***@cache:6379", red.Redis.URL)

	assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey, "original untouched")

	out, err := red.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "topsecret")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, "9090", back.Server.Port)
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "", maskURL(""))
	assert.Equal(t, "postgres://localhost/db", maskURL("postgres://localhost/db"))
	assert.Equal(t, "postgres://user@localhost/db", maskURL("postgres://user@localhost/db"))
	assert.Equal(t, "postgres://u:***@h/db", maskURL("postgres://u:p@ss@h/db"))
}
