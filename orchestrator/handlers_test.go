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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportpilot/platform/agent/circuitbreaker"
	"reportpilot/platform/agent/ratelimit"
)

func newTestServer(t *testing.T, runner Runner, breaker *circuitbreaker.Breaker, checks map[string]HealthCheck, opts ...gateOption) (*httptest.Server, *gateFixture) {
	t.Helper()
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}
	f := newGateFixture(t, runner, opts...)
	srv := httptest.NewServer(NewServer(f.gate, breaker, checks, "test").Handler(nil))
	t.Cleanup(srv.Close)
	return srv, f
}

func postReport(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/reports/generate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGenerateReportHandler_Success(t *testing.T) {
	srv, f := newTestServer(t, successRun("Here is your carrier overview."), nil, nil)

	resp := postReport(t, srv, `{"prompt":"carrier overview","customerId":"cust-1","userId":"u1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decodeBody(t, resp)
	assert.Equal(t, "Here is your carrier overview.", body["message"])
	assert.NotEmpty(t, body["requestId"])
	assert.Contains(t, body, "toolExecutions")
	usage := body["usage"].(map[string]interface{})
	assert.Equal(t, float64(1500), usage["totalTokens"])
	rep := body["report"].(map[string]interface{})
	assert.Len(t, rep["sections"], 1)
	assert.Len(t, f.recorder.Events(), 1)
}

func TestGenerateReportHandler_RateLimited(t *testing.T) {
	srv, _ := newTestServer(t, successRun("ok"), nil, nil,
		withWindows(ratelimit.Window{Name: "minute", Duration: time.Minute, Limit: 1}))

	first := postReport(t, srv, `{"prompt":"p","customerId":"cust-1","userId":"u1"}`)
	require.Equal(t, http.StatusOK, first.StatusCode)

	resp := postReport(t, srv, `{"prompt":"p","customerId":"cust-1","userId":"u1"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	body := decodeBody(t, resp)
	assert.Equal(t, CodeRateLimited, body["error"])
	assert.NotEmpty(t, body["message"])
	assert.Greater(t, body["retryAfterSeconds"], float64(0))
	assert.NotEmpty(t, body["requestId"])
}

func TestGenerateReportHandler_BadRequests(t *testing.T) {
	srv, f := newTestServer(t, successRun("ok"), nil, nil)

	for _, body := range []string{`{not json`, `{"customerId":"cust-1"}`} {
		resp := postReport(t, srv, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, CodeInvalidRequest, decodeBody(t, resp)["error"])
	}
	// A body that cannot be decoded never reaches the gatekeeper.
	assert.Len(t, f.recorder.Events(), 1)
}

func TestGenerateReportHandler_CircuitOpen(t *testing.T) {
	runner := runnerFunc(func(context.Context, RunInput) (*RunResult, error) {
		return &RunResult{}, &circuitbreaker.OpenError{RetryAfter: 20 * time.Second}
	})
	srv, _ := newTestServer(t, runner, nil, nil)

	resp := postReport(t, srv, `{"prompt":"p","customerId":"cust-1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "20", resp.Header.Get("Retry-After"))
	assert.Equal(t, CodeServiceUnavailable, decodeBody(t, resp)["error"])
}

func TestGenerateReportHandler_RejectsGet(t *testing.T) {
	srv, _ := newTestServer(t, successRun("ok"), nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/reports/generate")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name      string
		checks    map[string]HealthCheck
		tripped   bool
		wantCode  int
		wantState string
	}{
		{"all healthy", map[string]HealthCheck{"database": func(context.Context) bool { return true }}, false, http.StatusOK, "healthy"},
		{"database down", map[string]HealthCheck{"database": func(context.Context) bool { return false }}, false, http.StatusServiceUnavailable, "unhealthy"},
		{"circuit open", nil, true, http.StatusOK, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour})
			if tt.tripped {
				breaker.RecordFailure(errors.New("overloaded"))
			}
			srv, _ := newTestServer(t, successRun("ok"), breaker, tt.checks)

			resp, err := http.Get(srv.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			body := decodeBody(t, resp)
			assert.Equal(t, tt.wantState, body["status"])
			assert.Equal(t, ServiceName, body["service"])
			assert.Equal(t, "test", body["version"])
			assert.Contains(t, body["components"], "llm_circuit")
		})
	}
}

func TestCircuitStatusRoute(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, ResetTimeout: time.Minute})
	breaker.RecordFailure(errors.New("upstream 529"))
	srv, _ := newTestServer(t, successRun("ok"), breaker, nil)

	resp, err := http.Get(srv.URL + "/api/v1/circuit")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "OPEN", body["state"])
	assert.Equal(t, "upstream 529", body["last_error"])
	assert.Greater(t, body["retry_after_ms"], float64(0))
}

func TestRateLimitStatusRoute(t *testing.T) {
	srv, f := newTestServer(t, successRun("ok"), nil, nil)
	require.NoError(t, f.limiter.RecordRequest(context.Background(), "u1"))

	resp, err := http.Get(srv.URL + "/api/v1/rate-limit/u1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "u1", body["userId"])
	assert.Equal(t, true, body["allowed"])
	remaining := body["remaining"].(map[string]interface{})
	assert.Contains(t, remaining, "minute")
	assert.Contains(t, remaining, "day")
	assert.Empty(t, f.recorder.Events(), "status checks are not metered")
}

func TestPrometheusRoute(t *testing.T) {
	srv, _ := newTestServer(t, successRun("ok"), nil, nil)
	postReport(t, srv, `{"prompt":"p","customerId":"cust-1"}`)

	resp, err := http.Get(srv.URL + "/prometheus")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "reportpilot_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
	f := newGateFixture(t, successRun("ok"))
	srv := httptest.NewServer(NewServer(f.gate, breaker, nil, "").Handler([]string{"https://app.example.com"}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/reports/generate", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
