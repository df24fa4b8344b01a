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
	"github.com/prometheus/client_golang/prometheus"

	"reportpilot/platform/agent/circuitbreaker"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportpilot_requests_total",
			Help: "Report requests by terminal status",
		},
		[]string{"status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportpilot_request_duration_milliseconds",
			Help:    "Report request duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000},
		},
		[]string{"outcome"},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportpilot_llm_calls_total",
			Help: "LLM API calls by provider and status",
		},
		[]string{"provider", "status"},
	)
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportpilot_tool_calls_total",
			Help: "Tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportpilot_tokens_total",
			Help: "LLM tokens consumed",
		},
		[]string{"direction"},
	)
	circuitState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportpilot_circuit_state",
			Help: "LLM circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
	)
	sanitizerFindings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportpilot_sanitizer_findings_total",
			Help: "Outgoing messages with sanitizer findings, by severity",
		},
		[]string{"severity"},
	)
	sectionsRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reportpilot_report_sections_removed_total",
			Help: "Report sections dropped for referencing restricted fields",
		},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(llmCallsTotal)
	prometheus.MustRegister(toolCallsTotal)
	prometheus.MustRegister(tokensTotal)
	prometheus.MustRegister(circuitState)
	prometheus.MustRegister(sanitizerFindings)
	prometheus.MustRegister(sectionsRemoved)
}

// ObserveCircuitState is a circuitbreaker state-change hook that keeps the
// circuit_state gauge current.
func ObserveCircuitState(_, to circuitbreaker.State) {
	circuitState.Set(float64(to))
}
