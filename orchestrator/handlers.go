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
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"reportpilot/platform/agent/circuitbreaker"
	"reportpilot/platform/shared/logger"
)

// ServiceName identifies the service in health output and traces.
const ServiceName = "reportpilot"

// maxRequestBytes caps the report request body.
const maxRequestBytes = 1 << 20

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) bool

// Server is the HTTP surface of the service.
type Server struct {
	gate    *Gatekeeper
	breaker *circuitbreaker.Breaker
	checks  map[string]HealthCheck
	version string
	log     *logger.Logger
}

// NewServer creates the HTTP layer. checks are reported by /health.
func NewServer(gate *Gatekeeper, breaker *circuitbreaker.Breaker, checks map[string]HealthCheck, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{
		gate:    gate,
		breaker: breaker,
		checks:  checks,
		version: version,
		log:     logger.New("http"),
	}
}

// Handler builds the router wrapped in CORS, tracing and access logging.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/v1/reports/generate", s.generateReportHandler).Methods("POST")
	r.HandleFunc("/api/v1/rate-limit/{userId}", s.rateLimitStatusHandler).Methods("GET")
	circuitbreaker.NewHandler(s.breaker).RegisterRoutes(r)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return AccessLog(s.log, Tracing(c.Handler(r)))
}

func (s *Server) generateReportHandler(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		sendErrorResponse(w, &GateError{
			Status:  http.StatusBadRequest,
			Code:    CodeInvalidRequest,
			Message: "Invalid request body",
		})
		return
	}

	resp, gerr := s.gate.Handle(r.Context(), r.Header.Get("Authorization"), req)
	if gerr != nil {
		sendErrorResponse(w, gerr)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

type rateLimitStatus struct {
	UserID            string         `json:"userId"`
	Allowed           bool           `json:"allowed"`
	LimitType         string         `json:"limitType,omitempty"`
	RetryAfterSeconds int            `json:"retryAfterSeconds,omitempty"`
	Remaining         map[string]int `json:"remaining"`
	FailedOpen        bool           `json:"failedOpen,omitempty"`
}

func (s *Server) rateLimitStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	res := s.gate.CheckRateLimit(r.Context(), userID)
	sendJSON(w, http.StatusOK, rateLimitStatus{
		UserID:            userID,
		Allowed:           res.Allowed,
		LimitType:         res.LimitType,
		RetryAfterSeconds: res.RetryAfterSeconds(),
		Remaining:         res.Remaining,
		FailedOpen:        res.FailedOpen,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]bool{
		"llm_circuit": s.breaker.GetState() != circuitbreaker.StateOpen,
	}
	healthy := true
	for name, check := range s.checks {
		ok := check(ctx)
		components[name] = ok
		healthy = healthy && ok
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	} else if !components["llm_circuit"] {
		status = "degraded"
	}

	sendJSON(w, code, map[string]interface{}{
		"status":     status,
		"service":    ServiceName,
		"version":    s.version,
		"timestamp":  time.Now().UTC(),
		"components": components,
		"circuit":    s.breaker.Snapshot(),
	})
}

// sendErrorResponse writes a GateError as JSON, with Retry-After when set.
func sendErrorResponse(w http.ResponseWriter, gerr *GateError) {
	if gerr.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(gerr.RetryAfterSeconds))
	}
	status := gerr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	sendJSON(w, status, gerr)
}

func sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.New("http").Error("", "", "Error encoding response", map[string]interface{}{"error": err.Error()})
	}
}
