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

package circuitbreaker

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler exposes breaker status over HTTP.
type Handler struct {
	cb *Breaker
}

// NewHandler creates a new circuit breaker handler.
func NewHandler(cb *Breaker) *Handler {
	return &Handler{cb: cb}
}

// RegisterRoutes registers circuit breaker routes with a mux router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/circuit", h.handleStatus).Methods(http.MethodGet)
}

func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.cb.Snapshot())
}
