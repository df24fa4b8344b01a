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

package sanitizer

import (
	"encoding/json"

	"reportpilot/platform/connectors/base"
	"reportpilot/platform/orchestrator/tools"
)

// redactedInput replaces a tool input that mentions a restricted field.
var redactedInput = json.RawMessage(`"` + redactedFigure + `"`)

// FilterExecutions returns a copy of execs in which every input or result
// mentioning a restricted keyword is replaced by a redaction marker. Tool
// names and timings are kept so the trace stays readable.
func (s *Sanitizer) FilterExecutions(execs []tools.Execution, isAdmin bool) []tools.Execution {
	if isAdmin {
		return execs
	}
	out := make([]tools.Execution, len(execs))
	redacted := 0
	for i, e := range execs {
		if _, ok := s.Mentions(e.Input); ok {
			e.Input = redactedInput
			redacted++
		}
		if _, ok := s.Mentions(e.Result); ok {
			e.Result = redactedFigure
			redacted++
		}
		out[i] = e
	}
	if redacted > 0 {
		s.log.Warn("", "", "Redacted restricted data from tool executions", map[string]interface{}{"redacted": redacted})
	}
	return out
}

// FilterLearnings drops learnings that mention a restricted keyword.
func (s *Sanitizer) FilterLearnings(learnings []base.Learning, isAdmin bool) []base.Learning {
	if isAdmin || learnings == nil {
		return learnings
	}
	out := make([]base.Learning, 0, len(learnings))
	for _, l := range learnings {
		if _, ok := s.Mentions(l); ok {
			continue
		}
		out = append(out, l)
	}
	return out
}
