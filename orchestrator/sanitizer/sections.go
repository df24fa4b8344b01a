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
	"strings"

	"reportpilot/platform/orchestrator/report"
)

// RemovedSection records a section dropped by FilterSections.
type RemovedSection struct {
	Index   int    `json:"index"`
	Title   string `json:"title,omitempty"`
	Keyword string `json:"keyword"`
}

// FilterSections returns a copy of d without any section whose serialized
// form mentions a restricted keyword. Admin callers get d back unchanged.
func (s *Sanitizer) FilterSections(d *report.Draft, isAdmin bool) (*report.Draft, []RemovedSection) {
	if d == nil || isAdmin {
		return d, nil
	}

	out := d.Clone()
	out.Sections = make([]report.Section, 0, len(d.Sections))
	var removed []RemovedSection
	for i, sec := range d.Sections {
		if kw, ok := s.sectionKeyword(sec); ok {
			removed = append(removed, RemovedSection{Index: i, Title: sec.Title, Keyword: kw})
			continue
		}
		out.Sections = append(out.Sections, sec)
	}

	if len(removed) > 0 {
		s.log.Warn(d.CustomerID, "", "Removed report sections referencing restricted fields", map[string]interface{}{
			"report_id": d.ID,
			"removed":   len(removed),
		})
	}
	return out, removed
}

func (s *Sanitizer) sectionKeyword(sec report.Section) (string, bool) {
	return s.Mentions(sec)
}

// Mentions reports the first restricted keyword found in v's JSON form.
// A value that cannot be serialized counts as a mention.
func (s *Sanitizer) Mentions(v interface{}) (string, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "unserializable", true
	}
	lower := strings.ToLower(string(raw))
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}
