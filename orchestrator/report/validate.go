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

package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Config keys that name data fields.
var fieldKeys = []string{"groupBy", "metric", "field", "xField", "yField"}

// Config keys holding lists of field names.
var fieldListKeys = []string{"fields", "columns"}

// Metric values that are not field names.
var pseudoMetrics = map[string]bool{"": true, "*": true, "count": true}

// ReferencedFields returns the data fields a section's config points at.
func ReferencedFields(s Section) []string {
	var out []string
	for _, k := range fieldKeys {
		v, ok := s.Config[k]
		if !ok {
			continue
		}
		name := strings.TrimSpace(cast.ToString(v))
		if k == "metric" && pseudoMetrics[strings.ToLower(name)] {
			continue
		}
		if name != "" {
			out = append(out, name)
		}
	}
	for _, k := range fieldListKeys {
		v, ok := s.Config[k]
		if !ok {
			continue
		}
		for _, name := range cast.ToStringSlice(v) {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// Validation is the outcome of checking a report for finalization.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Rules are the caller-specific inputs to Validate.
type Rules struct {
	// AvailableFields is the set of field names the caller may use. Both bare
	// names and "table.field" forms are accepted as keys.
	AvailableFields map[string]bool
	// RestrictedFields are names a non-admin report must not mention.
	RestrictedFields []string
	IsAdmin          bool
}

// Validate checks a draft before it may be returned as final.
func Validate(d *Draft, rules Rules) Validation {
	v := Validation{Errors: []string{}}
	if d == nil {
		v.Errors = append(v.Errors, "No report to finalize")
		return v
	}
	if strings.TrimSpace(d.Name) == "" {
		v.Errors = append(v.Errors, "Report name is required")
	}
	if d.Sections == nil {
		v.Errors = append(v.Errors, "Report sections must be an array")
	}

	for i, s := range d.Sections {
		if !s.Type.Valid() {
			v.Errors = append(v.Errors, fmt.Sprintf("Section %d has invalid type %q", i+1, s.Type))
		}
		if rules.AvailableFields == nil {
			continue
		}
		for _, f := range ReferencedFields(s) {
			if !rules.AvailableFields[f] {
				v.Errors = append(v.Errors, fmt.Sprintf("Section %d references unknown field: %s", i+1, f))
			}
		}
	}

	if !rules.IsAdmin {
		kw, found, err := containsRestricted(d, rules.RestrictedFields)
		switch {
		case err != nil:
			v.Errors = append(v.Errors, "Report could not be inspected for restricted fields")
		case found:
			v.Errors = append(v.Errors, "Report contains restricted field: "+kw)
		}
	}

	v.Valid = len(v.Errors) == 0
	return v
}

// containsRestricted reports the first restricted keyword found in the
// serialized draft. A draft that cannot be serialized is an error, never a pass.
func containsRestricted(d *Draft, restricted []string) (string, bool, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", false, err
	}
	lower := strings.ToLower(string(raw))
	for _, kw := range restricted {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true, nil
		}
	}
	return "", false, nil
}
