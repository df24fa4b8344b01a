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
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportpilot/platform/connectors/base"
	"reportpilot/platform/orchestrator/report"
	"reportpilot/platform/orchestrator/tools"
)

func TestValidate_AdminPassThrough(t *testing.T) {
	s := New(DefaultConfig())
	inputs := []string{
		"carrier cost is $500",
		"our margin is 22% on that lane",
		"",
		"plain text",
	}
	for _, in := range inputs {
		res := s.Validate(in, true)
		assert.Equal(t, in, res.SanitizedMessage)
		assert.True(t, res.IsValid)
		assert.Equal(t, SeverityNone, res.Severity)
		assert.Empty(t, res.Findings)
	}
}

func TestValidate_RedactsCostFigure(t *testing.T) {
	s := New(DefaultConfig())
	res := s.Validate("carrier cost is $500", false)

	assert.False(t, res.IsValid)
	assert.Equal(t, SeverityHigh, res.Severity)
	assert.Equal(t, "carrier cost is [REDACTED]", res.SanitizedMessage)
	assert.NotRegexp(t, regexp.MustCompile(`cost\W{0,5}(is\s+)?\$\d`), res.SanitizedMessage)
	assert.NotContains(t, res.SanitizedMessage, "$")
}

func TestValidate_SafePhraseExempt(t *testing.T) {
	s := New(DefaultConfig())
	msg := "cost data is not available"
	res := s.Validate(msg, false)

	assert.True(t, res.IsValid)
	assert.Equal(t, SeverityNone, res.Severity)
	assert.Equal(t, msg, res.SanitizedMessage)
	require.Len(t, res.Findings, 1)
	assert.True(t, res.Findings[0].Exempt)
}

func TestValidate_Severity(t *testing.T) {
	s := New(DefaultConfig())

	tests := []struct {
		name     string
		message  string
		severity Severity
		valid    bool
		want     string
	}{
		{
			name:     "clean",
			message:  "Shipments grew 12% week over week.",
			severity: SeverityNone,
			valid:    true,
		},
		{
			name:     "single keyword",
			message:  "I grouped by carrier instead of cost.",
			severity: SeverityLow,
			valid:    true,
		},
		{
			name:     "many keywords",
			message:  "Cost, margin and profit fields exist in the schema.",
			severity: SeverityMedium,
			valid:    false,
		},
		{
			name:     "two financial figures",
			message:  "The margin is 18% and total cost was $12,400.",
			severity: SeverityCritical,
			valid:    false,
			want:     "The margin is [REDACTED] and total cost was [REDACTED].",
		},
		{
			name:     "figure before term",
			message:  "That lane ran $1,200 in carrier cost last week.",
			severity: SeverityHigh,
			valid:    false,
			want:     "That lane ran [REDACTED] in carrier cost last week.",
		},
		{
			name:     "always flag phrase",
			message:  "Our margin is healthy on most lanes. Volume is up.",
			severity: SeverityCritical,
			valid:    false,
			want:     "[internal data redacted]. Volume is up.",
		},
		{
			name:     "always flag is not exempted",
			message:  "Cost data is not available, but our margin is 20% there.",
			severity: SeverityCritical,
			valid:    false,
			want:     "Cost data is not available, but [internal data redacted].",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Validate(tt.message, false)
			assert.Equal(t, tt.severity, res.Severity, res.Findings)
			assert.Equal(t, tt.valid, res.IsValid)
			if tt.want != "" {
				assert.Equal(t, tt.want, res.SanitizedMessage)
			} else {
				assert.Equal(t, tt.message, res.SanitizedMessage)
			}
		})
	}
}

func TestValidate_FieldNamesNearFigures(t *testing.T) {
	s := New(DefaultConfig())

	tests := []struct {
		name     string
		message  string
		severity Severity
		valid    bool
		want     string
	}{
		{
			name:     "field name with figure",
			message:  "Average carrier_pay on this lane is $500 per load.",
			severity: SeverityHigh,
			want:     "Average [REDACTED] on this lane is [REDACTED] per load.",
		},
		{
			name:     "snake case keyword with figure",
			message:  "The total_cost column averages $1,200 per shipment.",
			severity: SeverityHigh,
			want:     "The [REDACTED] column averages [REDACTED] per shipment.",
		},
		{
			name:     "figure before field name",
			message:  "Lanes at 14% carrier_rate need review.",
			severity: SeverityHigh,
			want:     "Lanes at [REDACTED] [REDACTED] need review.",
		},
		{
			name:     "field name alone",
			message:  "I grouped the data by carrier_pay.",
			severity: SeverityLow,
			valid:    true,
			want:     "I grouped the data by [REDACTED].",
		},
		{
			name:     "figure in another sentence",
			message:  "The carrier_pay field is hidden. Volume grew 12%.",
			severity: SeverityLow,
			valid:    true,
			want:     "The [REDACTED] field is hidden. Volume grew 12%.",
		},
		{
			name:     "longer words are not keywords",
			message:  "Costco loads were costly at $900 each.",
			severity: SeverityNone,
			valid:    true,
			want:     "Costco loads were costly at $900 each.",
		},
		{
			name:     "field name in a refusal",
			message:  "carrier_pay is a restricted field for your role.",
			severity: SeverityNone,
			valid:    true,
			want:     "carrier_pay is a restricted field for your role.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Validate(tt.message, false)
			assert.Equal(t, tt.severity, res.Severity, res.Findings)
			assert.Equal(t, tt.valid, res.IsValid)
			assert.Equal(t, tt.want, res.SanitizedMessage)
		})
	}
}

func TestValidate_KeywordBoundaries(t *testing.T) {
	s := New(DefaultConfig())
	res := s.Validate("Compare cost_per_mile with MARGINS and the buy_rate.", false)

	var matches []string
	for _, f := range res.Findings {
		if f.Category == CategoryKeyword {
			matches = append(matches, f.Match)
		}
	}
	assert.ElementsMatch(t, []string{"cost_per_mile", "MARGINS", "buy_rate"}, matches)
	assert.Equal(t, SeverityMedium, res.Severity)
	assert.Equal(t, "Compare [REDACTED] with MARGINS and the [REDACTED].", res.SanitizedMessage)
}

func TestValidate_SafeContextWindow(t *testing.T) {
	s := New(Config{ContextWindow: 20})
	far := "Cost data is not available." + strings.Repeat(" filler", 10) + " The cost is $40."
	res := s.Validate(far, false)
	assert.Equal(t, SeverityHigh, res.Severity)
	assert.Contains(t, res.SanitizedMessage, "Cost data is not available.")
	assert.True(t, strings.HasSuffix(res.SanitizedMessage, "The cost is [REDACTED]."))
}

func TestFilterSections(t *testing.T) {
	s := New(DefaultConfig())
	d := report.NewDraft("cust-1", "Carrier review", "", "", report.DateRange{}, time.Now())
	_, _ = d.AddSection(report.Section{Type: report.SectionChart, Title: "Loads by carrier", Config: map[string]interface{}{"groupBy": "carrier"}}, -1)
	_, _ = d.AddSection(report.Section{Type: report.SectionTable, Title: "Carrier pay", Config: map[string]interface{}{"fields": []string{"carrier", "carrier_pay"}}}, -1)

	admin, removed := s.FilterSections(d, true)
	assert.Same(t, d, admin)
	assert.Empty(t, removed)
	assert.Len(t, admin.Sections, 2)

	filtered, removed := s.FilterSections(d, false)
	require.Len(t, filtered.Sections, 1)
	assert.Equal(t, "Loads by carrier", filtered.Sections[0].Title)
	require.Len(t, removed, 1)
	assert.Equal(t, 1, removed[0].Index)
	assert.Equal(t, "carrier_pay", removed[0].Keyword)
	assert.Len(t, d.Sections, 2, "original draft is untouched")

	nilDraft, removed := s.FilterSections(nil, false)
	assert.Nil(t, nilDraft)
	assert.Empty(t, removed)
}

func TestFilterExecutions(t *testing.T) {
	s := New(DefaultConfig())
	execs := []tools.Execution{
		{ToolName: tools.NameFinalizeReport, Input: json.RawMessage(`{"config":{"metric":"cost"}}`), Result: "Report contains restricted field: cost", IsError: true},
		{ToolName: tools.NameAddSection, Input: json.RawMessage(`{"config":{"metric":"count"}}`), Result: map[string]interface{}{"sectionIndex": 0}},
		{ToolName: tools.NameAddSection, Input: json.RawMessage(`{"fields":["carrier_pay"]}`), Result: map[string]interface{}{"sectionIndex": 1}},
	}

	admin := s.FilterExecutions(execs, true)
	assert.Equal(t, execs, admin)

	out := s.FilterExecutions(execs, false)
	require.Len(t, out, 3)
	assert.Equal(t, tools.NameFinalizeReport, out[0].ToolName)
	assert.True(t, out[0].IsError)
	assert.JSONEq(t, `"[REDACTED]"`, string(out[0].Input))
	assert.Equal(t, "[REDACTED]", out[0].Result)

	assert.JSONEq(t, `{"config":{"metric":"count"}}`, string(out[1].Input))
	assert.Equal(t, map[string]interface{}{"sectionIndex": 0}, out[1].Result)

	assert.JSONEq(t, `"[REDACTED]"`, string(out[2].Input))
	assert.Equal(t, map[string]interface{}{"sectionIndex": 1}, out[2].Result)

	assert.Contains(t, string(execs[0].Input), "cost", "input slice is untouched")
	assert.Empty(t, s.FilterExecutions(nil, false))
}

func TestFilterLearnings(t *testing.T) {
	s := New(DefaultConfig())
	learnings := []base.Learning{
		{Type: "terminology", Key: "lane", Value: "origin and destination pair"},
		{Type: "terminology", Key: "spread", Value: "customer rate minus carrier_pay"},
	}

	assert.Equal(t, learnings, s.FilterLearnings(learnings, true))

	out := s.FilterLearnings(learnings, false)
	require.Len(t, out, 1)
	assert.Equal(t, "lane", out[0].Key)
	assert.Nil(t, s.FilterLearnings(nil, false))
}

func TestMentions(t *testing.T) {
	s := New(DefaultConfig())

	kw, ok := s.Mentions(map[string]interface{}{"fields": []string{"Carrier_Pay"}})
	assert.True(t, ok)
	assert.Equal(t, "carrier_pay", kw)

	_, ok = s.Mentions(map[string]interface{}{"metric": "count"})
	assert.False(t, ok)

	kw, ok = s.Mentions(make(chan int))
	assert.True(t, ok, "unserializable values count as mentions")
	assert.Equal(t, "unserializable", kw)
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{})
	assert.Equal(t, DefaultRestrictedKeywords(), s.Keywords())
	assert.Equal(t, 150, s.window)
}
