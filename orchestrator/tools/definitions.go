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

package tools

import (
	"reportpilot/platform/orchestrator/llm"
	"reportpilot/platform/orchestrator/report"
)

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}
func strList(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values, "description": desc}
}

var filterList = map[string]any{
	"type":        "array",
	"description": "Filters combined with AND.",
	"items": object(map[string]any{
		"field":    str("Field name"),
		"operator": enum("Comparison", "eq", "neq", "gt", "gte", "lt", "lte", "in", "like", "is_null", "not_null"),
		"value":    map[string]any{"description": "Value to compare against; a list for 'in'."},
	}, "field", "operator"),
}

var aggregations = []string{"count", "count_distinct", "sum", "avg", "min", "max"}

var confidence = enum("How sure you are", "high", "medium", "low")

// Definitions returns the tool schemas offered to the model.
func Definitions() []llm.ToolDefinition {
	sectionTypes := report.SectionTypes()
	return []llm.ToolDefinition{
		{Name: NameDiscoverTables, Description: "List the tables available for reporting.", InputSchema: object(map[string]any{})},
		{Name: NameDiscoverFields, Description: "List the fields of a table, or of every table when no table is given.", InputSchema: object(map[string]any{
			"table": str("Table name"),
		})},
		{Name: NameDiscoverJoins, Description: "List the joins between tables.", InputSchema: object(map[string]any{
			"table": str("Only joins touching this table"),
		})},
		{Name: NameQueryTable, Description: "Fetch raw rows from one table.", InputSchema: object(map[string]any{
			"table":   str("Table name"),
			"fields":  strList("Fields to return; all visible fields when empty"),
			"filters": filterList,
			"limit":   integer("Maximum rows (default 100)"),
		}, "table")},
		{Name: NameSearchText, Description: "Search text fields for a term.", InputSchema: object(map[string]any{
			"query":  str("Search term"),
			"table":  str("Table to search; the default table when empty"),
			"fields": strList("Fields to search; all searchable fields when empty"),
			"limit":  integer("Maximum rows"),
		}, "query")},
		{Name: NameQueryWithJoin, Description: "Fetch rows from two joined tables.", InputSchema: object(map[string]any{
			"baseTable": str("Table to start from"),
			"joinTable": str("Table to join"),
			"fields":    strList("Fields as table.field"),
			"filters":   filterList,
			"limit":     integer("Maximum rows"),
		}, "baseTable", "joinTable")},
		{Name: NameAggregate, Description: "Group rows by a field and aggregate a metric.", InputSchema: object(map[string]any{
			"table":       str("Table name; the default table when empty"),
			"groupBy":     str("Field to group by"),
			"metric":      str("Field to aggregate; omit for a row count"),
			"aggregation": enum("Aggregation", aggregations...),
			"filters":     filterList,
			"limit":       integer("Maximum groups (default 20)"),
		}, "groupBy")},
		{Name: NameExploreField, Description: "Profile a field: sample values, how populated it is, cardinality and a data quality label.", InputSchema: object(map[string]any{
			"field":      str("Field name, optionally table.field"),
			"table":      str("Table name"),
			"sampleSize": integer("Number of sample values (default 10)"),
		}, "field")},
		{Name: NamePreviewAggregation, Description: "Preview a grouping before charting it. Returns rows, group count, a quality label and a suggested chart type.", InputSchema: object(map[string]any{
			"table":       str("Table name"),
			"groupBy":     str("Field to group by"),
			"metric":      str("Field to aggregate; omit for a row count"),
			"aggregation": enum("Aggregation", aggregations...),
			"filters":     filterList,
			"limit":       integer("Maximum groups"),
		}, "groupBy")},
		{Name: NameCreateReportDraft, Description: "Start a new report draft. Replaces any existing draft.", InputSchema: object(map[string]any{
			"name":        str("Report name"),
			"description": str("Short description"),
			"theme":       str("Visual theme"),
			"dateRange": object(map[string]any{
				"preset": str("e.g. last_7_days, last_30_days, this_quarter"),
				"start":  str("YYYY-MM-DD"),
				"end":    str("YYYY-MM-DD"),
			}),
		}, "name")},
		{Name: NameAddSection, Description: "Add a section to the draft. A config with groupBy and metric is previewed and gets an insight.", InputSchema: object(map[string]any{
			"type":     enum("Section type", sectionTypes...),
			"title":    str("Section title"),
			"config":   map[string]any{"type": "object", "description": "Section settings such as groupBy, metric, aggregation, chartType, limit, fields, filters"},
			"position": integer("Insert position; appended when omitted"),
		}, "type")},
		{Name: NameModifySection, Description: "Change a section. Config keys are merged; null removes a key.", InputSchema: object(map[string]any{
			"index":   integer("Section index, starting at 0"),
			"type":    enum("New section type", sectionTypes...),
			"title":   str("New title"),
			"config":  map[string]any{"type": "object"},
			"insight": str("Replacement insight text"),
		}, "index")},
		{Name: NameRemoveSection, Description: "Remove a section.", InputSchema: object(map[string]any{
			"index": integer("Section index, starting at 0"),
		}, "index")},
		{Name: NameReorderSections, Description: "Reorder sections. order[i] is the current index of the section that should end up at position i.", InputSchema: object(map[string]any{
			"order": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
		}, "order")},
		{Name: NamePreviewReport, Description: "Summarise the current draft.", InputSchema: object(map[string]any{})},
		{Name: NameFinalizeReport, Description: "Submit the finished report. Uses the current draft unless a report object is given. The report is returned only if validation passes.", InputSchema: object(map[string]any{
			"report":  map[string]any{"type": "object", "description": "Complete report; optional"},
			"summary": str("One paragraph summary for the user"),
		}, "summary")},
		{Name: NameLearnTerminology, Description: "Remember what this customer means by a term or product name.", InputSchema: object(map[string]any{
			"term":       str("The customer's term"),
			"meaning":    str("What it maps to"),
			"kind":       enum("Kind", "terminology", "product"),
			"confidence": confidence,
		}, "term", "meaning")},
		{Name: NameLearnPreference, Description: "Remember a reporting preference.", InputSchema: object(map[string]any{
			"key":        str("Preference name, e.g. default_chart"),
			"value":      str("Preferred value"),
			"confidence": confidence,
		}, "key", "value")},
		{Name: NameRecordCorrection, Description: "Record a correction from the user. Corrections are reviewed before use.", InputSchema: object(map[string]any{
			"original":   str("What was assumed"),
			"correction": str("What is actually right"),
			"confidence": confidence,
		}, "original", "correction")},
		{Name: NameAskClarification, Description: "Ask the user a question and stop until they answer.", InputSchema: object(map[string]any{
			"question": str("The question"),
			"options":  strList("Suggested answers"),
		}, "question")},
	}
}
