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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"reportpilot/platform/connectors/base"
	"reportpilot/platform/orchestrator/report"
)

// ErrUnknownTool is returned by Decode for a name with no handler.
var ErrUnknownTool = errors.New("unknown tool")

// Call is one decoded tool invocation. The set of implementations is closed
// to this package; each variant carries its own typed input and handler.
type Call interface {
	ToolName() string
	// ReadOnly calls touch neither the draft nor external stores and may run
	// concurrently with each other.
	ReadOnly() bool
	validate() error
	run(ctx context.Context, e *Executor) (interface{}, error)
}

// Tool names.
const (
	NameDiscoverTables     = "discover_tables"
	NameDiscoverFields     = "discover_fields"
	NameDiscoverJoins      = "discover_joins"
	NameQueryTable         = "query_table"
	NameSearchText         = "search_text"
	NameQueryWithJoin      = "query_with_join"
	NameAggregate          = "aggregate"
	NameExploreField       = "explore_field"
	NamePreviewAggregation = "preview_aggregation"
	NameCreateReportDraft  = "create_report_draft"
	NameAddSection         = "add_section"
	NameModifySection      = "modify_section"
	NameRemoveSection      = "remove_section"
	NameReorderSections    = "reorder_sections"
	NamePreviewReport      = "preview_report"
	NameFinalizeReport     = "finalize_report"
	NameLearnTerminology   = "learn_terminology"
	NameLearnPreference    = "learn_preference"
	NameRecordCorrection   = "record_correction"
	NameAskClarification   = "ask_clarification"
)

var registry = map[string]func() Call{
	NameDiscoverTables:     func() Call { return &DiscoverTables{} },
	NameDiscoverFields:     func() Call { return &DiscoverFields{} },
	NameDiscoverJoins:      func() Call { return &DiscoverJoins{} },
	NameQueryTable:         func() Call { return &QueryTable{} },
	NameSearchText:         func() Call { return &SearchText{} },
	NameQueryWithJoin:      func() Call { return &QueryWithJoin{} },
	NameAggregate:          func() Call { return &Aggregate{} },
	NameExploreField:       func() Call { return &ExploreField{} },
	NamePreviewAggregation: func() Call { return &PreviewAggregation{} },
	NameCreateReportDraft:  func() Call { return &CreateReportDraft{} },
	NameAddSection:         func() Call { return &AddSection{} },
	NameModifySection:      func() Call { return &ModifySection{} },
	NameRemoveSection:      func() Call { return &RemoveSection{} },
	NameReorderSections:    func() Call { return &ReorderSections{} },
	NamePreviewReport:      func() Call { return &PreviewReport{} },
	NameFinalizeReport:     func() Call { return &FinalizeReport{} },
	NameLearnTerminology:   func() Call { return &LearnTerminology{} },
	NameLearnPreference:    func() Call { return &LearnPreference{} },
	NameRecordCorrection:   func() Call { return &RecordCorrection{} },
	NameAskClarification:   func() Call { return &AskClarification{} },
}

// Decode turns a tool name and its raw JSON input into a validated Call.
// Numbers and booleans given as strings are coerced.
func Decode(name string, input json.RawMessage) (Call, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	call := ctor()

	raw := map[string]interface{}{}
	if len(input) > 0 && string(input) != "null" {
		if err := json.Unmarshal(input, &raw); err != nil {
			return nil, fmt.Errorf("%s: input must be a JSON object: %w", name, err)
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           call,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%s: invalid input: %w", name, err)
	}
	if err := call.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return call, nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

type readOnly struct{}

func (readOnly) ReadOnly() bool { return true }

type mutating struct{}

func (mutating) ReadOnly() bool { return false }

// DiscoverTables lists queryable tables.
type DiscoverTables struct{ readOnly }

func (*DiscoverTables) ToolName() string { return NameDiscoverTables }
func (*DiscoverTables) validate() error  { return nil }

// DiscoverFields lists a table's visible fields. An empty table means all.
type DiscoverFields struct {
	readOnly
	Table string `json:"table"`
}

func (*DiscoverFields) ToolName() string { return NameDiscoverFields }
func (*DiscoverFields) validate() error  { return nil }

// DiscoverJoins lists joins, optionally those touching one table.
type DiscoverJoins struct {
	readOnly
	Table string `json:"table"`
}

func (*DiscoverJoins) ToolName() string { return NameDiscoverJoins }
func (*DiscoverJoins) validate() error  { return nil }

// QueryTable selects rows from one table.
type QueryTable struct {
	readOnly
	Table   string        `json:"table"`
	Fields  []string      `json:"fields"`
	Filters []base.Filter `json:"filters"`
	Limit   int           `json:"limit"`
}

func (*QueryTable) ToolName() string { return NameQueryTable }
func (c *QueryTable) validate() error {
	return required("table", c.Table)
}

// SearchText searches text fields for a term.
type SearchText struct {
	readOnly
	Query  string   `json:"query"`
	Table  string   `json:"table"`
	Fields []string `json:"fields"`
	Limit  int      `json:"limit"`
}

func (*SearchText) ToolName() string { return NameSearchText }
func (c *SearchText) validate() error {
	return required("query", c.Query)
}

// QueryWithJoin selects rows across a configured join.
type QueryWithJoin struct {
	readOnly
	BaseTable string        `json:"baseTable"`
	JoinTable string        `json:"joinTable"`
	Fields    []string      `json:"fields"`
	Filters   []base.Filter `json:"filters"`
	Limit     int           `json:"limit"`
}

func (*QueryWithJoin) ToolName() string { return NameQueryWithJoin }
func (c *QueryWithJoin) validate() error {
	if err := required("baseTable", c.BaseTable); err != nil {
		return err
	}
	return required("joinTable", c.JoinTable)
}

// Aggregate groups and aggregates without quality scoring.
type Aggregate struct {
	readOnly
	Table       string        `json:"table"`
	GroupBy     string        `json:"groupBy"`
	Metric      string        `json:"metric"`
	Aggregation string        `json:"aggregation"`
	Filters     []base.Filter `json:"filters"`
	Limit       int           `json:"limit"`
}

func (*Aggregate) ToolName() string { return NameAggregate }
func (c *Aggregate) validate() error {
	return required("groupBy", c.GroupBy)
}

// ExploreField profiles one field.
type ExploreField struct {
	readOnly
	Table      string `json:"table"`
	Field      string `json:"field"`
	SampleSize int    `json:"sampleSize"`
}

func (*ExploreField) ToolName() string { return NameExploreField }
func (c *ExploreField) validate() error {
	if c.SampleSize < 0 {
		return errors.New("sampleSize must not be negative")
	}
	return required("field", c.Field)
}

// PreviewAggregation runs a grouping and grades how well it would chart.
type PreviewAggregation struct {
	readOnly
	Table       string        `json:"table"`
	GroupBy     string        `json:"groupBy"`
	Metric      string        `json:"metric"`
	Aggregation string        `json:"aggregation"`
	Filters     []base.Filter `json:"filters"`
	Limit       int           `json:"limit"`
}

func (*PreviewAggregation) ToolName() string { return NamePreviewAggregation }
func (c *PreviewAggregation) validate() error {
	return required("groupBy", c.GroupBy)
}

// CreateReportDraft starts (or restarts) the draft.
type CreateReportDraft struct {
	mutating
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Theme       string           `json:"theme"`
	DateRange   report.DateRange `json:"dateRange"`
}

func (*CreateReportDraft) ToolName() string { return NameCreateReportDraft }
func (c *CreateReportDraft) validate() error {
	return required("name", c.Name)
}

// AddSection appends a section to the draft.
type AddSection struct {
	mutating
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Config   map[string]interface{} `json:"config"`
	Position *int                   `json:"position"`
}

func (*AddSection) ToolName() string { return NameAddSection }
func (c *AddSection) validate() error {
	if err := required("type", c.Type); err != nil {
		return err
	}
	if !report.SectionType(c.Type).Valid() {
		return fmt.Errorf("type must be one of: %s", strings.Join(report.SectionTypes(), ", "))
	}
	return nil
}

// ModifySection patches one section.
type ModifySection struct {
	mutating
	Index   *int                   `json:"index"`
	Type    *string                `json:"type"`
	Title   *string                `json:"title"`
	Config  map[string]interface{} `json:"config"`
	Insight *string                `json:"insight"`
}

func (*ModifySection) ToolName() string { return NameModifySection }
func (c *ModifySection) validate() error {
	if c.Index == nil {
		return errors.New("index is required")
	}
	if c.Type != nil && !report.SectionType(*c.Type).Valid() {
		return fmt.Errorf("type must be one of: %s", strings.Join(report.SectionTypes(), ", "))
	}
	return nil
}

// RemoveSection deletes one section.
type RemoveSection struct {
	mutating
	Index *int `json:"index"`
}

func (*RemoveSection) ToolName() string { return NameRemoveSection }
func (c *RemoveSection) validate() error {
	if c.Index == nil {
		return errors.New("index is required")
	}
	return nil
}

// ReorderSections permutes the sections.
type ReorderSections struct {
	mutating
	Order []int `json:"order"`
}

func (*ReorderSections) ToolName() string { return NameReorderSections }
func (c *ReorderSections) validate() error {
	if len(c.Order) == 0 {
		return errors.New("order is required")
	}
	return nil
}

// PreviewReport summarises the draft.
type PreviewReport struct{ mutating }

func (*PreviewReport) ToolName() string { return NamePreviewReport }
func (*PreviewReport) validate() error  { return nil }

// FinalizeReport proposes the finished report.
type FinalizeReport struct {
	mutating
	Report  map[string]interface{} `json:"report"`
	Summary string                 `json:"summary"`
}

func (*FinalizeReport) ToolName() string { return NameFinalizeReport }
func (*FinalizeReport) validate() error  { return nil }

// LearnTerminology records what a customer means by a term or product name.
type LearnTerminology struct {
	mutating
	Term       string `json:"term"`
	Meaning    string `json:"meaning"`
	Kind       string `json:"kind"` // terminology (default) or product
	Confidence string `json:"confidence"`
}

func (*LearnTerminology) ToolName() string { return NameLearnTerminology }
func (c *LearnTerminology) validate() error {
	if err := required("term", c.Term); err != nil {
		return err
	}
	if c.Kind != "" && c.Kind != base.LearningTerminology && c.Kind != base.LearningProduct {
		return fmt.Errorf("kind must be %q or %q", base.LearningTerminology, base.LearningProduct)
	}
	return required("meaning", c.Meaning)
}

// LearnPreference records a reporting preference.
type LearnPreference struct {
	mutating
	Key        string `json:"key"`
	Value      string `json:"value"`
	Confidence string `json:"confidence"`
}

func (*LearnPreference) ToolName() string { return NameLearnPreference }
func (c *LearnPreference) validate() error {
	if err := required("key", c.Key); err != nil {
		return err
	}
	return required("value", c.Value)
}

// RecordCorrection records a user's correction of an earlier assumption.
type RecordCorrection struct {
	mutating
	Original   string `json:"original"`
	Correction string `json:"correction"`
	Confidence string `json:"confidence"`
}

func (*RecordCorrection) ToolName() string { return NameRecordCorrection }
func (c *RecordCorrection) validate() error {
	if err := required("original", c.Original); err != nil {
		return err
	}
	return required("correction", c.Correction)
}

// AskClarification ends the conversation with a question for the user.
type AskClarification struct {
	mutating
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

func (*AskClarification) ToolName() string { return NameAskClarification }
func (c *AskClarification) validate() error {
	return required("question", c.Question)
}
