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

	"github.com/spf13/cast"

	"reportpilot/platform/connectors/base"
	"reportpilot/platform/orchestrator/report"
)

var errNoDraft = errors.New("no report draft exists; call create_report_draft first")

func (c *CreateReportDraft) run(_ context.Context, e *Executor) (interface{}, error) {
	e.draft = report.NewDraft(e.policy.CustomerID, c.Name, c.Description, c.Theme, c.DateRange, e.deps.Now())
	return map[string]interface{}{
		"reportId": e.draft.ID,
		"name":     e.draft.Name,
		"theme":    e.draft.Theme,
		"status":   "draft created",
	}, nil
}

// checkConfigFields rejects configs naming fields the caller cannot use.
func (e *Executor) checkConfigFields(ctx context.Context, s report.Section) error {
	available, err := e.AvailableFields(ctx)
	if err != nil {
		return err
	}
	for _, f := range report.ReferencedFields(s) {
		if !available[f] {
			return fmt.Errorf("unknown or unavailable field %q", f)
		}
	}
	return nil
}

// enrich previews a grouped section and attaches its rows and an insight.
// Preview failures leave the section without data.
func (e *Executor) enrich(ctx context.Context, s *report.Section) {
	table, groupBy := splitField(cast.ToString(s.Config["groupBy"]))
	if groupBy == "" {
		return
	}
	if t := cast.ToString(s.Config["table"]); t != "" {
		table = t
	}
	_, metric := splitField(cast.ToString(s.Config["metric"]))
	aggregation := cast.ToString(s.Config["aggregation"])
	q := base.Aggregation{
		Table:       table,
		GroupBy:     groupBy,
		Metric:      metric,
		Aggregation: aggregation,
		Limit:       cast.ToInt(s.Config["limit"]),
	}
	if raw, ok := s.Config["filters"]; ok {
		q.Filters = decodeFilters(raw)
	}

	p, err := e.previewGrouping(ctx, q)
	if err != nil {
		e.deps.Log.Warn(e.policy.CustomerID, e.requestID, "Section preview failed", map[string]interface{}{
			"group_by": groupBy,
			"error":    err.Error(),
		})
		return
	}
	s.Data = p.Rows
	s.Insight = Insight(p.Rows, groupBy, metric, aggregation, p.GroupCount)
}

func decodeFilters(raw interface{}) []base.Filter {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var filters []base.Filter
	if err := json.Unmarshal(b, &filters); err != nil {
		return nil
	}
	return filters
}

func (c *AddSection) run(ctx context.Context, e *Executor) (interface{}, error) {
	if e.draft == nil {
		return nil, errNoDraft
	}
	s := report.Section{Type: report.SectionType(c.Type), Title: c.Title, Config: c.Config}
	if s.Config == nil {
		s.Config = map[string]interface{}{}
	}
	if err := e.checkConfigFields(ctx, s); err != nil {
		return nil, err
	}
	e.enrich(ctx, &s)

	pos := -1
	if c.Position != nil {
		pos = *c.Position
	}
	idx, err := e.draft.AddSection(s, pos)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"index":        idx,
		"sectionCount": len(e.draft.Sections),
		"insight":      s.Insight,
		"hasData":      s.Data != nil,
	}, nil
}

func (c *ModifySection) run(ctx context.Context, e *Executor) (interface{}, error) {
	if e.draft == nil {
		return nil, errNoDraft
	}
	patch := report.SectionPatch{Title: c.Title, Config: c.Config, Insight: c.Insight}
	if c.Type != nil {
		t := report.SectionType(*c.Type)
		patch.Type = &t
	}

	// Apply to a copy so a rejected config leaves the draft untouched.
	next := e.draft.Clone()
	if err := next.ModifySection(*c.Index, patch); err != nil {
		return nil, err
	}
	s := &next.Sections[*c.Index]
	if len(c.Config) > 0 {
		if err := e.checkConfigFields(ctx, *s); err != nil {
			return nil, err
		}
		if c.Insight == nil {
			s.Insight = ""
		}
		e.enrich(ctx, s)
	}
	e.draft = next
	return map[string]interface{}{
		"index":   *c.Index,
		"section": s,
	}, nil
}

func (c *RemoveSection) run(_ context.Context, e *Executor) (interface{}, error) {
	if e.draft == nil {
		return nil, errNoDraft
	}
	removed, err := e.draft.RemoveSection(*c.Index)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"removed":      removed.Title,
		"sectionCount": len(e.draft.Sections),
	}, nil
}

func (c *ReorderSections) run(_ context.Context, e *Executor) (interface{}, error) {
	if e.draft == nil {
		return nil, errNoDraft
	}
	if err := e.draft.ReorderSections(c.Order); err != nil {
		return nil, err
	}
	return e.draft.Preview(), nil
}

func (c *PreviewReport) run(_ context.Context, e *Executor) (interface{}, error) {
	if e.draft == nil {
		return nil, errNoDraft
	}
	return e.draft.Preview(), nil
}

type finalizeResult struct {
	Report     *report.Draft     `json:"report"`
	Summary    string            `json:"summary"`
	Validation report.Validation `json:"validation"`
}

func (c *FinalizeReport) run(ctx context.Context, e *Executor) (interface{}, error) {
	if e.final != nil {
		return nil, errors.New("report already finalized")
	}

	var candidate *report.Draft
	res := &finalizeResult{Summary: c.Summary}
	if c.Report != nil {
		d, problem := e.draftFromInput(c.Report)
		if problem != "" {
			res.Validation = report.Validation{Errors: []string{problem}}
			return res, nil
		}
		candidate = d
	} else {
		candidate = e.draft.Clone()
	}

	available, err := e.AvailableFields(ctx)
	if err != nil {
		return nil, err
	}
	res.Report = candidate
	res.Validation = report.Validate(candidate, report.Rules{
		AvailableFields:  available,
		RestrictedFields: e.policy.RestrictedFields,
		IsAdmin:          e.policy.IsAdmin,
	})

	if res.Validation.Valid {
		e.final = &Final{Report: candidate, Summary: c.Summary}
		e.draft = candidate
	}
	return res, nil
}

// draftFromInput builds a draft from an explicit report object. The second
// return is a validation message when the object is malformed.
func (e *Executor) draftFromInput(in map[string]interface{}) (*report.Draft, string) {
	if secs, ok := in["sections"]; ok {
		if _, isList := secs.([]interface{}); !isList {
			return nil, "Report sections must be an array"
		}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, "Report could not be read: " + err.Error()
	}
	var d report.Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, "Report could not be read: " + err.Error()
	}

	d.CustomerID = e.policy.CustomerID
	if d.ID == "" {
		if e.draft != nil {
			d.ID = e.draft.ID
		} else {
			d.ID = report.NewDraft("", "", "", "", report.DateRange{}, e.deps.Now()).ID
		}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = e.deps.Now().UTC()
	}
	if d.Theme == "" {
		d.Theme = report.DefaultTheme
	}
	return &d, ""
}
