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
	"fmt"
	"strings"

	"reportpilot/platform/connectors/base"
)

func (c *DiscoverTables) run(ctx context.Context, e *Executor) (interface{}, error) {
	tables, err := e.deps.Data.DiscoverTables(ctx, e.policy.Scope())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tables": tables}, nil
}

func (c *DiscoverFields) run(ctx context.Context, e *Executor) (interface{}, error) {
	scope := e.policy.Scope()
	if c.Table != "" {
		fields, err := e.deps.Data.DiscoverFields(ctx, scope, c.Table)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"table": c.Table, "fields": fields}, nil
	}

	tables, err := e.deps.Data.DiscoverTables(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]base.FieldInfo, len(tables))
	for _, t := range tables {
		fields, err := e.deps.Data.DiscoverFields(ctx, scope, t.Name)
		if err != nil {
			return nil, err
		}
		out[t.Name] = fields
	}
	return map[string]interface{}{"tables": out}, nil
}

func (c *DiscoverJoins) run(ctx context.Context, e *Executor) (interface{}, error) {
	joins, err := e.deps.Data.DiscoverJoins(ctx, e.policy.Scope(), c.Table)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"joins": joins}, nil
}

func (c *QueryTable) run(ctx context.Context, e *Executor) (interface{}, error) {
	return e.deps.Data.QueryTable(ctx, e.policy.Scope(), base.TableQuery{
		Table: c.Table, Fields: c.Fields, Filters: c.Filters, Limit: c.Limit,
	})
}

func (c *SearchText) run(ctx context.Context, e *Executor) (interface{}, error) {
	return e.deps.Data.SearchText(ctx, e.policy.Scope(), base.TextSearch{
		Query: c.Query, Table: c.Table, Fields: c.Fields, Limit: c.Limit,
	})
}

func (c *QueryWithJoin) run(ctx context.Context, e *Executor) (interface{}, error) {
	return e.deps.Data.QueryWithJoin(ctx, e.policy.Scope(), base.JoinQuery{
		BaseTable: c.BaseTable, JoinTable: c.JoinTable, Fields: c.Fields, Filters: c.Filters, Limit: c.Limit,
	})
}

func (c *Aggregate) run(ctx context.Context, e *Executor) (interface{}, error) {
	return e.deps.Data.Aggregate(ctx, e.policy.Scope(), base.Aggregation{
		Table: c.Table, GroupBy: c.GroupBy, Metric: c.Metric, Aggregation: c.Aggregation,
		Filters: c.Filters, Limit: c.Limit,
	})
}

type fieldExploration struct {
	Table            string            `json:"table"`
	Field            string            `json:"field"`
	SampleValues     []base.ValueCount `json:"sampleValues"`
	TotalRows        int64             `json:"totalRows"`
	PopulatedCount   int64             `json:"populatedCount"`
	PopulatedPercent float64           `json:"populatedPercent"`
	UniqueCount      int64             `json:"uniqueCount"`
	Quality          string            `json:"quality"`
	Recommendation   string            `json:"recommendation"`
}

func (c *ExploreField) run(ctx context.Context, e *Executor) (interface{}, error) {
	table, field := splitField(c.Field)
	if c.Table != "" {
		table = c.Table
	}
	if table == "" {
		if err := e.catalog.load(ctx, e.deps.Data, e.policy.Scope()); err == nil {
			table = e.catalog.tableOf(field)
		}
	}
	p, err := e.deps.Data.ExploreField(ctx, e.policy.Scope(), table, field, c.SampleSize)
	if err != nil {
		return nil, err
	}
	pct := percent(p.Populated, p.Total)
	quality := FieldQuality(pct)
	return &fieldExploration{
		Table:            p.Table,
		Field:            p.Field,
		SampleValues:     p.Samples,
		TotalRows:        p.Total,
		PopulatedCount:   p.Populated,
		PopulatedPercent: pct,
		UniqueCount:      p.Unique,
		Quality:          quality,
		Recommendation:   fieldRecommendation(p.Total, p.Populated, p.Unique, quality),
	}, nil
}

type aggregationPreview struct {
	Rows           []map[string]interface{} `json:"rows"`
	GroupCount     int                      `json:"groupCount"`
	ShownGroups    int                      `json:"shownGroups"`
	Quality        string                   `json:"quality"`
	SuggestedChart string                   `json:"suggestedChart"`
	Recommendation string                   `json:"recommendation"`
}

func (c *PreviewAggregation) run(ctx context.Context, e *Executor) (interface{}, error) {
	return e.previewGrouping(ctx, base.Aggregation{
		Table: c.Table, GroupBy: c.GroupBy, Metric: c.Metric, Aggregation: c.Aggregation,
		Filters: c.Filters, Limit: c.Limit,
	})
}

func (e *Executor) previewGrouping(ctx context.Context, q base.Aggregation) (*aggregationPreview, error) {
	if t, f := splitField(q.GroupBy); t != "" {
		if q.Table == "" {
			q.Table = t
		}
		q.GroupBy = f
	}
	_, q.Metric = splitField(q.Metric)
	fieldType := ""
	if err := e.catalog.load(ctx, e.deps.Data, e.policy.Scope()); err == nil {
		if q.Table == "" {
			q.Table = e.catalog.tableOf(q.GroupBy)
		}
		if f, ok := e.catalog.lookup(q.Table + "." + q.GroupBy); ok {
			fieldType = f.Type
		} else if f, ok := e.catalog.lookup(q.GroupBy); ok {
			fieldType = f.Type
		}
	}

	p, err := e.deps.Data.PreviewGrouping(ctx, e.policy.Scope(), q)
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", q.GroupBy, err)
	}
	quality := GroupingQuality(p.TotalGroups)
	return &aggregationPreview{
		Rows:           p.Rows,
		GroupCount:     p.TotalGroups,
		ShownGroups:    len(p.Rows),
		Quality:        quality,
		SuggestedChart: SuggestChart(p.TotalGroups, fieldType),
		Recommendation: groupingRecommendation(quality, p.TotalGroups),
	}, nil
}

// splitField separates "table.field" into its parts. A bare name has no table.
func splitField(name string) (table, field string) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
