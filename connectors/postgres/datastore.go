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

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/spf13/cast"

	"reportpilot/platform/connectors/base"
)

// DiscoverTables lists the tables in the schema with their visible field counts.
func (d *DataStore) DiscoverTables(_ context.Context, scope base.Scope) ([]base.TableInfo, error) {
	out := make([]base.TableInfo, 0, len(d.schema.Tables))
	for _, t := range d.schema.Tables {
		out = append(out, base.TableInfo{
			Name:        t.Name,
			Description: fmt.Sprintf("%s (%d fields)", t.Description, len(d.schema.VisibleFields(t.Name, scope))),
		})
	}
	return out, nil
}

// DiscoverFields lists the fields of table the caller may see.
func (d *DataStore) DiscoverFields(_ context.Context, scope base.Scope, table string) ([]base.FieldInfo, error) {
	if table == "" {
		table = d.schema.DefaultTable
	}
	if _, ok := d.schema.Table(table); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return d.schema.VisibleFields(table, scope), nil
}

// DiscoverJoins lists configured joins touching table (all joins when empty).
// Joins over fields the caller cannot see are omitted.
func (d *DataStore) DiscoverJoins(_ context.Context, scope base.Scope, table string) ([]base.JoinInfo, error) {
	visible := func(t, f string) bool {
		fi, ok := d.schema.Field(t, f)
		return ok && (!fi.Restricted || scope.IsAdmin)
	}
	out := make([]base.JoinInfo, 0)
	for _, j := range d.schema.Joins {
		if table != "" && j.FromTable != table && j.ToTable != table {
			continue
		}
		if !visible(j.FromTable, j.FromField) || !visible(j.ToTable, j.ToField) {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (d *DataStore) selectList(b *builder, table string, fields []string, tables ...string) (string, error) {
	if len(fields) == 0 {
		for _, f := range d.schema.VisibleFields(table, b.scope) {
			fields = append(fields, f.Name)
		}
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: no visible fields in %s", ErrUnknownField, table)
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		col, alias, err := b.resolve(f, tables...)
		if err != nil {
			return "", err
		}
		cols = append(cols, col+" AS "+pq.QuoteIdentifier(alias))
	}
	return strings.Join(cols, ", "), nil
}

// QueryTable returns raw rows from one table.
func (d *DataStore) QueryTable(ctx context.Context, scope base.Scope, q base.TableQuery) (*base.QueryResult, error) {
	if q.Table == "" {
		q.Table = d.schema.DefaultTable
	}
	b := newBuilder(d.schema, scope)
	tbl, err := b.table(q.Table)
	if err != nil {
		return nil, err
	}
	cols, err := d.selectList(b, q.Table, q.Fields, q.Table)
	if err != nil {
		return nil, err
	}
	where, err := b.where(q.Filters, q.Table)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT %d",
		cols, tbl, where, clamp(q.Limit, defaultRowLimit, maxRowLimit))
	return d.result(ctx, "QueryTable", stmt, b.args)
}

// SearchText matches a term case-insensitively across searchable text fields.
func (d *DataStore) SearchText(ctx context.Context, scope base.Scope, q base.TextSearch) (*base.QueryResult, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if q.Table == "" {
		q.Table = d.schema.DefaultTable
	}
	b := newBuilder(d.schema, scope)
	tbl, err := b.table(q.Table)
	if err != nil {
		return nil, err
	}

	fields := q.Fields
	if len(fields) == 0 {
		for _, f := range d.schema.VisibleFields(q.Table, scope) {
			if f.Searchable {
				fields = append(fields, f.Name)
			}
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no searchable fields in %s", ErrUnknownField, q.Table)
	}

	cols, err := d.selectList(b, q.Table, fields, q.Table)
	if err != nil {
		return nil, err
	}
	pattern := b.arg("%" + q.Query + "%")
	matches := make([]string, 0, len(fields))
	for _, f := range fields {
		col, err := b.column(q.Table, f)
		if err != nil {
			return nil, err
		}
		matches = append(matches, col+"::text ILIKE "+pattern)
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s AND (%s) LIMIT %d",
		cols, tbl, b.tenant(q.Table), strings.Join(matches, " OR "), clamp(q.Limit, defaultRowLimit, maxRowLimit))
	return d.result(ctx, "SearchText", stmt, b.args)
}

// QueryWithJoin selects across two tables over a configured join.
func (d *DataStore) QueryWithJoin(ctx context.Context, scope base.Scope, q base.JoinQuery) (*base.QueryResult, error) {
	b := newBuilder(d.schema, scope)
	baseTbl, err := b.table(q.BaseTable)
	if err != nil {
		return nil, err
	}
	joinTbl, err := b.table(q.JoinTable)
	if err != nil {
		return nil, err
	}
	j, ok := d.schema.FindJoin(q.BaseTable, q.JoinTable)
	if !ok {
		return nil, fmt.Errorf("no join configured between %s and %s", q.BaseTable, q.JoinTable)
	}
	left, err := b.column(j.FromTable, j.FromField)
	if err != nil {
		return nil, err
	}
	right, err := b.column(j.ToTable, j.ToField)
	if err != nil {
		return nil, err
	}

	if len(q.Fields) == 0 {
		return nil, fmt.Errorf("fields are required for a join query")
	}
	cols, err := d.selectList(b, q.BaseTable, q.Fields, q.BaseTable, q.JoinTable)
	if err != nil {
		return nil, err
	}
	where, err := b.where(q.Filters, q.BaseTable, q.JoinTable)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s JOIN %s ON %s = %s WHERE %s LIMIT %d",
		cols, baseTbl, joinTbl, left, right, where, clamp(q.Limit, defaultRowLimit, maxRowLimit))
	return d.result(ctx, "QueryWithJoin", stmt, b.args)
}

func (d *DataStore) aggregateSQL(b *builder, q base.Aggregation) (stmt, where, groupCol string, err error) {
	tbl, err := b.table(q.Table)
	if err != nil {
		return "", "", "", err
	}
	groupCol, err = b.column(q.Table, q.GroupBy)
	if err != nil {
		return "", "", "", err
	}
	metricCol := ""
	if q.Metric != "" && q.Metric != "*" {
		if metricCol, err = b.column(q.Table, q.Metric); err != nil {
			return "", "", "", err
		}
	}
	expr, err := aggregateExpr(q.Aggregation, metricCol)
	if err != nil {
		return "", "", "", err
	}
	where, err = b.where(q.Filters, q.Table)
	if err != nil {
		return "", "", "", err
	}
	stmt = fmt.Sprintf("SELECT %s AS %s, %s AS value FROM %s WHERE %s GROUP BY 1 ORDER BY 2 DESC NULLS LAST LIMIT %d",
		groupCol, pq.QuoteIdentifier(q.GroupBy), expr, tbl, where, clamp(q.Limit, defaultAggLimit, maxAggLimit))
	return stmt, where, groupCol, nil
}

// Aggregate groups by one field and aggregates a metric, largest first.
func (d *DataStore) Aggregate(ctx context.Context, scope base.Scope, q base.Aggregation) (*base.QueryResult, error) {
	if q.Table == "" {
		q.Table = d.schema.DefaultTable
	}
	b := newBuilder(d.schema, scope)
	stmt, _, _, err := d.aggregateSQL(b, q)
	if err != nil {
		return nil, err
	}
	return d.result(ctx, "Aggregate", stmt, b.args)
}

// PreviewGrouping runs an aggregation and also counts every distinct group.
func (d *DataStore) PreviewGrouping(ctx context.Context, scope base.Scope, q base.Aggregation) (*base.GroupingPreview, error) {
	if q.Table == "" {
		q.Table = d.schema.DefaultTable
	}
	b := newBuilder(d.schema, scope)
	stmt, where, groupCol, err := d.aggregateSQL(b, q)
	if err != nil {
		return nil, err
	}
	rows, _, err := d.query(ctx, "PreviewGrouping", stmt, b.args)
	if err != nil {
		return nil, err
	}

	countStmt := fmt.Sprintf("SELECT COUNT(DISTINCT %s) AS group_count FROM %s WHERE %s",
		groupCol, pq.QuoteIdentifier(q.Table), where)
	countRows, _, err := d.query(ctx, "PreviewGrouping", countStmt, b.args)
	if err != nil {
		return nil, err
	}
	total := len(rows)
	if len(countRows) == 1 {
		total = cast.ToInt(countRows[0]["group_count"])
	}
	return &base.GroupingPreview{Rows: rows, TotalGroups: total}, nil
}

// ExploreField profiles one field: population, cardinality and top values.
func (d *DataStore) ExploreField(ctx context.Context, scope base.Scope, table, field string, sampleSize int) (*base.FieldProfile, error) {
	if table == "" {
		table = d.schema.DefaultTable
	}
	b := newBuilder(d.schema, scope)
	tbl, err := b.table(table)
	if err != nil {
		return nil, err
	}
	col, err := b.column(table, field)
	if err != nil {
		return nil, err
	}

	statsStmt := fmt.Sprintf("SELECT COUNT(*) AS total, COUNT(%s) AS populated, COUNT(DISTINCT %s) AS uniq FROM %s WHERE %s",
		col, col, tbl, b.tenant(table))
	stats, _, err := d.query(ctx, "ExploreField", statsStmt, b.args)
	if err != nil {
		return nil, err
	}
	profile := &base.FieldProfile{Table: table, Field: field}
	if len(stats) == 1 {
		profile.Total = cast.ToInt64(stats[0]["total"])
		profile.Populated = cast.ToInt64(stats[0]["populated"])
		profile.Unique = cast.ToInt64(stats[0]["uniq"])
	}

	limit := b.arg(clamp(sampleSize, 10, 50))
	sampleStmt := fmt.Sprintf("SELECT %s::text AS value, COUNT(*) AS n FROM %s WHERE %s AND %s IS NOT NULL GROUP BY 1 ORDER BY 2 DESC LIMIT %s",
		col, tbl, b.tenant(table), col, limit)
	samples, _, err := d.query(ctx, "ExploreField", sampleStmt, b.args)
	if err != nil {
		return nil, err
	}
	profile.Samples = make([]base.ValueCount, 0, len(samples))
	for _, s := range samples {
		profile.Samples = append(profile.Samples, base.ValueCount{
			Value: cast.ToString(s["value"]),
			Count: cast.ToInt64(s["n"]),
		})
	}
	return profile, nil
}

func (d *DataStore) result(ctx context.Context, op, stmt string, args []interface{}) (*base.QueryResult, error) {
	rows, duration, err := d.query(ctx, op, stmt, args)
	if err != nil {
		return nil, err
	}
	return &base.QueryResult{Rows: rows, RowCount: len(rows), Duration: duration}, nil
}
