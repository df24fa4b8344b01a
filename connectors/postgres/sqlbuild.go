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
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/spf13/cast"

	"reportpilot/platform/connectors/base"
)

var (
	// ErrUnknownTable is returned for a table outside the schema
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownField is returned for a field outside the schema or hidden from the caller
	ErrUnknownField = errors.New("unknown field")

	// ErrUnsupportedOperator is returned for a filter operator that has no SQL mapping
	ErrUnsupportedOperator = errors.New("unsupported filter operator")

	// ErrUnsupportedAggregation is returned for an aggregation outside the allow-list
	ErrUnsupportedAggregation = errors.New("unsupported aggregation")
)

const (
	defaultRowLimit = 100
	maxRowLimit     = 1000
	defaultAggLimit = 20
	maxAggLimit     = 100
)

var comparisonOps = map[string]string{
	"eq":  "=",
	"neq": "<>",
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
}

func clamp(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// builder accumulates positional arguments. $1 is always the customer id.
type builder struct {
	schema *base.Schema
	scope  base.Scope
	args   []interface{}
}

func newBuilder(schema *base.Schema, scope base.Scope) *builder {
	return &builder{schema: schema, scope: scope, args: []interface{}{scope.CustomerID}}
}

func (b *builder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) table(name string) (string, error) {
	if _, ok := b.schema.Table(name); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return pq.QuoteIdentifier(name), nil
}

// column returns the qualified, quoted column after checking visibility.
func (b *builder) column(table, field string) (string, error) {
	f, ok := b.schema.Field(table, field)
	if !ok || (f.Restricted && !b.scope.IsAdmin) {
		return "", fmt.Errorf("%w: %q is not available in %s", ErrUnknownField, field, table)
	}
	if err := base.ValidateIdentifier(field); err != nil {
		return "", err
	}
	return pq.QuoteIdentifier(table) + "." + pq.QuoteIdentifier(field), nil
}

func (b *builder) tenant(table string) string {
	return pq.QuoteIdentifier(table) + ".customer_id = $1"
}

// resolve maps "field" or "table.field" onto one of the given tables.
func (b *builder) resolve(field string, tables ...string) (string, string, error) {
	if i := strings.IndexByte(field, '.'); i > 0 {
		t, f := field[:i], field[i+1:]
		for _, allowed := range tables {
			if t == allowed {
				col, err := b.column(t, f)
				return col, t + "." + f, err
			}
		}
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTable, t)
	}
	for _, t := range tables {
		if _, ok := b.schema.Field(t, field); ok {
			col, err := b.column(t, field)
			return col, field, err
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownField, field)
}

func (b *builder) where(filters []base.Filter, tables ...string) (string, error) {
	clauses := make([]string, 0, len(tables)+len(filters))
	for _, t := range tables {
		clauses = append(clauses, b.tenant(t))
	}
	for _, f := range filters {
		col, _, err := b.resolve(f.Field, tables...)
		if err != nil {
			return "", err
		}
		clause, err := b.predicate(col, f)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), nil
}

func (b *builder) predicate(col string, f base.Filter) (string, error) {
	op := strings.ToLower(f.Operator)
	if op == "" {
		op = "eq"
	}
	if sqlOp, ok := comparisonOps[op]; ok {
		return fmt.Sprintf("%s %s %s", col, sqlOp, b.arg(f.Value)), nil
	}
	switch op {
	case "in":
		values, err := cast.ToStringSliceE(f.Value)
		if err != nil {
			return "", fmt.Errorf("filter on %s: 'in' needs a list: %w", f.Field, err)
		}
		return fmt.Sprintf("%s::text = ANY(%s)", col, b.arg(pq.Array(values))), nil
	case "like":
		pattern := cast.ToString(f.Value)
		if !strings.Contains(pattern, "%") {
			pattern = "%" + pattern + "%"
		}
		return fmt.Sprintf("%s::text ILIKE %s", col, b.arg(pattern)), nil
	case "is_null":
		return col + " IS NULL", nil
	case "not_null":
		return col + " IS NOT NULL", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperator, f.Operator)
	}
}

func aggregateExpr(aggregation, col string) (string, error) {
	switch strings.ToLower(aggregation) {
	case "", "count":
		if col == "" {
			return "COUNT(*)", nil
		}
		return "COUNT(" + col + ")", nil
	case "count_distinct":
		if col == "" {
			return "", fmt.Errorf("%w: count_distinct needs a metric field", ErrUnsupportedAggregation)
		}
		return "COUNT(DISTINCT " + col + ")", nil
	case "sum", "avg", "min", "max":
		if col == "" {
			return "", fmt.Errorf("%w: %s needs a metric field", ErrUnsupportedAggregation, aggregation)
		}
		return strings.ToUpper(aggregation) + "(" + col + ")", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAggregation, aggregation)
	}
}
