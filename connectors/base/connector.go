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

package base

import (
	"context"
	"time"
)

// Scope identifies who a data operation runs for. Every query is filtered
// by CustomerID; restricted fields are invisible unless IsAdmin.
type Scope struct {
	CustomerID string
	IsAdmin    bool
}

// ConnectorConfig holds the configuration for a data connector
type ConnectorConfig struct {
	Name          string                 `json:"name" yaml:"name"`
	ConnectionURL string                 `json:"connection_url" yaml:"connection_url"` // DSN
	Options       map[string]interface{} `json:"options" yaml:"options"`
	Timeout       time.Duration          `json:"timeout" yaml:"timeout"` // default: 5s
}

// Filter is one predicate on a field.
type Filter struct {
	Field    string      `json:"field" mapstructure:"field"`
	Operator string      `json:"operator" mapstructure:"operator"` // eq, neq, gt, gte, lt, lte, in, like, is_null, not_null
	Value    interface{} `json:"value,omitempty" mapstructure:"value"`
}

// TableQuery selects raw rows from one table.
type TableQuery struct {
	Table   string
	Fields  []string
	Filters []Filter
	Limit   int
}

// TextSearch looks for a term across text fields.
type TextSearch struct {
	Query  string
	Table  string
	Fields []string
	Limit  int
}

// JoinQuery selects rows from base_table joined to join_table over a
// configured join.
type JoinQuery struct {
	BaseTable string
	JoinTable string
	Fields    []string
	Filters   []Filter
	Limit     int
}

// Aggregation groups a table by one field and aggregates a metric.
type Aggregation struct {
	Table       string
	GroupBy     string
	Metric      string
	Aggregation string // count, sum, avg, min, max, count_distinct
	Filters     []Filter
	Limit       int
}

// QueryResult contains the rows returned by a data operation
type QueryResult struct {
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"row_count"`
	Duration time.Duration            `json:"-"`
	Metadata map[string]interface{}   `json:"metadata,omitempty"`
}

// ValueCount is one distinct value and how often it occurs.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// FieldProfile summarises one field's population.
type FieldProfile struct {
	Table     string       `json:"table"`
	Field     string       `json:"field"`
	Total     int64        `json:"total"`
	Populated int64        `json:"populated"`
	Unique    int64        `json:"unique"`
	Samples   []ValueCount `json:"samples"`
}

// GroupingPreview is an aggregation result plus the full number of groups.
type GroupingPreview struct {
	Rows        []map[string]interface{} `json:"rows"`
	TotalGroups int                      `json:"total_groups"`
}

// DataSource is the data-query layer the report tools run against.
type DataSource interface {
	DiscoverTables(ctx context.Context, scope Scope) ([]TableInfo, error)
	DiscoverFields(ctx context.Context, scope Scope, table string) ([]FieldInfo, error)
	DiscoverJoins(ctx context.Context, scope Scope, table string) ([]JoinInfo, error)
	QueryTable(ctx context.Context, scope Scope, q TableQuery) (*QueryResult, error)
	SearchText(ctx context.Context, scope Scope, q TextSearch) (*QueryResult, error)
	QueryWithJoin(ctx context.Context, scope Scope, q JoinQuery) (*QueryResult, error)
	Aggregate(ctx context.Context, scope Scope, q Aggregation) (*QueryResult, error)
	ExploreField(ctx context.Context, scope Scope, table, field string, sampleSize int) (*FieldProfile, error)
	PreviewGrouping(ctx context.Context, scope Scope, q Aggregation) (*GroupingPreview, error)
}

// Learning kinds.
const (
	LearningTerminology = "terminology"
	LearningProduct     = "product"
	LearningPreference  = "preference"
	LearningCorrection  = "correction"
)

// Learning is one fact extracted from a conversation.
type Learning struct {
	Type       string  `json:"type"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// KnowledgeStore persists learned customer knowledge.
type KnowledgeStore interface {
	// UpsertTerm stores terminology and product names, keyed by customer and key.
	UpsertTerm(ctx context.Context, customerID string, l Learning) error
	// UpsertPreference stores a reporting preference, keyed by customer and key.
	UpsertPreference(ctx context.Context, customerID string, l Learning) error
	// RecordCorrection appends a correction. Corrections are stored inactive
	// until reviewed.
	RecordCorrection(ctx context.Context, customerID string, l Learning) error
}

// HealthStatus represents the health of a connector
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error"`
}

// ConnectorError represents errors specific to connector operations
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}
