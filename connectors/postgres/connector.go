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
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"reportpilot/platform/connectors/base"
	"reportpilot/platform/shared/logger"
)

const defaultTimeout = 5 * time.Second

// Open establishes a pooled connection to PostgreSQL and pings it.
func Open(ctx context.Context, config *base.ConnectorConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", config.ConnectionURL)
	if err != nil {
		return nil, base.NewConnectorError(config.Name, "Connect", "failed to open connection", err)
	}

	maxOpenConns := 25
	maxIdleConns := 5
	connMaxLifetime := 5 * time.Minute

	if val, ok := config.Options["max_open_conns"].(int); ok {
		maxOpenConns = val
	}
	if val, ok := config.Options["max_idle_conns"].(int); ok {
		maxIdleConns = val
	}
	if val, ok := config.Options["conn_max_lifetime"].(string); ok {
		if duration, err := time.ParseDuration(val); err == nil {
			connMaxLifetime = duration
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, base.NewConnectorError(config.Name, "Connect", "failed to ping database", err)
	}
	return db, nil
}

// HealthCheck verifies the database connection is healthy
func HealthCheck(ctx context.Context, db *sql.DB) *base.HealthStatus {
	if db == nil {
		return &base.HealthStatus{Healthy: false, Error: "database not connected", Timestamp: time.Now()}
	}

	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Latency: latency, Timestamp: time.Now(), Error: err.Error()}
	}

	stats := db.Stats()
	return &base.HealthStatus{
		Healthy: true,
		Latency: latency,
		Details: map[string]string{
			"open_connections": fmt.Sprintf("%d", stats.OpenConnections),
			"in_use":           fmt.Sprintf("%d", stats.InUse),
			"idle":             fmt.Sprintf("%d", stats.Idle),
		},
		Timestamp: time.Now(),
	}
}

// DataStore implements base.DataSource over customer-partitioned tables.
// Every table in the schema must carry a customer_id column.
type DataStore struct {
	db      *sql.DB
	schema  *base.Schema
	name    string
	timeout time.Duration
	log     *logger.Logger
}

var _ base.DataSource = (*DataStore)(nil)

// NewDataStore wraps db. schema must already be validated.
func NewDataStore(db *sql.DB, schema *base.Schema, name string, timeout time.Duration) *DataStore {
	if name == "" {
		name = "postgres"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DataStore{
		db:      db,
		schema:  schema,
		name:    name,
		timeout: timeout,
		log:     logger.New("data-store"),
	}
}

// Schema returns the allow-list the store enforces.
func (d *DataStore) Schema() *base.Schema {
	return d.schema
}

func (d *DataStore) query(ctx context.Context, op, stmt string, args []interface{}) ([]map[string]interface{}, time.Duration, error) {
	queryCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	rows, err := d.db.QueryContext(queryCtx, stmt, args...)
	if err != nil {
		return nil, 0, base.NewConnectorError(d.name, op, "query execution failed", err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanRows(rows)
	if err != nil {
		return nil, 0, base.NewConnectorError(d.name, op, "failed to read rows", err)
	}
	duration := time.Since(start)

	d.log.Debug("", "", "query executed", map[string]interface{}{
		"operation":   op,
		"rows":        len(results),
		"duration_ms": duration.Milliseconds(),
	})
	return results, duration, nil
}

// scanRows reads every row into a column-keyed map. []byte values become strings.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
