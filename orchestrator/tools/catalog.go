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
	"sync"

	"reportpilot/platform/connectors/base"
)

// catalog is the set of fields visible to the caller, loaded on first use.
type catalog struct {
	mu     sync.Mutex
	loaded bool
	fields map[string]base.FieldInfo // keyed by "table.field" and bare name
	tables map[string]string         // bare name -> first table holding it
}

func (c *catalog) load(ctx context.Context, ds base.DataSource, scope base.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	tables, err := ds.DiscoverTables(ctx, scope)
	if err != nil {
		return fmt.Errorf("load field catalog: %w", err)
	}
	fields := make(map[string]base.FieldInfo)
	owners := make(map[string]string)
	for _, t := range tables {
		tf, err := ds.DiscoverFields(ctx, scope, t.Name)
		if err != nil {
			return fmt.Errorf("load field catalog: %w", err)
		}
		for _, f := range tf {
			fields[t.Name+"."+f.Name] = f
			if _, seen := owners[f.Name]; !seen {
				owners[f.Name] = t.Name
				fields[f.Name] = f
			}
		}
	}
	c.fields, c.tables, c.loaded = fields, owners, true
	return nil
}

// available returns the set of usable field names.
func (c *catalog) available() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.fields))
	for k := range c.fields {
		out[k] = true
	}
	return out
}

func (c *catalog) lookup(name string) (base.FieldInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.fields[name]
	return f, ok
}

// tableOf returns the table a bare field name resolves to.
func (c *catalog) tableOf(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tables[name]
}
