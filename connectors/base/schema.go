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
	"fmt"
	"strings"
)

// FieldInfo describes one column exposed to report building.
type FieldInfo struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"` // text, number, date, boolean
	Description string `json:"description,omitempty" yaml:"description"`
	Searchable  bool   `json:"searchable,omitempty" yaml:"searchable"`
	Restricted  bool   `json:"-" yaml:"restricted"`
}

// TableInfo describes one queryable table.
type TableInfo struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Fields      []FieldInfo `json:"fields,omitempty" yaml:"fields"`
}

// JoinInfo is an allowed join between two tables.
type JoinInfo struct {
	FromTable string `json:"from_table" yaml:"from_table"`
	FromField string `json:"from_field" yaml:"from_field"`
	ToTable   string `json:"to_table" yaml:"to_table"`
	ToField   string `json:"to_field" yaml:"to_field"`
}

// Schema is the allow-list of tables, fields and joins. Nothing outside it
// is ever interpolated into SQL.
type Schema struct {
	DefaultTable string      `yaml:"default_table"`
	Tables       []TableInfo `yaml:"tables"`
	Joins        []JoinInfo  `yaml:"joins"`
}

// Validate checks identifiers and references.
func (s *Schema) Validate() error {
	if len(s.Tables) == 0 {
		return fmt.Errorf("schema has no tables")
	}
	for _, t := range s.Tables {
		if err := ValidateIdentifier(t.Name); err != nil {
			return fmt.Errorf("table: %w", err)
		}
		for _, f := range t.Fields {
			if err := ValidateIdentifier(f.Name); err != nil {
				return fmt.Errorf("table %s: %w", t.Name, err)
			}
		}
	}
	if s.DefaultTable == "" {
		s.DefaultTable = s.Tables[0].Name
	}
	if _, ok := s.Table(s.DefaultTable); !ok {
		return fmt.Errorf("default table %q not in schema", s.DefaultTable)
	}
	for _, j := range s.Joins {
		if _, ok := s.Field(j.FromTable, j.FromField); !ok {
			return fmt.Errorf("join references unknown field %s.%s", j.FromTable, j.FromField)
		}
		if _, ok := s.Field(j.ToTable, j.ToField); !ok {
			return fmt.Errorf("join references unknown field %s.%s", j.ToTable, j.ToField)
		}
	}
	return nil
}

// MarkRestricted flags every field whose name is in names.
func (s *Schema) MarkRestricted(names []string) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	for ti := range s.Tables {
		for fi := range s.Tables[ti].Fields {
			if set[strings.ToLower(s.Tables[ti].Fields[fi].Name)] {
				s.Tables[ti].Fields[fi].Restricted = true
			}
		}
	}
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (TableInfo, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableInfo{}, false
}

// Field looks up a field in a table.
func (s *Schema) Field(table, field string) (FieldInfo, bool) {
	t, ok := s.Table(table)
	if !ok {
		return FieldInfo{}, false
	}
	for _, f := range t.Fields {
		if f.Name == field {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// VisibleFields returns the fields of table the scope may see.
func (s *Schema) VisibleFields(table string, scope Scope) []FieldInfo {
	t, ok := s.Table(table)
	if !ok {
		return nil
	}
	out := make([]FieldInfo, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.Restricted && !scope.IsAdmin {
			continue
		}
		out = append(out, f)
	}
	return out
}

// ResolveField finds the table holding field. "table.field" is honoured;
// a bare name is looked up in the default table first, then in schema order.
func (s *Schema) ResolveField(field string) (table, name string, ok bool) {
	if i := strings.IndexByte(field, '.'); i > 0 {
		table, name = field[:i], field[i+1:]
		_, ok = s.Field(table, name)
		return table, name, ok
	}
	if _, ok := s.Field(s.DefaultTable, field); ok {
		return s.DefaultTable, field, true
	}
	for _, t := range s.Tables {
		if _, ok := s.Field(t.Name, field); ok {
			return t.Name, field, true
		}
	}
	return "", "", false
}

// FindJoin returns the configured join between two tables, in either direction.
func (s *Schema) FindJoin(a, b string) (JoinInfo, bool) {
	for _, j := range s.Joins {
		if j.FromTable == a && j.ToTable == b {
			return j, true
		}
		if j.FromTable == b && j.ToTable == a {
			return JoinInfo{FromTable: a, FromField: j.ToField, ToTable: b, ToField: j.FromField}, true
		}
	}
	return JoinInfo{}, false
}
