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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return &Schema{
		Tables: []TableInfo{
			{Name: "shipments", Fields: []FieldInfo{
				{Name: "carrier", Type: "text", Searchable: true},
				{Name: "mode", Type: "text"},
				{Name: "cost", Type: "number"},
				{Name: "customer_ref", Type: "text"},
			}},
			{Name: "carriers", Fields: []FieldInfo{
				{Name: "carrier", Type: "text"},
				{Name: "scac", Type: "text"},
			}},
		},
		Joins: []JoinInfo{{FromTable: "shipments", FromField: "carrier", ToTable: "carriers", ToField: "carrier"}},
	}
}

func TestSchema_ValidateDefaultsTable(t *testing.T) {
	s := testSchema()
	require.NoError(t, s.Validate())
	assert.Equal(t, "shipments", s.DefaultTable)

	bad := testSchema()
	bad.Tables[0].Fields[0].Name = "carrier; drop"
	assert.Error(t, bad.Validate())

	bad = testSchema()
	bad.Joins[0].ToField = "missing"
	assert.ErrorContains(t, bad.Validate(), "unknown field")

	assert.Error(t, (&Schema{}).Validate())
}

func TestSchema_RestrictedVisibility(t *testing.T) {
	s := testSchema()
	s.MarkRestricted([]string{"COST"})

	names := func(fs []FieldInfo) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.Name)
		}
		return out
	}
	assert.NotContains(t, names(s.VisibleFields("shipments", Scope{CustomerID: "c"})), "cost")
	assert.Contains(t, names(s.VisibleFields("shipments", Scope{CustomerID: "c", IsAdmin: true})), "cost")
	assert.Nil(t, s.VisibleFields("nope", Scope{}))
}

func TestSchema_ResolveField(t *testing.T) {
	s := testSchema()
	require.NoError(t, s.Validate())

	table, field, ok := s.ResolveField("scac")
	assert.True(t, ok)
	assert.Equal(t, "carriers", table)
	assert.Equal(t, "scac", field)

	table, _, ok = s.ResolveField("carrier")
	assert.True(t, ok)
	assert.Equal(t, "shipments", table, "default table wins")

	table, _, ok = s.ResolveField("carriers.carrier")
	assert.True(t, ok)
	assert.Equal(t, "carriers", table)

	_, _, ok = s.ResolveField("shipments.scac")
	assert.False(t, ok)
}

func TestSchema_FindJoinBothDirections(t *testing.T) {
	s := testSchema()
	j, ok := s.FindJoin("carriers", "shipments")
	require.True(t, ok)
	assert.Equal(t, JoinInfo{FromTable: "carriers", FromField: "carrier", ToTable: "shipments", ToField: "carrier"}, j)

	_, ok = s.FindJoin("carriers", "invoices")
	assert.False(t, ok)
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("ship_date"))
	for _, bad := range []string{"", "1abc", "a-b", "carrier; drop table x", "select", "Group"} {
		assert.ErrorIs(t, ValidateIdentifier(bad), ErrInvalidIdentifier, bad)
	}
	assert.ErrorContains(t, ValidateIdentifier("select"), "reserved")
}

func TestConnectorError(t *testing.T) {
	cause := errors.New("network timeout")
	err := NewConnectorError("postgres", "Query", "connection failed", cause)
	assert.Equal(t, "postgres.Query: connection failed (cause: network timeout)", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "postgres.Execute: write failed", NewConnectorError("postgres", "Execute", "write failed", nil).Error())
}
