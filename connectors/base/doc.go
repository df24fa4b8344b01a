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

/*
Package base defines the data-query vocabulary shared by the report tools and
the SQL connector.

# Scope

Every operation takes a Scope. CustomerID is mandatory and is applied as a
predicate on every statement; IsAdmin controls whether fields flagged
Restricted in the Schema are visible at all.

# Schema

A Schema is the allow-list of tables, fields and joins. Identifiers coming
from the model are resolved against it before they reach SQL, and are then
validated with ValidateIdentifier and quoted by the connector.

# Interfaces

DataSource is the read side (discovery, row queries, aggregation, field
profiling). KnowledgeStore is the write side for learned terminology,
preferences and corrections. connectors/postgres implements both.
*/
package base
