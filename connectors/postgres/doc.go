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
Package postgres implements the report service's data access on PostgreSQL.

DataStore answers the data-query tools (discovery, row queries, joins,
aggregation, field profiling). Every statement is scoped to the caller's
customer with a customer_id = $1 predicate, and every identifier is checked
against the configured base.Schema and quoted with pq.QuoteIdentifier before
it is interpolated. Values are always bound as parameters.

KnowledgeRepository stores learned terminology, preferences and corrections.
CustomerRepository reads the per-customer AI flag and daily spend cap.

The tables owned by the service are in migrations/.
*/
package postgres
