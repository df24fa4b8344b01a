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
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier is returned for table or field names that cannot be
// interpolated into SQL.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Reserved words rejected as table or field names.
var reservedWords = map[string]struct{}{
	"ALL": {}, "ALTER": {}, "AND": {}, "AS": {}, "BY": {}, "CASCADE": {},
	"CREATE": {}, "DATABASE": {}, "DELETE": {}, "DISTINCT": {}, "DROP": {},
	"FALSE": {}, "FROM": {}, "GRANT": {}, "GROUP": {}, "HAVING": {}, "INDEX": {},
	"INSERT": {}, "INTO": {}, "JOIN": {}, "LIMIT": {}, "NOT": {}, "NULL": {},
	"OFFSET": {}, "ON": {}, "OR": {}, "ORDER": {}, "REVOKE": {}, "SELECT": {},
	"SET": {}, "TABLE": {}, "TRUE": {}, "TRUNCATE": {}, "UNION": {},
	"UPDATE": {}, "VALUES": {}, "WHERE": {},
}

// ValidateIdentifier checks a schema table or field name before it reaches
// a query builder. Every name the model sends is checked here even though
// it was already matched against the configured schema.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	if _, ok := reservedWords[strings.ToUpper(name)]; ok {
		return fmt.Errorf("%w: %q is a reserved word", ErrInvalidIdentifier, name)
	}
	return nil
}
