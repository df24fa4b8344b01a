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

package access

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func bearer(t *testing.T, customer, user, role string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, customer, user, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestResolve_NoSecret(t *testing.T) {
	r := NewResolver(Config{RestrictedFields: []string{"cost"}})

	p, err := r.Resolve("", Claimed{CustomerID: "cust-1", UserID: "u1", IsAdmin: true})
	require.NoError(t, err)
	assert.False(t, p.IsAdmin, "request role is ignored unless trusted")
	assert.Equal(t, []string{"cost"}, p.RestrictedFields)
	assert.Equal(t, "cust-1", p.Scope().CustomerID)

	_, err = r.Resolve("", Claimed{})
	assert.ErrorIs(t, err, ErrMissingCustomer)
}

func TestResolve_TrustRequestRole(t *testing.T) {
	r := NewResolver(Config{TrustRequestRole: true})
	p, err := r.Resolve("", Claimed{CustomerID: "cust-1", IsAdmin: true})
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
	assert.True(t, p.Scope().IsAdmin)
}

func TestResolve_JWT(t *testing.T) {
	r := NewResolver(Config{JWTSecret: testSecret, TrustRequestRole: true})

	tests := []struct {
		name     string
		header   string
		claimed  Claimed
		wantErr  error
		customer string
		admin    bool
	}{
		{name: "missing token", header: "", wantErr: ErrUnauthorized},
		{name: "garbage token", header: "Bearer abc.def.ghi", wantErr: ErrUnauthorized},
		{name: "user token", header: bearer(t, "cust-1", "u1", "viewer"), customer: "cust-1"},
		{name: "user token ignores claimed admin", header: bearer(t, "cust-1", "u1", "viewer"), claimed: Claimed{IsAdmin: true}, customer: "cust-1"},
		{name: "user token other customer", header: bearer(t, "cust-1", "u1", "viewer"), claimed: Claimed{CustomerID: "cust-2"}, wantErr: ErrForbidden},
		{name: "admin token other customer", header: bearer(t, "cust-1", "a1", "admin"), claimed: Claimed{CustomerID: "cust-2"}, customer: "cust-2", admin: true},
		{name: "admin token no customer anywhere", header: bearer(t, "", "a1", "admin"), wantErr: ErrMissingCustomer},
		{name: "user token without customer claim", header: bearer(t, "", "u1", "viewer"), claimed: Claimed{CustomerID: "victim-co"}, wantErr: ErrForbidden},
		{name: "user token without any customer", header: bearer(t, "", "u1", "viewer"), wantErr: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Resolve(tt.header, tt.claimed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.customer, p.CustomerID)
			assert.Equal(t, tt.admin, p.IsAdmin)
		})
	}
}

func TestResolve_RejectsOtherAlgorithms(t *testing.T) {
	r := NewResolver(Config{JWTSecret: testSecret})
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"customer_id": "c", "role": "admin"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = r.Resolve("Bearer "+tok, Claimed{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolve_ExpiredToken(t *testing.T) {
	r := NewResolver(Config{JWTSecret: testSecret})
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"customer_id": "c",
		"exp":         time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = r.Resolve("Bearer "+tok, Claimed{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestIssueToken_EmptySecret(t *testing.T) {
	_, err := IssueToken("", "c", "u", "admin", 0)
	assert.Error(t, err)
}
