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

// Package access derives the caller's access policy for one report request.
package access

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"reportpilot/platform/connectors/base"
)

// RoleAdmin is the role claim that grants access to restricted fields.
const RoleAdmin = "admin"

var (
	// ErrUnauthorized means no valid credential was presented
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the caller may not act for the requested customer
	ErrForbidden = errors.New("forbidden")

	// ErrMissingCustomer means no customer could be determined for the request
	ErrMissingCustomer = errors.New("customer id is required")
)

// Policy is fixed for the lifetime of one request.
type Policy struct {
	CustomerID       string
	UserID           string
	Role             string
	IsAdmin          bool
	RestrictedFields []string
}

// Scope is the data-layer view of the policy.
func (p Policy) Scope() base.Scope {
	return base.Scope{CustomerID: p.CustomerID, IsAdmin: p.IsAdmin}
}

// Claimed is what the request body says about the caller. It is only
// trusted when no token secret is configured and TrustRequestRole is set.
type Claimed struct {
	CustomerID string
	UserID     string
	IsAdmin    bool
}

// Config controls role resolution.
type Config struct {
	JWTSecret        string   `yaml:"jwt_secret"`
	TrustRequestRole bool     `yaml:"trust_request_role"`
	RestrictedFields []string `yaml:"restricted_fields"`
}

// Resolver turns a bearer token and request body into a Policy.
type Resolver struct {
	secret     []byte
	trust      bool
	restricted []string
}

// NewResolver creates a resolver from cfg.
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{trust: cfg.TrustRequestRole, restricted: cfg.RestrictedFields}
	if cfg.JWTSecret != "" {
		r.secret = []byte(cfg.JWTSecret)
	}
	return r
}

// RestrictedFields returns the configured restricted field names.
func (r *Resolver) RestrictedFields() []string {
	return r.restricted
}

// Resolve derives the policy. authHeader is the raw Authorization header.
func (r *Resolver) Resolve(authHeader string, claimed Claimed) (Policy, error) {
	p := Policy{RestrictedFields: r.restricted}

	if r.secret == nil {
		p.CustomerID = claimed.CustomerID
		p.UserID = claimed.UserID
		if r.trust && claimed.IsAdmin {
			p.IsAdmin = true
			p.Role = RoleAdmin
		}
		if p.CustomerID == "" {
			return Policy{}, ErrMissingCustomer
		}
		return p, nil
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tokenString == "" {
		return Policy{}, fmt.Errorf("%w: token required", ErrUnauthorized)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Policy{}, fmt.Errorf("%w: invalid token: %v", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Policy{}, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}

	p.Role = getClaimString(claims, "role")
	p.IsAdmin = p.Role == RoleAdmin
	p.UserID = getClaimString(claims, "user_id")
	if p.UserID == "" {
		p.UserID = claimed.UserID
	}
	tokenCustomer := getClaimString(claims, "customer_id")

	switch {
	case p.IsAdmin && claimed.CustomerID != "":
		p.CustomerID = claimed.CustomerID
	case claimed.CustomerID != "" && tokenCustomer != "" && claimed.CustomerID != tokenCustomer:
		return Policy{}, fmt.Errorf("%w: token is not valid for customer %s", ErrForbidden, claimed.CustomerID)
	case tokenCustomer != "":
		p.CustomerID = tokenCustomer
	case !p.IsAdmin:
		// A non-admin token must name its customer; the body cannot.
		return Policy{}, fmt.Errorf("%w: token carries no customer", ErrForbidden)
	}
	if p.CustomerID == "" {
		return Policy{}, ErrMissingCustomer
	}
	return p, nil
}

// IssueToken signs an HS256 token with the given claims. It is used by the
// CLI to mint development tokens.
func IssueToken(secret, customerID, userID, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"customer_id": customerID,
		"user_id":     userID,
		"role":        role,
		"iat":         now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}
