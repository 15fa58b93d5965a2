// Package auth issues and validates the bearer tokens accepted by the RPC
// server.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Scope limits what a token may do.
type Scope string

const (
	// ScopeRead allows lookups, searches and exports.
	ScopeRead Scope = "read"
	// ScopeWrite additionally allows record and data source changes.
	ScopeWrite Scope = "write"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeRead || s == ScopeWrite
}

// Claims are the JWT claims of an RPC token.
type Claims struct {
	jwt.RegisteredClaims

	// Scope is the access level granted by the token.
	Scope Scope `json:"scope"`
}

// CanWrite returns true if the token allows mutating calls.
func (c *Claims) CanWrite() bool {
	return c.Scope == ScopeWrite
}
