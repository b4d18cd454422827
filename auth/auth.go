// Package auth is the credential-exchange boundary: a federated identity
// token in, tenant-scoped temporary storage credentials out. The tenant claim
// in the token is the isolation boundary; no request may act on a tenant other
// than the one its credentials are scoped to.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid identity token")
	ErrTokenExpired   = errors.New("identity token has expired")
	ErrTenantMismatch = errors.New("claimed tenant does not match credential scope")
)

// Scope is the tenant identity extracted from a verified token.
type Scope struct {
	TenantId  string
	Subject   string
	ExpiresAt time.Time
}

// Require rejects any claimed tenant that is not the scoped one. Callers must
// check this before every cross-tenant-capable read or write; the storage key
// prefix is the second line of defense, not the first.
func (s Scope) Require(tenantId string) error {
	if tenantId == "" || tenantId != s.TenantId {
		return fmt.Errorf("%w: scope %s, claimed %s", ErrTenantMismatch, s.TenantId, tenantId)
	}
	return nil
}

// ParseScope verifies an HMAC-signed identity token and extracts the tenant
// scope. The tenant rides in the "tenant_id" claim, falling back to "sub".
func ParseScope(tokenString string, secret []byte) (Scope, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Scope{}, ErrTokenExpired
		}
		return Scope{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Scope{}, ErrInvalidToken
	}

	scope := Scope{}
	if tenant, ok := claims["tenant_id"].(string); ok {
		scope.TenantId = tenant
	}
	if sub, ok := claims["sub"].(string); ok {
		scope.Subject = sub
		if scope.TenantId == "" {
			scope.TenantId = sub
		}
	}
	if scope.TenantId == "" {
		return Scope{}, fmt.Errorf("%w: no tenant claim", ErrInvalidToken)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		scope.ExpiresAt = exp.Time
	}
	return scope, nil
}
