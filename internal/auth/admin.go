// Package auth is the admin-console authentication surface: a single
// shared-secret HS256 JWT validator protecting the thin operator CRUD
// and live security feed under /admin, following the teacher's
// MasterKeyService pattern of master-key-issued admin tokens rather
// than a full OIDC login flow (that belongs to the explicitly
// out-of-scope web dashboard).
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidAdminToken covers every way an admin bearer token can fail
// to validate: missing, malformed, wrong signing method, or expired.
var ErrInvalidAdminToken = errors.New("auth: invalid or expired admin token")

// AdminClaims is the claim set an admin token carries.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AdminAuth validates admin bearer tokens against one shared HMAC
// secret (config: auth.admin_jwt_secret).
type AdminAuth struct {
	secret []byte
}

func NewAdminAuth(secret string) *AdminAuth {
	return &AdminAuth{secret: []byte(secret)}
}

// ValidateToken parses and verifies an admin bearer token's signature
// and expiry.
func (a *AdminAuth) ValidateToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAdminToken
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidAdminToken
	}
	return claims, nil
}

type adminClaimsKey struct{}

// ClaimsFromContext returns the claims Middleware validated for this
// request, if any.
func ClaimsFromContext(ctx context.Context) (*AdminClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey{}).(*AdminClaims)
	return claims, ok
}

// Middleware rejects any request without a valid admin bearer token
// before it reaches the admin CRUD or security-feed handlers.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, `{"error":"admin bearer token required"}`, http.StatusUnauthorized)
			return
		}
		claims, err := a.ValidateToken(parts[1])
		if err != nil {
			http.Error(w, `{"error":"invalid admin token"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), adminClaimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
