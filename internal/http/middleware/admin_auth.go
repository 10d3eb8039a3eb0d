package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const adminClaimsKey contextKey = "leadflow.admin_claims"

// Operator roles accepted on admin routes.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

var errWrongRole = errors.New("role not allowed")

// AdminClaims are the JWT claims carried by operator tokens.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminJWT requires an HS256 bearer token whose role is one of roles.
// With no roles given, only RoleAdmin is accepted.
func AdminJWT(secret string, roles ...string) func(http.Handler) http.Handler {
	if len(roles) == 0 {
		roles = []string{RoleAdmin}
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims := &AdminClaims{}
			_, err := parser.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(*jwt.Token) (any, error) {
				return []byte(secret), nil
			})
			if err == nil && !hasRole(roles, claims.Role) {
				err = errWrongRole
			}
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, errWrongRole) {
					status = http.StatusForbidden
				}
				http.Error(w, "invalid token", status)
				return
			}
			ctx := context.WithValue(r.Context(), adminClaimsKey, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IssueAdminToken signs a token for subject with the given role.
func IssueAdminToken(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// AdminClaimsFromContext returns operator claims if present.
func AdminClaimsFromContext(ctx context.Context) (AdminClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(AdminClaims)
	return claims, ok
}

func hasRole(allowed []string, role string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
