package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zombar/feedbackpulse/internal/models"
)

var (
	// ErrUnauthorized means the caller presented no valid token
	ErrUnauthorized = errors.New("invalid or expired token")
	// ErrForbidden means the caller's role does not allow the request
	ErrForbidden = errors.New("insufficient permissions")
)

// Role is a user's access level
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleOwner      Role = "owner"
	RoleUser       Role = "user"
)

var roleRank = map[Role]int{
	RoleUser:       1,
	RoleOwner:      2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return roleRank[r] > 0
}

// AtLeast reports whether r grants at least the access of min
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && roleRank[r] >= roleRank[min]
}

// Claims are the JWT claims carried by dashboard users
type Claims struct {
	UserID         string `json:"uid"`
	OrganizationID string `json:"org,omitempty"`
	Role           Role   `json:"role"`
	jwt.RegisteredClaims
}

// Verifier issues and validates HS256 tokens
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the shared secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Issue signs a token for a user; ttl <= 0 means no expiry
func (v *Verifier) Issue(userID, organizationID string, role Role, ttl time.Duration) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	claims := &Claims{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify validates a token and returns its claims
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.Role.Valid() {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// AuthorizeScope checks the caller may read metrics for scope. Any role may
// read its own organization; other organizations need admin or above.
// Below admin, a token without an organization may read nothing.
func AuthorizeScope(claims *Claims, scope models.Scope) error {
	if claims == nil {
		return ErrUnauthorized
	}
	if claims.Role.AtLeast(RoleAdmin) {
		return nil
	}
	if claims.OrganizationID == "" {
		return ErrForbidden
	}
	if scope.OrganizationID != "" && scope.OrganizationID != claims.OrganizationID {
		return ErrForbidden
	}
	return nil
}

// RestrictScope pins a scope without an organization filter to the caller's
// own organization unless the caller is admin or above
func RestrictScope(claims *Claims, scope models.Scope) models.Scope {
	if claims != nil && scope.OrganizationID == "" && !claims.Role.AtLeast(RoleAdmin) {
		scope.OrganizationID = claims.OrganizationID
	}
	return scope
}

type contextKey string

const claimsKey contextKey = "claims"

// WithClaims stores claims in the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts claims set by Middleware
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// Middleware rejects requests without a valid bearer token
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			writeError(w, "missing authorization", http.StatusUnauthorized)
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			writeError(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// writeError sends the same JSON error body as the API handlers
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// TokenFromRequest reads a bearer token from the Authorization header, or the
// token query parameter for WebSocket clients
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
