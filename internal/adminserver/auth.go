package adminserver

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// requireBearer is a minimal HMAC-secret bearer-token check, grounded on
// kernel/internal/auth's middleware shape (extract the Authorization header,
// reject if the policy requires a credential that isn't present) but
// simplified from JWKS/OIDC validation to a single shared-secret HMAC verify
// since the admin surface has exactly one operator credential, not a fleet
// of peer services.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			respondError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		raw := strings.TrimSpace(authz[len("bearer "):])

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(s.bearerSecret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
