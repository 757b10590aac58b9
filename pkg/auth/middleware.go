package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware enforces a Bearer token on every request and stores the
// validated claims in the request context.
func Middleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				writeError(w, http.StatusUnauthorized, "expected Authorization: Bearer <token>")
				return
			}

			claims, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// HeaderIdentity is the development identity source used when JWT validation
// is disabled: the user id comes from X-User-ID and organization memberships
// from the comma-separated X-Org-IDs.
func HeaderIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
				return
			}
			claims := &Claims{Subject: userID}
			for _, org := range strings.Split(r.Header.Get("X-Org-IDs"), ",") {
				if org = strings.TrimSpace(org); org != "" {
					claims.OrgIDs = append(claims.OrgIDs, org)
				}
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
