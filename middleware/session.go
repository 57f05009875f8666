package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/goSession/token"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the access-token claims stored by
// [RequireAccessToken].
func ClaimsFromContext(ctx context.Context) (*token.Claims, string, bool) {
	v, ok := ctx.Value(claimsContextKey{}).(accessContext)
	if !ok {
		return nil, "", false
	}
	return v.claims, v.raw, true
}

type accessContext struct {
	claims *token.Claims
	raw    string
}

// RequireAccessToken rejects API requests that carry no live access token,
// read from the Authorization header or else from the accessToken cookie.
// Claims are decoded, not verified; verification is the authority's job.
func RequireAccessToken(clock token.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := AccessToken(r)
			if raw == "" {
				writeUnauthorized(w, "access token not found")
				return
			}
			claims, ok := token.Live(raw, token.Now(clock))
			if !ok {
				writeUnauthorized(w, "access token expired or malformed")
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey{}, accessContext{claims: claims, raw: raw})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessToken returns the bearer token of r, falling back to its
// accessToken cookie.
func AccessToken(r *http.Request) string {
	if tok, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return tok
	}
	if c, err := r.Cookie("accessToken"); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	tok := strings.TrimSpace(value[len(bearer):])
	if tok == "" {
		return "", false
	}

	return tok, true
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
