package jwt

import (
	"context"
	"net/http"
	"strings"

	"bpmncollab/internal/pkg/logx"
)

type contextKey string

const (
	// ContextAuthPayloadKey is the key used to store the parsed Payload in the request Context.
	ContextAuthPayloadKey contextKey = "auth_payload"

	// CookieName is the cookie carrying the identity token.
	CookieName = "collab_token"

	// QueryParam is the query parameter carrying the identity token.
	QueryParam = "token"
)

// TokenFromRequest extracts a raw identity token from the Authorization header,
// the token query parameter or the identity cookie, in that order.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
			return parts[1]
		}
	}

	if token := r.URL.Query().Get(QueryParam); token != "" {
		return token
	}

	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}

	return ""
}

// IdentityExtractorMiddleware validates an identity token when one is present and
// injects its Payload into the request Context. A missing or invalid token never
// rejects the request: the caller is treated as a new collaborator.
func IdentityExtractorMiddleware(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := TokenFromRequest(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			payload, err := ResolveIdentity(tokenString, secretKey)
			if err != nil {
				logx.Warn("Invalid or expired identity token, treating as new collaborator", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextAuthPayloadKey, payload)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPayloadFromContext returns the identity Payload, or nil for an unidentified caller.
func GetPayloadFromContext(r *http.Request) *Payload {
	payload, ok := r.Context().Value(ContextAuthPayloadKey).(*Payload)
	if !ok {
		return nil
	}

	return payload
}

// UserIDFromContext returns the identified user id, or "" for an unidentified caller.
func UserIDFromContext(r *http.Request) string {
	if payload := GetPayloadFromContext(r); payload != nil {
		return payload.ID
	}
	return ""
}
