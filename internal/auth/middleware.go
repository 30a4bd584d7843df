package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrorResponse is an OAuth 2.0 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// RequireBearer rejects requests without a valid bearer token. Verified
// claims are stored in the request context.
func (v *Verifier) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			// Return 401 with WWW-Authenticate header pointing to resource metadata
			w.Header().Set("WWW-Authenticate", v.challenge("", ""))
			writeOAuthError(w, http.StatusUnauthorized, "missing_token", "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			w.Header().Set("WWW-Authenticate", v.challenge("invalid_token", "Invalid Authorization header format"))
			writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "Invalid Authorization header format")
			return
		}

		claims, err := v.Verify(r.Context(), parts[1])
		if err != nil {
			v.logger.Debug("Bearer token rejected", slog.String("error", err.Error()))
			if errors.Is(err, ErrMissingScope) {
				w.Header().Set("WWW-Authenticate", v.challenge("insufficient_scope", "Token is missing a required scope"))
				writeOAuthError(w, http.StatusForbidden, "insufficient_scope", "Token is missing a required scope")
				return
			}
			w.Header().Set("WWW-Authenticate", v.challenge("invalid_token", "Token is invalid or expired"))
			writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "Token is invalid or expired")
			return
		}

		ctx := WithClaims(r.Context(), claims)
		if v.sessions != nil {
			if err := v.sessions.Record(ctx, claims, parts[1]); err != nil {
				// Log but don't fail - the request is authenticated
				v.logger.Warn("Failed to record session", slog.String("error", err.Error()))
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (v *Verifier) challenge(code, description string) string {
	c := fmt.Sprintf(`Bearer realm="%s", resource_metadata="%s"`, v.config.ResourceURL, v.config.MetadataURL())
	if scopes := v.config.Scopes(); len(scopes) > 0 {
		c += fmt.Sprintf(`, scope="%s"`, strings.Join(scopes, " "))
	}
	if code != "" {
		c += fmt.Sprintf(`, error="%s", error_description="%s"`, code, description)
	}
	return c
}

// writeOAuthError writes an OAuth error response
func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}
