package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sebuszqo/ClaritySpend/internal/user"
)

const bearerPrefix = "Bearer "

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, username string) (user.Identity, error)
}

// Gate attaches the caller's identity to the request context when the
// request carries a valid bearer token for an existing user. It never
// rejects a request; protected routes wrap their handlers in
// RequireIdentity.
func Gate(tokens TokenValidator, identities IdentityResolver, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := user.IdentityFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := authenticate(r.Context(), tokens, identities, tokenString)
			if err != nil {
				event := log.Debug()
				category := "invalid"
				if errors.Is(err, ErrTokenExpired) {
					category = "expired"
				} else if !errors.Is(err, user.ErrUnauthorized) && !isTokenError(err) {
					event = log.Warn()
				}
				event.Err(err).Str("category", category).Str("path", r.URL.Path).Msg("bearer token rejected")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(user.WithIdentity(r.Context(), identity)))
		})
	}
}

func authenticate(ctx context.Context, tokens TokenValidator, identities IdentityResolver, tokenString string) (user.Identity, error) {
	subject, err := tokens.Subject(tokenString)
	if err != nil {
		return user.Identity{}, err
	}
	identity, err := identities.ResolveIdentity(ctx, subject)
	if err != nil {
		return user.Identity{}, err
	}
	if err := tokens.Validate(tokenString, identity.Username); err != nil {
		return user.Identity{}, err
	}
	return identity, nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", false
	}
	tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
	return tokenString, tokenString != ""
}

func isTokenError(err error) bool {
	var tokenErr *TokenError
	return errors.As(err, &tokenErr)
}

// RequireIdentity rejects requests the gate did not authenticate.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := user.IdentityFromContext(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSONError writes an error response in JSON format
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Status:  "error",
		Message: message,
		Code:    statusCode,
	})
}
