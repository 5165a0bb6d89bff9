// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/taibuivan/flowra/internal/platform/constants"
	"github.com/taibuivan/flowra/internal/platform/ctxutil"
	"github.com/taibuivan/flowra/internal/platform/sec"
)

// # Authentication

// AccessVerifier validates a bearer token against both its signature and the
// active-session ledger. Implemented by the auth service.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*sec.AuthClaims, error)
}

// Authenticate validates the JWT token if present and injects user claims
// into the context. It does NOT reject requests without tokens; that is
// the job of RequireAuth on protected routes.
func Authenticate(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// 1. Extract the Authorization header
			authHeader := request.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// 2. Check Bearer scheme
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], constants.BearerPrefix) {
				next.ServeHTTP(writer, request)
				return
			}

			// 3. Verify signature and session ledger; silently ignore invalid
			// tokens here so public routes remain reachable
			claims, err := verifier.VerifyAccess(request.Context(), parts[1])
			if err != nil {
				next.ServeHTTP(writer, request)
				return
			}

			// 4. Inject claims into the context
			ctx := ctxutil.WithAuthUser(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that do not carry valid authenticated claims.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

		if ctxutil.GetAuthUser(request.Context()) == nil {
			writeError(writer, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		next.ServeHTTP(writer, request)
	})
}

// # Authorization

// RequirePermission gates a route on the role-level permission matrix carried
// in the token claims. Admins bypass the check. Resource-level rules (workflow
// ownership and shares) are enforced deeper, in the domain services.
func RequirePermission(operation, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			claims := ctxutil.GetAuthUser(request.Context())
			if claims == nil {
				writeError(writer, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			if claims.IsAdmin {
				next.ServeHTTP(writer, request)
				return
			}

			if !slices.Contains(claims.Permissions[resource], operation) {
				writeError(writer, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// RequireAdmin rejects requests from non-admin users.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

		claims := ctxutil.GetAuthUser(request.Context())
		if claims == nil {
			writeError(writer, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}

		if !claims.IsAdmin {
			writeError(writer, http.StatusForbidden, "FORBIDDEN", "Administrator access required")
			return
		}

		next.ServeHTTP(writer, request)
	})
}
