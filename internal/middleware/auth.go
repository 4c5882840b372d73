// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/olegiv/desa-go/internal/audit"
	"github.com/olegiv/desa-go/internal/auth"
)

// AdminActor is the actor name recorded for requests made with the admin token.
const AdminActor = "admin"

// AdminAuth requires "Authorization: Bearer <token>" matching tokenHash
// (argon2id or bcrypt). The admin actor is attached to the request context for
// auditing. An empty tokenHash leaves the routes open; configuration
// only allows that in development.
func AdminAuth(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash != "" {
				token, ok := bearerToken(r)
				if !ok {
					writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
					return
				}
				ok, err := auth.CheckToken(token, tokenHash)
				if err != nil {
					logger.Error("admin token hash is unusable", "error", err, "category", "security")
				}
				if !ok {
					logger.Warn("admin authentication failed", "ip", ClientIP(r), "path", r.URL.Path, "category", "security")
					writeJSONError(w, http.StatusUnauthorized, "invalid token")
					return
				}
			}

			ctx := audit.WithActor(r.Context(), audit.Actor{Name: AdminActor, IP: ClientIP(r)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
