// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package version carries the monitor API version.
//
// Versions are dates sent in the Cfpilot-Version header. Requests without
// the header get LatestVersion, and every response names the version that
// served it.
package version

import (
	"context"
	"net/http"
)

const (
	// Version20261001 is the initial monitor API.
	Version20261001 = "2026-10-01"

	// LatestVersion is served when a request names no version.
	LatestVersion = Version20261001
)

// Header is the HTTP header used to select the API version.
const Header = "Cfpilot-Version"

type contextKey string

const versionKey contextKey = "api-version"

// Supported reports whether v is a version this server can answer.
func Supported(v string) bool {
	return v == Version20261001
}

// FromContext returns the API version from the context.
// Returns LatestVersion if not set.
func FromContext(ctx context.Context) string {
	v, ok := ctx.Value(versionKey).(string)
	if !ok || v == "" {
		return LatestVersion
	}
	return v
}

// WithContext returns a new context with the API version set.
func WithContext(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, versionKey, version)
}

// Middleware resolves the requested version into the request context and
// rejects versions this server does not know.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := r.Header.Get(Header)
		if v == "" {
			v = LatestVersion
		}
		if !Supported(v) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"BAD_REQUEST","message":"unsupported API version"}}`))
			return
		}

		w.Header().Set(Header, v)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), v)))
	})
}
