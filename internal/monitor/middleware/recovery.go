// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

const internalErrorBody = `{"error":{"code":"INTERNAL_ERROR","message":"Internal server error"}}`

// Recovery turns a handler panic into a 500 envelope. If the handler had
// already started its response, the connection is left as is.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := record(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.Error("panic recovered", "path", r.URL.Path, "panic", p, "stack", string(debug.Stack()))
				if rec.wroteHeader {
					return
				}
				rec.Header().Set("Content-Type", "application/json")
				rec.WriteHeader(http.StatusInternalServerError)
				rec.Write([]byte(internalErrorBody))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
