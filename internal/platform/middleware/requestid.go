// Package middleware assembles the platform API middleware chain. All
// request-scoped values land in pkg/requestcontext so services and audit
// writers read them without importing net/http.
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"pagemd/pkg/requestcontext"
)

// RequestIDHeader echoes the request ID back to the caller for support
// correlation.
const RequestIDHeader = "X-Request-Id"

// RequestID assigns every request an ID, honoring one supplied by a trusted
// upstream proxy.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestTime freezes one timestamp per request so every audit row written
// during it carries the same moment.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
