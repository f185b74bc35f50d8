package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"pagemd/pkg/requestcontext"
)

// ClientMetadata resolves the caller's IP and a normalized User-Agent into
// the request context for audit stamping. Raw UA strings are noisy and can
// be megabytes of garbage; audit rows get the parsed browser and OS, capped.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), clientIP(r), normalizeUA(r.UserAgent()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	// First hop of X-Forwarded-For when a proxy terminated the connection.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const maxUALen = 256

func normalizeUA(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name != "" {
		out := name
		if version != "" {
			out += " " + version
		}
		if os := ua.OS(); os != "" {
			out += " (" + os + ")"
		}
		return out
	}
	if len(raw) > maxUALen {
		return raw[:maxUALen]
	}
	return raw
}
