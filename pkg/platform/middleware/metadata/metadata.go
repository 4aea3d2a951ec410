package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"parity/pkg/requestcontext"
)

// ClientMetadata records the caller's IP and parsed User-Agent in the request
// context. Audit entries copy it into their metadata.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), FromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromRequest builds the client metadata for r.
func FromRequest(r *http.Request) requestcontext.ClientMetadata {
	md := requestcontext.ClientMetadata{
		IP:        ClientIPFromRequest(r),
		UserAgent: r.Header.Get("User-Agent"),
	}
	if md.UserAgent == "" {
		return md
	}
	ua := useragent.New(md.UserAgent)
	if name, version := ua.Browser(); name != "" {
		md.Browser = strings.TrimSpace(name + " " + version)
	}
	md.OS = ua.OS()
	md.Mobile = ua.Mobile()
	return md
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}

	return "unknown"
}
