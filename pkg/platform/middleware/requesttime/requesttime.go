// Package requesttime provides middleware that fixes the request's "now".
// Every timestamp taken while serving one request, including audit entry
// times, then agrees.
package requesttime

import (
	"net/http"
	"time"

	"parity/pkg/requestcontext"
)

// Middleware captures the current UTC time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
