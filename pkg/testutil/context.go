package testutil

import (
	"net/http"

	"parity/internal/access"
)

// WithActor attaches an authenticated actor to the request, as the auth
// middleware would after validating a bearer token.
func WithActor(req *http.Request, actor access.Actor) *http.Request {
	return req.WithContext(access.WithActor(req.Context(), actor))
}
